package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ndidplatform/idp-agent/o11y"
	"github.com/ndidplatform/idp-agent/proto"
)

type identityParams struct {
	Namespace  string `json:"namespace"`
	Identifier string `json:"identifier"`
}

type decisionParams struct {
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
}

func (s *RPC) onboardHandler(w http.ResponseWriter, r *http.Request) {
	var params identityParams
	if err := decodeBody(r, &params, func() {
		params.Namespace = r.PostFormValue("namespace")
		params.Identifier = r.PostFormValue("identifier")
	}); err != nil {
		proto.RespondWithError(w, proto.ErrInvalidRequest.WithCause(err))
		return
	}

	if err := s.Broker.Onboard(r.Context(), params.Namespace, params.Identifier); err != nil {
		proto.RespondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *RPC) pendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	identifier := chi.URLParam(r, "identifier")

	reqs, err := s.Broker.PendingRequests(r.Context(), namespace, identifier)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(reqs)
}

func (s *RPC) acceptHandler(w http.ResponseWriter, r *http.Request) {
	s.decisionHandler(w, r, proto.Outcome_Accept)
}

func (s *RPC) rejectHandler(w http.ResponseWriter, r *http.Request) {
	s.decisionHandler(w, r, proto.Outcome_Reject)
}

func (s *RPC) decisionHandler(w http.ResponseWriter, r *http.Request, outcome proto.Outcome) {
	var params decisionParams
	if err := decodeBody(r, &params, func() {
		params.UserID = r.PostFormValue("userId")
		params.RequestID = r.PostFormValue("requestId")
	}); err != nil {
		proto.RespondWithError(w, proto.ErrInvalidRequest.WithCause(err))
		return
	}
	if params.UserID == "" || params.RequestID == "" {
		proto.RespondWithError(w, proto.ErrInvalidRequest.WithCausef("userId and requestId are required"))
		return
	}

	if err := s.Broker.Decide(r.Context(), params.UserID, params.RequestID, outcome); err != nil {
		proto.RespondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *RPC) userIDHandler(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	identifier := chi.URLParam(r, "identifier")

	userID, found, err := s.Broker.ResolveUserID(r.Context(), namespace, identifier)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	if !found {
		// "0" is the not-found sentinel the client expects.
		userID = "0"
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(userID))
}

func (s *RPC) callbackHandler(w http.ResponseWriter, r *http.Request) {
	var event proto.CallbackEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		proto.RespondWithError(w, proto.ErrInvalidRequest.WithCausef("decode callback: %w", err))
		return
	}
	if event.RequestID == "" {
		event.RequestID = event.Payload.RequestID
	}
	if err := event.Validate(); err != nil {
		proto.RespondWithError(w, proto.ErrInvalidRequest.WithCause(err))
		return
	}

	s.Broker.Enqueue(event)
	o11y.LoggerFromContext(r.Context()).Info("callback accepted",
		"requestId", event.RequestID, "namespace", event.Namespace)
	w.WriteHeader(http.StatusAccepted)
}

// decodeBody reads params from a JSON body, falling back to form
// values for the browser client's urlencoded posts.
func decodeBody(r *http.Request, v any, fromForm func()) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		return json.NewDecoder(r.Body).Decode(v)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	fromForm()
	return nil
}
