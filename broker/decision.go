package broker

import (
	"context"

	"github.com/ndidplatform/idp-agent/accessor"
	"github.com/ndidplatform/idp-agent/o11y"
	"github.com/ndidplatform/idp-agent/proto"
	"github.com/ndidplatform/idp-agent/trustapi"
)

// Reject responses carry placeholder credentials per the trust-network
// contract; no secret material is disclosed for a refusal.
const (
	rejectIAL       = 1.2
	rejectAAL       = 2.1
	rejectSecret    = "<secret>"
	rejectSignature = "<signature>"
	rejectAccessor  = "<accessor_id>"
)

const (
	acceptIAL = 3
	acceptAAL = 3
)

// Decide resolves a pending request with the user's accept or reject
// decision and relays it upstream. The request is claimed atomically
// before the upstream call, so concurrent decisions for the same
// request submit at most one response: the losers fail with
// UnknownRequest without ever reaching the trust network.
//
// Once the upstream submission has been attempted the request is
// retired locally regardless of the result. Re-submission is not
// idempotent upstream, and a stale local copy would invite the client
// to retry; reconciliation of failed submissions is out-of-band.
func (b *Broker) Decide(ctx context.Context, userID, requestID string, outcome proto.Outcome) error {
	if !outcome.IsValid() {
		return proto.ErrInvalidRequest.WithCausef("invalid outcome %q", outcome)
	}

	user, found, err := b.Directory.ByID(ctx, userID)
	if err != nil {
		return proto.ErrDatabaseError.WithCausef("lookup user: %w", err)
	}
	if !found {
		return proto.ErrUnknownRequest.WithCausef("user %q is not registered", userID)
	}

	// Load accessor material before claiming, so a missing-keys
	// failure leaves the request pending instead of retiring it
	// without an upstream attempt.
	var material accessor.Material
	if outcome == proto.Outcome_Accept {
		var found bool
		material, found, err = b.Keys.Get(user.SID())
		if err != nil {
			return proto.ErrInternalError.WithCausef("load accessor material: %w", err)
		}
		if !found {
			return proto.ErrInternalError.WithCausef("no accessor material for %q", user.SID())
		}
	}

	req, claimed := b.Requests.Claim(userID, requestID)
	if !claimed {
		return proto.ErrUnknownRequest.WithCausef("request %q is not pending for user %q", requestID, userID)
	}
	defer b.Requests.Remove(requestID)

	decision := proto.Decision{
		RequestID: requestID,
		UserID:    user.ID,
		Outcome:   outcome,
	}
	switch outcome {
	case proto.Outcome_Accept:
		decision.IAL = acceptIAL
		decision.AAL = acceptAAL
		decision.Secret = material.Secret
		decision.AccessorID = material.AccessorID
		decision.Signature, err = accessor.SignResponse(material.PrivateKey, req.Payload)
		if err != nil {
			o11y.Decisions.WithLabelValues(outcome.String(), "error").Inc()
			return proto.ErrInternalError.WithCausef("sign response: %w", err)
		}
	case proto.Outcome_Reject:
		decision.IAL = rejectIAL
		decision.AAL = rejectAAL
		decision.Secret = rejectSecret
		decision.Signature = rejectSignature
		decision.AccessorID = rejectAccessor
	}

	err = b.Upstream.SubmitResponse(ctx, trustapi.ResponseParams{
		RequestID:  decision.RequestID,
		Namespace:  user.Namespace,
		Identifier: user.Identifier,
		IAL:        decision.IAL,
		AAL:        decision.AAL,
		Secret:     decision.Secret,
		Status:     decision.Outcome.String(),
		Signature:  decision.Signature,
		AccessorID: decision.AccessorID,
	})
	if err != nil {
		b.Log.Warn().Err(err).Str("requestID", requestID).Str("outcome", outcome.String()).
			Msg("decision: upstream submission failed, request retired anyway")
		o11y.Decisions.WithLabelValues(outcome.String(), "error").Inc()
		if _, ok := err.(proto.WebRPCError); ok {
			return err
		}
		return proto.ErrUpstreamError.WithCause(err)
	}

	o11y.Decisions.WithLabelValues(outcome.String(), "ok").Inc()
	return nil
}
