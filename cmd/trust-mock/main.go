// trust-mock is a stand-in for the upstream trust network used in
// local development. It accepts the two upstream operations the agent
// performs and, for every registered identity, can fire a synthetic
// authentication callback back at the agent.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/ndidplatform/idp-agent/proto"
)

var (
	listenAddr = flag.String("listen", ":9999", "listen address")
	agentURL   = flag.String("agent", "http://localhost:8181", "idp-agent base URL to fire callbacks at")
)

var requestSeq atomic.Int64

func main() {
	flag.Parse()

	r := chi.NewRouter()

	r.Post("/identity", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("identity registered: %v:%v accessor=%v", body["namespace"], body["identifier"], body["accessor_id"])
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/idp/response", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("idp response: request=%v status=%v", body["request_id"], body["status"])
		w.WriteHeader(http.StatusOK)
	})

	// Fire a synthetic authentication callback at the agent, as the
	// trust network would on behalf of a relying party.
	r.Post("/fire/{namespace}/{identifier}", func(w http.ResponseWriter, req *http.Request) {
		requestID := fmt.Sprintf("mock-request-%d", requestSeq.Add(1))
		event := proto.CallbackEvent{
			Namespace:  chi.URLParam(req, "namespace"),
			Identifier: chi.URLParam(req, "identifier"),
			RequestID:  requestID,
			Payload: proto.RequestPayload{
				RequestID:      requestID,
				Namespace:      chi.URLParam(req, "namespace"),
				Identifier:     chi.URLParam(req, "identifier"),
				RequestMessage: "mock authentication request",
				MinIAL:         3,
				MinAAL:         3,
			},
		}

		raw, _ := json.Marshal(event)
		res, err := http.Post(*agentURL+"/callback", "application/json", bytes.NewReader(raw))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer res.Body.Close()

		log.Printf("callback fired: %s -> %d", requestID, res.StatusCode)
		w.WriteHeader(res.StatusCode)
		_, _ = w.Write([]byte(requestID))
	})

	log.Printf("trust-mock listening on %s", *listenAddr)
	if err := http.ListenAndServe(*listenAddr, r); err != nil {
		log.Fatal(err)
	}
}
