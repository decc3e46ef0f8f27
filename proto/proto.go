// Package proto holds the domain types shared across the idp-agent
// service and the error surface exposed by its HTTP transport.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// User is a locally registered identity. Identity is the pair
// (Namespace, Identifier), which is unique across the directory. Users
// are immutable once registered.
type User struct {
	ID         string `json:"id"`
	Namespace  string `json:"namespace"`
	Identifier string `json:"identifier"`
}

// SID is the subject identifier used to key accessor material, in the
// same "namespace:identifier" form the trust network uses.
func (u User) SID() string {
	return u.Namespace + ":" + u.Identifier
}

func (u User) Validate() error {
	if u.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if strings.Contains(u.Namespace, ":") {
		return fmt.Errorf("namespace cannot contain ':'")
	}
	if u.Identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	return nil
}

// RequestPayload is the body of an inbound authentication request as
// delivered by the trust network. The fields are passed through to the
// client session untouched; only RequestID and RequestMessage are read
// by the agent itself.
type RequestPayload struct {
	RequestID       string          `json:"request_id"`
	Namespace       string          `json:"namespace"`
	Identifier      string          `json:"identifier"`
	RequestMessage  string          `json:"request_message,omitempty"`
	MinIAL          float64         `json:"min_ial,omitempty"`
	MinAAL          float64         `json:"min_aal,omitempty"`
	Timeout         int             `json:"request_timeout,omitempty"`
	DataRequestList json.RawMessage `json:"data_request_list,omitempty"`
}

// AuthRequest is a pending authentication request held for a user
// until it is resolved by an accept or reject decision.
type AuthRequest struct {
	RequestID string         `json:"requestId"`
	UserID    string         `json:"userId"`
	Payload   RequestPayload `json:"payload"`
}

// CallbackEvent is an asynchronous event from the trust network
// announcing a new authentication request for an identity that may or
// may not be known locally.
type CallbackEvent struct {
	Namespace  string         `json:"namespace"`
	Identifier string         `json:"identifier"`
	RequestID  string         `json:"request_id"`
	Payload    RequestPayload `json:"payload"`
}

func (e CallbackEvent) Validate() error {
	if e.Namespace == "" || e.Identifier == "" {
		return fmt.Errorf("namespace and identifier are required")
	}
	if e.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	return nil
}

type Outcome string

const (
	Outcome_Accept Outcome = "accept"
	Outcome_Reject Outcome = "reject"
)

func (o Outcome) String() string {
	return string(o)
}

func (o Outcome) IsValid() bool {
	return o == Outcome_Accept || o == Outcome_Reject
}

// Decision is the resolved response for a single authentication
// request, handed to the trust network exactly once. It is ephemeral
// and never persisted.
type Decision struct {
	RequestID  string
	UserID     string
	Outcome    Outcome
	IAL        float64
	AAL        float64
	Secret     string
	Signature  string
	AccessorID string
}
