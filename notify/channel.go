// Package notify pushes newly arrived authentication requests to the
// currently connected client session.
package notify

import (
	"sync"

	"github.com/ndidplatform/idp-agent/proto"
	"github.com/rs/zerolog"
)

// Session is one live client connection.
type Session interface {
	Send(req proto.AuthRequest) error
	Close() error
}

// Channel holds at most one active session. Delivery is best-effort:
// the request store remains the durable source of pending requests, so
// a client that missed a push recovers it by listing on reconnect.
type Channel struct {
	log zerolog.Logger

	mu     sync.Mutex
	active Session
}

func NewChannel(log zerolog.Logger) *Channel {
	return &Channel{log: log}
}

// Attach installs the session, silently superseding any previous one.
// The superseded session is closed; there is no handoff negotiation.
func (c *Channel) Attach(session Session) {
	c.mu.Lock()
	prev := c.active
	c.active = session
	c.mu.Unlock()

	if prev != nil && prev != session {
		if err := prev.Close(); err != nil {
			c.log.Debug().Err(err).Msg("notify: close superseded session")
		}
	}
}

// Detach clears the active session if it is still the given one.
// Detaching a session that was already superseded is a no-op.
func (c *Channel) Detach(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == session {
		c.active = nil
	}
}

// Publish delivers the request to the active session, if any. A
// missing session or a failed send is swallowed; a failed send also
// drops the session since the connection is dead.
func (c *Channel) Publish(req proto.AuthRequest) {
	c.mu.Lock()
	session := c.active
	c.mu.Unlock()

	if session == nil {
		return
	}
	if err := session.Send(req); err != nil {
		c.log.Warn().Err(err).Str("requestID", req.RequestID).Msg("notify: push failed, dropping session")
		c.Detach(session)
		_ = session.Close()
	}
}
