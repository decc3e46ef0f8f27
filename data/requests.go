package data

import (
	"sync"

	"github.com/ndidplatform/idp-agent/proto"
)

// RequestStore holds pending authentication requests until they are
// resolved. All mutations are serialized behind a single mutex; no
// method holds the lock across an external call, so a slow upstream
// submission never starves unrelated requests.
//
// A request is either pending (visible to Get/List and claimable) or
// claimed (hidden while its decision is submitted upstream). Claimed
// entries are deleted by Remove once the submission has been
// attempted, whatever the outcome.
type RequestStore struct {
	mu      sync.Mutex
	entries map[string]*requestEntry // keyed by request id
	order   map[string][]string      // user id -> request ids, insertion order
}

type requestEntry struct {
	req     proto.AuthRequest
	claimed bool
}

func NewRequestStore() *RequestStore {
	return &RequestStore{
		entries: map[string]*requestEntry{},
		order:   map[string][]string{},
	}
}

// Save inserts or overwrites the request under (userID, requestID).
// A request id already held by a different user is a data-integrity
// violation and fails with proto.ErrRequestOwnershipConflict; the
// store is left untouched. Overwriting resets any claim: the later
// arrival wins and is treated as a fresh pending request.
func (s *RequestStore) Save(userID string, req proto.AuthRequest) error {
	req.UserID = userID

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[req.RequestID]; ok {
		if existing.req.UserID != userID {
			return proto.ErrRequestOwnershipConflict.WithCausef(
				"request %q belongs to user %q", req.RequestID, existing.req.UserID)
		}
		existing.req = req
		existing.claimed = false
		return nil
	}

	s.entries[req.RequestID] = &requestEntry{req: req}
	s.order[userID] = append(s.order[userID], req.RequestID)
	return nil
}

// Get returns the pending request under (userID, requestID). Claimed
// and absent requests both report not-found: to callers they are
// already resolved.
func (s *RequestStore) Get(userID, requestID string) (proto.AuthRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[requestID]
	if !ok || entry.claimed || entry.req.UserID != userID {
		return proto.AuthRequest{}, false
	}
	return entry.req, true
}

// ListByUser returns the user's pending requests in arrival order.
func (s *RequestStore) ListByUser(userID string) []proto.AuthRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs := make([]proto.AuthRequest, 0, len(s.order[userID]))
	for _, requestID := range s.order[userID] {
		entry, ok := s.entries[requestID]
		if !ok || entry.claimed {
			continue
		}
		reqs = append(reqs, entry.req)
	}
	return reqs
}

// Claim atomically checks that the request is pending under userID and
// marks it in-flight. Exactly one of any number of concurrent claims
// for the same request succeeds; the rest observe not-found.
func (s *RequestStore) Claim(userID, requestID string) (proto.AuthRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[requestID]
	if !ok || entry.claimed || entry.req.UserID != userID {
		return proto.AuthRequest{}, false
	}
	entry.claimed = true
	return entry.req, true
}

// Remove retires the request. Removing an absent request id is a
// no-op.
func (s *RequestStore) Remove(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[requestID]
	if !ok {
		return
	}
	delete(s.entries, requestID)

	ids := s.order[entry.req.UserID]
	for i, id := range ids {
		if id == requestID {
			s.order[entry.req.UserID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.order[entry.req.UserID]) == 0 {
		delete(s.order, entry.req.UserID)
	}
}
