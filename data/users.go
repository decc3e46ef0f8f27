package data

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ndidplatform/idp-agent/proto"
)

// Directory maps (namespace, identifier) pairs to local users. Lookups
// are pure reads and safe to run concurrently with each other.
type Directory interface {
	// Register creates a user for the identity, failing with
	// proto.ErrDuplicateIdentity if the pair is already taken.
	Register(ctx context.Context, namespace, identifier string) (proto.User, error)
	ByIdentifier(ctx context.Context, namespace, identifier string) (proto.User, bool, error)
	ByID(ctx context.Context, userID string) (proto.User, bool, error)
}

// MemoryDirectory is the default single-process Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	bySID map[string]proto.User
	byID  map[string]proto.User
}

var _ Directory = (*MemoryDirectory)(nil)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		bySID: map[string]proto.User{},
		byID:  map[string]proto.User{},
	}
}

func (d *MemoryDirectory) Register(ctx context.Context, namespace, identifier string) (proto.User, error) {
	user := proto.User{
		ID:         uuid.NewString(),
		Namespace:  namespace,
		Identifier: identifier,
	}
	if err := user.Validate(); err != nil {
		return proto.User{}, proto.ErrInvalidRequest.WithCause(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.bySID[user.SID()]; ok {
		return proto.User{}, proto.ErrDuplicateIdentity.WithCausef("identity %q already registered", user.SID())
	}
	d.bySID[user.SID()] = user
	d.byID[user.ID] = user
	return user, nil
}

func (d *MemoryDirectory) ByIdentifier(ctx context.Context, namespace, identifier string) (proto.User, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.bySID[namespace+":"+identifier]
	return user, ok, nil
}

func (d *MemoryDirectory) ByID(ctx context.Context, userID string) (proto.User, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.byID[userID]
	return user, ok, nil
}
