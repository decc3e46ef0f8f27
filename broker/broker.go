// Package broker drives the authentication request lifecycle: inbound
// trust-network callbacks are correlated to local users and stored,
// pushed to the live client session, and resolved exactly once by an
// accept or reject decision relayed back upstream.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/goware/cachestore"
	"github.com/goware/cachestore/cachestorectl"
	"github.com/goware/cachestore/memlru"
	"github.com/ndidplatform/idp-agent/data"
	"github.com/ndidplatform/idp-agent/notify"
	"github.com/ndidplatform/idp-agent/proto"
	"github.com/ndidplatform/idp-agent/trustapi"
	"github.com/rs/zerolog"
)

const eventQueueSize = 256

type Broker struct {
	Log       zerolog.Logger
	Directory data.Directory
	Requests  *data.RequestStore
	Keys      data.KeyStore
	Upstream  trustapi.Client
	Channel   *notify.Channel

	// users caches directory hits in front of remote-backed
	// directories; misses are never cached so a registration is
	// visible to the next callback immediately.
	users  cachestore.Store[proto.User]
	events chan proto.CallbackEvent
}

func New(
	log zerolog.Logger,
	directory data.Directory,
	requests *data.RequestStore,
	keys data.KeyStore,
	upstream trustapi.Client,
	channel *notify.Channel,
) (*Broker, error) {
	users, err := cachestorectl.Open[proto.User](memlru.Backend(1024))
	if err != nil {
		return nil, fmt.Errorf("open user cache: %w", err)
	}

	return &Broker{
		Log:       log,
		Directory: directory,
		Requests:  requests,
		Keys:      keys,
		Upstream:  upstream,
		Channel:   channel,
		users:     users,
		events:    make(chan proto.CallbackEvent, eventQueueSize),
	}, nil
}

// errUnknownIdentity marks a directory miss inside the cache getter so
// the miss is surfaced without being cached.
var errUnknownIdentity = fmt.Errorf("identity not registered")

func (b *Broker) resolveUser(ctx context.Context, namespace, identifier string) (proto.User, bool, error) {
	sid := namespace + ":" + identifier
	user, err := b.users.GetOrSetWithLockEx(ctx, sid, func(ctx context.Context, _ string) (proto.User, error) {
		user, found, err := b.Directory.ByIdentifier(ctx, namespace, identifier)
		if err != nil {
			return proto.User{}, err
		}
		if !found {
			return proto.User{}, errUnknownIdentity
		}
		return user, nil
	}, userCacheTTL)
	// The cache wraps getter errors, so match the sentinel by chain.
	if errors.Is(err, errUnknownIdentity) {
		return proto.User{}, false, nil
	}
	if err != nil {
		return proto.User{}, false, err
	}
	return user, true, nil
}

// PendingRequests lists the user's unresolved authentication requests
// in arrival order.
func (b *Broker) PendingRequests(ctx context.Context, namespace, identifier string) ([]proto.AuthRequest, error) {
	user, found, err := b.resolveUser(ctx, namespace, identifier)
	if err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("resolve user: %w", err)
	}
	if !found {
		return nil, proto.ErrInvalidRequest.WithCausef("identity %s:%s is not registered", namespace, identifier)
	}
	return b.Requests.ListByUser(user.ID), nil
}

// ResolveUserID maps an identity to its local user id. found is false
// for identities not registered here.
func (b *Broker) ResolveUserID(ctx context.Context, namespace, identifier string) (string, bool, error) {
	user, found, err := b.resolveUser(ctx, namespace, identifier)
	if err != nil {
		return "", false, proto.ErrDatabaseError.WithCausef("resolve user: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return user.ID, true, nil
}
