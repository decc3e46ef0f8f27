package broker

import (
	"context"
	"time"

	"github.com/ndidplatform/idp-agent/o11y"
	"github.com/ndidplatform/idp-agent/proto"
)

const userCacheTTL = time.Minute

// Enqueue hands an inbound trust-network callback to the ingress
// queue. It never blocks: upstream delivery is at-least-once and the
// caller is an HTTP handler, so on overflow the event is dropped and
// counted rather than applying backpressure upstream.
func (b *Broker) Enqueue(event proto.CallbackEvent) {
	o11y.CallbacksReceived.Inc()

	select {
	case b.events <- event:
	default:
		b.Log.Error().Str("requestID", event.RequestID).Msg("ingress: event queue full, dropping callback")
		o11y.CallbacksDropped.WithLabelValues("queue_full").Inc()
	}
}

// Run consumes the ingress queue until ctx is cancelled. Arrival
// concurrency is decoupled from processing order: events are applied
// one at a time, in the order they reached the queue.
func (b *Broker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-b.events:
			b.handleEvent(ctx, event)
		}
	}
}

func (b *Broker) handleEvent(ctx context.Context, event proto.CallbackEvent) {
	log := b.Log.With().Str("requestID", event.RequestID).Logger()

	user, found, err := b.resolveUser(ctx, event.Namespace, event.Identifier)
	if err != nil {
		log.Error().Err(err).Msg("ingress: resolve user")
		o11y.CallbacksDropped.WithLabelValues("directory_error").Inc()
		return
	}
	if !found {
		// The trust network routes requests for identities this IdP
		// never onboarded; not an error.
		log.Debug().Str("namespace", event.Namespace).Msg("ingress: identity not registered here, discarding")
		o11y.CallbacksDropped.WithLabelValues("unknown_identity").Inc()
		return
	}

	req := proto.AuthRequest{
		RequestID: event.RequestID,
		UserID:    user.ID,
		Payload:   event.Payload,
	}
	if req.Payload.RequestID == "" {
		req.Payload.RequestID = event.RequestID
	}

	if err := b.Requests.Save(user.ID, req); err != nil {
		// Ownership conflicts indicate inconsistent upstream data;
		// drop the event but make sure an operator can see it.
		log.Error().Err(err).Str("userID", user.ID).Msg("ingress: request rejected by store")
		o11y.CallbacksDropped.WithLabelValues("ownership_conflict").Inc()
		return
	}

	b.Channel.Publish(req)
}
