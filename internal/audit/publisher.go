package audit

import (
	"context"

	id "verikey/pkg/domain"
	"verikey/pkg/requestcontext"
)

// Store persists audit events. It is append-only so tests can swap sinks
// easily.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actorID id.UserID, limit int) ([]Event, error)
}

// Publisher captures structured audit events synchronously. Emit enriches
// events with request metadata from the context before handing them to the
// store.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	return p.store.Append(ctx, enrich(ctx, base))
}

func (p *Publisher) List(ctx context.Context, actorID id.UserID, limit int) ([]Event, error) {
	return p.store.ListByActor(ctx, actorID, limit)
}

// AsyncPublisher queues events for a background Worker instead of writing
// inline. Emit never blocks; when the inbox is full the event is dropped,
// so audit capture can never stall a user-facing request.
//
// Enrichment happens at Emit time because the request context is gone by
// the time the worker drains the inbox.
type AsyncPublisher struct {
	inbox chan Event
}

func NewAsyncPublisher(buffer int) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncPublisher{inbox: make(chan Event, buffer)}
}

func (p *AsyncPublisher) Emit(ctx context.Context, base Event) error {
	select {
	case p.inbox <- enrich(ctx, base):
	default:
	}
	return nil
}

// Inbox exposes the event channel for the Worker.
func (p *AsyncPublisher) Inbox() <-chan Event {
	return p.inbox
}

// enrich fills timestamp and request metadata from the context for any
// fields the emitter left empty.
func enrich(ctx context.Context, base Event) Event {
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	if base.ClientIP == "" {
		base.ClientIP = requestcontext.ClientIP(ctx)
	}
	if base.UserAgent == "" {
		base.UserAgent = requestcontext.UserAgent(ctx)
	}
	if base.ActorID == "" {
		if actor := requestcontext.UserID(ctx); !actor.IsNil() {
			base.ActorID = actor.String()
		}
	}
	return base
}
