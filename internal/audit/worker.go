package audit

import (
	"context"
	"log/slog"
)

// Worker drains an AsyncPublisher inbox into the store. A failed append is
// logged and skipped; one broken event must not stop the trail.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run processes events until the context is cancelled, then drains whatever
// is already queued before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.append(event)
		default:
			return
		}
	}
}

func (w *Worker) append(event Event) {
	// Fresh context: the request context that carried the event is gone.
	if err := w.store.Append(context.Background(), event); err != nil {
		w.logger.Error("audit append failed",
			"action", string(event.Action),
			"actor_id", event.ActorID,
			"error", err)
	}
}
