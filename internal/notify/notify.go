// Package notify delivers outbound email. Delivery is best effort: callers
// treat every Notifier as fire-and-forget and must not let a failure block
// the mutation that triggered it.
package notify

import "context"

// Notifier sends transactional notifications.
type Notifier interface {
	// RequestCreated tells the target someone is asking for their
	// information.
	RequestCreated(ctx context.Context, email, requesterName, label string, categories []string) error
}

// Noop discards every notification. Used when no From address is configured.
type Noop struct{}

func (Noop) RequestCreated(context.Context, string, string, string, []string) error {
	return nil
}
