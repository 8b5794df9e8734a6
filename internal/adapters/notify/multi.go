package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// Multi fans each event out to several notifiers. One failing does not
// stop delivery to the rest.
type Multi []ports.Notifier

// Notify delivers to all and returns the joined errors.
func (m Multi) Notify(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			slog.Warn("notify: sink failed", "event", e.Type, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, domain.Event) error { return nil }
