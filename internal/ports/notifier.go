package ports

import (
	"context"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Notifier receives structured events. Its errors never affect trading.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}
