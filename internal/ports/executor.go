package ports

import (
	"context"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Venue is the order API of the matching venue.
//
// Errors must wrap domain.ErrVenueRejection for non-retryable rejections and
// domain.ErrTransientNetwork for anything worth retrying.
type Venue interface {
	// Submit places a limit order and returns the venue order id.
	Submit(ctx context.Context, req domain.OrderRequest) (string, error)

	// Status returns the filled size and average price of an order.
	Status(ctx context.Context, orderID string) (domain.VenueOrderStatus, error)

	// Cancel cancels the unfilled remainder. It returns false when the venue
	// reports the order as not cancelled.
	Cancel(ctx context.Context, orderID string) (bool, error)
}
