// Package paper is a dry-run venue: every order fills at its limit price and
// no request leaves the process.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

type virtualOrder struct {
	req      domain.OrderRequest
	placedAt time.Time
}

// Venue implements ports.Venue without touching the CLOB.
type Venue struct {
	mu     sync.Mutex
	orders map[string]virtualOrder
	cash   float64
	now    func() time.Time
}

// NewVenue creates a paper venue with the given virtual USDC balance.
func NewVenue(initialCash float64) *Venue {
	return &Venue{
		orders: make(map[string]virtualOrder),
		cash:   initialCash,
		now:    time.Now,
	}
}

// Submit accepts the order and fills it at once at the requested price.
// A BUY larger than the virtual balance is rejected like the real CLOB would.
func (v *Venue) Submit(_ context.Context, req domain.OrderRequest) (string, error) {
	if req.Price <= 0 || req.Price >= 1 || req.Shares <= 0 {
		return "", fmt.Errorf("paper.Submit: %w: price=%.4f shares=%.2f", domain.ErrVenueRejection, req.Price, req.Shares)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	notional := req.Notional()
	switch req.Side {
	case domain.OrderSell:
		v.cash += notional
	default:
		if notional > v.cash+1e-9 {
			return "", fmt.Errorf("paper.Submit: %w: not enough balance ($%.2f < $%.2f)",
				domain.ErrVenueRejection, v.cash, notional)
		}
		v.cash -= notional
	}

	id := "paper-" + uuid.New().String()
	v.orders[id] = virtualOrder{req: req, placedAt: v.now()}

	slog.Info("paper: order filled",
		"market", req.MarketID,
		"side", req.Side,
		"outcome", req.Outcome,
		"price", req.Price,
		"shares", req.Shares,
		"notional", fmt.Sprintf("$%.2f", notional),
	)
	return id, nil
}

// Status reports every known order as fully matched at its limit price.
func (v *Venue) Status(_ context.Context, orderID string) (domain.VenueOrderStatus, error) {
	v.mu.Lock()
	o, ok := v.orders[orderID]
	v.mu.Unlock()
	if !ok {
		return domain.VenueOrderStatus{}, fmt.Errorf("paper.Status: %w: unknown order %s", domain.ErrVenueRejection, orderID)
	}
	return domain.VenueOrderStatus{
		OrderID:    orderID,
		Status:     domain.VenueMatched,
		FilledSize: o.req.Shares,
		AvgPrice:   o.req.Price,
	}, nil
}

// Cancel always reports false: paper orders are already matched.
func (v *Venue) Cancel(_ context.Context, orderID string) (bool, error) {
	v.mu.Lock()
	_, ok := v.orders[orderID]
	v.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("paper.Cancel: %w: unknown order %s", domain.ErrVenueRejection, orderID)
	}
	return false, nil
}

// Balance returns the virtual USDC balance.
func (v *Venue) Balance(_ context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cash, nil
}

// Orders returns the number of orders accepted so far.
func (v *Venue) Orders() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.orders)
}
