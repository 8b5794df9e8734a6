package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// SaveAttempt upserts an order attempt by id. The executor calls it on every
// state transition, so the row always holds the latest state.
func (s *SQLiteStorage) SaveAttempt(ctx context.Context, a domain.OrderAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_attempts
		  (id, pair_id, market_id, token_id, outcome, side, requested_price, requested_size,
		   expected_price, state, venue_order_id, filled_size, avg_fill_price, slippage,
		   retries, cancel_attempts, reason, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  state           = excluded.state,
		  venue_order_id  = excluded.venue_order_id,
		  filled_size     = excluded.filled_size,
		  avg_fill_price  = excluded.avg_fill_price,
		  slippage        = excluded.slippage,
		  retries         = excluded.retries,
		  cancel_attempts = excluded.cancel_attempts,
		  reason          = excluded.reason,
		  updated_at      = excluded.updated_at`,
		a.ID, a.PairID, a.MarketID, a.TokenID, string(a.Outcome), string(a.Side),
		a.RequestedPrice, a.RequestedSize, a.ExpectedPrice, string(a.State), a.VenueOrderID,
		a.FilledSize, a.AvgFillPrice, a.Slippage, a.Retries, a.CancelAttempts, string(a.Reason),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempt %s: %w", a.ID, err)
	}
	return nil
}

// AttemptsByMarket returns the attempts of a market in creation order.
func (s *SQLiteStorage) AttemptsByMarket(ctx context.Context, marketID string) ([]domain.OrderAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pair_id, market_id, token_id, outcome, side, requested_price, requested_size,
		       expected_price, state, venue_order_id, filled_size, avg_fill_price, slippage,
		       retries, cancel_attempts, reason, created_at, updated_at
		FROM order_attempts WHERE market_id = ? ORDER BY created_at ASC, id ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("storage.AttemptsByMarket: query: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderAttempt
	for rows.Next() {
		var a domain.OrderAttempt
		var outcome, side, state, reason, created, updated string
		if err := rows.Scan(
			&a.ID, &a.PairID, &a.MarketID, &a.TokenID, &outcome, &side,
			&a.RequestedPrice, &a.RequestedSize, &a.ExpectedPrice, &state, &a.VenueOrderID,
			&a.FilledSize, &a.AvgFillPrice, &a.Slippage, &a.Retries, &a.CancelAttempts,
			&reason, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("storage.AttemptsByMarket: scan: %w", err)
		}
		a.Outcome = domain.Side(outcome)
		a.Side = domain.OrderSide(side)
		a.State = domain.AttemptState(state)
		a.Reason = domain.ReasonCode(reason)
		a.CreatedAt = parseTime(created)
		a.UpdatedAt = parseTime(updated)
		out = append(out, a)
	}
	return out, rows.Err()
}
