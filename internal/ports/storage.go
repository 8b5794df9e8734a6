package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// RiskStore persists risk manager state across restarts.
type RiskStore interface {
	// LoadLedger returns the saved ledger; ok is false on a fresh database.
	LoadLedger(ctx context.Context) (ledger domain.Ledger, ok bool, err error)
	SaveLedger(ctx context.Context, ledger domain.Ledger) error

	// SavePosition upserts a position by market id.
	SavePosition(ctx context.Context, p domain.Position) error
	OpenPositions(ctx context.Context) ([]domain.Position, error)
	SettledPositions(ctx context.Context, from, to time.Time) ([]domain.Position, error)

	// SaveDaily upserts the summary row of a closed UTC day.
	SaveDaily(ctx context.Context, s domain.DailySummary) error

	SetHalt(ctx context.Context, marketID, reason string) error
	ClearHalt(ctx context.Context, marketID string) error
	Halts(ctx context.Context) (map[string]string, error)
}

// AttemptStore records every order attempt transition.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, a domain.OrderAttempt) error
}
