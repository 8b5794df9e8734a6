package domain

import "time"

// PositionStatus is NONE -> OPEN -> SETTLED. NONE is the absence of a row.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionSettled PositionStatus = "SETTLED"
)

// PositionLeg is a filled side of a position.
type PositionLeg struct {
	Side       Side
	TokenID    string
	Shares     float64
	EntryPrice float64
	Cost       float64
}

// Position is the confirmed exposure on one market.
type Position struct {
	MarketID  string
	EventID   string
	Question  string
	Sport     string
	Strategy  Strategy
	Legs      []PositionLeg
	Cost      float64 // USDC paid across legs
	EntryTime time.Time
	EndDate   time.Time
	Status    PositionStatus
	LegRisk   bool // one-sided exposure left by a paired attempt
	Payout    float64
	PnL       float64
	SettledAt *time.Time
	Winner    Side
}

// Shares returns the share count held on a side.
func (p Position) Shares(side Side) float64 {
	var s float64
	for _, l := range p.Legs {
		if l.Side == side {
			s += l.Shares
		}
	}
	return s
}

// PayoutFor is the USDC redeemed when winner resolves: one dollar per winning share.
func (p Position) PayoutFor(winner Side) float64 {
	return p.Shares(winner)
}

// Resolution is the venue's view of a market's outcome.
type Resolution struct {
	MarketID string
	Resolved bool
	Winner   Side
}

// SettlementResult is returned by a settle call that changed state.
type SettlementResult struct {
	MarketID string
	Winner   Side
	Cost     float64
	Payout   float64
	PnL      float64
	Bankroll float64
}
