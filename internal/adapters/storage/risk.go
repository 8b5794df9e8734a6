package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// ─── Ledger ──────────────────────────────────────────────────────────────────

// LoadLedger returns the saved ledger; ok is false on a fresh database.
func (s *SQLiteStorage) LoadLedger(ctx context.Context) (domain.Ledger, bool, error) {
	var l domain.Ledger
	var day, cycles string
	var cooldownUntil sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT bankroll, day, deployed_today, realized_today, entries_today,
		       wins_today, losses_today, settled_today, cycles,
		       consecutive_losses, cooldown_until
		FROM ledger WHERE id = 1`).Scan(
		&l.Bankroll, &day, &l.DeployedToday, &l.RealizedToday, &l.EntriesToday,
		&l.WinsToday, &l.LossesToday, &l.SettledToday, &cycles,
		&l.Cooldown.ConsecutiveLosses, &cooldownUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ledger{}, false, nil
	}
	if err != nil {
		return domain.Ledger{}, false, fmt.Errorf("storage.LoadLedger: %w", err)
	}

	l.Day = domain.UTCDay(parseTime(day))
	if t := parseNullTime(cooldownUntil); t != nil {
		l.Cooldown.CooldownUntil = *t
	}
	l.Cycles = make(map[string]domain.CycleCounter)
	if cycles != "" {
		if err := json.Unmarshal([]byte(cycles), &l.Cycles); err != nil {
			return domain.Ledger{}, false, fmt.Errorf("storage.LoadLedger: cycles: %w", err)
		}
	}
	return l, true, nil
}

// SaveLedger upserts the single ledger row.
func (s *SQLiteStorage) SaveLedger(ctx context.Context, l domain.Ledger) error {
	cycles, err := json.Marshal(l.Cycles)
	if err != nil {
		return fmt.Errorf("storage.SaveLedger: cycles: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger
		  (id, bankroll, day, deployed_today, realized_today, entries_today,
		   wins_today, losses_today, settled_today, cycles,
		   consecutive_losses, cooldown_until, updated_at)
		VALUES (1,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  bankroll           = excluded.bankroll,
		  day                = excluded.day,
		  deployed_today     = excluded.deployed_today,
		  realized_today     = excluded.realized_today,
		  entries_today      = excluded.entries_today,
		  wins_today         = excluded.wins_today,
		  losses_today       = excluded.losses_today,
		  settled_today      = excluded.settled_today,
		  cycles             = excluded.cycles,
		  consecutive_losses = excluded.consecutive_losses,
		  cooldown_until     = excluded.cooldown_until,
		  updated_at         = excluded.updated_at`,
		l.Bankroll, formatTime(l.Day), l.DeployedToday, l.RealizedToday, l.EntriesToday,
		l.WinsToday, l.LossesToday, l.SettledToday, string(cycles),
		l.Cooldown.ConsecutiveLosses, nullTimeVal(l.Cooldown.CooldownUntil), formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveLedger: %w", err)
	}
	return nil
}

// ─── Positions ───────────────────────────────────────────────────────────────

type legRow struct {
	Side       domain.Side `json:"side"`
	TokenID    string      `json:"token_id"`
	Shares     float64     `json:"shares"`
	EntryPrice float64     `json:"entry_price"`
	Cost       float64     `json:"cost"`
}

// SavePosition upserts a position by market id.
func (s *SQLiteStorage) SavePosition(ctx context.Context, p domain.Position) error {
	rows := make([]legRow, len(p.Legs))
	for i, l := range p.Legs {
		rows[i] = legRow(l)
	}
	legs, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: legs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO positions
		  (market_id, event_id, question, sport, strategy, legs, cost, entry_time,
		   end_date, status, leg_risk, payout, pnl, winner, settled_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(market_id) DO UPDATE SET
		  event_id   = excluded.event_id,
		  question   = excluded.question,
		  sport      = excluded.sport,
		  strategy   = excluded.strategy,
		  legs       = excluded.legs,
		  cost       = excluded.cost,
		  entry_time = excluded.entry_time,
		  end_date   = excluded.end_date,
		  status     = excluded.status,
		  leg_risk   = excluded.leg_risk,
		  payout     = excluded.payout,
		  pnl        = excluded.pnl,
		  winner     = excluded.winner,
		  settled_at = excluded.settled_at`,
		p.MarketID, p.EventID, p.Question, p.Sport, p.Strategy.String(), string(legs), p.Cost,
		formatTime(p.EntryTime), nullTimeVal(p.EndDate), string(p.Status), boolToInt(p.LegRisk),
		p.Payout, p.PnL, string(p.Winner), nullTime(p.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition %s: %w", p.MarketID, err)
	}
	return nil
}

// OpenPositions returns every OPEN position ordered by entry time.
func (s *SQLiteStorage) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	ps, err := s.queryPositions(ctx, `WHERE status = ? ORDER BY entry_time ASC`, string(domain.PositionOpen))
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositions: %w", err)
	}
	return ps, nil
}

// SettledPositions returns positions settled in [from, to).
func (s *SQLiteStorage) SettledPositions(ctx context.Context, from, to time.Time) ([]domain.Position, error) {
	ps, err := s.queryPositions(ctx,
		`WHERE status = ? AND settled_at >= ? AND settled_at < ? ORDER BY settled_at ASC`,
		string(domain.PositionSettled), formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.SettledPositions: %w", err)
	}
	return ps, nil
}

func (s *SQLiteStorage) queryPositions(ctx context.Context, where string, args ...any) ([]domain.Position, error) {
	q := `SELECT market_id, event_id, question, sport, strategy, legs, cost, entry_time,
	             end_date, status, leg_risk, payout, pnl, winner, settled_at
	      FROM positions ` + where

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var p domain.Position
	var question sql.NullString
	var strategy, legs, entry, status, winner string
	var endDate, settledAt sql.NullString
	var legRisk int

	err := rows.Scan(
		&p.MarketID, &p.EventID, &question, &p.Sport, &strategy, &legs, &p.Cost, &entry,
		&endDate, &status, &legRisk, &p.Payout, &p.PnL, &winner, &settledAt,
	)
	if err != nil {
		return p, err
	}

	var legRows []legRow
	if err := json.Unmarshal([]byte(legs), &legRows); err != nil {
		return p, fmt.Errorf("position %s: legs: %w", p.MarketID, err)
	}
	p.Legs = make([]domain.PositionLeg, len(legRows))
	for i, l := range legRows {
		p.Legs[i] = domain.PositionLeg(l)
	}

	p.Question = question.String
	p.Strategy = parseStrategy(strategy)
	p.EntryTime = parseTime(entry)
	if t := parseNullTime(endDate); t != nil {
		p.EndDate = *t
	}
	p.Status = domain.PositionStatus(status)
	p.LegRisk = legRisk != 0
	p.Winner = domain.Side(winner)
	p.SettledAt = parseNullTime(settledAt)
	return p, nil
}

func parseStrategy(s string) domain.Strategy {
	if s == domain.StrategyStructural.String() {
		return domain.StrategyStructural
	}
	return domain.StrategyFairValue
}

// ─── Daily ───────────────────────────────────────────────────────────────────

// SaveDaily upserts the summary row of a closed UTC day.
func (s *SQLiteStorage) SaveDaily(ctx context.Context, d domain.DailySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily
		  (date, entries, deployed, settled, wins, losses, realized_pnl, bankroll, open_positions)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET
		  entries        = excluded.entries,
		  deployed       = excluded.deployed,
		  settled        = excluded.settled,
		  wins           = excluded.wins,
		  losses         = excluded.losses,
		  realized_pnl   = excluded.realized_pnl,
		  bankroll       = excluded.bankroll,
		  open_positions = excluded.open_positions`,
		d.Date.UTC().Format("2006-01-02"), d.Entries, d.Deployed, d.Settled, d.Wins, d.Losses,
		d.RealizedPnL, d.Bankroll, d.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDaily: %w", err)
	}
	return nil
}

// Dailies returns the most recent closed days, newest first.
func (s *SQLiteStorage) Dailies(ctx context.Context, limit int) ([]domain.DailySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, entries, deployed, settled, wins, losses, realized_pnl, bankroll, open_positions
		FROM daily ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Dailies: query: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var d domain.DailySummary
		var date string
		if err := rows.Scan(&date, &d.Entries, &d.Deployed, &d.Settled, &d.Wins, &d.Losses,
			&d.RealizedPnL, &d.Bankroll, &d.OpenPositions); err != nil {
			return nil, fmt.Errorf("storage.Dailies: scan: %w", err)
		}
		d.Date, _ = time.Parse("2006-01-02", date)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ─── Halts ───────────────────────────────────────────────────────────────────

// SetHalt blocks a market until ClearHalt.
func (s *SQLiteStorage) SetHalt(ctx context.Context, marketID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO halts (market_id, reason, halted_at) VALUES (?,?,?)
		ON CONFLICT(market_id) DO UPDATE SET reason = excluded.reason`,
		marketID, reason, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("storage.SetHalt %s: %w", marketID, err)
	}
	return nil
}

// ClearHalt removes the halt of a market. Clearing an unknown market is a no-op.
func (s *SQLiteStorage) ClearHalt(ctx context.Context, marketID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM halts WHERE market_id = ?`, marketID); err != nil {
		return fmt.Errorf("storage.ClearHalt %s: %w", marketID, err)
	}
	return nil
}

// Halts returns the halted markets with their reason.
func (s *SQLiteStorage) Halts(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market_id, reason FROM halts`)
	if err != nil {
		return nil, fmt.Errorf("storage.Halts: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, reason string
		if err := rows.Scan(&id, &reason); err != nil {
			return nil, fmt.Errorf("storage.Halts: scan: %w", err)
		}
		out[id] = reason
	}
	return out, rows.Err()
}
