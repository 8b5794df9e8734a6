// Package risk owns the capital ledger. Every read-modify-write of the
// ledger happens inside one Manager method under one lock.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

const shareEpsilon = 1e-6

// Config holds the capital controls.
type Config struct {
	InitialBankroll     float64
	BankrollFloor       float64 // no entries at or below this bankroll
	DailyCap            float64 // 0 = unlimited
	MaxEntriesPerCycle  int     // 0 = unlimited
	PerMarketCap        float64
	MinOrderUSD         float64
	Sizing              SizingMode
	FixedSize           float64
	KellyFraction       float64
	KellyMin            float64
	KellyMax            float64
	KellyMaxBankrollPct float64
	CooldownLosses      int
	CooldownDuration    time.Duration
	MaxPerGame          map[string]float64 // class -> per-event cap, 0 = unlimited
}

// DefaultConfig returns conservative production limits.
func DefaultConfig() Config {
	return Config{
		InitialBankroll:     1000,
		BankrollFloor:       500,
		DailyCap:            100,
		MaxEntriesPerCycle:  3,
		PerMarketCap:        25,
		MinOrderUSD:         1,
		Sizing:              SizingFixed,
		FixedSize:           10,
		KellyFraction:       0.25,
		KellyMin:            5,
		KellyMax:            50,
		KellyMaxBankrollPct: 0.05,
		CooldownLosses:      3,
		CooldownDuration:    5 * time.Minute,
	}
}

// Reservation is capital set aside by Admit until Commit, Release or
// RecordLegRisk consumes it.
type Reservation struct {
	ID          string
	Class       string
	Amount      float64
	Opportunity domain.Opportunity
	CreatedAt   time.Time
}

// MarketID is the reserved market.
func (r Reservation) MarketID() string { return r.Opportunity.Market.ID }

// Manager is the single writer of the ledger and the position book.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	store ports.RiskStore
	now   func() time.Time

	ledger     domain.Ledger
	positions  map[string]domain.Position // OPEN only
	pending    map[string]Reservation     // by market
	halted     map[string]string
	perGame    map[string]float64 // event id -> cost of open and pending exposure
	reserved   float64
	unreported *domain.DailySummary

	observers []func(domain.SettlementResult)
}

// New loads persisted state from store and returns a ready Manager.
func New(ctx context.Context, cfg Config, store ports.RiskStore) (*Manager, error) {
	return newManager(ctx, cfg, store, time.Now)
}

func newManager(ctx context.Context, cfg Config, store ports.RiskStore, now func() time.Time) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		store:     store,
		now:       now,
		positions: make(map[string]domain.Position),
		pending:   make(map[string]Reservation),
		halted:    make(map[string]string),
		perGame:   make(map[string]float64),
	}

	ledger, ok, err := store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk.New: load ledger: %w", err)
	}
	if !ok {
		ledger = domain.Ledger{
			Bankroll: cfg.InitialBankroll,
			Day:      domain.UTCDay(now()),
		}
	}
	if ledger.Cycles == nil {
		ledger.Cycles = make(map[string]domain.CycleCounter)
	}
	ledger.Cooldown.MaxLosses = cfg.CooldownLosses
	ledger.Cooldown.CooldownDuration = cfg.CooldownDuration
	m.ledger = ledger

	open, err := store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk.New: load positions: %w", err)
	}
	for _, p := range open {
		m.positions[p.MarketID] = p
		if p.EventID != "" {
			m.perGame[p.EventID] += p.Cost
		}
	}

	halts, err := store.Halts(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk.New: load halts: %w", err)
	}
	for id, reason := range halts {
		m.halted[id] = reason
	}

	slog.Info("risk: ledger loaded",
		"bankroll", fmt.Sprintf("$%.2f", m.ledger.Bankroll),
		"deployed_today", fmt.Sprintf("$%.2f", m.ledger.DeployedToday),
		"open_positions", len(m.positions),
		"halted", len(m.halted),
	)
	return m, nil
}

// OnSettle registers a callback run after every settlement, outside the lock.
func (m *Manager) OnSettle(fn func(domain.SettlementResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// BeginCycle resets the per-cycle counters of class.
func (m *Manager) BeginCycle(class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.Cycles[class] = domain.CycleCounter{}
}

// Admit runs the admission gate and, when it passes, reserves the sized
// amount in the same critical section. Denials are *domain.Denial.
func (m *Manager) Admit(ctx context.Context, class string, opp domain.Opportunity) (Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollLocked(ctx, now)

	res, err := m.admitLocked(class, opp, now)
	if err != nil {
		slog.Info("risk: admission denied",
			"class", class,
			"market", opp.Market.ID,
			"reason", domain.ReasonOf(err),
			"err", err,
		)
		return Reservation{}, err
	}

	m.pending[res.MarketID()] = res
	m.reserved += res.Amount
	m.ledger.Bankroll -= res.Amount
	m.ledger.DeployedToday += res.Amount
	cc := m.ledger.Cycles[class]
	cc.Entries++
	cc.Deployed += res.Amount
	m.ledger.Cycles[class] = cc
	if ev := opp.Market.EventID; ev != "" {
		m.perGame[ev] += res.Amount
	}
	m.saveLedgerLocked(ctx)

	slog.Info("risk: reserved",
		"class", class,
		"market", res.MarketID(),
		"amount", fmt.Sprintf("$%.2f", res.Amount),
		"bankroll", fmt.Sprintf("$%.2f", m.ledger.Bankroll),
		"deployed_today", fmt.Sprintf("$%.2f", m.ledger.DeployedToday),
	)
	return res, nil
}

func (m *Manager) admitLocked(class string, opp domain.Opportunity, now time.Time) (Reservation, error) {
	id := opp.Market.ID
	if _, ok := m.positions[id]; ok {
		return Reservation{}, domain.Deny(domain.ReasonAlreadyOpen, "position open on %s", id)
	}
	if _, ok := m.pending[id]; ok {
		return Reservation{}, domain.Deny(domain.ReasonAlreadyOpen, "attempt in flight on %s", id)
	}
	if reason, ok := m.halted[id]; ok {
		return Reservation{}, domain.Deny(domain.ReasonMarketHalted, "%s", reason)
	}
	if m.ledger.Bankroll <= m.cfg.BankrollFloor {
		return Reservation{}, domain.Deny(domain.ReasonBankrollFloor, "bankroll $%.2f <= floor $%.2f",
			m.ledger.Bankroll, m.cfg.BankrollFloor)
	}
	if m.ledger.Cooldown.Active(now) {
		return Reservation{}, domain.Deny(domain.ReasonCooldown, "until %s",
			m.ledger.Cooldown.CooldownUntil.Format(time.RFC3339))
	}
	daily := m.dailyRemainingLocked()
	if daily == 0 {
		return Reservation{}, domain.Deny(domain.ReasonDailyCap, "deployed $%.2f of $%.2f",
			m.ledger.DeployedToday, m.cfg.DailyCap)
	}
	if limit := m.cfg.MaxEntriesPerCycle; limit > 0 && m.ledger.Cycles[class].Entries >= limit {
		return Reservation{}, domain.Deny(domain.ReasonCycleCap, "%d entries this cycle", limit)
	}
	game := m.gameRemainingLocked(class, opp.Market.EventID)
	if game == 0 {
		return Reservation{}, domain.Deny(domain.ReasonGameCap, "event %s at $%.2f",
			opp.Market.EventID, m.perGame[opp.Market.EventID])
	}

	size := m.baseSize(opp, daily)
	if m.cfg.PerMarketCap > 0 && size > m.cfg.PerMarketCap {
		size = m.cfg.PerMarketCap
	}
	if daily > 0 && size > daily+shareEpsilon {
		if m.cfg.Sizing != SizingCapped {
			return Reservation{}, domain.Deny(domain.ReasonDailyCap, "size $%.2f > remaining $%.2f", size, daily)
		}
		size = daily
	}
	if game > 0 && size > game {
		size = game
	}
	if avail := m.ledger.Bankroll - m.cfg.BankrollFloor; size > avail {
		size = avail
	}
	size = roundCents(size)
	if size < m.cfg.MinOrderUSD || size <= 0 {
		return Reservation{}, domain.Deny(domain.ReasonSizeTooSmall, "size $%.2f < $%.2f", size, m.cfg.MinOrderUSD)
	}

	return Reservation{
		ID:          uuid.NewString(),
		Class:       class,
		Amount:      size,
		Opportunity: opp,
		CreatedAt:   now,
	}, nil
}

// dailyRemainingLocked returns the unspent daily budget, -1 when unlimited.
func (m *Manager) dailyRemainingLocked() float64 {
	if m.cfg.DailyCap <= 0 {
		return -1
	}
	r := m.cfg.DailyCap - m.ledger.DeployedToday
	if r < shareEpsilon {
		return 0
	}
	return r
}

// gameRemainingLocked returns the unspent per-event cap, -1 when unlimited.
func (m *Manager) gameRemainingLocked(class, eventID string) float64 {
	limit := m.cfg.MaxPerGame[class]
	if limit <= 0 || eventID == "" {
		return -1
	}
	r := limit - m.perGame[eventID]
	if r < shareEpsilon {
		return 0
	}
	return r
}

// Commit turns a reservation into an OPEN position using the confirmed
// fills. Unused capital goes back to the bankroll. A reservation without any
// fill is released instead and the zero Position is returned.
func (m *Manager) Commit(ctx context.Context, res Reservation, fills []domain.OrderAttempt) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[res.MarketID()]; !ok {
		return domain.Position{}, fmt.Errorf("risk.Commit: no reservation for %s", res.MarketID())
	}
	legs, cost, _ := netLegs(fills)
	if len(legs) == 0 {
		m.releaseLocked(ctx, res, domain.ReasonTimeout)
		return domain.Position{}, nil
	}

	m.settleReservationLocked(res, cost)
	p := m.newPosition(res, legs, cost)
	m.positions[p.MarketID] = p
	m.ledger.EntriesToday++

	if err := m.store.SavePosition(context.WithoutCancel(ctx), p); err != nil {
		slog.Warn("risk: error saving position", "market", p.MarketID, "err", err)
	}
	m.saveLedgerLocked(ctx)

	slog.Info("risk: position opened",
		"market", p.MarketID,
		"strategy", p.Strategy,
		"cost", fmt.Sprintf("$%.2f", p.Cost),
		"reserved", fmt.Sprintf("$%.2f", res.Amount),
		"bankroll", fmt.Sprintf("$%.2f", m.ledger.Bankroll),
	)
	return p, nil
}

// Release returns the whole reservation. No position is recorded.
func (m *Manager) Release(ctx context.Context, res Reservation, reason domain.ReasonCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(ctx, res, reason)
}

func (m *Manager) releaseLocked(ctx context.Context, res Reservation, reason domain.ReasonCode) {
	if _, ok := m.pending[res.MarketID()]; !ok {
		return
	}
	m.settleReservationLocked(res, 0)
	m.saveLedgerLocked(ctx)

	slog.Info("risk: reservation released",
		"market", res.MarketID(),
		"amount", fmt.Sprintf("$%.2f", res.Amount),
		"reason", reason,
	)
}

// RecordLegRisk books the exposure left by a paired attempt that filled on
// one side only. fills may include SELL attempts from unwinding; their
// proceeds are credited and their shares netted. The market is halted until
// ClearHalt.
func (m *Manager) RecordLegRisk(ctx context.Context, res Reservation, fills []domain.OrderAttempt, reason string) (domain.Position, error) {
	m.mu.Lock()

	if _, ok := m.pending[res.MarketID()]; !ok {
		m.mu.Unlock()
		return domain.Position{}, fmt.Errorf("risk.RecordLegRisk: no reservation for %s", res.MarketID())
	}
	legs, cost, proceeds := netLegs(fills)

	// Net outlay is what stays deployed; proceeds of unwinds come back now.
	m.settleReservationLocked(res, cost-proceeds)

	p := m.newPosition(res, legs, cost-proceeds)
	p.LegRisk = true
	var (
		result    domain.SettlementResult
		observers []func(domain.SettlementResult)
	)
	if len(legs) == 0 {
		// Fully unwound: the round trip is realized now and counts as a
		// settlement for the streak and the daily tallies.
		now := m.now()
		p.Status = domain.PositionSettled
		p.Payout = proceeds
		p.PnL = proceeds - cost
		p.Cost = cost
		p.SettledAt = &now
		if ev := p.EventID; ev != "" {
			m.perGame[ev] -= cost - proceeds
			if m.perGame[ev] < shareEpsilon {
				delete(m.perGame, ev)
			}
		}
		m.bookRealizedLocked(p.PnL, now)
		result = domain.SettlementResult{
			MarketID: p.MarketID,
			Cost:     cost,
			Payout:   proceeds,
			PnL:      p.PnL,
			Bankroll: m.ledger.Bankroll,
		}
		observers = append(observers, m.observers...)
	} else {
		m.positions[p.MarketID] = p
		m.ledger.EntriesToday++
	}

	m.halted[p.MarketID] = reason
	if err := m.store.SetHalt(context.WithoutCancel(ctx), p.MarketID, reason); err != nil {
		slog.Warn("risk: error saving halt", "market", p.MarketID, "err", err)
	}
	if err := m.store.SavePosition(context.WithoutCancel(ctx), p); err != nil {
		slog.Warn("risk: error saving position", "market", p.MarketID, "err", err)
	}
	m.saveLedgerLocked(ctx)
	m.mu.Unlock()

	slog.Warn("risk: leg risk recorded, market halted",
		"market", p.MarketID,
		"open_shares", p.Shares(domain.SideYes)+p.Shares(domain.SideNo),
		"cost", fmt.Sprintf("$%.2f", cost),
		"unwound", fmt.Sprintf("$%.2f", proceeds),
		"reason", reason,
	)
	for _, fn := range observers {
		fn(result)
	}
	return p, nil
}

// bookRealizedLocked adds a realized result to the day's tallies and the
// loss streak.
func (m *Manager) bookRealizedLocked(pnl float64, now time.Time) {
	m.ledger.RealizedToday += pnl
	m.ledger.SettledToday++
	if pnl >= 0 {
		m.ledger.WinsToday++
		m.ledger.Cooldown.RecordWin()
		return
	}
	m.ledger.LossesToday++
	if m.ledger.Cooldown.RecordLoss(now) {
		slog.Warn("risk: consecutive losses, cooling down",
			"until", m.ledger.Cooldown.CooldownUntil.Format(time.RFC3339),
		)
	}
}

// ClearHalt lifts a leg-risk halt.
func (m *Manager) ClearHalt(ctx context.Context, marketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.halted[marketID]; !ok {
		return nil
	}
	if err := m.store.ClearHalt(ctx, marketID); err != nil {
		return fmt.Errorf("risk.ClearHalt: %w", err)
	}
	delete(m.halted, marketID)
	slog.Info("risk: halt cleared", "market", marketID)
	return nil
}

// Halted reports whether marketID is halted and why.
func (m *Manager) Halted(marketID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.halted[marketID]
	return r, ok
}

// Settle credits the payout of an OPEN position and marks it SETTLED. The
// bool is false when there was nothing to settle, which makes repeated calls
// harmless.
func (m *Manager) Settle(ctx context.Context, marketID string, winner domain.Side) (domain.SettlementResult, bool, error) {
	m.mu.Lock()

	p, ok := m.positions[marketID]
	if !ok {
		m.mu.Unlock()
		return domain.SettlementResult{}, false, nil
	}
	now := m.now()
	m.rollLocked(ctx, now)

	payout := p.PayoutFor(winner)
	pnl := payout - p.Cost

	p.Status = domain.PositionSettled
	p.Winner = winner
	p.Payout = payout
	p.PnL = pnl
	p.SettledAt = &now
	if err := m.store.SavePosition(context.WithoutCancel(ctx), p); err != nil {
		m.mu.Unlock()
		return domain.SettlementResult{}, false, fmt.Errorf("risk.Settle: save position: %w", err)
	}

	delete(m.positions, marketID)
	if ev := p.EventID; ev != "" {
		m.perGame[ev] -= p.Cost
		if m.perGame[ev] < shareEpsilon {
			delete(m.perGame, ev)
		}
	}
	m.ledger.Bankroll += payout
	m.bookRealizedLocked(pnl, now)
	m.saveLedgerLocked(ctx)

	result := domain.SettlementResult{
		MarketID: marketID,
		Winner:   winner,
		Cost:     p.Cost,
		Payout:   payout,
		PnL:      pnl,
		Bankroll: m.ledger.Bankroll,
	}
	observers := append([]func(domain.SettlementResult){}, m.observers...)
	m.mu.Unlock()

	slog.Info("risk: position settled",
		"market", marketID,
		"winner", winner,
		"payout", fmt.Sprintf("$%.2f", payout),
		"pnl", fmt.Sprintf("$%+.2f", pnl),
		"bankroll", fmt.Sprintf("$%.2f", result.Bankroll),
	)
	for _, fn := range observers {
		fn(result)
	}
	return result, true, nil
}

// Rollover closes the ledger's UTC day when now is past it. It returns the
// closed day's summary once, whether the roll happened here or inside an
// earlier Admit or Settle.
func (m *Manager) Rollover(ctx context.Context, now time.Time) (domain.DailySummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollLocked(ctx, now)
	if m.unreported == nil {
		return domain.DailySummary{}, false
	}
	s := *m.unreported
	m.unreported = nil
	return s, true
}

func (m *Manager) rollLocked(ctx context.Context, now time.Time) {
	today := domain.UTCDay(now)
	if !today.After(m.ledger.Day) {
		return
	}
	summary := m.summaryLocked()
	if err := m.store.SaveDaily(context.WithoutCancel(ctx), summary); err != nil {
		slog.Warn("risk: error saving daily summary", "err", err)
	}
	m.unreported = &summary

	// Reservations in flight stay counted against the new day.
	m.ledger.Day = today
	m.ledger.DeployedToday = m.reserved
	m.ledger.RealizedToday = 0
	m.ledger.EntriesToday = 0
	m.ledger.WinsToday = 0
	m.ledger.LossesToday = 0
	m.ledger.SettledToday = 0
	m.saveLedgerLocked(ctx)

	slog.Info("risk: daily rollover",
		"closed", summary.Date.Format("2006-01-02"),
		"deployed", fmt.Sprintf("$%.2f", summary.Deployed),
		"pnl", fmt.Sprintf("$%+.2f", summary.RealizedPnL),
	)
}

func (m *Manager) summaryLocked() domain.DailySummary {
	return domain.DailySummary{
		Date:          m.ledger.Day,
		Entries:       m.ledger.EntriesToday,
		Deployed:      m.ledger.DeployedToday,
		Settled:       m.ledger.SettledToday,
		Wins:          m.ledger.WinsToday,
		Losses:        m.ledger.LossesToday,
		RealizedPnL:   m.ledger.RealizedToday,
		Bankroll:      m.ledger.Bankroll,
		OpenPositions: len(m.positions),
	}
}

// Snapshot returns a copy of the ledger.
func (m *Manager) Snapshot() domain.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Clone()
}

// Summary returns the running summary of the current day.
func (m *Manager) Summary() domain.DailySummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryLocked()
}

// OpenPositions returns the OPEN positions ordered by entry time.
func (m *Manager) OpenPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// settleReservationLocked removes res from pending and adjusts the ledger so
// that exactly spent stays deployed.
func (m *Manager) settleReservationLocked(res Reservation, spent float64) {
	delete(m.pending, res.MarketID())
	m.reserved -= res.Amount
	if m.reserved < shareEpsilon {
		m.reserved = 0
	}
	refund := res.Amount - spent
	m.ledger.Bankroll += refund
	m.ledger.DeployedToday -= refund
	if m.ledger.DeployedToday < 0 {
		m.ledger.DeployedToday = 0
	}
	if cc, ok := m.ledger.Cycles[res.Class]; ok {
		cc.Deployed -= refund
		m.ledger.Cycles[res.Class] = cc
	}
	if ev := res.Opportunity.Market.EventID; ev != "" {
		m.perGame[ev] -= refund
		if m.perGame[ev] < shareEpsilon {
			delete(m.perGame, ev)
		}
	}
}

func (m *Manager) newPosition(res Reservation, legs []domain.PositionLeg, cost float64) domain.Position {
	mk := res.Opportunity.Market
	return domain.Position{
		MarketID:  mk.ID,
		EventID:   mk.EventID,
		Question:  mk.Question,
		Sport:     mk.Sport,
		Strategy:  res.Opportunity.Strategy,
		Legs:      legs,
		Cost:      cost,
		EntryTime: m.now(),
		EndDate:   mk.EndDate,
		Status:    domain.PositionOpen,
	}
}

// saveLedgerLocked persists the ledger without in-flight reservations, so a
// restart never strands reserved capital. Writes outlive the caller's
// context: a fill confirmed during shutdown must still reach the store.
func (m *Manager) saveLedgerLocked(ctx context.Context) {
	l := m.ledger.Clone()
	l.Bankroll += m.reserved
	l.DeployedToday -= m.reserved
	if l.DeployedToday < 0 {
		l.DeployedToday = 0
	}
	if err := m.store.SaveLedger(context.WithoutCancel(ctx), l); err != nil {
		slog.Warn("risk: error saving ledger", "err", err)
	}
}

// netLegs aggregates filled attempts per side. BUY fills add shares and
// cost, SELL fills remove shares and add proceeds.
func netLegs(fills []domain.OrderAttempt) (legs []domain.PositionLeg, cost, proceeds float64) {
	type acc struct {
		token        string
		bought, sold float64
		paid         float64
	}
	bySide := map[domain.Side]*acc{}
	var order []domain.Side
	for _, a := range fills {
		if !a.HasFill() {
			continue
		}
		s, ok := bySide[a.Outcome]
		if !ok {
			s = &acc{token: a.TokenID}
			bySide[a.Outcome] = s
			order = append(order, a.Outcome)
		}
		n := a.FilledNotional()
		if a.Side == domain.OrderSell {
			s.sold += a.FilledSize
			proceeds += n
			continue
		}
		s.bought += a.FilledSize
		s.paid += n
		cost += n
	}
	for _, side := range order {
		s := bySide[side]
		held := s.bought - s.sold
		if held <= shareEpsilon || s.bought <= 0 {
			continue
		}
		entry := s.paid / s.bought
		legs = append(legs, domain.PositionLeg{
			Side:       side,
			TokenID:    s.token,
			Shares:     held,
			EntryPrice: entry,
			Cost:       entry * held,
		})
	}
	return legs, cost, proceeds
}
