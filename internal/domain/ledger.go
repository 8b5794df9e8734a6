package domain

import "time"

// Cooldown tracks consecutive losses and enforces a trading pause.
type Cooldown struct {
	ConsecutiveLosses int
	MaxLosses         int
	CooldownUntil     time.Time
	CooldownDuration  time.Duration
}

// Active reports whether entries are paused at now.
func (c *Cooldown) Active(now time.Time) bool {
	return now.Before(c.CooldownUntil)
}

// RecordLoss counts a losing settlement and may start the pause.
func (c *Cooldown) RecordLoss(now time.Time) bool {
	c.ConsecutiveLosses++
	if c.MaxLosses > 0 && c.ConsecutiveLosses >= c.MaxLosses {
		c.CooldownUntil = now.Add(c.CooldownDuration)
		c.ConsecutiveLosses = 0
		return true
	}
	return false
}

// RecordWin resets the consecutive loss counter.
func (c *Cooldown) RecordWin() {
	c.ConsecutiveLosses = 0
}

// CycleCounter is the per-scan-class allowance consumed during one cycle.
type CycleCounter struct {
	Entries  int
	Deployed float64
}

// Ledger is the capital ledger. The risk manager is its only writer.
type Ledger struct {
	Bankroll      float64
	Day           time.Time // UTC midnight of the current trading day
	DeployedToday float64
	RealizedToday float64
	EntriesToday  int
	WinsToday     int
	LossesToday   int
	SettledToday  int
	Cycles        map[string]CycleCounter
	Cooldown      Cooldown
}

// UTCDay truncates t to midnight UTC.
func UTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Clone returns a copy safe to hand to readers.
func (l Ledger) Clone() Ledger {
	out := l
	out.Cycles = make(map[string]CycleCounter, len(l.Cycles))
	for k, v := range l.Cycles {
		out.Cycles[k] = v
	}
	return out
}

// DailySummary closes one UTC day.
type DailySummary struct {
	Date          time.Time
	Entries       int
	Deployed      float64
	Settled       int
	Wins          int
	Losses        int
	RealizedPnL   float64
	Bankroll      float64
	OpenPositions int
}
