// Package budget guards the reference source's request quota.
package budget

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// ErrMinInterval is returned when a class asks again before its minimum
// interval elapsed. The quota itself is untouched.
var ErrMinInterval = errors.New("minimum fetch interval not elapsed")

// Mode is the degrade level derived from the remaining quota.
type Mode int

const (
	ModeNormal Mode = iota
	ModeCacheOnly
)

func (m Mode) String() string {
	if m == ModeCacheOnly {
		return "cache_only"
	}
	return "normal"
}

// Config sizes the quota.
type Config struct {
	MonthlyBudget    int           // initial remaining until the source reports it, 0 = unknown
	EmergencyReserve int           // requests kept back for manual use
	MinInterval      time.Duration // per class, 0 disables
}

// Limiter is shared by every scan loop. Acquire checks and reserves one unit
// under a single lock.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	remaining int // -1 unknown
	used      int
	classes   map[string]*rate.Limiter
	now       func() time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	remaining := -1
	if cfg.MonthlyBudget > 0 {
		remaining = cfg.MonthlyBudget
	}
	return &Limiter{
		cfg:       cfg,
		remaining: remaining,
		classes:   make(map[string]*rate.Limiter),
		now:       time.Now,
	}
}

// Acquire reserves one request for class. It fails with
// domain.ErrBudgetExhausted when spending would dip into the reserve, and with
// ErrMinInterval when class fetched too recently.
func (l *Limiter) Acquire(class string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.remaining >= 0 && l.remaining <= l.cfg.EmergencyReserve {
		return fmt.Errorf("budget: %d remaining, reserve %d: %w",
			l.remaining, l.cfg.EmergencyReserve, domain.ErrBudgetExhausted)
	}
	if lim := l.classLimiter(class); lim != nil && !lim.AllowN(l.now(), 1) {
		return fmt.Errorf("budget: %s: %w", class, ErrMinInterval)
	}
	if l.remaining > 0 {
		l.remaining--
	}
	l.used++
	return nil
}

// Refund returns a unit reserved by Acquire whose request never reached the
// source. The class interval is not reset.
func (l *Limiter) Refund() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remaining >= 0 {
		l.remaining++
	}
	if l.used > 0 {
		l.used--
	}
}

// Record stores the quota reported by the source. Negative values mean the
// response carried no header and are ignored.
func (l *Limiter) Record(remaining int) {
	if remaining < 0 {
		return
	}
	l.mu.Lock()
	prev := l.remaining
	l.remaining = remaining
	l.mu.Unlock()

	if prev > l.cfg.EmergencyReserve && remaining <= l.cfg.EmergencyReserve {
		slog.Warn("budget: reserve reached, switching to cache-only",
			"remaining", remaining,
			"reserve", l.cfg.EmergencyReserve,
		)
	}
}

// Mode reports whether new fetches are still allowed.
func (l *Limiter) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remaining >= 0 && l.remaining <= l.cfg.EmergencyReserve {
		return ModeCacheOnly
	}
	return ModeNormal
}

// Remaining returns the last known remaining quota, -1 when unknown.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

// Used returns the requests acquired since start.
func (l *Limiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

func (l *Limiter) classLimiter(class string) *rate.Limiter {
	if l.cfg.MinInterval <= 0 {
		return nil
	}
	lim, ok := l.classes[class]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.cfg.MinInterval), 1)
		l.classes[class] = lim
	}
	return lim
}
