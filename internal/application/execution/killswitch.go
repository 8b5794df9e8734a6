package execution

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// KillSwitch blocks every order submission while active. It can be tripped
// manually, by creating the kill file, or by the daily realized-loss limit.
// The kill file mirrors the state so an operator can flip it from a shell.
type KillSwitch struct {
	active atomic.Bool

	mu           sync.Mutex
	reason       string
	path         string
	maxDailyLoss float64
	day          time.Time
	dailyLoss    float64
	now          func() time.Time
	listeners    []func(active bool, reason string)
}

// NewKillSwitch creates a switch backed by path. An empty path keeps the
// state in memory only. maxDailyLoss <= 0 disables the loss trigger.
func NewKillSwitch(path string, maxDailyLoss float64) *KillSwitch {
	k := &KillSwitch{
		path:         path,
		maxDailyLoss: maxDailyLoss,
		now:          time.Now,
	}
	k.day = domain.UTCDay(k.now())
	return k
}

// OnChange registers a callback for activation and deactivation.
func (k *KillSwitch) OnChange(fn func(active bool, reason string)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.listeners = append(k.listeners, fn)
}

// Active reports the current state without locking.
func (k *KillSwitch) Active() bool {
	return k.active.Load()
}

// Reason returns why the switch is active.
func (k *KillSwitch) Reason() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reason
}

// Check returns an error wrapping domain.ErrKillSwitchActive when active.
func (k *KillSwitch) Check() error {
	if !k.active.Load() {
		return nil
	}
	return fmt.Errorf("execution: %s: %w", k.Reason(), domain.ErrKillSwitchActive)
}

// Activate trips the switch and writes the kill file.
func (k *KillSwitch) Activate(reason string) error {
	k.mu.Lock()
	if k.active.Load() {
		k.mu.Unlock()
		return nil
	}
	k.reason = reason
	k.active.Store(true)
	listeners := append([]func(bool, string){}, k.listeners...)
	path := k.path
	k.mu.Unlock()

	slog.Error("execution: KILL SWITCH ACTIVATED", "reason", reason)
	for _, fn := range listeners {
		fn(true, reason)
	}

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("execution.Activate: mkdir: %w", err)
	}
	content := fmt.Sprintf("%s\n%s\n", k.now().UTC().Format(time.RFC3339), reason)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("execution.Activate: write kill file: %w", err)
	}
	return nil
}

// Deactivate clears the switch and removes the kill file.
func (k *KillSwitch) Deactivate() error {
	k.mu.Lock()
	if !k.active.Load() {
		k.mu.Unlock()
		return nil
	}
	k.reason = ""
	k.active.Store(false)
	listeners := append([]func(bool, string){}, k.listeners...)
	path := k.path
	k.mu.Unlock()

	slog.Warn("execution: kill switch deactivated")
	for _, fn := range listeners {
		fn(false, "")
	}

	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("execution.Deactivate: remove kill file: %w", err)
	}
	return nil
}

// Poll syncs the state with the kill file.
func (k *KillSwitch) Poll() error {
	if k.path == "" {
		return nil
	}
	data, err := os.ReadFile(k.path)
	switch {
	case err == nil:
		if k.Active() {
			return nil
		}
		reason := "kill file present"
		if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) > 1 {
			reason = strings.TrimSpace(lines[len(lines)-1])
		}
		return k.Activate(reason)
	case errors.Is(err, fs.ErrNotExist):
		if k.Active() {
			return k.Deactivate()
		}
		return nil
	default:
		return fmt.Errorf("execution.Poll: %w", err)
	}
}

// Watch polls the kill file every interval until ctx is done.
func (k *KillSwitch) Watch(ctx context.Context, interval time.Duration) error {
	if err := k.Poll(); err != nil {
		slog.Warn("execution: kill file check failed", "err", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := k.Poll(); err != nil {
				slog.Warn("execution: kill file check failed", "err", err)
			}
		}
	}
}

// RecordPnL accumulates realized losses of the current UTC day and trips
// the switch when the limit is reached.
func (k *KillSwitch) RecordPnL(pnl float64) {
	k.mu.Lock()
	today := domain.UTCDay(k.now())
	if today.After(k.day) {
		k.day = today
		k.dailyLoss = 0
	}
	if pnl < 0 {
		k.dailyLoss += -pnl
	}
	loss, limit := k.dailyLoss, k.maxDailyLoss
	k.mu.Unlock()

	if limit > 0 && loss >= limit {
		reason := fmt.Sprintf("daily loss $%.2f reached limit $%.2f", loss, limit)
		if err := k.Activate(reason); err != nil {
			slog.Warn("execution: error writing kill file", "err", err)
		}
	}
}

// DailyLoss returns the realized loss counted today.
func (k *KillSwitch) DailyLoss() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dailyLoss
}
