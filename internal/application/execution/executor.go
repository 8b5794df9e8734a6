// Package execution places orders on the venue and follows each one through
// the attempt state machine until it fills, times out or is rejected.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

const fillEpsilon = 1e-6

// Config holds the executor timings and limits.
type Config struct {
	PollInterval   time.Duration
	PollTimeout    time.Duration
	SubmitRetries  int
	RetryBackoff   time.Duration
	CancelRetries  int
	CallTimeout    time.Duration
	SlippageWarn   float64
	TimeInForce    domain.TimeInForce
	Expiration     time.Duration // GTD lifetime
	UnwindAttempts int
	UnwindSlippage float64
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   500 * time.Millisecond,
		PollTimeout:    30 * time.Second,
		SubmitRetries:  2,
		RetryBackoff:   500 * time.Millisecond,
		CancelRetries:  2,
		CallTimeout:    10 * time.Second,
		SlippageWarn:   0.02,
		TimeInForce:    domain.TIFGoodTillCancel,
		Expiration:     5 * time.Minute,
		UnwindAttempts: 3,
		UnwindSlippage: 0.05,
	}
}

// Executor drives orders through the venue.
type Executor struct {
	venue    ports.Venue
	attempts ports.AttemptStore
	kill     *KillSwitch
	cfg      Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// New creates an Executor.
func New(venue ports.Venue, attempts ports.AttemptStore, kill *KillSwitch, cfg Config) *Executor {
	return &Executor{
		venue:    venue,
		attempts: attempts,
		kill:     kill,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
		newID:    uuid.NewString,
	}
}

// Config returns the executor configuration.
func (e *Executor) Config() Config { return e.cfg }

// Execute submits one order and polls it to a terminal state. The error is
// nil exactly when some shares filled; the attempt is returned either way.
func (e *Executor) Execute(ctx context.Context, req domain.OrderRequest) (domain.OrderAttempt, error) {
	return e.execute(ctx, req, true)
}

func (e *Executor) execute(ctx context.Context, req domain.OrderRequest, gated bool) (domain.OrderAttempt, error) {
	if req.TimeInForce == "" {
		req.TimeInForce = e.cfg.TimeInForce
	}
	if req.TimeInForce == domain.TIFGoodTillDate && req.Expiration.IsZero() {
		req.Expiration = e.now().Add(e.cfg.Expiration)
	}
	a := domain.NewOrderAttempt(e.newID(), req, e.now())
	e.save(ctx, a)

	orderID, err := e.submit(ctx, a, req, gated)
	if err != nil {
		return *a, err
	}

	a.VenueOrderID = orderID
	e.advance(ctx, a, domain.AttemptSubmitted)
	e.advance(ctx, a, domain.AttemptPolling)

	return e.poll(ctx, a)
}

// submit retries transient failures with a fixed backoff. The kill switch is
// checked before every try.
func (e *Executor) submit(ctx context.Context, a *domain.OrderAttempt, req domain.OrderRequest, gated bool) (string, error) {
	for try := 0; ; try++ {
		if gated {
			if err := e.kill.checkNil(); err != nil {
				e.reject(ctx, a, domain.ReasonKillSwitch)
				return "", err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		orderID, err := e.venue.Submit(callCtx, req)
		cancel()
		if err == nil {
			return orderID, nil
		}

		transient := errors.Is(err, domain.ErrTransientNetwork)
		if !transient || try >= e.cfg.SubmitRetries || ctx.Err() != nil {
			reason := domain.ReasonVenueRejection
			if transient {
				reason = domain.ReasonTransient
			}
			e.reject(ctx, a, reason)
			slog.Warn("execution: submit failed",
				"market", a.MarketID,
				"side", a.Outcome,
				"retries", a.Retries,
				"err", err,
			)
			return "", fmt.Errorf("execution.Execute: submit: %w", err)
		}

		a.Retries++
		slog.Debug("execution: transient submit error, retrying",
			"market", a.MarketID,
			"try", try+1,
			"err", err,
		)
		if err := e.sleep(ctx, e.cfg.RetryBackoff); err != nil {
			e.reject(ctx, a, domain.ReasonCancelled)
			return "", fmt.Errorf("execution.Execute: %w", err)
		}
	}
}

func (e *Executor) poll(ctx context.Context, a *domain.OrderAttempt) (domain.OrderAttempt, error) {
	deadline := e.now().Add(e.cfg.PollTimeout)
	for {
		if ctx.Err() != nil {
			return e.shutdown(ctx, a)
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		st, err := e.venue.Status(callCtx, a.VenueOrderID)
		cancel()
		if err != nil {
			slog.Debug("execution: status poll failed", "order", a.VenueOrderID, "err", err)
		} else if done, res, rerr := e.observe(ctx, a, st); done {
			return res, rerr
		}

		if !e.now().Before(deadline) {
			return e.timeout(ctx, a)
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return e.shutdown(ctx, a)
		}
	}
}

// observe applies a status poll. done is true when the attempt reached a
// terminal state.
func (e *Executor) observe(ctx context.Context, a *domain.OrderAttempt, st domain.VenueOrderStatus) (bool, domain.OrderAttempt, error) {
	switch st.Status {
	case domain.VenueMatched:
		// A match without a reported size is not yet a confirmed fill.
		if st.FilledSize <= fillEpsilon {
			slog.Debug("execution: matched without size, polling", "order", a.VenueOrderID)
			return false, domain.OrderAttempt{}, nil
		}
		e.fill(ctx, a, st.FilledSize, st.AvgPrice)
		return true, *a, nil
	case domain.VenueCancelled:
		if st.FilledSize > fillEpsilon {
			e.fill(ctx, a, st.FilledSize, st.AvgPrice)
			return true, *a, nil
		}
		a.Reason = domain.ReasonCancelled
		e.advance(ctx, a, domain.AttemptCancelled)
		return true, *a, fmt.Errorf("execution: order %s cancelled by venue: %w", a.VenueOrderID, domain.ErrOrderUnfilled)
	case domain.VenueRejected:
		a.Reason = domain.ReasonVenueRejection
		e.advance(ctx, a, domain.AttemptRejected)
		return true, *a, fmt.Errorf("execution: order %s: %w", a.VenueOrderID, domain.ErrVenueRejection)
	default:
		if st.FilledSize >= a.RequestedSize-fillEpsilon && st.FilledSize > 0 {
			e.fill(ctx, a, st.FilledSize, st.AvgPrice)
			return true, *a, nil
		}
		return false, domain.OrderAttempt{}, nil
	}
}

// timeout cancels the order as one operation retried up to CancelRetries,
// then reads the final status once.
func (e *Executor) timeout(ctx context.Context, a *domain.OrderAttempt) (domain.OrderAttempt, error) {
	e.cancel(ctx, a)

	if st, ok := e.finalStatus(ctx, a); ok && st.FilledSize > fillEpsilon {
		e.fill(ctx, a, st.FilledSize, st.AvgPrice)
		return *a, nil
	}

	a.Reason = domain.ReasonTimeout
	e.advance(ctx, a, domain.AttemptTimedOut)
	slog.Info("execution: order timed out",
		"market", a.MarketID,
		"order", a.VenueOrderID,
		"cancel_attempts", a.CancelAttempts,
	)
	return *a, fmt.Errorf("execution: order %s after %s: %w", a.VenueOrderID, e.cfg.PollTimeout, domain.ErrOrderUnfilled)
}

// shutdown runs when ctx is cancelled mid-poll: one last status check and a
// cancel on a context detached from the cancelled one.
func (e *Executor) shutdown(ctx context.Context, a *domain.OrderAttempt) (domain.OrderAttempt, error) {
	detached := context.WithoutCancel(ctx)

	st, ok := e.finalStatus(detached, a)
	if ok && st.FilledSize >= a.RequestedSize-fillEpsilon && st.FilledSize > 0 {
		e.fill(detached, a, st.FilledSize, st.AvgPrice)
		return *a, nil
	}
	e.cancel(detached, a)
	if ok && st.FilledSize > fillEpsilon {
		e.fill(detached, a, st.FilledSize, st.AvgPrice)
		return *a, nil
	}

	a.Reason = domain.ReasonCancelled
	e.advance(detached, a, domain.AttemptCancelled)
	return *a, fmt.Errorf("execution: order %s abandoned on shutdown: %w", a.VenueOrderID, ctx.Err())
}

func (e *Executor) cancel(ctx context.Context, a *domain.OrderAttempt) {
	for try := 0; try <= e.cfg.CancelRetries; try++ {
		a.CancelAttempts++
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		ok, err := e.venue.Cancel(callCtx, a.VenueOrderID)
		cancel()
		if err == nil {
			if !ok {
				slog.Debug("execution: venue did not cancel order", "order", a.VenueOrderID)
			}
			return
		}
		slog.Warn("execution: cancel failed",
			"order", a.VenueOrderID,
			"try", try+1,
			"err", err,
		)
		if try < e.cfg.CancelRetries {
			if err := e.sleep(ctx, e.cfg.RetryBackoff); err != nil {
				return
			}
		}
	}
}

func (e *Executor) finalStatus(ctx context.Context, a *domain.OrderAttempt) (domain.VenueOrderStatus, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	st, err := e.venue.Status(callCtx, a.VenueOrderID)
	if err != nil {
		slog.Warn("execution: final status check failed", "order", a.VenueOrderID, "err", err)
		return domain.VenueOrderStatus{}, false
	}
	return st, true
}

// fill records the fill, computes slippage and moves to FILLED or
// PARTIALLY_FILLED.
func (e *Executor) fill(ctx context.Context, a *domain.OrderAttempt, size, avg float64) {
	if size > a.RequestedSize {
		size = a.RequestedSize
	}
	if avg > 0 {
		a.RecordFill(size, avg)
	} else {
		a.RecordEstimatedFill(size)
	}

	state := domain.AttemptFilled
	if size < a.RequestedSize-fillEpsilon {
		state = domain.AttemptPartiallyFilled
	}
	e.advance(ctx, a, state)

	attrs := []any{
		"market", a.MarketID,
		"side", a.Outcome,
		"order_side", a.Side,
		"shares", fmt.Sprintf("%.2f/%.2f", size, a.RequestedSize),
		"price", fmt.Sprintf("%.4f", a.AvgFillPrice),
		"expected", fmt.Sprintf("%.4f", a.ExpectedPrice),
		"slippage", fmt.Sprintf("%+.2f%%", a.Slippage*100),
	}
	if a.PriceEstimated {
		attrs[len(attrs)-1] = "unknown"
	}
	if a.SlippageExceeds(e.cfg.SlippageWarn) {
		slog.Warn("execution: slippage above threshold", attrs...)
		return
	}
	slog.Info("execution: order "+string(state), attrs...)
}

func (e *Executor) reject(ctx context.Context, a *domain.OrderAttempt, reason domain.ReasonCode) {
	a.Reason = reason
	e.advance(ctx, a, domain.AttemptRejected)
}

// advance applies a transition and persists the attempt. Transitions are
// driven by this package only, so an illegal one is a bug worth logging.
func (e *Executor) advance(ctx context.Context, a *domain.OrderAttempt, to domain.AttemptState) {
	if err := a.Advance(to, e.now()); err != nil {
		slog.Error("execution: state machine violation", "attempt", a.ID, "err", err)
		return
	}
	e.save(ctx, a)
}

func (e *Executor) save(ctx context.Context, a *domain.OrderAttempt) {
	if e.attempts == nil {
		return
	}
	if err := e.attempts.SaveAttempt(context.WithoutCancel(ctx), *a); err != nil {
		slog.Warn("execution: error saving attempt", "attempt", a.ID, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
