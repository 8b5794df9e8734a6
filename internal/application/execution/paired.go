package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// PairResult is the outcome of a paired execution.
type PairResult struct {
	PairID   string
	Legs     []domain.OrderAttempt // BUY attempts, one per requested leg
	Unwinds  []domain.OrderAttempt // SELL attempts placed to flatten leg risk
	LegRisk  bool                  // legs filled unevenly
	Exposed  bool                  // unhedged shares remain after unwinding
	Residual map[domain.Side]float64
}

// Fills returns every attempt with filled shares, buys first.
func (r PairResult) Fills() []domain.OrderAttempt {
	var out []domain.OrderAttempt
	for _, a := range append(append([]domain.OrderAttempt{}, r.Legs...), r.Unwinds...) {
		if a.FilledSize > 0 {
			out = append(out, a)
		}
	}
	return out
}

// ExecutePair submits the legs concurrently and independently. When they
// fill unevenly the excess shares are sold back at most UnwindAttempts times
// at fill price × (1 − UnwindSlippage). The error is nil when every leg
// filled the same share count, wraps domain.ErrLegRisk on uneven fills and
// wraps the first leg error when nothing filled.
func (e *Executor) ExecutePair(ctx context.Context, legs []domain.OrderRequest) (PairResult, error) {
	pairID := e.newID()
	res := PairResult{
		PairID: pairID,
		Legs:   make([]domain.OrderAttempt, len(legs)),
	}
	if err := e.kill.checkNil(); err != nil {
		return res, err
	}

	errs := make([]error, len(legs))
	var g errgroup.Group
	for i, req := range legs {
		req.PairID = pairID
		g.Go(func() error {
			res.Legs[i], errs[i] = e.Execute(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	filled := make([]float64, len(legs))
	minFilled := math.Inf(1)
	anyFill := false
	for i, a := range res.Legs {
		filled[i] = a.FilledSize
		minFilled = math.Min(minFilled, a.FilledSize)
		if a.FilledSize > fillEpsilon {
			anyFill = true
		}
	}
	if !anyFill {
		return res, fmt.Errorf("execution.ExecutePair: no leg filled: %w", errors.Join(errs...))
	}

	res.Residual = make(map[domain.Side]float64)
	for i, a := range res.Legs {
		if excess := filled[i] - minFilled; excess > fillEpsilon {
			res.LegRisk = true
			res.Residual[a.Outcome] = excess
		}
	}
	if !res.LegRisk {
		return res, nil
	}

	slog.Warn("execution: LEG RISK, unwinding excess",
		"pair", pairID,
		"market", res.Legs[0].MarketID,
		"residual", res.Residual,
	)
	for i, a := range res.Legs {
		excess := res.Residual[a.Outcome]
		if excess <= fillEpsilon {
			continue
		}
		left := e.unwind(ctx, &res, legs[i], a, excess)
		if left > fillEpsilon {
			res.Exposed = true
			res.Residual[a.Outcome] = left
		} else {
			delete(res.Residual, a.Outcome)
		}
	}

	if res.Exposed {
		slog.Error("execution: unwind incomplete, exposure remains",
			"pair", pairID,
			"residual", res.Residual,
		)
	}
	return res, fmt.Errorf("execution.ExecutePair: legs filled %v: %w", filled, domain.ErrLegRisk)
}

// unwind sells shares of a filled leg and returns what is still held. Unwinds
// bypass the kill switch since they only reduce exposure.
func (e *Executor) unwind(ctx context.Context, res *PairResult, orig domain.OrderRequest, bought domain.OrderAttempt, shares float64) float64 {
	price := bought.AvgFillPrice
	if price <= 0 {
		price = orig.Price
	}
	limit := math.Floor(price*(1-e.cfg.UnwindSlippage)*100) / 100
	if limit <= 0 {
		limit = 0.01
	}

	left := shares
	for try := 0; try < e.cfg.UnwindAttempts && left > fillEpsilon; try++ {
		req := orig
		req.Side = domain.OrderSell
		req.Price = limit
		req.Shares = left
		req.PairID = res.PairID

		a, err := e.execute(ctx, req, false)
		res.Unwinds = append(res.Unwinds, a)
		left -= a.FilledSize
		if err != nil {
			slog.Warn("execution: unwind attempt failed",
				"market", orig.MarketID,
				"side", orig.Outcome,
				"try", try+1,
				"left", left,
				"err", err,
			)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return math.Max(left, 0)
}

// checkNil lets a nil switch behave as inactive.
func (k *KillSwitch) checkNil() error {
	if k == nil {
		return nil
	}
	return k.Check()
}
