// Package pipeline wires discovery, pricing, detection, admission and
// execution into one scan cycle per sport, and runs the cycles concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/polyarb/internal/application/detector"
	"github.com/alejandrodnm/polyarb/internal/application/execution"
	"github.com/alejandrodnm/polyarb/internal/application/normalizer"
	"github.com/alejandrodnm/polyarb/internal/application/reference"
	"github.com/alejandrodnm/polyarb/internal/application/risk"
	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// Quoter returns the reference quotes of a sport.
type Quoter interface {
	Quotes(ctx context.Context, sport domain.Sport) (reference.Snapshot, error)
}

// Risk is the admission and booking surface of the risk manager.
type Risk interface {
	BeginCycle(class string)
	Admit(ctx context.Context, class string, opp domain.Opportunity) (risk.Reservation, error)
	Commit(ctx context.Context, res risk.Reservation, fills []domain.OrderAttempt) (domain.Position, error)
	Release(ctx context.Context, res risk.Reservation, reason domain.ReasonCode)
	RecordLegRisk(ctx context.Context, res risk.Reservation, fills []domain.OrderAttempt, reason string) (domain.Position, error)
}

// Executor places single and paired orders.
type Executor interface {
	Execute(ctx context.Context, req domain.OrderRequest) (domain.OrderAttempt, error)
	ExecutePair(ctx context.Context, legs []domain.OrderRequest) (execution.PairResult, error)
}

// Gate is the kill switch as seen by the pipeline.
type Gate interface {
	Check() error
}

// Config selects the strategies run each cycle.
type Config struct {
	FairValue  bool
	Structural bool
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	Sport         string
	Markets       int
	Opportunities []domain.Opportunity
	Placed        int
	Skips         map[domain.ReasonCode]int
	Duration      time.Duration
}

// Pipeline runs scan cycles. It is safe for concurrent use by one loop per
// sport; all shared state lives behind the risk manager and the budget.
type Pipeline struct {
	cfg      Config
	markets  ports.MarketProvider
	quotes   Quoter
	norm     *normalizer.Normalizer
	det      *detector.Detector
	risk     Risk
	exec     Executor
	gate     Gate
	notifier ports.Notifier
	now      func() time.Time
}

// New creates a Pipeline. notifier may be nil.
func New(
	cfg Config,
	markets ports.MarketProvider,
	quotes Quoter,
	norm *normalizer.Normalizer,
	det *detector.Detector,
	rm Risk,
	exec Executor,
	gate Gate,
	notifier ports.Notifier,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		markets:  markets,
		quotes:   quotes,
		norm:     norm,
		det:      det,
		risk:     rm,
		exec:     exec,
		gate:     gate,
		notifier: notifier,
		now:      time.Now,
	}
}

// RunCycle discovers, prices, detects, admits and executes for one sport.
func (p *Pipeline) RunCycle(ctx context.Context, sport domain.Sport) (CycleResult, error) {
	start := time.Now()
	stats := newPipelineStats()
	p.risk.BeginCycle(sport.Name)

	markets, err := p.markets.FetchMarkets(ctx, sport)
	if err != nil {
		return CycleResult{}, fmt.Errorf("pipeline.RunCycle: fetch markets %s: %w", sport.Name, err)
	}

	var quotes []domain.ReferenceQuote
	if p.cfg.FairValue {
		snap, err := p.quotes.Quotes(ctx, sport)
		switch {
		case err == nil:
			quotes = snap.Quotes
		case reference.Unavailable(err):
			stats.record(domain.ReasonBudget)
			slog.Info("pipeline: reference unavailable, structural only", "sport", sport.Name, "err", err)
		default:
			slog.Warn("pipeline: reference fetch failed", "sport", sport.Name, "err", err)
		}
	}

	now := p.now()
	var opps []domain.Opportunity
	for _, m := range markets {
		opps = append(opps, p.evaluate(m, sport, quotes, now, stats)...)
	}
	ranked := detector.Rank(opps)

	placed := 0
	for _, opp := range ranked {
		if ctx.Err() != nil {
			break
		}
		if err := p.gate.Check(); err != nil {
			stats.record(domain.ReasonKillSwitch)
			slog.Warn("pipeline: kill switch active, no entries", "sport", sport.Name, "err", err)
			break
		}
		if p.process(ctx, sport, opp, stats) {
			placed++
		}
	}

	stats.log(sport.Name, len(markets), len(ranked), placed)
	return CycleResult{
		Sport:         sport.Name,
		Markets:       len(markets),
		Opportunities: ranked,
		Placed:        placed,
		Skips:         stats.snapshot(),
		Duration:      time.Since(start),
	}, nil
}

// evaluate runs both detectors on one market. A panic drops the market only.
func (p *Pipeline) evaluate(m domain.Market, sport domain.Sport, quotes []domain.ReferenceQuote, now time.Time, stats *pipelineStats) (out []domain.Opportunity) {
	defer func() {
		if r := recover(); r != nil {
			stats.record(domain.ReasonPanic)
			slog.Error("pipeline: panic evaluating market", "market", m.ID, "panic", r)
			out = nil
		}
	}()

	if p.cfg.FairValue && m.Type != domain.MarketPaired {
		if opp, err := p.fairValue(m, sport, quotes, now); err != nil {
			stats.record(detector.ReasonOf(err))
		} else {
			out = append(out, opp)
		}
	}
	if p.cfg.Structural {
		if opp, err := p.det.Structural(m, now); err != nil {
			stats.record(detector.ReasonOf(err))
		} else {
			out = append(out, opp)
		}
	}
	return out
}

func (p *Pipeline) fairValue(m domain.Market, sport domain.Sport, quotes []domain.ReferenceQuote, now time.Time) (domain.Opportunity, error) {
	if !p.det.Enabled(m.Type) {
		return p.det.FairValue(m, 0, sport, now)
	}
	if len(quotes) == 0 {
		return domain.Opportunity{}, domain.ErrNoReference
	}
	fair, err := p.norm.FairProbability(m, quotes, sport, now)
	if err != nil {
		return domain.Opportunity{}, err
	}
	return p.det.FairValue(m, fair.Prob, sport, now)
}

// process admits and executes one opportunity. It reports whether a position
// was opened. A panic releases the reservation it holds.
func (p *Pipeline) process(ctx context.Context, sport domain.Sport, opp domain.Opportunity, stats *pipelineStats) (placed bool) {
	var (
		res  risk.Reservation
		held bool
	)
	defer func() {
		if r := recover(); r != nil {
			stats.record(domain.ReasonPanic)
			slog.Error("pipeline: panic processing opportunity", "market", opp.Market.ID, "panic", r)
			if held {
				p.risk.Release(ctx, res, domain.ReasonPanic)
			}
			placed = false
		}
	}()

	res, err := p.risk.Admit(ctx, sport.Name, opp)
	if err != nil {
		stats.record(domain.ReasonOf(err))
		return false
	}
	held = true

	p.notify(ctx, domain.Event{
		Type:        domain.EventOpportunity,
		Sport:       sport.Name,
		MarketID:    opp.Market.ID,
		Question:    opp.Market.Question,
		Opportunity: &opp,
	})

	reqs := BuildRequests(opp, res.Amount)
	if len(reqs) == 0 {
		held = false
		p.risk.Release(ctx, res, domain.ReasonSizeTooSmall)
		stats.record(domain.ReasonSizeTooSmall)
		return false
	}

	slog.Info("pipeline: executing",
		"sport", sport.Name,
		"strategy", opp.Strategy,
		"market", opp.Market.ID,
		"question", domain.TruncateQuestion(opp.Market.Question, opp.Market.ID, 60),
		"edge", fmt.Sprintf("%.4f", opp.Edge),
		"amount", fmt.Sprintf("$%.2f", res.Amount),
	)

	if len(reqs) == 1 {
		return p.single(ctx, sport, opp, res, reqs[0], &held, stats)
	}
	return p.paired(ctx, sport, opp, res, reqs, &held, stats)
}

func (p *Pipeline) single(ctx context.Context, sport domain.Sport, opp domain.Opportunity, res risk.Reservation, req domain.OrderRequest, held *bool, stats *pipelineStats) bool {
	a, err := p.exec.Execute(ctx, req)
	*held = false
	if err != nil {
		reason := domain.ReasonOf(err)
		p.risk.Release(ctx, res, reason)
		stats.record(reason)
		p.notify(ctx, domain.Event{
			Type: domain.EventRejected, Sport: sport.Name, MarketID: opp.Market.ID,
			Question: opp.Market.Question, Reason: reason, Message: err.Error(),
			Attempts: []domain.OrderAttempt{a},
		})
		return false
	}
	if _, err := p.risk.Commit(ctx, res, []domain.OrderAttempt{a}); err != nil {
		slog.Error("pipeline: commit failed", "market", opp.Market.ID, "err", err)
		return false
	}
	p.notify(ctx, domain.Event{
		Type: domain.EventFilled, Sport: sport.Name, MarketID: opp.Market.ID,
		Question: opp.Market.Question, Opportunity: &opp, Attempts: []domain.OrderAttempt{a},
	})
	return true
}

func (p *Pipeline) paired(ctx context.Context, sport domain.Sport, opp domain.Opportunity, res risk.Reservation, reqs []domain.OrderRequest, held *bool, stats *pipelineStats) bool {
	pr, err := p.exec.ExecutePair(ctx, reqs)
	*held = false

	switch {
	case pr.LegRisk || errors.Is(err, domain.ErrLegRisk):
		stats.record(domain.ReasonLegRisk)
		reason := "leg risk"
		if err != nil {
			reason = err.Error()
		}
		if _, rerr := p.risk.RecordLegRisk(ctx, res, pr.Fills(), reason); rerr != nil {
			slog.Error("pipeline: leg risk booking failed", "market", opp.Market.ID, "err", rerr)
		}
		msg := "unwound"
		if pr.Exposed {
			msg = fmt.Sprintf("exposure remains: %v", pr.Residual)
		}
		p.notify(ctx, domain.Event{
			Type: domain.EventLegRisk, Sport: sport.Name, MarketID: opp.Market.ID,
			Question: opp.Market.Question, Reason: domain.ReasonLegRisk, Message: msg,
			Attempts: append(append([]domain.OrderAttempt{}, pr.Legs...), pr.Unwinds...),
		})
		return false

	case err != nil:
		reason := domain.ReasonOf(err)
		p.risk.Release(ctx, res, reason)
		stats.record(reason)
		p.notify(ctx, domain.Event{
			Type: domain.EventRejected, Sport: sport.Name, MarketID: opp.Market.ID,
			Question: opp.Market.Question, Reason: reason, Message: err.Error(),
			Attempts: pr.Legs,
		})
		return false
	}

	if _, err := p.risk.Commit(ctx, res, pr.Legs); err != nil {
		slog.Error("pipeline: commit failed", "market", opp.Market.ID, "err", err)
		return false
	}
	p.notify(ctx, domain.Event{
		Type: domain.EventFilled, Sport: sport.Name, MarketID: opp.Market.ID,
		Question: opp.Market.Question, Opportunity: &opp, Attempts: pr.Legs,
	})
	return true
}

func (p *Pipeline) notify(ctx context.Context, ev domain.Event) {
	if p.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = p.now()
	}
	if err := p.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("pipeline: notify failed", "type", ev.Type, "err", err)
	}
}

// BuildRequests turns an admitted opportunity into limit orders. A single
// leg buys amount/price shares; paired legs buy amount/(sum of prices) shares
// each. Shares are floored to two decimals. Nil when the size rounds to zero.
func BuildRequests(opp domain.Opportunity, amount float64) []domain.OrderRequest {
	cost := opp.CostPerShare()
	if cost <= 0 || len(opp.Legs) == 0 {
		return nil
	}
	shares := math.Floor(amount/cost*100) / 100
	if shares <= 0 {
		return nil
	}
	reqs := make([]domain.OrderRequest, 0, len(opp.Legs))
	for _, l := range opp.Legs {
		reqs = append(reqs, domain.OrderRequest{
			MarketID: opp.Market.ID,
			TokenID:  l.TokenID,
			Outcome:  l.Side,
			Side:     domain.OrderBuy,
			Price:    l.Price,
			Shares:   shares,
			NegRisk:  opp.Market.NegRisk,
		})
	}
	return reqs
}
