package pipeline

import (
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// pipelineStats counts why candidates were dropped during one cycle.
type pipelineStats struct {
	skips map[domain.ReasonCode]int
}

func newPipelineStats() *pipelineStats {
	return &pipelineStats{skips: make(map[domain.ReasonCode]int)}
}

func (s *pipelineStats) record(r domain.ReasonCode) {
	if r == "" {
		r = "other"
	}
	s.skips[r]++
}

func (s *pipelineStats) log(sport string, markets, opps, placed int) {
	attrs := []any{
		"sport", sport,
		"markets", markets,
		"opportunities", opps,
		"placed", placed,
	}
	reasons := make([]string, 0, len(s.skips))
	for r := range s.skips {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		attrs = append(attrs, "skip_"+r, s.skips[domain.ReasonCode(r)])
	}
	slog.Info("pipeline: cycle summary", attrs...)
}

func (s *pipelineStats) snapshot() map[domain.ReasonCode]int {
	out := make(map[domain.ReasonCode]int, len(s.skips))
	for k, v := range s.skips {
		out[k] = v
	}
	return out
}
