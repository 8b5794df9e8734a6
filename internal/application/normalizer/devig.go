package normalizer

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// DevigTwoWay removes the overround of a two-outcome market multiplicatively:
// p_i = raw_i / Σraw.
func DevigTwoWay(raw []float64) ([]float64, error) {
	if len(raw) != 2 {
		return nil, fmt.Errorf("normalizer.DevigTwoWay: want 2 outcomes, got %d: %w", len(raw), domain.ErrImplausibleProbability)
	}
	return scale(raw, 1)
}

// DevigPower removes the overround of an N-outcome market with the power
// method: p_i = raw_i^k / Σ raw_j^k. With k > 1 longshots (the draw) shrink
// more than favourites.
func DevigPower(raw []float64, k float64) ([]float64, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("normalizer.DevigPower: want >= 2 outcomes, got %d: %w", len(raw), domain.ErrImplausibleProbability)
	}
	if k <= 0 {
		return nil, fmt.Errorf("normalizer.DevigPower: exponent %.3f must be positive", k)
	}
	return scale(raw, k)
}

func scale(raw []float64, k float64) ([]float64, error) {
	powered := make([]float64, len(raw))
	var sum float64
	for i, r := range raw {
		if r <= 0 || r >= 1 || math.IsNaN(r) {
			return nil, fmt.Errorf("normalizer: raw probability %.4f out of (0,1): %w", r, domain.ErrImplausibleProbability)
		}
		powered[i] = math.Pow(r, k)
		sum += powered[i]
	}
	for i := range powered {
		powered[i] /= sum
	}
	return powered, nil
}

// Normalize picks the method by outcome count: multiplicative for two
// outcomes, power method for three or more.
func (n *Normalizer) Normalize(raw []float64) ([]float64, error) {
	if len(raw) == 2 {
		return DevigTwoWay(raw)
	}
	return DevigPower(raw, n.cfg.PowerExponent)
}

// CheckPlausible validates a normalized distribution. drawIdx is the index of
// the draw outcome in a three-way market, or -1.
func (n *Normalizer) CheckPlausible(probs []float64, drawIdx int) error {
	var sum float64
	for i, p := range probs {
		if p <= 0 || p >= 1 {
			return fmt.Errorf("outcome %d probability %.4f outside (0,1): %w", i, p, domain.ErrImplausibleProbability)
		}
		if p < n.cfg.ProbMin || p > n.cfg.ProbMax {
			return fmt.Errorf("outcome %d probability %.4f outside [%.2f, %.2f]: %w",
				i, p, n.cfg.ProbMin, n.cfg.ProbMax, domain.ErrImplausibleProbability)
		}
		sum += p
	}
	if sum < n.cfg.SumMin || sum > n.cfg.SumMax {
		return fmt.Errorf("probability sum %.4f outside [%.2f, %.2f]: %w",
			sum, n.cfg.SumMin, n.cfg.SumMax, domain.ErrImplausibleProbability)
	}
	if drawIdx >= 0 && drawIdx < len(probs) {
		d := probs[drawIdx]
		if d < n.cfg.DrawMin || d > n.cfg.DrawMax {
			return fmt.Errorf("draw probability %.4f outside [%.2f, %.2f]: %w",
				d, n.cfg.DrawMin, n.cfg.DrawMax, domain.ErrImplausibleProbability)
		}
	}
	return nil
}
