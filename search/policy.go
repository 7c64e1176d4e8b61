package search

import (
	"fmt"
	"math"

	"github.com/poiesic/versegrounding/core"
)

// Policy holds the score margins applied per strictness level.
//
// For Balanced and Relaxed the effective minimum is
// max(minScore - margin, min(floor, minScore)): the margin lowers the
// threshold, and the floor stops it from dropping below floor unless the
// caller asked for less.
type Policy struct {
	BalancedMargin float64
	BalancedFloor  float64
	RelaxedMargin  float64
	RelaxedFloor   float64
}

// DefaultPolicy returns margins of 0.1 and 0.2 with floors of 0.5 and 0.3.
func DefaultPolicy() Policy {
	return Policy{
		BalancedMargin: 0.1,
		BalancedFloor:  0.5,
		RelaxedMargin:  0.2,
		RelaxedFloor:   0.3,
	}
}

// Validate checks every margin and floor lies in [0, 1].
func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"balanced margin": p.BalancedMargin,
		"balanced floor":  p.BalancedFloor,
		"relaxed margin":  p.RelaxedMargin,
		"relaxed floor":   p.RelaxedFloor,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s %v", ErrInvalidPolicy, name, v)
		}
	}
	return nil
}

// EffectiveMinScore returns the threshold applied to both search phases.
func (p Policy) EffectiveMinScore(minScore float64, strictness core.Strictness) float64 {
	switch strictness {
	case core.StrictnessStrict:
		return minScore
	case core.StrictnessRelaxed:
		return math.Max(minScore-p.RelaxedMargin, math.Min(p.RelaxedFloor, minScore))
	default:
		return math.Max(minScore-p.BalancedMargin, math.Min(p.BalancedFloor, minScore))
	}
}

// AllowsFallback reports whether lexical search may run at this level.
func (p Policy) AllowsFallback(strictness core.Strictness) bool {
	return strictness != core.StrictnessStrict
}
