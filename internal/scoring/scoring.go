// Package scoring resolves segment weight profiles and composes overall health.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"
)

// ErrContractViolation means a calculator produced a value outside [0,1].
// It fails the affected customer only.
var ErrContractViolation = errors.New("dimension score contract violation")

// rangeSlack absorbs float rounding at the bounds; anything further out is a defect.
const rangeSlack = 1e-9

// Resolver maps segments to validated weight profiles.
type Resolver struct {
	profiles map[model.Segment]model.WeightProfile
	def      model.Segment
}

// NewResolver validates the profiles once and freezes them.
func NewResolver(sc config.ScoringConfig) (*Resolver, error) {
	if err := config.ValidateProfiles(sc); err != nil {
		return nil, err
	}
	r := &Resolver{profiles: make(map[model.Segment]model.WeightProfile, len(sc.Profiles)), def: sc.DefaultSegment}
	for seg, weights := range sc.Profiles {
		p := model.WeightProfile{Segment: seg}
		for _, dim := range model.Dimensions {
			p.Weights = append(p.Weights, model.DimensionWeight{Dimension: dim, Weight: weights[dim]})
		}
		r.profiles[seg] = p
	}
	return r, nil
}

// Resolve returns the profile for seg. Unknown segments get the default
// profile and fallback is reported as true.
func (r *Resolver) Resolve(seg model.Segment) (model.WeightProfile, bool) {
	if p, ok := r.profiles[seg]; ok {
		return p, false
	}
	return r.profiles[r.def], true
}

// Default returns the fallback segment.
func (r *Resolver) Default() model.Segment { return r.def }

// Compose combines dimension scores into an unlabelled snapshot.
// Scores must be in canonical dimension order and already in range.
func Compose(customerID string, scores []model.DimensionScore, profile model.WeightProfile, at time.Time) (*model.HealthSnapshot, error) {
	if len(scores) != len(profile.Weights) {
		return nil, fmt.Errorf("%w: got %d scores for %d weights", ErrContractViolation, len(scores), len(profile.Weights))
	}

	breakdown := make([]model.DimensionScore, len(scores))
	var overall, confidence float64
	for i, s := range scores {
		w := profile.Weights[i]
		if s.Dimension != w.Dimension {
			return nil, fmt.Errorf("%w: score %d is %s, want %s", ErrContractViolation, i, s.Dimension, w.Dimension)
		}
		v, err := inRange(s.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %v", err, s.Dimension, s.Value)
		}
		c, err := inRange(s.Confidence)
		if err != nil {
			return nil, fmt.Errorf("%w: %s confidence %v", err, s.Dimension, s.Confidence)
		}
		s.Value, s.Confidence = v, c
		breakdown[i] = s
		overall += w.Weight * v
		confidence += w.Weight * c
	}

	return &model.HealthSnapshot{
		CustomerID: customerID,
		Overall:    snap(overall),
		Confidence: snap(confidence),
		Breakdown:  breakdown,
		Profile:    profile.Segment,
		ComputedAt: at,
	}, nil
}

func inRange(v float64) (float64, error) {
	if math.IsNaN(v) || v < -rangeSlack || v > 1+rangeSlack {
		return 0, ErrContractViolation
	}
	return snap(v), nil
}

// snap pulls values within rangeSlack of a bound onto it.
func snap(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
