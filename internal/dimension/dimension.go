// Package dimension turns a customer's metric window into eight normalized sub-scores.
package dimension

import (
	"math"
	"sync"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"
)

// Population summarizes a segment's MRR distribution for relative ranking.
type Population struct {
	Min   float64
	Max   float64
	Count int
}

// Add folds one MRR value into the population.
func (p *Population) Add(mrr float64) {
	if math.IsNaN(mrr) || mrr < 0 {
		return
	}
	if p.Count == 0 || mrr < p.Min {
		p.Min = mrr
	}
	if p.Count == 0 || mrr > p.Max {
		p.Max = mrr
	}
	p.Count++
}

// Env is read-only per-run context shared by all customers of a segment.
type Env struct {
	Segment model.Segment
	Peers   Population
}

// Calculator scores one dimension. Implementations are deterministic and
// never fail: absent inputs lower confidence instead.
type Calculator interface {
	Dimension() model.Dimension
	Compute(w *model.MetricWindow, env Env) model.DimensionScore
}

// Set is the closed set of calculators, one per dimension, in canonical order.
type Set struct {
	calcs []Calculator
}

// NewSet builds all eight calculators from typed parameters.
func NewSet(p config.Dimensions) *Set {
	return &Set{calcs: []Calculator{
		&usageCalc{p: p.Usage},
		&engagementCalc{p: p.Engagement},
		&supportCalc{p: p.Support},
		&paymentCalc{p: p.Payment},
		&adoptionCalc{p: p.Adoption},
		&satisfactionCalc{p: p.Satisfaction},
		&lifecycleCalc{p: p.Lifecycle},
		&valueCalc{p: p.Value},
	}}
}

// Calculators returns the calculators in canonical order.
func (s *Set) Calculators() []Calculator { return s.calcs }

// ComputeAll runs every calculator concurrently and returns the scores in
// canonical order once all of them have finished.
func (s *Set) ComputeAll(w *model.MetricWindow, env Env) []model.DimensionScore {
	out := make([]model.DimensionScore, len(s.calcs))
	var wg sync.WaitGroup
	for i, c := range s.calcs {
		wg.Add(1)
		go func(i int, c Calculator) {
			defer wg.Done()
			out[i] = c.Compute(w, env)
		}(i, c)
	}
	wg.Wait()
	return out
}

// tally tracks required inputs, which were present, and the raw values seen.
type tally struct {
	dim      model.Dimension
	required int
	present  int
	inputs   map[string]float64
	missing  []string
}

func newTally(d model.Dimension) *tally {
	return &tally{dim: d, inputs: make(map[string]float64)}
}

// take registers a required input. NaN counts as absent.
func (t *tally) take(name string, v *float64) (float64, bool) {
	t.required++
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		t.missing = append(t.missing, name)
		return 0, false
	}
	t.present++
	t.inputs[name] = *v
	return *v, true
}

// flag registers a required boolean input as 0/1.
func (t *tally) flag(name string, v *bool) (bool, bool) {
	if v == nil {
		t.required++
		t.missing = append(t.missing, name)
		return false, false
	}
	f := 0.0
	if *v {
		f = 1
	}
	_, _ = t.take(name, &f)
	return *v, true
}

// context records an optional input that never affects confidence.
func (t *tally) context(name string, v float64) {
	t.inputs[name] = v
}

func (t *tally) score(value float64) model.DimensionScore {
	conf := 1.0
	if t.required > 0 {
		conf = float64(t.present) / float64(t.required)
	}
	ds := model.DimensionScore{
		Dimension:  t.dim,
		Value:      clip(value),
		Confidence: conf,
		Inputs:     t.inputs,
		Missing:    t.missing,
	}
	return ds
}

func clip(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
