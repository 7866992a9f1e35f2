// Package trend derives direction, 30-day change and a linear forecast from snapshot history.
package trend

import (
	"math"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"
)

const day = 24 * time.Hour

// Analyzer is stateless; history is passed on every call.
type Analyzer struct {
	p config.TrendParams
}

func NewAnalyzer(p config.TrendParams) *Analyzer {
	return &Analyzer{p: p}
}

// Analyze compares current against history, which is ordered oldest to newest
// and does not include current.
func (a *Analyzer) Analyze(history []model.HealthSnapshot, current *model.HealthSnapshot) model.HealthTrend {
	tr := model.HealthTrend{
		CustomerID: current.CustomerID,
		Direction:  model.DirectionStable,
	}

	if ref, ok := a.reference(history, current.ComputedAt); ok {
		change := current.Overall - ref.Overall
		tr.Change30d = &change
		switch {
		case change > a.p.Epsilon:
			tr.Direction = model.DirectionImproving
		case change < -a.p.Epsilon:
			tr.Direction = model.DirectionDeclining
		}
	}

	tr.Forecast30d, tr.ForecastBasis = a.forecast(history, current)
	return tr
}

// reference finds the snapshot closest to now minus the lookback, within tolerance.
// It walks backward from the newest entry and stops once entries are too old.
func (a *Analyzer) reference(history []model.HealthSnapshot, now time.Time) (model.HealthSnapshot, bool) {
	target := now.Add(-time.Duration(a.p.LookbackDays) * day)
	tolerance := time.Duration(a.p.ToleranceDays) * day

	var best model.HealthSnapshot
	bestDist := time.Duration(math.MaxInt64)
	for i := len(history) - 1; i >= 0; i-- {
		s := history[i]
		if !s.ComputedAt.Before(now) {
			continue
		}
		dist := s.ComputedAt.Sub(target)
		if dist < -tolerance {
			break
		}
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance && dist < bestDist {
			best, bestDist = s, dist
		}
	}
	return best, bestDist != time.Duration(math.MaxInt64)
}

// forecast fits a least-squares line through the last Points snapshots
// (current included) and projects it HorizonDays ahead.
func (a *Analyzer) forecast(history []model.HealthSnapshot, current *model.HealthSnapshot) (float64, int) {
	n := a.p.Points - 1
	if n > len(history) {
		n = len(history)
	}
	pts := make([]model.HealthSnapshot, 0, n+1)
	pts = append(pts, history[len(history)-n:]...)
	pts = append(pts, *current)

	if len(pts) < 2 {
		return current.Overall, len(pts)
	}

	var sx, sy float64
	xs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.ComputedAt.Sub(current.ComputedAt).Hours() / 24
		sx += xs[i]
		sy += p.Overall
	}
	mx, my := sx/float64(len(pts)), sy/float64(len(pts))

	var num, den float64
	for i, p := range pts {
		dx := xs[i] - mx
		num += dx * (p.Overall - my)
		den += dx * dx
	}
	if den < 1e-12 {
		return current.Overall, len(pts)
	}
	slope := num / den
	projected := current.Overall + slope*float64(a.p.HorizonDays)
	return math.Max(0, math.Min(1, projected)), len(pts)
}
