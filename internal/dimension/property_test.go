package dimension

import (
	"testing"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// windowFrom builds a window from generated raw values; bit i of mask drops input i.
func windowFrom(v []float64, mask uint16) *model.MetricWindow {
	pick := func(i int, x float64) *float64 {
		if mask&(1<<uint(i)) != 0 {
			return nil
		}
		return model.Float(x)
	}
	statuses := []model.PaymentStatus{model.PaymentCurrent, model.PaymentLate, model.PaymentOverdue, model.PaymentFailed}
	status := statuses[int(v[0])%len(statuses)]

	w := &model.MetricWindow{
		Usage:        model.UsageMetrics{SessionCount: pick(0, v[1]*3), AvgSessionMinutes: pick(1, v[2]*2)},
		Engagement:   model.EngagementMetrics{ActiveUsers: pick(2, v[3]), LicensedUsers: pick(3, v[4])},
		Support:      model.SupportMetrics{AvgResolutionHours: pick(4, v[5]*5)},
		Payment:      model.PaymentMetrics{Status: &status, FailedRenewals: model.Int(int(v[6]) % 4)},
		Adoption:     model.AdoptionMetrics{Core: pick(5, v[7]/100), Advanced: pick(6, v[8]/100), Integration: pick(7, v[9]/100)},
		Satisfaction: model.SatisfactionMetrics{NPS: pick(8, v[10]/10), CSAT: pick(9, 1+v[11]/25)},
		Lifecycle:    model.LifecycleMetrics{ContractAgeDays: pick(10, v[12]*10), ContractLengthDays: pick(11, v[13]*10)},
		Value:        model.ValueMetrics{MRR: pick(12, v[14]*1000), DealTrend: pick(13, v[15]/50-1)},
	}
	if mask&(1<<14) == 0 {
		w.Support.TicketsByPriority = map[model.TicketPriority]int{
			model.PriorityLow:    int(v[0]) % 5,
			model.PriorityUrgent: int(v[1]) % 3,
		}
	}
	if mask&(1<<15) == 0 {
		w.Engagement.OnboardingCompleted = model.Bool(int(v[2])%2 == 0)
	}
	return w
}

func TestProperty_ScoresInUnitRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	set := NewSet(config.Default().Dimensions)

	properties.Property("every dimension value and confidence is in [0,1]", prop.ForAll(
		func(v []float64, mask uint16, lo, hi float64) bool {
			if len(v) < 16 {
				return true
			}
			var peers Population
			peers.Add(lo * 1000)
			peers.Add(hi * 1000)
			for _, s := range set.ComputeAll(windowFrom(v, mask), Env{Peers: peers}) {
				if s.Value < 0 || s.Value > 1 || s.Confidence < 0 || s.Confidence > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(16, gen.Float64Range(0, 100)),
		gen.UInt16(),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

// TestProperty_Monotonic checks that raising a positive input never lowers its calculator's output.
func TestProperty_Monotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	p := config.Default().Dimensions
	env := Env{Peers: Population{Min: 100, Max: 200000, Count: 40}}

	type lever struct {
		name string
		calc Calculator
		set  func(w *model.MetricWindow, x float64)
	}
	levers := []lever{
		{"session count", &usageCalc{p: p.Usage}, func(w *model.MetricWindow, x float64) { w.Usage.SessionCount = model.Float(x) }},
		{"session minutes", &usageCalc{p: p.Usage}, func(w *model.MetricWindow, x float64) { w.Usage.AvgSessionMinutes = model.Float(x) }},
		{"active users", &engagementCalc{p: p.Engagement}, func(w *model.MetricWindow, x float64) { w.Engagement.ActiveUsers = model.Float(x) }},
		{"advanced adoption", &adoptionCalc{p: p.Adoption}, func(w *model.MetricWindow, x float64) { w.Adoption.Advanced = model.Float(x / 100) }},
		{"nps", &satisfactionCalc{p: p.Satisfaction}, func(w *model.MetricWindow, x float64) { w.Satisfaction.NPS = model.Float(x / 10) }},
		{"csat", &satisfactionCalc{p: p.Satisfaction}, func(w *model.MetricWindow, x float64) { w.Satisfaction.CSAT = model.Float(1 + x/25) }},
		{"contract age", &lifecycleCalc{p: p.Lifecycle}, func(w *model.MetricWindow, x float64) { w.Lifecycle.ContractAgeDays = model.Float(x * 10) }},
		{"mrr", &valueCalc{p: p.Value}, func(w *model.MetricWindow, x float64) { w.Value.MRR = model.Float(x * 2000) }},
		{"deal trend", &valueCalc{p: p.Value}, func(w *model.MetricWindow, x float64) { w.Value.DealTrend = model.Float(x/50 - 1) }},
	}

	for _, l := range levers {
		l := l
		properties.Property(l.name+" is non-decreasing", prop.ForAll(
			func(v []float64, a, b float64) bool {
				if len(v) < 16 {
					return true
				}
				if a > b {
					a, b = b, a
				}
				lowWin, highWin := windowFrom(v, 0), windowFrom(v, 0)
				l.set(lowWin, a)
				l.set(highWin, b)
				return l.calc.Compute(lowWin, env).Value <= l.calc.Compute(highWin, env).Value
			},
			gen.SliceOfN(16, gen.Float64Range(0, 100)),
			gen.Float64Range(0, 100),
			gen.Float64Range(0, 100),
		))
	}

	properties.TestingRun(t)
}
