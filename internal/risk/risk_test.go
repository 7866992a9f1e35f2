package risk

import (
	"testing"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	cfg := config.Default()
	c, err := NewClassifier(cfg.Bands)
	require.NoError(t, err)
	g := NewGenerator(cfg.Alerts, c, cfg.Dimensions.Payment)
	g.now = func() time.Time { return time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC) }
	return g
}

// snapshotWith builds a snapshot where every dimension is base except the overrides.
func snapshotWith(overall, base float64, overrides map[model.Dimension]float64) *model.HealthSnapshot {
	s := &model.HealthSnapshot{CustomerID: "CUST001", Overall: overall}
	for _, d := range model.Dimensions {
		v := base
		if o, ok := overrides[d]; ok {
			v = o
		}
		s.Breakdown = append(s.Breakdown, model.DimensionScore{Dimension: d, Value: v, Confidence: 1})
	}
	return s
}

func types(alerts []model.Alert) map[model.AlertType]model.Severity {
	out := make(map[model.AlertType]model.Severity)
	for _, a := range alerts {
		out[a.Type] = a.Severity
	}
	return out
}

func TestClassifier_Labels(t *testing.T) {
	c, err := NewClassifier(config.Default().Bands)
	require.NoError(t, err)
	tests := []struct {
		score float64
		want  model.RiskLabel
	}{
		{0, model.LabelCritical},
		{0.2999, model.LabelCritical},
		{0.3, model.LabelAtRisk},
		{0.5999, model.LabelAtRisk},
		{0.6, model.LabelGood},
		{0.8, model.LabelExcellent},
		{1, model.LabelExcellent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.score), "score %v", tt.score)
	}
}

func TestClassifier_RejectsGap(t *testing.T) {
	_, err := NewClassifier([]config.Band{{Label: "critical", Min: 0, Max: 0.3}, {Label: "good", Min: 0.35, Max: 1}})
	assert.Error(t, err)
}

func TestProperty_BandCoverage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)
	c, err := NewClassifier(config.Default().Bands)
	require.NoError(t, err)

	properties.Property("every score in [0,1] matches exactly one band", prop.ForAll(
		func(score float64) bool {
			m := c.Matches(score)
			return len(m) == 1 && m[0] == c.Classify(score)
		},
		gen.Float64Range(0, 1),
	))
	properties.Property("band edges match exactly one band", prop.ForAll(
		func(i int) bool {
			edges := []float64{0, 0.3, 0.6, 0.8, 1}
			return len(c.Matches(edges[i])) == 1
		},
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

func TestEvaluate_CriticalChurn(t *testing.T) {
	g := newGenerator(t)
	overdue := model.PaymentOverdue
	in := Input{
		Customer: model.Customer{ID: "CUST001", Segment: model.SegmentMidMarket},
		Snapshot: snapshotWith(0.22, 0.3, map[model.Dimension]float64{model.DimUsage: 0.1, model.DimPayment: 0.3}),
		Window: &model.MetricWindow{
			Usage:   model.UsageMetrics{DaysSinceLastLogin: model.Float(45)},
			Support: model.SupportMetrics{TicketsByPriority: map[model.TicketPriority]int{model.PriorityHigh: 8}},
			Payment: model.PaymentMetrics{Status: &overdue},
		},
	}
	alerts := g.Evaluate(in)
	got := types(alerts)

	assert.Equal(t, model.SeverityCritical, got[model.AlertChurnRisk])
	assert.Equal(t, model.SeverityHigh, got[model.AlertEngagementRisk])
	assert.Equal(t, model.SeverityHigh, got[model.AlertPaymentRisk])
	assert.Equal(t, model.SeverityHigh, got[model.AlertUsageDecline])
	assert.Equal(t, model.SeverityMedium, got[model.AlertSupportOverload])
	assert.NotContains(t, got, model.AlertExpansionOpportunity)

	for _, a := range alerts {
		assert.Equal(t, "CUST001", a.CustomerID)
		assert.Equal(t, model.StatusOpen, a.Status)
		assert.NotEmpty(t, a.ID)
		assert.NotEmpty(t, a.Triggers)
		assert.Equal(t, model.KindRisk, a.Kind)
	}
}

func TestEvaluate_MergesChurnIntoHighestSeverity(t *testing.T) {
	g := newGenerator(t)
	change := -0.1
	in := Input{
		Customer: model.Customer{ID: "c"},
		// 0.29 is critical, not at_risk, so only the critical rule fires
		Snapshot: snapshotWith(0.29, 0.5, map[model.Dimension]float64{model.DimPayment: 1}),
		Trend:    model.HealthTrend{Direction: model.DirectionDeclining, Change30d: &change},
	}
	alerts := g.Evaluate(in)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityCritical, alerts[0].Severity)

	in.Snapshot = snapshotWith(0.45, 0.5, map[model.Dimension]float64{model.DimPayment: 1})
	alerts = g.Evaluate(in)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertChurnRisk, alerts[0].Type)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "declining_at_risk", alerts[0].Triggers[0].Rule)
}

func TestMerge_UnionsTriggers(t *testing.T) {
	a := model.Alert{Type: model.AlertChurnRisk, Severity: model.SeverityHigh, Message: "high", Triggers: []model.Trigger{{Rule: "a"}}}
	b := model.Alert{Type: model.AlertChurnRisk, Severity: model.SeverityCritical, Message: "critical", Triggers: []model.Trigger{{Rule: "b"}}}
	m := merge(a, b)
	assert.Equal(t, model.SeverityCritical, m.Severity)
	assert.Equal(t, "critical", m.Message)
	assert.Len(t, m.Triggers, 2)

	m = merge(b, a)
	assert.Equal(t, model.SeverityCritical, m.Severity)
	assert.Equal(t, "critical", m.Message)
}

func TestEvaluate_HealthyAccount(t *testing.T) {
	g := newGenerator(t)
	current := model.PaymentCurrent
	in := Input{
		Customer: model.Customer{ID: "c", Segment: model.SegmentEnterprise},
		Snapshot: snapshotWith(0.9, 0.9, map[model.Dimension]float64{model.DimPayment: 1}),
		Window: &model.MetricWindow{
			Usage:   model.UsageMetrics{DaysSinceLastLogin: model.Float(1)},
			Support: model.SupportMetrics{TicketsByPriority: map[model.TicketPriority]int{}},
			Payment: model.PaymentMetrics{Status: &current},
		},
	}
	alerts := g.Evaluate(in)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertExpansionOpportunity, alerts[0].Type)
	assert.Equal(t, model.KindOpportunity, alerts[0].Kind)
	assert.Equal(t, model.SeverityInfo, alerts[0].Severity)
}

func TestEvaluate_EngagementSegmentScaling(t *testing.T) {
	g := newGenerator(t)
	tests := []struct {
		name    string
		segment model.Segment
		days    float64
		want    model.Severity
	}{
		{"mid market medium", model.SegmentMidMarket, 20, model.SeverityMedium},
		{"mid market high", model.SegmentMidMarket, 31, model.SeverityHigh},
		{"enterprise tolerates 20 days", model.SegmentEnterprise, 20, ""},
		{"enterprise high after 45", model.SegmentEnterprise, 46, model.SeverityHigh},
		{"startup medium after 10", model.SegmentStartup, 10, model.SeverityMedium},
		{"recent login", model.SegmentMidMarket, 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{
				Customer: model.Customer{ID: "c", Segment: tt.segment},
				Snapshot: snapshotWith(0.5, 0.5, map[model.Dimension]float64{model.DimUsage: 0.3}),
				Window:   &model.MetricWindow{Usage: model.UsageMetrics{DaysSinceLastLogin: model.Float(tt.days)}},
			}
			got := types(g.Evaluate(in))
			if tt.want == "" {
				assert.NotContains(t, got, model.AlertEngagementRisk)
				return
			}
			assert.Equal(t, tt.want, got[model.AlertEngagementRisk])
		})
	}
}

func TestEvaluate_MidMarketLoginBoundaries(t *testing.T) {
	g := newGenerator(t)
	cfg := config.Default().Alerts
	require.Equal(t, 14.0, cfg.LoginMediumDays)
	require.Equal(t, 30.0, cfg.LoginHighDays)
	_, scaled := cfg.SegmentLoginMultiplier[model.SegmentMidMarket]
	require.False(t, scaled, "mid_market uses the reference thresholds as-is")

	for days, want := range map[float64]model.Severity{
		14: "",
		15: model.SeverityMedium,
		30: model.SeverityMedium,
		31: model.SeverityHigh,
		45: model.SeverityHigh,
	} {
		in := Input{
			Customer: model.Customer{ID: "c", Segment: model.SegmentMidMarket},
			Snapshot: snapshotWith(0.5, 0.5, map[model.Dimension]float64{model.DimUsage: 0.3}),
			Window:   &model.MetricWindow{Usage: model.UsageMetrics{DaysSinceLastLogin: model.Float(days)}},
		}
		got := types(g.Evaluate(in))
		if want == "" {
			assert.NotContains(t, got, model.AlertEngagementRisk, "%v days", days)
			continue
		}
		assert.Equal(t, want, got[model.AlertEngagementRisk], "%v days", days)
	}
}

func TestEvaluate_PaymentSeverity(t *testing.T) {
	g := newGenerator(t)
	tests := []struct {
		status model.PaymentStatus
		score  float64
		want   model.Severity
	}{
		{model.PaymentFailed, 0, model.SeverityCritical},
		{model.PaymentOverdue, 0.3, model.SeverityHigh},
		{model.PaymentLate, 0.6, model.SeverityMedium},
		{model.PaymentCurrent, 0.9, model.SeverityLow},
		{model.PaymentCurrent, 1.0, ""},
	}
	for _, tt := range tests {
		status := tt.status
		in := Input{
			Customer: model.Customer{ID: "c"},
			Snapshot: snapshotWith(0.7, 0.7, map[model.Dimension]float64{model.DimPayment: tt.score}),
			Window:   &model.MetricWindow{Payment: model.PaymentMetrics{Status: &status}},
		}
		got := types(g.Evaluate(in))
		if tt.want == "" {
			assert.NotContains(t, got, model.AlertPaymentRisk)
			continue
		}
		assert.Equal(t, tt.want, got[model.AlertPaymentRisk], "status %s", tt.status)
	}
}

func TestEvaluate_UsageDropAgainstPrevious(t *testing.T) {
	g := newGenerator(t)
	in := Input{
		Customer: model.Customer{ID: "c"},
		Snapshot: snapshotWith(0.6, 0.6, map[model.Dimension]float64{model.DimUsage: 0.45}),
		Previous: snapshotWith(0.7, 0.7, map[model.Dimension]float64{model.DimUsage: 0.7}),
	}
	got := types(g.Evaluate(in))
	assert.Equal(t, model.SeverityMedium, got[model.AlertUsageDecline])

	in.Previous = snapshotWith(0.7, 0.7, map[model.Dimension]float64{model.DimUsage: 0.5})
	assert.NotContains(t, types(g.Evaluate(in)), model.AlertUsageDecline)
}

func TestEvaluate_OnboardingIncomplete(t *testing.T) {
	g := newGenerator(t)
	in := Input{
		Customer: model.Customer{ID: "c"},
		Snapshot: snapshotWith(0.7, 0.7, nil),
		Window: &model.MetricWindow{
			Engagement: model.EngagementMetrics{OnboardingCompleted: model.Bool(false)},
			Lifecycle:  model.LifecycleMetrics{ContractAgeDays: model.Float(45)},
		},
	}
	assert.Equal(t, model.SeverityLow, types(g.Evaluate(in))[model.AlertOnboardingIncomplete])

	in.Window.Lifecycle.ContractAgeDays = model.Float(10)
	assert.NotContains(t, types(g.Evaluate(in)), model.AlertOnboardingIncomplete)
}

func TestSuppress(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := []model.Alert{
		{Type: model.AlertChurnRisk, Severity: model.SeverityHigh, CreatedAt: now.Add(-time.Hour)},
		{Type: model.AlertPaymentRisk, Severity: model.SeverityCritical, CreatedAt: now.Add(-3 * time.Hour)},
	}
	alerts := []model.Alert{
		{Type: model.AlertChurnRisk, Severity: model.SeverityHigh},       // repeat inside cooldown
		{Type: model.AlertPaymentRisk, Severity: model.SeverityCritical}, // cooldown expired
	}
	kept, dropped := Suppress(alerts, recent, now, 2*time.Hour)
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 1)
	assert.Equal(t, model.AlertPaymentRisk, kept[0].Type)

	escalation := []model.Alert{{Type: model.AlertChurnRisk, Severity: model.SeverityCritical}}
	kept, dropped = Suppress(escalation, recent, now, 2*time.Hour)
	assert.Equal(t, 0, dropped)
	assert.Len(t, kept, 1)

	kept, _ = Suppress(alerts, recent, now, 0)
	assert.Len(t, kept, 2)
}
