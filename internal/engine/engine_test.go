package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"HealthSentinel/internal/collector"
	"HealthSentinel/internal/config"
	"HealthSentinel/internal/history"
	"HealthSentinel/internal/lock"
	"HealthSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var runAt = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)

type capture struct {
	mu      sync.Mutex
	results []model.CustomerResult
}

func (c *capture) Publish(_ context.Context, results []model.CustomerResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
	return nil
}

func newEngine(t *testing.T, src collector.Source, store history.Store, pub Publisher) *Engine {
	t.Helper()
	cfg := config.Default()
	e, err := New(cfg, Deps{Source: src, Store: store, Publisher: pub}, zap.NewNop())
	require.NoError(t, err)
	e.now = func() time.Time { return runAt }
	return e
}

func churning() *model.MetricBundle {
	failed := model.PaymentFailed
	return &model.MetricBundle{
		Customer: model.Customer{ID: "churn", Segment: model.SegmentMidMarket, MRR: 100},
		Window: &model.MetricWindow{
			Usage:      model.UsageMetrics{SessionCount: model.Float(0), AvgSessionMinutes: model.Float(0), DaysSinceLastLogin: model.Float(40)},
			Engagement: model.EngagementMetrics{ActiveUsers: model.Float(0), LicensedUsers: model.Float(20), OnboardingCompleted: model.Bool(false)},
			Support: model.SupportMetrics{
				TicketsByPriority:  map[model.TicketPriority]int{model.PriorityUrgent: 10},
				AvgResolutionHours: model.Float(200),
			},
			Payment:      model.PaymentMetrics{Status: &failed},
			Adoption:     model.AdoptionMetrics{Core: model.Float(0), Advanced: model.Float(0), Integration: model.Float(0)},
			Satisfaction: model.SatisfactionMetrics{NPS: model.Float(0), CSAT: model.Float(1)},
			Lifecycle:    model.LifecycleMetrics{ContractAgeDays: model.Float(10), ContractLengthDays: model.Float(365)},
			Value:        model.ValueMetrics{MRR: model.Float(100), DealTrend: model.Float(-0.5)},
		},
	}
}

func thriving(id string, mrr float64) *model.MetricBundle {
	current := model.PaymentCurrent
	return &model.MetricBundle{
		Customer: model.Customer{ID: id, Segment: model.SegmentEnterprise, MRR: mrr},
		Window: &model.MetricWindow{
			Usage:      model.UsageMetrics{SessionCount: model.Float(40), AvgSessionMinutes: model.Float(60), DaysSinceLastLogin: model.Float(1)},
			Engagement: model.EngagementMetrics{ActiveUsers: model.Float(19), LicensedUsers: model.Float(20), OnboardingCompleted: model.Bool(true)},
			Support: model.SupportMetrics{
				TicketsByPriority:  map[model.TicketPriority]int{model.PriorityLow: 1},
				AvgResolutionHours: model.Float(10),
			},
			Payment:      model.PaymentMetrics{Status: &current},
			Adoption:     model.AdoptionMetrics{Core: model.Float(1), Advanced: model.Float(1), Integration: model.Float(1)},
			Satisfaction: model.SatisfactionMetrics{NPS: model.Float(9), CSAT: model.Float(5)},
			Lifecycle:    model.LifecycleMetrics{ContractAgeDays: model.Float(400), ContractLengthDays: model.Float(730)},
			Value:        model.ValueMetrics{MRR: model.Float(mrr), DealTrend: model.Float(0.1)},
		},
	}
}

func alertTypes(alerts []model.Alert) map[model.AlertType]model.Severity {
	out := make(map[model.AlertType]model.Severity)
	for _, a := range alerts {
		out[a.Type] = a.Severity
	}
	return out
}

func TestRun_CriticalChurn(t *testing.T) {
	store := history.NewMemoryStore()
	pub := &capture{}
	e := newEngine(t, collector.NewMockSource(churning()), store, pub)

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, ok := rep.Result("churn")
	require.True(t, ok)
	require.Equal(t, model.CustomerOK, res.Status, res.Error)

	assert.Less(t, res.Snapshot.Overall, 0.3)
	assert.Equal(t, model.LabelCritical, res.Snapshot.Label)
	assert.InDelta(t, 1.0, res.Snapshot.Confidence, 1e-9)

	types := alertTypes(res.Alerts)
	assert.Equal(t, model.SeverityCritical, types[model.AlertChurnRisk])
	assert.Equal(t, model.SeverityCritical, types[model.AlertPaymentRisk])
	assert.Equal(t, model.SeverityHigh, types[model.AlertUsageDecline])
	assert.Equal(t, model.SeverityHigh, types[model.AlertEngagementRisk])
	assert.Equal(t, model.SeverityMedium, types[model.AlertSupportOverload])
	assert.NotContains(t, types, model.AlertExpansionOpportunity)

	for _, a := range res.Alerts {
		if a.Type == model.AlertChurnRisk {
			require.NotEmpty(t, a.Actions)
			assert.Equal(t, "urgent_call", a.Actions[0].TemplateID)
			assert.Equal(t, model.UrgencyImmediate, a.Actions[0].Urgency)
		}
	}

	stored, err := store.Latest(context.Background(), "churn")
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.ID, stored.ID)
	saved, err := store.RecentAlerts(context.Background(), "churn", time.Time{})
	require.NoError(t, err)
	assert.Len(t, saved, len(res.Alerts))

	assert.Len(t, pub.results, 1)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, len(res.Alerts), rep.AlertsEmitted)
	assert.Same(t, rep, e.Last())
}

// overdueDisengaged is the critical churn reference case: usage score 0.1,
// eight high-priority tickets, 45 days since login, overdue payment, NPS 2.
// The remaining inputs describe an account that has drifted away.
func overdueDisengaged() *model.MetricBundle {
	overdue := model.PaymentOverdue
	return &model.MetricBundle{
		Customer: model.Customer{ID: "CUST001", Segment: model.SegmentMidMarket, MRR: 2000, PaymentStatus: overdue},
		Window: &model.MetricWindow{
			// 0.6*3/30 + 0.4*6/60 = 0.1
			Usage:      model.UsageMetrics{SessionCount: model.Float(3), AvgSessionMinutes: model.Float(6), DaysSinceLastLogin: model.Float(45)},
			Engagement: model.EngagementMetrics{ActiveUsers: model.Float(1), LicensedUsers: model.Float(20), OnboardingCompleted: model.Bool(true)},
			Support: model.SupportMetrics{
				TicketsByPriority:  map[model.TicketPriority]int{model.PriorityHigh: 8},
				AvgResolutionHours: model.Float(48),
			},
			Payment:      model.PaymentMetrics{Status: &overdue},
			Adoption:     model.AdoptionMetrics{Core: model.Float(0.5), Advanced: model.Float(0.1), Integration: model.Float(0)},
			Satisfaction: model.SatisfactionMetrics{NPS: model.Float(2), CSAT: model.Float(3)},
			Lifecycle:    model.LifecycleMetrics{ContractAgeDays: model.Float(120), ContractLengthDays: model.Float(365)},
			Value:        model.ValueMetrics{MRR: model.Float(2000), DealTrend: model.Float(0)},
		},
	}
}

func TestRun_OverdueDisengagedIsCritical(t *testing.T) {
	e := newEngine(t, collector.NewMockSource(overdueDisengaged()), history.NewMemoryStore(), nil)

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := rep.Result("CUST001")
	require.Equal(t, model.CustomerOK, res.Status, res.Error)

	usage, _ := res.Snapshot.Score(model.DimUsage)
	assert.InDelta(t, 0.1, usage.Value, 1e-9)
	payment, _ := res.Snapshot.Score(model.DimPayment)
	assert.InDelta(t, 0.3, payment.Value, 1e-9)
	support, _ := res.Snapshot.Score(model.DimSupport)
	assert.InDelta(t, 0.2, support.Value, 1e-9, "volume penalty capped at 0.7, 24h over target costs 0.1")

	assert.Less(t, res.Snapshot.Overall, 0.3)
	assert.InDelta(t, 0.241, res.Snapshot.Overall, 0.005)
	assert.Equal(t, model.LabelCritical, res.Snapshot.Label)

	types := alertTypes(res.Alerts)
	require.Equal(t, model.SeverityCritical, types[model.AlertChurnRisk])
	assert.Equal(t, model.SeverityHigh, types[model.AlertEngagementRisk])
	var ids []string
	for _, a := range res.Alerts {
		if a.Type == model.AlertChurnRisk {
			for _, act := range a.Actions {
				ids = append(ids, act.TemplateID)
			}
		}
	}
	assert.Contains(t, ids, "urgent_call")

	require.Len(t, rep.Queue, len(res.Alerts))
	assert.Equal(t, model.AlertChurnRisk, rep.Queue[0].Type)
	assert.Equal(t, "CUST001", rep.Queue[0].CustomerID)
	require.NotNil(t, rep.Portfolio)
	assert.Equal(t, 1, rep.Portfolio.Labels[model.LabelCritical])
	assert.Equal(t, model.PortfolioHighRisk, rep.Portfolio.Status)
	assert.Equal(t, 2000.0, rep.Portfolio.RevenueAtRisk)
}

func TestRun_StableHealthy(t *testing.T) {
	src := collector.NewMockSource(thriving("big", 50000), thriving("small", 2000))
	e := newEngine(t, src, history.NewMemoryStore(), nil)

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := rep.Result("big")
	require.Equal(t, model.CustomerOK, res.Status, res.Error)

	assert.GreaterOrEqual(t, res.Snapshot.Overall, 0.8)
	assert.Equal(t, model.LabelExcellent, res.Snapshot.Label)
	require.Len(t, res.Alerts, 1)
	a := res.Alerts[0]
	assert.Equal(t, model.AlertExpansionOpportunity, a.Type)
	assert.Equal(t, model.KindOpportunity, a.Kind)
	assert.Equal(t, model.SeverityInfo, a.Severity)
	require.NotEmpty(t, a.Actions)
	assert.Equal(t, "strategic_account_review", a.Actions[0].TemplateID)
	assert.Equal(t, model.UrgencyWithin24h, a.Actions[0].Urgency, "high-value account escalates one step")

	small, _ := rep.Result("small")
	for _, al := range small.Alerts {
		assert.NotEqual(t, model.AlertExpansionOpportunity, al.Type, "lowest MRR in segment is not an expansion fit")
	}
}

func TestRun_MissingData(t *testing.T) {
	b := &model.MetricBundle{
		Customer: model.Customer{ID: "sparse", Segment: "unknown_segment", MRR: 500},
		Window:   &model.MetricWindow{Value: model.ValueMetrics{MRR: model.Float(500)}},
	}
	e := newEngine(t, collector.NewMockSource(b), history.NewMemoryStore(), nil)

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := rep.Result("sparse")
	require.Equal(t, model.CustomerOK, res.Status, res.Error)

	assert.Equal(t, model.SegmentMidMarket, res.Segment, "unknown segment falls back to the default profile")
	assert.Less(t, res.Snapshot.Confidence, 0.5)
	assert.GreaterOrEqual(t, res.Snapshot.Overall, 0.0)
	assert.LessOrEqual(t, res.Snapshot.Overall, 1.0)
	usage, ok := res.Snapshot.Score(model.DimUsage)
	require.True(t, ok)
	assert.Equal(t, 0.0, usage.Confidence)
	assert.NotEmpty(t, usage.Missing)
	assert.Equal(t, model.SeverityMedium, alertTypes(res.Alerts)[model.AlertPaymentRisk])
}

func TestRun_WindowWithoutPaymentUsesCustomerRecord(t *testing.T) {
	b := thriving("rec", 5000)
	b.Customer.PaymentStatus = model.PaymentCurrent
	b.Window.Payment = model.PaymentMetrics{}
	e := newEngine(t, collector.NewMockSource(b), history.NewMemoryStore(), nil)

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := rep.Result("rec")
	require.Equal(t, model.CustomerOK, res.Status, res.Error)
	payment, ok := res.Snapshot.Score(model.DimPayment)
	require.True(t, ok)
	assert.Positive(t, payment.Value)
	assert.Positive(t, payment.Confidence)
	assert.NotContains(t, alertTypes(res.Alerts), model.AlertPaymentRisk)
}

func TestRun_InsufficientHistoryThenTrend(t *testing.T) {
	store := history.NewMemoryStore()
	src := collector.NewMockSource(thriving("acct", 5000))
	e := newEngine(t, src, store, nil)

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := rep.Result("acct")
	require.NotNil(t, res.Trend)
	assert.Nil(t, res.Trend.Change30d)
	assert.Equal(t, model.DirectionStable, res.Trend.Direction)
	assert.Equal(t, res.Snapshot.Overall, res.Trend.Forecast30d)

	// thirty days later usage collapses
	later := thriving("acct", 5000)
	later.Window.Usage.SessionCount = model.Float(0)
	later.Window.Usage.AvgSessionMinutes = model.Float(0)
	src.Put(later)
	e.now = func() time.Time { return runAt.AddDate(0, 0, 30) }

	rep, err = e.Run(context.Background())
	require.NoError(t, err)
	res2, _ := rep.Result("acct")
	require.NotNil(t, res2.Trend.Change30d)
	assert.Equal(t, model.DirectionDeclining, res2.Trend.Direction)
	assert.InDelta(t, res2.Snapshot.Overall-res.Snapshot.Overall, *res2.Trend.Change30d, 1e-9)
	assert.Contains(t, alertTypes(res2.Alerts), model.AlertUsageDecline)
}

func TestRun_FetchFailureReportsStaleSnapshot(t *testing.T) {
	store := history.NewMemoryStore()
	src := collector.NewMockSource(thriving("acct", 5000), churning())
	e := newEngine(t, src, store, nil)

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	prev, _ := first.Result("acct")

	src.Fail("acct", errors.New("upstream down"))
	e.now = func() time.Time { return runAt.Add(24 * time.Hour) }
	rep, err := e.Run(context.Background())
	require.NoError(t, err)

	res, _ := rep.Result("acct")
	assert.Equal(t, model.CustomerDegraded, res.Status)
	assert.True(t, res.Stale)
	assert.Equal(t, prev.Snapshot.ID, res.Snapshot.ID)
	assert.Contains(t, res.Error, "upstream down")
	assert.Equal(t, 1, rep.Degraded)

	other, _ := rep.Result("churn")
	assert.Equal(t, model.CustomerOK, other.Status, "one failure does not stop the run")
}

// brokenLocker grants the first n locks, then fails.
type brokenLocker struct {
	local *lock.Local
	mu    sync.Mutex
	left  int
}

func (b *brokenLocker) Lock(ctx context.Context, key string) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.left == 0 {
		return nil, errors.New("lock backend down")
	}
	b.left--
	return b.local.Lock(ctx, key)
}

func (b *brokenLocker) Close() error { return nil }

func TestRun_PipelineFailureReportsStaleSnapshot(t *testing.T) {
	store := history.NewMemoryStore()
	locker := &brokenLocker{local: lock.NewLocal(), left: 1}
	e, err := New(config.Default(), Deps{Source: collector.NewMockSource(thriving("acct", 5000)), Store: store, Locker: locker}, zap.NewNop())
	require.NoError(t, err)
	e.now = func() time.Time { return runAt }

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	prev, _ := first.Result("acct")
	require.Equal(t, model.CustomerOK, prev.Status, prev.Error)

	e.now = func() time.Time { return runAt.Add(24 * time.Hour) }
	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := rep.Result("acct")
	assert.Equal(t, model.CustomerFailed, res.Status)
	assert.True(t, res.Stale)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, prev.Snapshot.ID, res.Snapshot.ID)
	assert.Equal(t, model.SegmentEnterprise, res.Segment)
	assert.Contains(t, res.Error, "lock backend down")
	assert.Equal(t, 1, rep.Failed)
}

func TestRun_FetchTimeoutDegradesWithoutHistory(t *testing.T) {
	src := collector.NewMockSource(thriving("slow", 5000))
	src.Delay = time.Second
	cfg := config.Default()
	cfg.Engine.CustomerTimeout = 10 * time.Millisecond
	e, err := New(cfg, Deps{Source: src, Store: history.NewMemoryStore()}, zap.NewNop())
	require.NoError(t, err)

	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := rep.Result("slow")
	assert.Equal(t, model.CustomerDegraded, res.Status)
	assert.False(t, res.Stale)
	assert.Nil(t, res.Snapshot)
}

func TestRun_CooldownSuppressesRepeats(t *testing.T) {
	store := history.NewMemoryStore()
	e := newEngine(t, collector.NewMockSource(churning()), store, nil)

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	emitted := first.AlertsEmitted
	require.Positive(t, emitted)

	e.now = func() time.Time { return runAt.Add(time.Hour) }
	second, err := e.Run(context.Background())
	require.NoError(t, err)
	res, _ := second.Result("churn")
	assert.Empty(t, res.Alerts)
	assert.Equal(t, emitted, res.Suppressed)

	e.now = func() time.Time { return runAt.Add(3 * time.Hour) }
	third, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, emitted, third.AlertsEmitted, "cooldown expired")
}

func TestRun_CancelledContext(t *testing.T) {
	e := newEngine(t, collector.NewMockSource(churning(), thriving("a", 1)), history.NewMemoryStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Equal(t, 2, rep.Failed)
}

func TestRun_CancelledContextKeepsLastSnapshot(t *testing.T) {
	store := history.NewMemoryStore()
	e := newEngine(t, collector.NewMockSource(thriving("acct", 5000)), store, nil)
	first, err := e.Run(context.Background())
	require.NoError(t, err)
	prev, _ := first.Result("acct")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.now = func() time.Time { return runAt.Add(time.Hour) }
	rep, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	res, _ := rep.Result("acct")
	assert.Equal(t, model.CustomerFailed, res.Status)
	assert.True(t, res.Stale)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, prev.Snapshot.ID, res.Snapshot.ID)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	e := newEngine(t, collector.NewMockSource(), history.NewMemoryStore(), nil)
	e.running.Store(true)
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRunCustomers_Subset(t *testing.T) {
	e := newEngine(t, collector.NewMockSource(churning(), thriving("a", 1)), history.NewMemoryStore(), nil)
	rep, err := e.RunCustomers(context.Background(), []string{"a", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	ghost, _ := rep.Result("ghost")
	assert.Equal(t, model.CustomerDegraded, ghost.Status)
	_, ok := rep.Result("churn")
	assert.False(t, ok)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Bands = cfg.Bands[1:]
	_, err := New(cfg, Deps{Source: collector.NewMockSource(), Store: history.NewMemoryStore()}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(config.Default(), Deps{}, zap.NewNop())
	assert.Error(t, err)
}
