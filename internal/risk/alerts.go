package risk

import (
	"fmt"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"

	"github.com/google/uuid"
)

// Input is everything the rules may look at for one customer.
type Input struct {
	Customer model.Customer
	Snapshot *model.HealthSnapshot
	Trend    model.HealthTrend
	Window   *model.MetricWindow
	// Previous is the newest stored snapshot before this run, if any.
	Previous *model.HealthSnapshot
}

type rule struct {
	name string
	eval func(g *Generator, in Input) *model.Alert
}

// rules run in this order; none of them suppresses another.
var rules = []rule{
	{"critical_score", (*Generator).criticalChurn},
	{"declining_at_risk", (*Generator).decliningChurn},
	{"inactive_users", (*Generator).engagementRisk},
	{"payment_status", (*Generator).paymentRisk},
	{"expansion_fit", (*Generator).expansion},
	{"usage_decline", (*Generator).usageDecline},
	{"support_volume", (*Generator).supportOverload},
	{"onboarding", (*Generator).onboardingIncomplete},
}

// Generator evaluates alert rules against a composed, labelled snapshot.
type Generator struct {
	p          config.AlertParams
	classifier *Classifier
	current    float64 // payment score of a current account
	now        func() time.Time
}

func NewGenerator(p config.AlertParams, c *Classifier, payment config.PaymentParams) *Generator {
	return &Generator{
		p:          p,
		classifier: c,
		current:    payment.StatusScores[model.PaymentCurrent],
		now:        time.Now,
	}
}

// Evaluate runs every rule and merges same-type alerts into the most severe one.
func (g *Generator) Evaluate(in Input) []model.Alert {
	var out []model.Alert
	index := make(map[model.AlertType]int)
	for _, r := range rules {
		a := r.eval(g, in)
		if a == nil {
			continue
		}
		for i := range a.Triggers {
			a.Triggers[i].Rule = r.name
		}
		if i, ok := index[a.Type]; ok {
			out[i] = merge(out[i], *a)
			continue
		}
		a.ID = uuid.NewString()
		a.CustomerID = in.Customer.ID
		a.CreatedAt = g.now()
		a.Status = model.StatusOpen
		if a.Kind == "" {
			a.Kind = model.KindRisk
		}
		index[a.Type] = len(out)
		out = append(out, *a)
	}
	return out
}

// merge keeps the higher severity and the union of triggers.
func merge(existing, incoming model.Alert) model.Alert {
	triggers := append(append([]model.Trigger(nil), existing.Triggers...), incoming.Triggers...)
	if incoming.Severity.Rank() > existing.Severity.Rank() {
		existing.Severity = incoming.Severity
		existing.Message = incoming.Message
	}
	existing.Triggers = triggers
	return existing
}

func (g *Generator) criticalChurn(in Input) *model.Alert {
	if in.Snapshot.Overall >= g.p.CriticalThreshold {
		return nil
	}
	return &model.Alert{
		Type:     model.AlertChurnRisk,
		Severity: model.SeverityCritical,
		Message:  fmt.Sprintf("Health score %.2f is below the critical threshold %.2f", in.Snapshot.Overall, g.p.CriticalThreshold),
		Triggers: []model.Trigger{{Metric: "overall", Value: in.Snapshot.Overall, Threshold: g.p.CriticalThreshold}},
	}
}

func (g *Generator) decliningChurn(in Input) *model.Alert {
	if g.classifier.Classify(in.Snapshot.Overall) != model.LabelAtRisk || in.Trend.Direction != model.DirectionDeclining {
		return nil
	}
	change := 0.0
	if in.Trend.Change30d != nil {
		change = *in.Trend.Change30d
	}
	return &model.Alert{
		Type:     model.AlertChurnRisk,
		Severity: model.SeverityHigh,
		Message:  fmt.Sprintf("At-risk account declining: health %.2f, 30-day change %+.2f", in.Snapshot.Overall, change),
		Triggers: []model.Trigger{{Metric: "change_30d", Value: change, Threshold: 0}},
	}
}

func (g *Generator) engagementRisk(in Input) *model.Alert {
	usage, ok := in.Snapshot.Score(model.DimUsage)
	if !ok || usage.Value >= g.p.UsageFloor || in.Window == nil || in.Window.Usage.DaysSinceLastLogin == nil {
		return nil
	}
	days := *in.Window.Usage.DaysSinceLastLogin
	mult := segmentMultiplier(g.p.SegmentLoginMultiplier, in.Customer.Segment)
	medium, high := g.p.LoginMediumDays*mult, g.p.LoginHighDays*mult
	if days <= medium {
		return nil
	}
	sev, threshold := model.SeverityMedium, medium
	if days > high {
		sev, threshold = model.SeverityHigh, high
	}
	return &model.Alert{
		Type:     model.AlertEngagementRisk,
		Severity: sev,
		Message:  fmt.Sprintf("Low usage (%.2f) and no login for %.0f days", usage.Value, days),
		Triggers: []model.Trigger{
			{Metric: "usage", Value: usage.Value, Threshold: g.p.UsageFloor},
			{Metric: "days_since_last_login", Value: days, Threshold: threshold},
		},
	}
}

func (g *Generator) paymentRisk(in Input) *model.Alert {
	pay, ok := in.Snapshot.Score(model.DimPayment)
	if !ok || pay.Value >= g.current {
		return nil
	}

	sev := model.SeverityMedium
	status := "unknown"
	if in.Window != nil && in.Window.Payment.Status != nil {
		status = string(*in.Window.Payment.Status)
		switch *in.Window.Payment.Status {
		case model.PaymentFailed:
			sev = model.SeverityCritical
		case model.PaymentOverdue:
			sev = model.SeverityHigh
		case model.PaymentLate:
			sev = model.SeverityMedium
		case model.PaymentCurrent:
			// only failed renewals pulled the score down
			sev = model.SeverityLow
		}
	}
	return &model.Alert{
		Type:     model.AlertPaymentRisk,
		Severity: sev,
		Message:  fmt.Sprintf("Payment status %s (payment score %.2f)", status, pay.Value),
		Triggers: []model.Trigger{{Metric: "payment", Value: pay.Value, Threshold: g.current}},
	}
}

func (g *Generator) expansion(in Input) *model.Alert {
	good, ok := g.classifier.Band(model.LabelGood)
	if !ok || in.Snapshot.Overall < good.Min {
		return nil
	}
	value, _ := in.Snapshot.Score(model.DimValue)
	adoption, _ := in.Snapshot.Score(model.DimAdoption)
	if value.Value < g.p.ExpansionValueMin || adoption.Value < g.p.ExpansionAdoptionMin {
		return nil
	}
	return &model.Alert{
		Type:     model.AlertExpansionOpportunity,
		Kind:     model.KindOpportunity,
		Severity: model.SeverityInfo,
		Message:  fmt.Sprintf("Healthy account (%.2f) with strong value and adoption", in.Snapshot.Overall),
		Triggers: []model.Trigger{
			{Metric: "value", Value: value.Value, Threshold: g.p.ExpansionValueMin},
			{Metric: "adoption", Value: adoption.Value, Threshold: g.p.ExpansionAdoptionMin},
		},
	}
}

func (g *Generator) usageDecline(in Input) *model.Alert {
	usage, ok := in.Snapshot.Score(model.DimUsage)
	if !ok {
		return nil
	}
	if usage.Value < g.p.UsageDeclineFloor {
		return &model.Alert{
			Type:     model.AlertUsageDecline,
			Severity: model.SeverityHigh,
			Message:  fmt.Sprintf("Usage score %.2f is below %.2f", usage.Value, g.p.UsageDeclineFloor),
			Triggers: []model.Trigger{{Metric: "usage", Value: usage.Value, Threshold: g.p.UsageDeclineFloor}},
		}
	}
	if in.Previous == nil {
		return nil
	}
	prev, ok := in.Previous.Score(model.DimUsage)
	if !ok || prev.Value-usage.Value <= g.p.UsageDrop {
		return nil
	}
	drop := prev.Value - usage.Value
	return &model.Alert{
		Type:     model.AlertUsageDecline,
		Severity: model.SeverityMedium,
		Message:  fmt.Sprintf("Usage dropped by %.2f since the last run", drop),
		Triggers: []model.Trigger{{Metric: "usage_drop", Value: drop, Threshold: g.p.UsageDrop}},
	}
}

func (g *Generator) supportOverload(in Input) *model.Alert {
	if in.Window == nil || in.Window.Support.TicketsByPriority == nil {
		return nil
	}
	total := float64(in.Window.Support.TotalTickets())
	threshold := float64(g.p.SupportTicketThreshold) * segmentMultiplier(g.p.SegmentTicketMultiplier, in.Customer.Segment)
	if total <= threshold {
		return nil
	}
	return &model.Alert{
		Type:     model.AlertSupportOverload,
		Severity: model.SeverityMedium,
		Message:  fmt.Sprintf("%.0f support tickets in the window", total),
		Triggers: []model.Trigger{{Metric: "tickets", Value: total, Threshold: threshold}},
	}
}

func (g *Generator) onboardingIncomplete(in Input) *model.Alert {
	if in.Window == nil {
		return nil
	}
	done, age := in.Window.Engagement.OnboardingCompleted, in.Window.Lifecycle.ContractAgeDays
	if done == nil || *done || age == nil || *age <= g.p.OnboardingGraceDays {
		return nil
	}
	return &model.Alert{
		Type:     model.AlertOnboardingIncomplete,
		Severity: model.SeverityLow,
		Message:  fmt.Sprintf("Onboarding still incomplete after %.0f days", *age),
		Triggers: []model.Trigger{{Metric: "contract_age_days", Value: *age, Threshold: g.p.OnboardingGraceDays}},
	}
}

func segmentMultiplier(m map[model.Segment]float64, seg model.Segment) float64 {
	if v, ok := m[seg]; ok && v > 0 {
		return v
	}
	return 1
}

// Suppress drops alerts whose type was already raised for the customer within
// cooldown at the same or a higher severity. Escalations always pass.
func Suppress(alerts, recent []model.Alert, now time.Time, cooldown time.Duration) ([]model.Alert, int) {
	if cooldown <= 0 || len(recent) == 0 {
		return alerts, 0
	}
	kept := alerts[:0:0]
	dropped := 0
	for _, a := range alerts {
		if covered(a, recent, now, cooldown) {
			dropped++
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

func covered(a model.Alert, recent []model.Alert, now time.Time, cooldown time.Duration) bool {
	for _, r := range recent {
		if r.Type == a.Type && now.Sub(r.CreatedAt) < cooldown && r.Severity.Rank() >= a.Severity.Rank() {
			return true
		}
	}
	return false
}
