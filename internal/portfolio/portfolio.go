// Package portfolio ranks a run's open alerts across customers and summarizes
// the customer base so operators know where to look first.
package portfolio

import (
	"math"
	"sort"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"
)

// Priority blends four 0-100 components with these weights.
const (
	severityWeight = 0.40
	valueWeight    = 0.25
	timeWeight     = 0.20
	impactWeight   = 0.15
)

// Ranker builds the operator queue and the portfolio summary of a run.
type Ranker struct {
	p config.QueueParams
}

func NewRanker(p config.QueueParams) *Ranker {
	return &Ranker{p: p}
}

// Queue ranks the open alerts of freshly scored customers, highest priority
// first, and keeps at most the configured size. The second value is the
// queue length before truncation.
func (r *Ranker) Queue(results []model.CustomerResult, customers map[string]model.Customer, at time.Time) ([]model.QueueItem, int) {
	type entry struct {
		item    model.QueueItem
		created time.Time
	}
	var entries []entry
	for _, res := range results {
		if res.Status != model.CustomerOK || res.Stale {
			continue
		}
		c := customers[res.CustomerID]
		for _, a := range res.Alerts {
			if a.Status != "" && a.Status != model.StatusOpen {
				continue
			}
			ts := timeSensitivity(a, at)
			bi := r.businessImpact(a, c, res.Snapshot, at)
			prio := severityWeight*severityScore(a.Severity) +
				valueWeight*valueScore(c.MRR, res.Segment) +
				timeWeight*ts +
				impactWeight*bi
			item := model.QueueItem{
				AlertID:         a.ID,
				CustomerID:      res.CustomerID,
				Type:            a.Type,
				Severity:        a.Severity,
				Priority:        round(prio, 2),
				TimeSensitivity: ts,
				BusinessImpact:  bi,
				MRR:             c.MRR,
			}
			item.Tier = tier(item.Priority)
			if len(a.Actions) > 0 {
				item.TopAction = a.Actions[0].TemplateID
			}
			entries = append(entries, entry{item: item, created: a.CreatedAt})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.item.Priority != b.item.Priority {
			return a.item.Priority > b.item.Priority
		}
		if ra, rb := a.item.Severity.Rank(), b.item.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if !a.created.Equal(b.created) {
			return a.created.Before(b.created)
		}
		if a.item.CustomerID != b.item.CustomerID {
			return a.item.CustomerID < b.item.CustomerID
		}
		return a.item.AlertID < b.item.AlertID
	})

	total := len(entries)
	if total > r.p.Size {
		entries = entries[:r.p.Size]
	}
	out := make([]model.QueueItem, len(entries))
	for i, e := range entries {
		e.item.Position = i + 1
		out[i] = e.item
	}
	return out, total
}

// Summarize counts labels and alert patterns over a run's results.
func (r *Ranker) Summarize(results []model.CustomerResult, customers map[string]model.Customer, queueLength int) *model.PortfolioSummary {
	s := &model.PortfolioSummary{
		Customers:   len(results),
		Labels:      make(map[model.RiskLabel]int),
		AlertTypes:  make(map[model.AlertType]int),
		Severities:  make(map[model.Severity]int),
		AlertRisk:   model.SeverityLow,
		QueueLength: queueLength,
		QueueHealth: queueHealth(queueLength),
	}

	labelled := 0
	for _, res := range results {
		if res.Snapshot == nil {
			s.Unscored++
			continue
		}
		labelled++
		s.Labels[res.Snapshot.Label]++
		if res.Stale {
			s.Stale++
		}

		atRisk, expansion := false, false
		for _, a := range res.Alerts {
			s.Alerts++
			s.AlertTypes[a.Type]++
			s.Severities[a.Severity]++
			if a.Kind != model.KindOpportunity && a.Severity.Rank() >= model.SeverityHigh.Rank() {
				atRisk = true
			}
			if a.Type == model.AlertExpansionOpportunity {
				expansion = true
			}
		}
		if atRisk {
			s.RevenueAtRisk += customers[res.CustomerID].MRR
		}
		if expansion {
			s.ExpansionReady++
		}
	}

	if labelled > 0 {
		weighted := float64(s.Labels[model.LabelCritical]) + 0.5*float64(s.Labels[model.LabelAtRisk])
		s.RiskScore = round(weighted/float64(labelled), 3)
	}
	s.Status = status(s.RiskScore)

	best := 0
	for _, t := range model.AlertTypes {
		if n := s.AlertTypes[t]; n > best {
			best, s.TopAlertType = n, t
		}
	}
	if s.Alerts > 0 {
		critical := float64(s.Severities[model.SeverityCritical])
		total := float64(s.Alerts)
		s.CriticalAlertPct = round(critical/total*100, 1)
		switch {
		case critical > 0.2*total:
			s.AlertRisk = model.SeverityHigh
		case critical > 0.1*total:
			s.AlertRisk = model.SeverityMedium
		}
	}
	return s
}

func severityScore(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return 100
	case model.SeverityHigh:
		return 80
	case model.SeverityMedium:
		return 60
	}
	return 40
}

// valueScore tiers revenue; enterprise accounts get a boost.
func valueScore(mrr float64, seg model.Segment) float64 {
	var v float64
	switch {
	case mrr >= 50000:
		v = 100
	case mrr >= 20000:
		v = 85
	case mrr >= 10000:
		v = 70
	case mrr >= 5000:
		v = 55
	default:
		v = 40
	}
	if seg == model.SegmentEnterprise {
		v += 15
	}
	return math.Min(100, v)
}

// timeSensitivity starts from the urgency of the top action and grows with
// alert age. Payment and churn alerts are boosted.
func timeSensitivity(a model.Alert, at time.Time) float64 {
	v := 50.0
	if len(a.Actions) > 0 {
		switch a.Actions[0].Urgency {
		case model.UrgencyImmediate:
			v = 100
		case model.UrgencyWithin24h:
			v = 70
		}
	}
	if !a.CreatedAt.IsZero() {
		switch age := at.Sub(a.CreatedAt); {
		case age >= 24*time.Hour:
			v += 20
		case age >= 12*time.Hour:
			v += 15
		case age >= 6*time.Hour:
			v += 10
		}
	}
	switch a.Type {
	case model.AlertPaymentRisk:
		v += 25
	case model.AlertChurnRisk:
		v += 20
	}
	return math.Min(100, v)
}

func (r *Ranker) businessImpact(a model.Alert, c model.Customer, snap *model.HealthSnapshot, at time.Time) float64 {
	v := 50.0
	switch a.Type {
	case model.AlertSupportOverload:
		v = 95
	case model.AlertChurnRisk, model.AlertPaymentRisk, model.AlertUsageDecline, model.AlertExpansionOpportunity:
		v = 80
	}
	if snap != nil {
		if support, ok := snap.Score(model.DimSupport); ok {
			switch tickets := support.Inputs["weighted_tickets"]; {
			case tickets >= 5:
				v += 15
			case tickets >= 3:
				v += 10
			}
		}
	}
	if r.p.TenureMonths > 0 && c.ContractAgeDays(at) >= float64(r.p.TenureMonths)*30 {
		v += 10
	}
	return math.Min(100, v)
}

func tier(priority float64) model.QueueTier {
	switch {
	case priority >= 90:
		return model.TierUrgent
	case priority >= 75:
		return model.TierHigh
	case priority >= 60:
		return model.TierMedium
	}
	return model.TierLow
}

func queueHealth(n int) string {
	switch {
	case n < 10:
		return "good"
	case n < 20:
		return "busy"
	}
	return "overloaded"
}

func status(risk float64) model.PortfolioStatus {
	switch {
	case risk < 0.1:
		return model.PortfolioExcellent
	case risk < 0.25:
		return model.PortfolioGood
	case risk < 0.5:
		return model.PortfolioModerateRisk
	}
	return model.PortfolioHighRisk
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
