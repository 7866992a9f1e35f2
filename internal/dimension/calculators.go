package dimension

import (
	"math"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"
)

// usageCalc scores session frequency and duration against configured targets.
type usageCalc struct{ p config.UsageParams }

func (c *usageCalc) Dimension() model.Dimension { return model.DimUsage }

func (c *usageCalc) Compute(w *model.MetricWindow, _ Env) model.DimensionScore {
	t := newTally(model.DimUsage)
	sessions, _ := t.take("session_count", w.Usage.SessionCount)
	minutes, _ := t.take("avg_session_minutes", w.Usage.AvgSessionMinutes)
	if d := w.Usage.DaysSinceLastLogin; d != nil {
		t.context("days_since_last_login", *d)
	}

	v := c.p.SessionWeight*clip(sessions/c.p.TargetSessions) +
		(1-c.p.SessionWeight)*clip(minutes/c.p.TargetMinutes)
	return t.score(v)
}

// engagementCalc scores seat participation plus a capped onboarding bonus.
type engagementCalc struct{ p config.EngagementParams }

func (c *engagementCalc) Dimension() model.Dimension { return model.DimEngagement }

func (c *engagementCalc) Compute(w *model.MetricWindow, _ Env) model.DimensionScore {
	t := newTally(model.DimEngagement)
	e := w.Engagement

	var rate *float64
	if e.ActiveUsers != nil && e.LicensedUsers != nil && *e.LicensedUsers > 0 {
		r := clip(*e.ActiveUsers / *e.LicensedUsers)
		rate = &r
	}
	participation, _ := t.take("participation_rate", rate)
	onboarded, _ := t.flag("onboarding_completed", e.OnboardingCompleted)

	v := c.p.ParticipationWeight * participation
	if onboarded {
		v += c.p.OnboardingBonus
	}
	return t.score(math.Min(1, v))
}

// supportCalc subtracts a volume penalty and a resolution delay penalty from 1.
type supportCalc struct{ p config.SupportParams }

func (c *supportCalc) Dimension() model.Dimension { return model.DimSupport }

func (c *supportCalc) Compute(w *model.MetricWindow, _ Env) model.DimensionScore {
	t := newTally(model.DimSupport)
	s := w.Support

	volumePenalty := c.p.MaxVolumePenalty
	var weighted *float64
	if s.TicketsByPriority != nil {
		sum := 0.0
		for prio, n := range s.TicketsByPriority {
			if n > 0 {
				sum += c.p.PriorityWeights[prio] * float64(n)
			}
		}
		weighted = &sum
	}
	if vol, ok := t.take("weighted_tickets", weighted); ok {
		volumePenalty = math.Min(c.p.MaxVolumePenalty, c.p.PerTicketPenalty*vol)
	}

	// no tickets means there is nothing to resolve
	hours := s.AvgResolutionHours
	if hours == nil && s.TicketsByPriority != nil && s.TotalTickets() == 0 {
		zero := 0.0
		hours = &zero
	}
	delayPenalty := c.p.MaxDelayPenalty
	if h, ok := t.take("avg_resolution_hours", hours); ok {
		over := math.Max(0, h-c.p.TargetHours)
		delayPenalty = math.Min(c.p.MaxDelayPenalty, c.p.MaxDelayPenalty*over/c.p.DelayScaleHours)
	}

	return t.score(math.Max(0, 1-volumePenalty-delayPenalty))
}

// paymentCalc maps the payment status category, reduced by failed renewals.
type paymentCalc struct{ p config.PaymentParams }

func (c *paymentCalc) Dimension() model.Dimension { return model.DimPayment }

func (c *paymentCalc) Compute(w *model.MetricWindow, _ Env) model.DimensionScore {
	t := newTally(model.DimPayment)

	var mapped *float64
	if st := w.Payment.Status; st != nil {
		if v, ok := c.p.StatusScores[*st]; ok {
			mapped = &v
		}
	}
	v, _ := t.take("status_score", mapped)

	if n := w.Payment.FailedRenewals; n != nil && *n > 0 {
		t.context("failed_renewals", float64(*n))
		v -= c.p.RenewalPenalty * float64(*n)
	}
	return t.score(math.Max(0, v))
}

// adoptionCalc averages category usage ratios, favouring advanced and integration features.
type adoptionCalc struct{ p config.AdoptionParams }

func (c *adoptionCalc) Dimension() model.Dimension { return model.DimAdoption }

func (c *adoptionCalc) Compute(w *model.MetricWindow, _ Env) model.DimensionScore {
	t := newTally(model.DimAdoption)
	core, _ := t.take("core", w.Adoption.Core)
	adv, _ := t.take("advanced", w.Adoption.Advanced)
	integ, _ := t.take("integration", w.Adoption.Integration)

	total := c.p.CoreWeight + c.p.AdvancedWeight + c.p.IntegrationWeight
	v := (c.p.CoreWeight*clip(core) + c.p.AdvancedWeight*clip(adv) + c.p.IntegrationWeight*clip(integ)) / total
	return t.score(v)
}

// satisfactionCalc averages rescaled NPS and CSAT.
type satisfactionCalc struct{ p config.SatisfactionParams }

func (c *satisfactionCalc) Dimension() model.Dimension { return model.DimSatisfaction }

func (c *satisfactionCalc) Compute(w *model.MetricWindow, _ Env) model.DimensionScore {
	t := newTally(model.DimSatisfaction)

	npsScore := 0.0
	if nps, ok := t.take("nps", w.Satisfaction.NPS); ok {
		npsScore = clip(nps / c.p.NPSMax)
	}
	csatScore := 0.0
	if csat, ok := t.take("csat", w.Satisfaction.CSAT); ok {
		csatScore = clip((csat - c.p.CSATMin) / (c.p.CSATMax - c.p.CSATMin))
	}
	return t.score((npsScore + csatScore) / 2)
}

// lifecycleCalc rises with contract age until a plateau. Renewal risk is scored elsewhere.
type lifecycleCalc struct{ p config.LifecycleParams }

func (c *lifecycleCalc) Dimension() model.Dimension { return model.DimLifecycle }

func (c *lifecycleCalc) Compute(w *model.MetricWindow, _ Env) model.DimensionScore {
	t := newTally(model.DimLifecycle)
	age, hasAge := t.take("contract_age_days", w.Lifecycle.ContractAgeDays)

	// without a length the longest plateau applies
	plateau := c.p.MaxPlateauDays
	if length, ok := t.take("contract_length_days", w.Lifecycle.ContractLengthDays); ok && length > 0 {
		plateau = math.Min(c.p.MaxPlateauDays, c.p.PlateauFraction*length)
	}

	if !hasAge {
		return t.score(0)
	}
	return t.score(c.p.Floor + (1-c.p.Floor)*clip(math.Max(0, age)/plateau))
}

// valueCalc ranks MRR within the segment on a log scale and blends in the deal trend.
type valueCalc struct{ p config.ValueParams }

func (c *valueCalc) Dimension() model.Dimension { return model.DimValue }

func (c *valueCalc) Compute(w *model.MetricWindow, env Env) model.DimensionScore {
	t := newTally(model.DimValue)

	position := 0.0
	if mrr, ok := t.take("mrr", w.Value.MRR); ok {
		position = logPosition(math.Max(0, mrr), env.Peers)
		t.context("segment_peers", float64(env.Peers.Count))
	}
	trendScore := 0.0
	if trend, ok := t.take("deal_trend", w.Value.DealTrend); ok {
		trendScore = (math.Max(-1, math.Min(1, trend)) + 1) / 2
	}
	return t.score(c.p.RankWeight*position + (1-c.p.RankWeight)*trendScore)
}

// logPosition places mrr between the segment min and max on a log1p scale.
// A degenerate population yields the midpoint.
func logPosition(mrr float64, p Population) float64 {
	lo, hi := math.Log1p(p.Min), math.Log1p(p.Max)
	if p.Count < 2 || hi-lo < 1e-12 {
		return 0.5
	}
	return clip((math.Log1p(mrr) - lo) / (hi - lo))
}
