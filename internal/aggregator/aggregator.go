// Package aggregator turns raw customer events into a windowed MetricWindow.
package aggregator

import (
	"math"
	"time"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"
)

// Aggregator builds metric windows with a fixed lookback and feature catalog size.
type Aggregator struct {
	lookback time.Duration
	features map[model.FeatureCategory]int
}

func New(cfg config.EngineConfig) *Aggregator {
	return &Aggregator{
		lookback: time.Duration(cfg.WindowDays) * 24 * time.Hour,
		features: cfg.Features,
	}
}

// Window returns the bundle's pre-aggregated window if present, otherwise
// aggregates its events for the window ending at end. Fields a supplied
// window leaves nil are taken from the customer record.
func (a *Aggregator) Window(b *model.MetricBundle, end time.Time) *model.MetricWindow {
	if b.Window != nil {
		w := *b.Window
		w.CustomerID = b.Customer.ID
		if w.End.IsZero() {
			w.End = end
			w.Start = end.Add(-a.lookback)
		}
		var rec model.MetricWindow
		commercial(&rec, b.Customer, w.End)
		fillCommercial(&w, &rec)
		return &w
	}
	return Aggregate(b.Customer, b.Events, b.Feeds, end, a.lookback, a.features)
}

// Aggregate computes the window [end-lookback, end]. Fields of undeclared feeds stay nil.
func Aggregate(c model.Customer, events []model.Event, feeds []model.Feed, end time.Time, lookback time.Duration, features map[model.FeatureCategory]int) *model.MetricWindow {
	start := end.Add(-lookback)
	declared := make(map[model.Feed]bool, len(feeds))
	for _, f := range feeds {
		declared[f] = true
	}

	w := &model.MetricWindow{CustomerID: c.ID, Start: start, End: end}
	commercial(w, c, end)

	var (
		sessions, minutes float64
		lastLogin         time.Time
		users             = make(map[string]struct{})
		tickets           = make(map[model.TicketPriority]int)
		resolvedHours     float64
		resolved          int
		nps, csat         mean
		used              = make(map[model.FeatureCategory]map[string]struct{})
		failedRenewals    int
	)

	for _, e := range events {
		if e.At.After(end) {
			continue
		}
		if e.Kind == model.EventSession && e.At.After(lastLogin) {
			lastLogin = e.At
		}
		if e.At.Before(start) {
			continue
		}
		switch e.Kind {
		case model.EventSession:
			sessions++
			minutes += e.Minutes
			if e.UserID != "" {
				users[e.UserID] = struct{}{}
			}
		case model.EventTicket:
			tickets[normalizePriority(e.Priority)]++
			if e.ResolutionHours != nil && *e.ResolutionHours >= 0 {
				resolvedHours += *e.ResolutionHours
				resolved++
			}
		case model.EventSurveyNPS:
			nps.add(e.Score)
		case model.EventSurveyCSAT:
			csat.add(e.Score)
		case model.EventFeature:
			if used[e.Category] == nil {
				used[e.Category] = make(map[string]struct{})
			}
			used[e.Category][e.Feature] = struct{}{}
		case model.EventRenewal:
			if !e.Succeeded {
				failedRenewals++
			}
		}
	}

	if declared[model.FeedSessions] {
		w.Usage.SessionCount = model.Float(sessions)
		avg := 0.0
		if sessions > 0 {
			avg = minutes / sessions
		}
		w.Usage.AvgSessionMinutes = model.Float(avg)
		switch {
		case !lastLogin.IsZero():
			w.Usage.DaysSinceLastLogin = model.Float(math.Floor(end.Sub(lastLogin).Hours() / 24))
		case !c.ContractStart.IsZero():
			// never logged in
			w.Usage.DaysSinceLastLogin = model.Float(c.ContractAgeDays(end))
		}
		w.Engagement.ActiveUsers = model.Float(float64(len(users)))
	}

	if declared[model.FeedTickets] {
		w.Support.TicketsByPriority = tickets
		total := 0
		for _, n := range tickets {
			total += n
		}
		switch {
		case resolved > 0:
			w.Support.AvgResolutionHours = model.Float(resolvedHours / float64(resolved))
		case total == 0:
			w.Support.AvgResolutionHours = model.Float(0)
		}
	}

	if declared[model.FeedSurveys] {
		w.Satisfaction.NPS = nps.value()
		w.Satisfaction.CSAT = csat.value()
	}

	if declared[model.FeedFeatures] {
		w.Adoption.Core = ratio(len(used[model.FeatureCore]), features[model.FeatureCore])
		w.Adoption.Advanced = ratio(len(used[model.FeatureAdvanced]), features[model.FeatureAdvanced])
		w.Adoption.Integration = ratio(len(used[model.FeatureIntegration]), features[model.FeatureIntegration])
	}

	if declared[model.FeedRenewals] {
		w.Payment.FailedRenewals = model.Int(failedRenewals)
	}
	return w
}

// commercial fills the fields that come from the customer record.
func commercial(w *model.MetricWindow, c model.Customer, end time.Time) {
	if c.Seats > 0 {
		w.Engagement.LicensedUsers = model.Float(float64(c.Seats))
	}
	w.Engagement.OnboardingCompleted = c.OnboardingCompleted

	if c.PaymentStatus != "" {
		s := c.PaymentStatus
		w.Payment.Status = &s
	}

	if !c.ContractStart.IsZero() {
		w.Lifecycle.ContractAgeDays = model.Float(c.ContractAgeDays(end))
	}
	if c.ContractMonths > 0 {
		days := float64(c.ContractMonths) * 30
		if !c.ContractStart.IsZero() {
			days = math.Floor(c.ContractStart.AddDate(0, c.ContractMonths, 0).Sub(c.ContractStart).Hours() / 24)
		}
		w.Lifecycle.ContractLengthDays = model.Float(days)
	}

	if c.MRR >= 0 && !math.IsNaN(c.MRR) {
		w.Value.MRR = model.Float(c.MRR)
	}
	if c.PreviousMRR != nil && *c.PreviousMRR > 0 {
		w.Value.DealTrend = model.Float((c.MRR - *c.PreviousMRR) / *c.PreviousMRR)
	}
}

// fillCommercial copies record-derived fields into w where w has none.
func fillCommercial(w, rec *model.MetricWindow) {
	fill(&w.Engagement.LicensedUsers, rec.Engagement.LicensedUsers)
	if w.Engagement.OnboardingCompleted == nil {
		w.Engagement.OnboardingCompleted = rec.Engagement.OnboardingCompleted
	}
	if w.Payment.Status == nil {
		w.Payment.Status = rec.Payment.Status
	}
	fill(&w.Lifecycle.ContractAgeDays, rec.Lifecycle.ContractAgeDays)
	fill(&w.Lifecycle.ContractLengthDays, rec.Lifecycle.ContractLengthDays)
	fill(&w.Value.MRR, rec.Value.MRR)
	fill(&w.Value.DealTrend, rec.Value.DealTrend)
}

func fill(dst **float64, src *float64) {
	if *dst == nil {
		*dst = src
	}
}

func normalizePriority(p model.TicketPriority) model.TicketPriority {
	switch p {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
		return p
	}
	return model.PriorityMedium
}

func ratio(used, available int) *float64 {
	if available <= 0 {
		return nil
	}
	return model.Float(math.Min(1, float64(used)/float64(available)))
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.n++
}

// value is nil when nothing was recorded.
func (m mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	return model.Float(m.sum / float64(m.n))
}
