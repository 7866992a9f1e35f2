package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"HealthSentinel/internal/model"
)

// digestLimit caps the number of alert lines in one Telegram message.
const digestLimit = 20

var severityIcon = map[model.Severity]string{
	model.SeverityCritical: "🔴",
	model.SeverityHigh:     "🟠",
	model.SeverityMedium:   "🟡",
	model.SeverityLow:      "🔵",
	model.SeverityInfo:     "🟢",
}

var labelIcon = map[model.RiskLabel]string{
	model.LabelExcellent: "💚",
	model.LabelGood:      "🙂",
	model.LabelAtRisk:    "⚠️",
	model.LabelCritical:  "🚨",
}

type digestLine struct {
	customer string
	alert    model.Alert
}

// FormatRunDigest lists the alerts at or above floor raised in a run.
// It returns an empty string when there is nothing to report.
func FormatRunDigest(rep *model.RunReport, floor model.Severity) string {
	if rep == nil {
		return ""
	}
	return FormatAlertDigest(rep.Results, rep.FinishedAt, floor)
}

// FormatAlertDigest lists fresh alerts at or above floor, most severe first.
func FormatAlertDigest(results []model.CustomerResult, at time.Time, floor model.Severity) string {
	var lines []digestLine
	for _, res := range results {
		if res.Stale {
			continue
		}
		for _, a := range res.Alerts {
			if a.Severity.Rank() >= floor.Rank() {
				lines = append(lines, digestLine{customer: res.CustomerID, alert: a})
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].alert.Severity.Rank() > lines[j].alert.Severity.Rank()
	})

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🩺 <b>HealthSentinel alerts</b> | %s\n\n", at.Format("2006-01-02 15:04")))
	for i, l := range lines {
		if i == digestLimit {
			b.WriteString(fmt.Sprintf("\n… and %d more\n", len(lines)-digestLimit))
			break
		}
		b.WriteString(fmt.Sprintf("%s <b>%s</b> %s (%s)\n",
			severityIcon[l.alert.Severity], html.EscapeString(l.customer), l.alert.Type, l.alert.Severity))
		if l.alert.Message != "" {
			b.WriteString(fmt.Sprintf("   %s\n", html.EscapeString(l.alert.Message)))
		}
		if len(l.alert.Actions) > 0 {
			top := l.alert.Actions[0]
			b.WriteString(fmt.Sprintf("   ➡️ %s [%s]\n", html.EscapeString(top.Title), top.Urgency))
		}
	}
	return b.String()
}

// FormatStatus summarizes the last run.
func FormatStatus(rep *model.RunReport, running bool) string {
	var b strings.Builder
	b.WriteString("📦 <b>HealthSentinel status</b>\n\n")
	if running {
		b.WriteString("A run is in progress.\n")
	}
	if rep == nil {
		b.WriteString("No run has completed yet.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Last run: %s\n", rep.FinishedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Duration: %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)))
	b.WriteString(fmt.Sprintf("Processed: %d | Degraded: %d | Failed: %d\n", rep.Processed, rep.Degraded, rep.Failed))
	b.WriteString(fmt.Sprintf("Alerts: %d\n", rep.AlertsEmitted))
	if rep.CoverageGaps > 0 {
		b.WriteString(fmt.Sprintf("Alerts without a playbook: %d\n", rep.CoverageGaps))
	}

	counts := make(map[model.RiskLabel]int)
	for _, res := range rep.Results {
		if res.Snapshot != nil {
			counts[res.Snapshot.Label]++
		}
	}
	if len(counts) > 0 {
		b.WriteString("\n")
		for _, l := range []model.RiskLabel{model.LabelExcellent, model.LabelGood, model.LabelAtRisk, model.LabelCritical} {
			b.WriteString(fmt.Sprintf("%s %s: %d\n", labelIcon[l], l, counts[l]))
		}
	}
	if p := rep.Portfolio; p != nil {
		b.WriteString(fmt.Sprintf("\nPortfolio: %s (risk %.2f)\n", p.Status, p.RiskScore))
		b.WriteString(fmt.Sprintf("Revenue at risk: %.0f\n", p.RevenueAtRisk))
		b.WriteString(fmt.Sprintf("Queue: %d (%s)\n", p.QueueLength, p.QueueHealth))
	}
	return b.String()
}

// FormatQueue renders the first limit items of the last run's operator queue.
func FormatQueue(rep *model.RunReport, limit int) string {
	if rep == nil {
		return "No run has completed yet."
	}
	if len(rep.Queue) == 0 {
		return "✅ Queue is empty."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Alert queue</b> | %s\n\n", rep.FinishedAt.Format("2006-01-02 15:04")))
	for i, q := range rep.Queue {
		if i == limit {
			b.WriteString(fmt.Sprintf("... and %d more\n", len(rep.Queue)-limit))
			break
		}
		b.WriteString(fmt.Sprintf("%d. %s <b>%s</b> %s [%s] %.1f\n",
			q.Position, severityIcon[q.Severity], html.EscapeString(q.CustomerID), q.Type, q.Tier, q.Priority))
		if q.TopAction != "" {
			b.WriteString(fmt.Sprintf("   ➡️ %s\n", html.EscapeString(q.TopAction)))
		}
	}
	return b.String()
}

// FormatCustomer renders one customer's latest snapshot and open alerts.
func FormatCustomer(snap *model.HealthSnapshot, alerts []model.Alert) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n\n", labelIcon[snap.Label], html.EscapeString(snap.CustomerID), snap.ComputedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Health: %.2f (%s)\n", snap.Overall, snap.Label))
	b.WriteString(fmt.Sprintf("Confidence: %.0f%%\n", snap.Confidence*100))
	b.WriteString(fmt.Sprintf("Profile: %s\n\n", snap.Profile))

	b.WriteString("📈 <b>Dimensions:</b>\n")
	for _, ds := range snap.Breakdown {
		line := fmt.Sprintf("  %s: %.2f", ds.Dimension, ds.Value)
		if len(ds.Missing) > 0 {
			line += fmt.Sprintf(" (missing %s)", strings.Join(ds.Missing, ", "))
		}
		b.WriteString(line + "\n")
	}

	if len(alerts) > 0 {
		b.WriteString("\n🔔 <b>Recent alerts:</b>\n")
		for _, a := range alerts {
			b.WriteString(fmt.Sprintf("  %s %s (%s) %s\n",
				severityIcon[a.Severity], a.Type, a.Severity, a.CreatedAt.Format("01-02 15:04")))
		}
	}
	return b.String()
}
