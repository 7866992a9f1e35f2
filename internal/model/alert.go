package model

import "time"

// AlertType enumerates the alerts the engine can raise.
type AlertType string

const (
	AlertChurnRisk            AlertType = "churn_risk"
	AlertEngagementRisk       AlertType = "engagement_risk"
	AlertPaymentRisk          AlertType = "payment_risk"
	AlertUsageDecline         AlertType = "usage_decline"
	AlertSupportOverload      AlertType = "support_overload"
	AlertOnboardingIncomplete AlertType = "onboarding_incomplete"
	AlertExpansionOpportunity AlertType = "expansion_opportunity"
)

// AlertTypes lists every known alert type.
var AlertTypes = []AlertType{
	AlertChurnRisk, AlertEngagementRisk, AlertPaymentRisk, AlertUsageDecline,
	AlertSupportOverload, AlertOnboardingIncomplete, AlertExpansionOpportunity,
}

// Severity orders alerts. Info is used for opportunities.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordinal for comparisons; unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	}
	return 0
}

// AlertKind separates risks from opportunities.
type AlertKind string

const (
	KindRisk        AlertKind = "risk"
	KindOpportunity AlertKind = "opportunity"
)

// AlertStatus is mutated by the action-tracking side; the engine only creates open alerts.
type AlertStatus string

const (
	StatusOpen         AlertStatus = "open"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusDismissed    AlertStatus = "dismissed"
)

// Trigger records the metric and threshold behind an alert.
type Trigger struct {
	Rule      string  `json:"rule"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Alert is one risk or opportunity raised for a customer.
type Alert struct {
	ID         string                 `json:"id"`
	CustomerID string                 `json:"customer_id"`
	Type       AlertType              `json:"type"`
	Kind       AlertKind              `json:"kind"`
	Severity   Severity               `json:"severity"`
	Message    string                 `json:"message"`
	Triggers   []Trigger              `json:"triggers"`
	Actions    []ActionRecommendation `json:"actions"`
	CreatedAt  time.Time              `json:"created_at"`
	Status     AlertStatus            `json:"status"`
}
