package model

// ActionCategory groups templates.
type ActionCategory string

const (
	CategoryRetention  ActionCategory = "retention"
	CategoryEngagement ActionCategory = "engagement"
	CategoryExpansion  ActionCategory = "expansion"
	CategorySupport    ActionCategory = "support"
)

// Effort is the operator cost of an action.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Rank returns 1 for low effort up to 3 for high; unknown is treated as highest.
func (e Effort) Rank() int {
	switch e {
	case EffortLow:
		return 1
	case EffortMedium:
		return 2
	case EffortHigh:
		return 3
	}
	return 4
}

// Urgency is derived from alert severity and account value.
type Urgency string

const (
	UrgencyImmediate  Urgency = "immediate"
	UrgencyWithin24h  Urgency = "within_24h"
	UrgencyWithinWeek Urgency = "within_week"
)

// Rank returns 1 for the most urgent.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyImmediate:
		return 1
	case UrgencyWithin24h:
		return 2
	}
	return 3
}

// ActionTemplate is a read-only catalog entry.
type ActionTemplate struct {
	ID          string         `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Category    ActionCategory `json:"category" yaml:"category"`
	AlertTypes  []AlertType    `json:"alert_types" yaml:"alert_types"`
	// Severities empty means the template applies to any severity.
	Severities  []Severity `json:"severities" yaml:"severities"`
	Effort      Effort     `json:"effort" yaml:"effort"`
	SuccessRate float64    `json:"success_rate" yaml:"success_rate"`
	Timeline    string     `json:"timeline" yaml:"timeline"`
	Impact      string     `json:"impact" yaml:"impact"`
}

// ActionRecommendation is a template applied to one alert of one customer.
type ActionRecommendation struct {
	CustomerID  string         `json:"customer_id"`
	AlertID     string         `json:"alert_id"`
	TemplateID  string         `json:"template_id"`
	Title       string         `json:"title"`
	Category    ActionCategory `json:"category"`
	Urgency     Urgency        `json:"urgency"`
	Effort      Effort         `json:"effort"`
	SuccessRate float64        `json:"success_rate"`
	Impact      string         `json:"impact"`
	Rank        int            `json:"rank"`
}
