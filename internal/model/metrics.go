package model

import "time"

// TicketPriority is the priority of a support ticket.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// MetricWindow is the windowed aggregate for one customer.
// A nil field means the raw input was absent for the window.
type MetricWindow struct {
	CustomerID   string              `json:"customer_id"`
	Start        time.Time           `json:"start"`
	End          time.Time           `json:"end"`
	Usage        UsageMetrics        `json:"usage"`
	Engagement   EngagementMetrics   `json:"engagement"`
	Support      SupportMetrics      `json:"support"`
	Payment      PaymentMetrics      `json:"payment"`
	Adoption     AdoptionMetrics     `json:"adoption"`
	Satisfaction SatisfactionMetrics `json:"satisfaction"`
	Lifecycle    LifecycleMetrics    `json:"lifecycle"`
	Value        ValueMetrics        `json:"value"`
}

type UsageMetrics struct {
	SessionCount       *float64 `json:"session_count,omitempty"`
	AvgSessionMinutes  *float64 `json:"avg_session_minutes,omitempty"`
	DaysSinceLastLogin *float64 `json:"days_since_last_login,omitempty"`
}

type EngagementMetrics struct {
	ActiveUsers         *float64 `json:"active_users,omitempty"`
	LicensedUsers       *float64 `json:"licensed_users,omitempty"`
	OnboardingCompleted *bool    `json:"onboarding_completed,omitempty"`
}

type SupportMetrics struct {
	TicketsByPriority  map[TicketPriority]int `json:"tickets_by_priority,omitempty"`
	AvgResolutionHours *float64               `json:"avg_resolution_hours,omitempty"`
}

// TotalTickets sums tickets across priorities.
func (s SupportMetrics) TotalTickets() int {
	n := 0
	for _, c := range s.TicketsByPriority {
		n += c
	}
	return n
}

type PaymentMetrics struct {
	Status         *PaymentStatus `json:"status,omitempty"`
	FailedRenewals *int           `json:"failed_renewals,omitempty"`
}

// AdoptionMetrics holds feature usage ratios per category, each in [0,1].
type AdoptionMetrics struct {
	Core        *float64 `json:"core,omitempty"`
	Advanced    *float64 `json:"advanced,omitempty"`
	Integration *float64 `json:"integration,omitempty"`
}

type SatisfactionMetrics struct {
	NPS  *float64 `json:"nps,omitempty"`
	CSAT *float64 `json:"csat,omitempty"`
}

type LifecycleMetrics struct {
	ContractAgeDays    *float64 `json:"contract_age_days,omitempty"`
	ContractLengthDays *float64 `json:"contract_length_days,omitempty"`
}

// ValueMetrics carries revenue. DealTrend is the relative MRR change, e.g. 0.1 for +10%.
type ValueMetrics struct {
	MRR       *float64 `json:"mrr,omitempty"`
	DealTrend *float64 `json:"deal_trend,omitempty"`
}
