package model

import "time"

// Segment classifies a customer for weight selection.
type Segment string

const (
	SegmentEnterprise Segment = "enterprise"
	SegmentMidMarket  Segment = "mid_market"
	SegmentStartup    Segment = "startup"
)

// PaymentStatus is the billing state reported by the ingestion side.
type PaymentStatus string

const (
	PaymentCurrent PaymentStatus = "current"
	PaymentLate    PaymentStatus = "late"
	PaymentOverdue PaymentStatus = "overdue"
	PaymentFailed  PaymentStatus = "failed"
)

// Customer holds identity and commercial attributes.
type Customer struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Segment             Segment       `json:"segment"`
	ContractStart       time.Time     `json:"contract_start"`
	ContractMonths      int           `json:"contract_months"`
	MRR                 float64       `json:"mrr"`
	PreviousMRR         *float64      `json:"previous_mrr,omitempty"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	Seats               int           `json:"seats"`
	OnboardingCompleted *bool         `json:"onboarding_completed,omitempty"`
}

// ContractAgeDays returns whole days between contract start and at.
func (c *Customer) ContractAgeDays(at time.Time) float64 {
	if c.ContractStart.IsZero() || at.Before(c.ContractStart) {
		return 0
	}
	return float64(int(at.Sub(c.ContractStart).Hours() / 24))
}

// Float returns a pointer to v. Used to mark metric fields as present.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
