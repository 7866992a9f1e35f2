package model

import "time"

// EventKind is the type of a raw activity record.
type EventKind string

const (
	EventSession    EventKind = "session"
	EventTicket     EventKind = "ticket"
	EventSurveyNPS  EventKind = "survey_nps"
	EventSurveyCSAT EventKind = "survey_csat"
	EventFeature    EventKind = "feature"
	EventRenewal    EventKind = "renewal"
)

// FeatureCategory groups product features for adoption.
type FeatureCategory string

const (
	FeatureCore        FeatureCategory = "core"
	FeatureAdvanced    FeatureCategory = "advanced"
	FeatureIntegration FeatureCategory = "integration"
)

// Event is a single raw record from the ingestion side.
type Event struct {
	Kind            EventKind       `json:"kind"`
	At              time.Time       `json:"at"`
	UserID          string          `json:"user_id,omitempty"`
	Minutes         float64         `json:"minutes,omitempty"`
	Priority        TicketPriority  `json:"priority,omitempty"`
	ResolutionHours *float64        `json:"resolution_hours,omitempty"`
	Score           float64         `json:"score,omitempty"`
	Category        FeatureCategory `json:"category,omitempty"`
	Feature         string          `json:"feature,omitempty"`
	Succeeded       bool            `json:"succeeded,omitempty"`
}

// Feed names a raw data stream the source declares as present for a customer.
type Feed string

const (
	FeedSessions Feed = "sessions"
	FeedTickets  Feed = "tickets"
	FeedSurveys  Feed = "surveys"
	FeedFeatures Feed = "features"
	FeedRenewals Feed = "renewals"
)

// MetricBundle is the per-customer input of one run. When Window is set
// it is used as-is; otherwise the window is aggregated from Events.
type MetricBundle struct {
	Customer Customer      `json:"customer"`
	Window   *MetricWindow `json:"window,omitempty"`
	Events   []Event       `json:"events,omitempty"`
	Feeds    []Feed        `json:"feeds,omitempty"`
}

// HasFeed reports whether f was declared.
func (b *MetricBundle) HasFeed(f Feed) bool {
	for _, x := range b.Feeds {
		if x == f {
			return true
		}
	}
	return false
}
