package model

import "time"

// CustomerStatus is the outcome of one customer's pipeline in a run.
type CustomerStatus string

const (
	CustomerOK       CustomerStatus = "ok"
	CustomerDegraded CustomerStatus = "degraded"
	CustomerFailed   CustomerStatus = "failed"
)

// CustomerResult is the per-customer output of a run. When Stale is set,
// Snapshot is the latest previously stored snapshot.
type CustomerResult struct {
	CustomerID   string          `json:"customer_id"`
	Status       CustomerStatus  `json:"status"`
	Segment      Segment         `json:"segment"`
	Snapshot     *HealthSnapshot `json:"snapshot,omitempty"`
	Trend        *HealthTrend    `json:"trend,omitempty"`
	Alerts       []Alert         `json:"alerts,omitempty"`
	Suppressed   int             `json:"suppressed,omitempty"`
	Stale        bool            `json:"stale"`
	Error        string          `json:"error,omitempty"`
	CoverageGaps []string        `json:"coverage_gaps,omitempty"`
}

// RunReport summarizes one batch run.
type RunReport struct {
	ID            string           `json:"id"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
	Processed     int              `json:"processed"`
	Degraded      int              `json:"degraded"`
	Failed        int              `json:"failed"`
	AlertsEmitted int              `json:"alerts_emitted"`
	CoverageGaps  int              `json:"coverage_gaps"`
	Results       []CustomerResult `json:"results"`

	// Queue ranks this run's open alerts across customers, most pressing first.
	Queue     []QueueItem       `json:"queue,omitempty"`
	Portfolio *PortfolioSummary `json:"portfolio,omitempty"`
}

// Result returns the result for a customer id.
func (r *RunReport) Result(customerID string) (*CustomerResult, bool) {
	for i := range r.Results {
		if r.Results[i].CustomerID == customerID {
			return &r.Results[i], true
		}
	}
	return nil, false
}
