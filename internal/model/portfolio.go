package model

// QueueTier buckets a queue item by priority score.
type QueueTier string

const (
	TierUrgent QueueTier = "urgent"
	TierHigh   QueueTier = "high"
	TierMedium QueueTier = "medium"
	TierLow    QueueTier = "low"
)

// QueueItem is one open alert in the cross-customer operator queue.
// Priority, TimeSensitivity and BusinessImpact are on a 0-100 scale.
type QueueItem struct {
	Position        int       `json:"position"`
	AlertID         string    `json:"alert_id"`
	CustomerID      string    `json:"customer_id"`
	Type            AlertType `json:"type"`
	Severity        Severity  `json:"severity"`
	Priority        float64   `json:"priority"`
	Tier            QueueTier `json:"tier"`
	TimeSensitivity float64   `json:"time_sensitivity"`
	BusinessImpact  float64   `json:"business_impact"`
	MRR             float64   `json:"mrr"`
	TopAction       string    `json:"top_action,omitempty"`
}

// PortfolioStatus grades the whole customer base.
type PortfolioStatus string

const (
	PortfolioExcellent    PortfolioStatus = "excellent"
	PortfolioGood         PortfolioStatus = "good"
	PortfolioModerateRisk PortfolioStatus = "moderate_risk"
	PortfolioHighRisk     PortfolioStatus = "high_risk"
)

// PortfolioSummary aggregates one run across customers.
type PortfolioSummary struct {
	Customers int               `json:"customers"`
	Labels    map[RiskLabel]int `json:"labels"`
	Stale     int               `json:"stale"`
	Unscored  int               `json:"unscored"`

	// RiskScore weighs critical customers 1 and at-risk customers 0.5.
	RiskScore float64         `json:"risk_score"`
	Status    PortfolioStatus `json:"status"`

	Alerts           int               `json:"alerts"`
	AlertTypes       map[AlertType]int `json:"alert_types"`
	Severities       map[Severity]int  `json:"severities"`
	TopAlertType     AlertType         `json:"top_alert_type,omitempty"`
	CriticalAlertPct float64           `json:"critical_alert_pct"`
	AlertRisk        Severity          `json:"alert_risk"`
	RevenueAtRisk    float64           `json:"revenue_at_risk"`
	ExpansionReady   int               `json:"expansion_ready"`

	QueueLength int    `json:"queue_length"`
	QueueHealth string `json:"queue_health"`
}
