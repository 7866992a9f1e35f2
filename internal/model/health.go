package model

import "time"

// Dimension names one facet of customer health.
type Dimension string

const (
	DimUsage        Dimension = "usage"
	DimEngagement   Dimension = "engagement"
	DimSupport      Dimension = "support"
	DimPayment      Dimension = "payment"
	DimAdoption     Dimension = "adoption"
	DimSatisfaction Dimension = "satisfaction"
	DimLifecycle    Dimension = "lifecycle"
	DimValue        Dimension = "value"
)

// Dimensions is the canonical dimension order used by breakdowns and weight profiles.
var Dimensions = []Dimension{
	DimUsage, DimEngagement, DimSupport, DimPayment,
	DimAdoption, DimSatisfaction, DimLifecycle, DimValue,
}

// IsDimension reports whether d is one of the known dimensions.
func IsDimension(d Dimension) bool {
	for _, k := range Dimensions {
		if k == d {
			return true
		}
	}
	return false
}

// DimensionScore is one calculator's result.
type DimensionScore struct {
	Dimension  Dimension          `json:"dimension"`
	Value      float64            `json:"value"`
	Confidence float64            `json:"confidence"`
	Inputs     map[string]float64 `json:"inputs,omitempty"`
	Missing    []string           `json:"missing,omitempty"`
}

// DimensionWeight is one entry of a weight profile.
type DimensionWeight struct {
	Dimension Dimension `json:"dimension"`
	Weight    float64   `json:"weight"`
}

// WeightProfile is an ordered weighting over all dimensions.
type WeightProfile struct {
	Segment Segment           `json:"segment"`
	Weights []DimensionWeight `json:"weights"`
}

// Weight returns the weight of d, or 0 when d is not in the profile.
func (p WeightProfile) Weight(d Dimension) float64 {
	for _, w := range p.Weights {
		if w.Dimension == d {
			return w.Weight
		}
	}
	return 0
}

// RiskLabel is the classifier output.
type RiskLabel string

const (
	LabelExcellent RiskLabel = "excellent"
	LabelGood      RiskLabel = "good"
	LabelAtRisk    RiskLabel = "at_risk"
	LabelCritical  RiskLabel = "critical"
)

// HealthSnapshot is an immutable, timestamped health computation.
type HealthSnapshot struct {
	ID         string           `json:"id"`
	CustomerID string           `json:"customer_id"`
	Overall    float64          `json:"overall"`
	Confidence float64          `json:"confidence"`
	Label      RiskLabel        `json:"label"`
	Breakdown  []DimensionScore `json:"breakdown"`
	Profile    Segment          `json:"profile"`
	ComputedAt time.Time        `json:"computed_at"`
}

// Score returns the breakdown entry for d.
func (s *HealthSnapshot) Score(d Dimension) (DimensionScore, bool) {
	for _, ds := range s.Breakdown {
		if ds.Dimension == d {
			return ds, true
		}
	}
	return DimensionScore{}, false
}

// Direction is the trend direction.
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionDeclining Direction = "declining"
	DirectionStable    Direction = "stable"
)

// HealthTrend is derived from a customer's snapshot history.
// Change30d is nil when no snapshot falls inside the comparison window.
type HealthTrend struct {
	CustomerID    string    `json:"customer_id"`
	Direction     Direction `json:"direction"`
	Change30d     *float64  `json:"change_30d"`
	Forecast30d   float64   `json:"forecast_30d"`
	ForecastBasis int       `json:"forecast_basis"`
}
