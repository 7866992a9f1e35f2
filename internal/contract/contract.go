// Package contract defines the JSON document published for each scored customer.
package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"HealthSentinel/internal/model"
)

var ErrNoSnapshot = errors.New("contract: result has no snapshot")

// HealthReport is the external per-customer output.
type HealthReport struct {
	CustomerID  string                      `json:"customer_id"`
	HealthScore float64                     `json:"health_score"`
	Confidence  float64                     `json:"confidence"`
	Label       model.RiskLabel             `json:"label"`
	Segment     model.Segment               `json:"segment"`
	ComputedAt  time.Time                   `json:"computed_at"`
	Breakdown   map[model.Dimension]float64 `json:"breakdown"`
	Dimensions  []Dimension                 `json:"dimensions"`
	Trend       *Trend                      `json:"trend"`
	Alerts      []Alert                     `json:"alerts"`
	Stale       bool                        `json:"stale"`
}

type Dimension struct {
	Name       model.Dimension `json:"name"`
	Value      float64         `json:"value"`
	Confidence float64         `json:"confidence"`
	Missing    []string        `json:"missing"`
}

// Trend carries change_30d as null when there was no comparable snapshot.
type Trend struct {
	Direction   model.Direction `json:"direction"`
	Change30d   *float64        `json:"change_30d"`
	Forecast30d float64         `json:"forecast_30d"`
}

type Alert struct {
	ID              string                       `json:"id"`
	Type            model.AlertType              `json:"type"`
	Kind            model.AlertKind              `json:"kind"`
	Severity        model.Severity               `json:"severity"`
	Message         string                       `json:"message"`
	Actions         []string                     `json:"actions"`
	Recommendations []model.ActionRecommendation `json:"recommendations"`
}

// FromResult maps an engine result onto the contract.
func FromResult(res model.CustomerResult) (*HealthReport, error) {
	snap := res.Snapshot
	if snap == nil {
		return nil, fmt.Errorf("%s: %w", res.CustomerID, ErrNoSnapshot)
	}

	hr := &HealthReport{
		CustomerID:  res.CustomerID,
		HealthScore: snap.Overall,
		Confidence:  snap.Confidence,
		Label:       snap.Label,
		Segment:     snap.Profile,
		ComputedAt:  snap.ComputedAt,
		Breakdown:   make(map[model.Dimension]float64, len(snap.Breakdown)),
		Dimensions:  make([]Dimension, 0, len(snap.Breakdown)),
		Alerts:      make([]Alert, 0, len(res.Alerts)),
		Stale:       res.Stale,
	}
	for _, ds := range snap.Breakdown {
		hr.Breakdown[ds.Dimension] = ds.Value
		missing := ds.Missing
		if missing == nil {
			missing = []string{}
		}
		hr.Dimensions = append(hr.Dimensions, Dimension{
			Name:       ds.Dimension,
			Value:      ds.Value,
			Confidence: ds.Confidence,
			Missing:    missing,
		})
	}
	if res.Trend != nil {
		hr.Trend = &Trend{
			Direction:   res.Trend.Direction,
			Change30d:   res.Trend.Change30d,
			Forecast30d: res.Trend.Forecast30d,
		}
	}
	for _, a := range res.Alerts {
		ca := Alert{
			ID:              a.ID,
			Type:            a.Type,
			Kind:            a.Kind,
			Severity:        a.Severity,
			Message:         a.Message,
			Actions:         make([]string, 0, len(a.Actions)),
			Recommendations: a.Actions,
		}
		if ca.Recommendations == nil {
			ca.Recommendations = []model.ActionRecommendation{}
		}
		for _, rec := range a.Actions {
			ca.Actions = append(ca.Actions, rec.TemplateID)
		}
		hr.Alerts = append(hr.Alerts, ca)
	}
	return hr, nil
}

// Encode renders one result as contract JSON.
func Encode(res model.CustomerResult) ([]byte, error) {
	hr, err := FromResult(res)
	if err != nil {
		return nil, err
	}
	return json.Marshal(hr)
}

// Decode parses and validates contract JSON.
func Decode(data []byte) (*HealthReport, error) {
	var hr HealthReport
	if err := json.Unmarshal(data, &hr); err != nil {
		return nil, fmt.Errorf("decode health report: %w", err)
	}
	if err := hr.Validate(); err != nil {
		return nil, err
	}
	return &hr, nil
}

// Validate checks the invariants consumers rely on.
func (hr *HealthReport) Validate() error {
	if hr.CustomerID == "" {
		return fmt.Errorf("health report: customer_id is required")
	}
	if !unit(hr.HealthScore) || !unit(hr.Confidence) {
		return fmt.Errorf("health report %s: score or confidence outside [0,1]", hr.CustomerID)
	}
	for _, d := range hr.Dimensions {
		if !model.IsDimension(d.Name) {
			return fmt.Errorf("health report %s: unknown dimension %q", hr.CustomerID, d.Name)
		}
		if !unit(d.Value) || !unit(d.Confidence) {
			return fmt.Errorf("health report %s: dimension %s outside [0,1]", hr.CustomerID, d.Name)
		}
	}
	for _, a := range hr.Alerts {
		if a.Severity.Rank() == 0 {
			return fmt.Errorf("health report %s: alert %s has unknown severity %q", hr.CustomerID, a.ID, a.Severity)
		}
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
