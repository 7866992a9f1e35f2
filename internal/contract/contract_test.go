package contract

import (
	"encoding/json"
	"testing"
	"time"

	"HealthSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result() model.CustomerResult {
	change := -0.1 + 0.0000001
	return model.CustomerResult{
		CustomerID: "acme",
		Status:     model.CustomerOK,
		Segment:    model.SegmentEnterprise,
		Snapshot: &model.HealthSnapshot{
			ID:         "snap-1",
			CustomerID: "acme",
			Overall:    0.1 + 0.2,
			Confidence: 0.875,
			Label:      model.LabelAtRisk,
			Profile:    model.SegmentEnterprise,
			ComputedAt: time.Date(2026, 4, 1, 6, 0, 0, 123, time.UTC),
			Breakdown: []model.DimensionScore{
				{Dimension: model.DimUsage, Value: 1.0 / 3.0, Confidence: 1},
				{Dimension: model.DimSatisfaction, Value: 0.375, Confidence: 0.5, Missing: []string{"nps"}},
			},
		},
		Trend: &model.HealthTrend{Direction: model.DirectionDeclining, Change30d: &change, Forecast30d: 0.2},
		Alerts: []model.Alert{{
			ID: "a1", Type: model.AlertChurnRisk, Kind: model.KindRisk, Severity: model.SeverityHigh, Message: "declining",
			Actions: []model.ActionRecommendation{
				{TemplateID: "urgent_call", Urgency: model.UrgencyImmediate, Rank: 1, SuccessRate: 0.7},
				{TemplateID: "retention_offer", Urgency: model.UrgencyImmediate, Rank: 2, SuccessRate: 0.55},
			},
		}},
	}
}

func TestEncode_Shape(t *testing.T) {
	data, err := Encode(result())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"customer_id", "health_score", "confidence", "label", "segment", "computed_at", "breakdown", "dimensions", "trend", "alerts", "stale"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, 0.375, raw["breakdown"].(map[string]any)["satisfaction"])
	alert := raw["alerts"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"urgent_call", "retention_offer"}, alert["actions"])
	assert.Len(t, alert["recommendations"], 2)
}

func TestRoundTrip(t *testing.T) {
	res := result()
	data, err := Encode(res)
	require.NoError(t, err)

	hr, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.Overall, hr.HealthScore, "floats survive exactly")
	assert.Equal(t, 1.0/3.0, hr.Breakdown[model.DimUsage])
	assert.Equal(t, *res.Trend.Change30d, *hr.Trend.Change30d)
	assert.True(t, res.Snapshot.ComputedAt.Equal(hr.ComputedAt))
	assert.Equal(t, []string{"nps"}, hr.Dimensions[1].Missing)

	again, err := json.Marshal(hr)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestTrendNullChange(t *testing.T) {
	res := result()
	res.Trend.Change30d = nil
	data, err := Encode(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"change_30d":null`)

	hr, err := Decode(data)
	require.NoError(t, err)
	assert.Nil(t, hr.Trend.Change30d)
}

func TestEncode_EmptyListsAreArrays(t *testing.T) {
	res := result()
	res.Alerts = nil
	res.Snapshot.Breakdown[0].Missing = nil
	data, err := Encode(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"alerts":[]`)
	assert.Contains(t, string(data), `"missing":[]`)
}

func TestEncode_NoSnapshot(t *testing.T) {
	_, err := Encode(model.CustomerResult{CustomerID: "x", Status: model.CustomerFailed})
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestDecode_Rejects(t *testing.T) {
	tests := map[string]string{
		"syntax":            `{`,
		"no customer":       `{"health_score":0.5}`,
		"score out of band": `{"customer_id":"a","health_score":1.5}`,
		"unknown dimension": `{"customer_id":"a","dimensions":[{"name":"karma","value":0.1}]}`,
		"bad severity":      `{"customer_id":"a","alerts":[{"id":"x","severity":"dire"}]}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			assert.Error(t, err)
		})
	}
}
