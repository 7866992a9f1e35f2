// Package risk labels health scores and turns snapshots into alerts.
package risk

import (
	"sort"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"
)

// Classifier maps an overall score to a label through validated bands.
type Classifier struct {
	bands []config.Band // ascending by Min
}

// NewClassifier rejects band sets that do not partition [0,1].
func NewClassifier(bands []config.Band) (*Classifier, error) {
	if err := config.ValidateBands(bands); err != nil {
		return nil, err
	}
	sorted := append([]config.Band(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	return &Classifier{bands: sorted}, nil
}

// Classify returns the label of the band containing score. Bands are
// half-open except the top one, which includes 1.
func (c *Classifier) Classify(score float64) model.RiskLabel {
	if score < 0 {
		return c.bands[0].Label
	}
	for _, b := range c.bands {
		if score >= b.Min && score < b.Max {
			return b.Label
		}
	}
	return c.bands[len(c.bands)-1].Label
}

// Band returns the band for label.
func (c *Classifier) Band(label model.RiskLabel) (config.Band, bool) {
	for _, b := range c.bands {
		if b.Label == label {
			return b, true
		}
	}
	return config.Band{}, false
}

// Matches returns every band containing score. Used to verify coverage.
func (c *Classifier) Matches(score float64) []model.RiskLabel {
	var out []model.RiskLabel
	for _, b := range c.bands {
		if score >= b.Min && (score < b.Max || (b.Max == 1 && score == 1)) {
			out = append(out, b.Label)
		}
	}
	return out
}
