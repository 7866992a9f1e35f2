// Package action maps alerts to ranked next-best actions from a static template catalog.
package action

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"HealthSentinel/internal/config"
	"HealthSentinel/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is an immutable template table indexed by alert type.
type Catalog struct {
	templates []model.ActionTemplate
	byType    map[model.AlertType][]model.ActionTemplate
}

// LoadCatalog reads the catalog at path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Templates []model.ActionTemplate `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, fmt.Errorf("catalog has no templates")
	}

	c := &Catalog{templates: doc.Templates, byType: make(map[model.AlertType][]model.ActionTemplate)}
	seen := make(map[string]bool)
	for _, t := range doc.Templates {
		if err := validateTemplate(t); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("template %q is duplicated", t.ID)
		}
		seen[t.ID] = true
		for _, at := range t.AlertTypes {
			c.byType[at] = append(c.byType[at], t)
		}
	}
	return c, nil
}

func validateTemplate(t model.ActionTemplate) error {
	if t.ID == "" || t.Title == "" {
		return fmt.Errorf("template needs id and title: %+v", t)
	}
	switch t.Category {
	case model.CategoryRetention, model.CategoryEngagement, model.CategoryExpansion, model.CategorySupport:
	default:
		return fmt.Errorf("template %s: unknown category %q", t.ID, t.Category)
	}
	if t.Effort.Rank() > 3 {
		return fmt.Errorf("template %s: unknown effort %q", t.ID, t.Effort)
	}
	if t.SuccessRate < 0 || t.SuccessRate > 1 {
		return fmt.Errorf("template %s: success_rate %v not in [0,1]", t.ID, t.SuccessRate)
	}
	if len(t.AlertTypes) == 0 {
		return fmt.Errorf("template %s: no alert types", t.ID)
	}
	for _, at := range t.AlertTypes {
		if !knownType(at) {
			return fmt.Errorf("template %s: unknown alert type %q", t.ID, at)
		}
	}
	for _, s := range t.Severities {
		if s.Rank() == 0 {
			return fmt.Errorf("template %s: unknown severity %q", t.ID, s)
		}
	}
	return nil
}

func knownType(at model.AlertType) bool {
	for _, k := range model.AlertTypes {
		if k == at {
			return true
		}
	}
	return false
}

// Templates returns all templates in catalog order.
func (c *Catalog) Templates() []model.ActionTemplate { return c.templates }

// Uncovered lists alert types with no template at all.
func (c *Catalog) Uncovered() []model.AlertType {
	var out []model.AlertType
	for _, at := range model.AlertTypes {
		if len(c.byType[at]) == 0 {
			out = append(out, at)
		}
	}
	return out
}

type candidate struct {
	t           model.ActionTemplate
	specificity int
}

// candidates returns matching templates, best first.
func (c *Catalog) candidates(at model.AlertType, sev model.Severity) []candidate {
	var out []candidate
	for _, t := range c.byType[at] {
		match := 0
		if len(t.Severities) == 0 {
			match = 1
		}
		for _, s := range t.Severities {
			if s == sev {
				match = 2
				break
			}
		}
		if match > 0 {
			out = append(out, candidate{t: t, specificity: match})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.specificity != b.specificity {
			return a.specificity > b.specificity
		}
		if a.t.SuccessRate != b.t.SuccessRate {
			return a.t.SuccessRate > b.t.SuccessRate
		}
		if a.t.Effort.Rank() != b.t.Effort.Rank() {
			return a.t.Effort.Rank() < b.t.Effort.Rank()
		}
		return a.t.ID < b.t.ID
	})
	return out
}

// Recommender attaches ranked recommendations to alerts.
type Recommender struct {
	catalog      *Catalog
	topN         int
	highValueMRR float64
}

func NewRecommender(c *Catalog, p config.ActionParams) *Recommender {
	return &Recommender{catalog: c, topN: p.TopN, highValueMRR: p.HighValueMRR}
}

// Urgency derives urgency from severity, one step higher for high-value accounts.
func (r *Recommender) Urgency(sev model.Severity, mrr float64) model.Urgency {
	u := model.UrgencyWithinWeek
	switch sev {
	case model.SeverityCritical:
		u = model.UrgencyImmediate
	case model.SeverityHigh:
		u = model.UrgencyWithin24h
	}
	if r.highValueMRR > 0 && mrr >= r.highValueMRR {
		switch u {
		case model.UrgencyWithinWeek:
			u = model.UrgencyWithin24h
		case model.UrgencyWithin24h:
			u = model.UrgencyImmediate
		}
	}
	return u
}

// Recommend fills Actions on every alert in place and ranks them across the
// customer's whole set. It returns "type/severity" for alerts without any template.
func (r *Recommender) Recommend(customer model.Customer, alerts []model.Alert) []string {
	type slot struct {
		alert, pos int
		sev        int
	}
	var (
		gaps  []string
		order []slot
	)
	for ai := range alerts {
		a := &alerts[ai]
		cands := r.catalog.candidates(a.Type, a.Severity)
		if len(cands) == 0 {
			a.Actions = []model.ActionRecommendation{}
			gaps = append(gaps, fmt.Sprintf("%s/%s", a.Type, a.Severity))
			continue
		}
		if len(cands) > r.topN {
			cands = cands[:r.topN]
		}
		urgency := r.Urgency(a.Severity, customer.MRR)
		a.Actions = make([]model.ActionRecommendation, len(cands))
		for i, c := range cands {
			a.Actions[i] = model.ActionRecommendation{
				CustomerID:  customer.ID,
				AlertID:     a.ID,
				TemplateID:  c.t.ID,
				Title:       c.t.Title,
				Category:    c.t.Category,
				Urgency:     urgency,
				Effort:      c.t.Effort,
				SuccessRate: c.t.SuccessRate,
				Impact:      c.t.Impact,
			}
			order = append(order, slot{alert: ai, pos: i, sev: a.Severity.Rank()})
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		x, y := order[i], order[j]
		ux := alerts[x.alert].Actions[x.pos].Urgency.Rank()
		uy := alerts[y.alert].Actions[y.pos].Urgency.Rank()
		if ux != uy {
			return ux < uy
		}
		if x.sev != y.sev {
			return x.sev > y.sev
		}
		return x.pos < y.pos
	})
	for rank, s := range order {
		alerts[s.alert].Actions[s.pos].Rank = rank + 1
	}
	return gaps
}
