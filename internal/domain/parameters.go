package domain

import (
	"fmt"
	"strings"
)

// Parameter is a named criterion the judge model scores.
type Parameter struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Category identifies a parameter catalog.
type Category string

const (
	CategoryRAI     Category = "rai"
	CategoryContent Category = "content"
)

var raiCatalog = []Parameter{
	{Key: "fairness", Label: "Fairness"},
	{Key: "transparency", Label: "Transparency"},
	{Key: "accountability", Label: "Accountability"},
	{Key: "privacy", Label: "Privacy"},
	{Key: "robustness", Label: "Robustness"},
	{Key: "human_centric_values", Label: "Human-Centric Values"},
	{Key: "sustainability", Label: "Sustainability"},
}

var contentCatalog = []Parameter{
	{Key: "groundedness", Label: "Groundedness"},
	{Key: "clarity", Label: "Clarity"},
	{Key: "factuality", Label: "Factuality"},
	{Key: "genuinity", Label: "Genuinity"},
	{Key: "explainability", Label: "Explainability"},
}

// Categories lists the catalogs in selection order.
func Categories() []Category { return []Category{CategoryRAI, CategoryContent} }

// Catalog returns a copy of the catalog for c, or nil for an unknown category.
func Catalog(c Category) []Parameter {
	switch c {
	case CategoryRAI:
		return append([]Parameter(nil), raiCatalog...)
	case CategoryContent:
		return append([]Parameter(nil), contentCatalog...)
	default:
		return nil
	}
}

// CategoryLabel is the display name of a catalog.
func CategoryLabel(c Category) string {
	switch c {
	case CategoryRAI:
		return "RAI Parameters"
	case CategoryContent:
		return "Content Scrutiny Parameters"
	default:
		return string(c)
	}
}

// LookupParameter finds a parameter by key in any catalog.
func LookupParameter(key string) (Parameter, Category, bool) {
	for _, c := range Categories() {
		for _, p := range Catalog(c) {
			if p.Key == key {
				return p, c, true
			}
		}
	}
	return Parameter{}, "", false
}

// Selection is an ordered, key-unique set of parameters.
type Selection []Parameter

// Keys returns the parameter keys in order.
func (s Selection) Keys() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Key
	}
	return out
}

// Labels returns the display labels in order.
func (s Selection) Labels() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Label
	}
	return out
}

// SelectionSpec describes which catalogs are enabled and, per catalog, an
// optional subset of keys. An enabled catalog with no subset selects all of it.
type SelectionSpec struct {
	Enabled map[Category]bool
	Subsets map[Category][]string
}

// DefaultSelectionSpec enables the RAI catalog only.
func DefaultSelectionSpec() SelectionSpec {
	return SelectionSpec{Enabled: map[Category]bool{CategoryRAI: true}}
}

// Resolve builds the ordered selection: RAI parameters before content
// parameters, each in catalog order, de-duplicated by key. Keys may be given
// as keys or display labels; unknown ones are rejected.
func (s SelectionSpec) Resolve() (Selection, error) {
	seen := map[string]bool{}
	var out Selection
	for _, c := range Categories() {
		if !s.Enabled[c] {
			continue
		}
		catalog := Catalog(c)
		want := map[string]bool{}
		for _, raw := range s.Subsets[c] {
			k := NormalizeKey(raw)
			if k == "" {
				continue
			}
			found := false
			for _, p := range catalog {
				if p.Key == k {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("%w: unknown %s parameter %q", ErrInvalidArgument, c, raw)
			}
			want[k] = true
		}
		for _, p := range catalog {
			if len(want) > 0 && !want[p.Key] {
				continue
			}
			if seen[p.Key] {
				continue
			}
			seen[p.Key] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// NormalizeKey maps labels and loose spellings onto catalog key form:
// "Human-Centric Values" -> "human_centric_values".
func NormalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// EvaluationRequest is one (prompt, response, selection) tuple for the judge.
type EvaluationRequest struct {
	Prompt    string
	Response  string
	Selection Selection
}

// Validate rejects a request that selects no parameters.
func (r EvaluationRequest) Validate() error {
	if len(r.Selection) == 0 {
		return fmt.Errorf("%w: at least one evaluation parameter must be selected", ErrInvalidArgument)
	}
	return nil
}

// Judgment values.
const (
	JudgmentYes = "Y"
	JudgmentNo  = "N"
)

// NoExplanation is the placeholder justification for omitted reasons.
const NoExplanation = "No explanation provided"

// Judgment is the judge's answer for one parameter.
type Judgment struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Verdict holds one judgment per selected parameter, in selection order.
type Verdict struct {
	Judgments []Judgment `json:"judgments"`
}

// Flat renders the verdict as the judge's wire shape: key -> Y/N and
// key_reason -> justification.
func (v Verdict) Flat() map[string]string {
	out := make(map[string]string, 2*len(v.Judgments))
	for _, j := range v.Judgments {
		out[j.Key] = j.Value
		out[j.Key+"_reason"] = j.Reason
	}
	return out
}

// Get returns the judgment for key.
func (v Verdict) Get(key string) (Judgment, bool) {
	for _, j := range v.Judgments {
		if j.Key == key {
			return j, true
		}
	}
	return Judgment{}, false
}

// AnalysisFailed is the reason reported when detection could not complete.
const AnalysisFailed = "Analysis failed"

// AIOrigin is the detector's answer. IsAIGenerated is nil when detection
// failed, which is distinct from a negative finding.
type AIOrigin struct {
	IsAIGenerated *bool  `json:"is_ai_generated"`
	Confidence    int    `json:"confidence"`
	Reason        string `json:"reason"`
}

// UnknownOrigin is the degraded verdict used on detector failure.
func UnknownOrigin() AIOrigin {
	return AIOrigin{Confidence: 0, Reason: AnalysisFailed}
}

// Known reports whether the detector produced a finding.
func (o AIOrigin) Known() bool { return o.IsAIGenerated != nil }

// Generated reports a positive finding.
func (o AIOrigin) Generated() bool { return o.IsAIGenerated != nil && *o.IsAIGenerated }
