package httpserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// validate runs struct validation and returns field -> failed tag, or nil.
func validate(v any) map[string]string {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	verrs := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	} else {
		verrs["request"] = err.Error()
	}
	return verrs
}

// selectionRequest is the parameter choice shared by both evaluation modes.
type selectionRequest struct {
	Categories []string `json:"categories" validate:"max=2,dive,oneof=rai content"`
	Parameters []string `json:"parameters" validate:"max=32,dive,max=64"`
	DetectAI   bool     `json:"detect_ai"`
}

// normalize lower-cases and trims category names before validation.
func (s *selectionRequest) normalize() {
	for i, c := range s.Categories {
		s.Categories[i] = strings.ToLower(strings.TrimSpace(c))
	}
}

// buildSelection resolves categories and parameter keys into a selection.
// With neither given the RAI catalog is selected. Parameters without
// categories enable the categories they belong to; a parameter from a
// category that was not requested is rejected.
func buildSelection(req selectionRequest) (domain.Selection, error) {
	if len(req.Categories) == 0 && len(req.Parameters) == 0 {
		return domain.DefaultSelectionSpec().Resolve()
	}
	spec := domain.SelectionSpec{Enabled: map[domain.Category]bool{}, Subsets: map[domain.Category][]string{}}
	for _, c := range req.Categories {
		spec.Enabled[domain.Category(c)] = true
	}
	explicit := len(req.Categories) > 0
	for _, raw := range req.Parameters {
		key := domain.NormalizeKey(raw)
		if key == "" {
			continue
		}
		_, cat, ok := domain.LookupParameter(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", domain.ErrInvalidArgument, raw)
		}
		if explicit && !spec.Enabled[cat] {
			return nil, fmt.Errorf("%w: parameter %q belongs to category %q, which is not selected", domain.ErrInvalidArgument, raw, cat)
		}
		spec.Enabled[cat] = true
		spec.Subsets[cat] = append(spec.Subsets[cat], key)
	}
	sel, err := spec.Resolve()
	if err != nil {
		return nil, err
	}
	if len(sel) == 0 {
		return nil, fmt.Errorf("%w: at least one evaluation parameter must be selected", domain.ErrInvalidArgument)
	}
	return sel, nil
}

// splitList accepts repeated form values and comma separated ones.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
