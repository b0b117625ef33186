package ai

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/observability"
	"github.com/fairyhunter13/llm-response-evaluator/pkg/textx"
)

// Judge is the evaluation client: one chat call per request, answered as a
// flat key -> Y/N plus key_reason -> justification object.
type Judge struct {
	Client    domain.AIClient
	Prompt    *config.PromptTemplate
	MaxTokens int
	cleaner   *ResponseCleaner
}

// NewJudge builds a Judge.
func NewJudge(c domain.AIClient, prompt *config.PromptTemplate, maxTokens int) *Judge {
	return &Judge{Client: c, Prompt: prompt, MaxTokens: maxTokens, cleaner: NewResponseCleaner()}
}

type judgePromptData struct {
	Prompt     string
	Response   string
	Parameters []domain.Parameter
	Labels     string
}

// Evaluate implements domain.Evaluator. Every selected parameter is present
// in the verdict, in selection order.
func (j *Judge) Evaluate(ctx domain.Context, req domain.EvaluationRequest) (domain.Verdict, error) {
	if err := req.Validate(); err != nil {
		return domain.Verdict{}, err
	}
	user, err := j.Prompt.Render(judgePromptData{
		Prompt:     req.Prompt,
		Response:   req.Response,
		Parameters: req.Selection,
		Labels:     strings.Join(req.Selection.Labels(), ", "),
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrEvaluationFailed, err)
	}
	raw, err := j.Client.ChatJSON(ctx, j.Prompt.System, user, j.MaxTokens)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %w", domain.ErrEvaluationFailed, err)
	}
	obj, err := j.cleaner.DecodeObject(raw)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("judge reply is not JSON",
			slog.String("reply_preview", textx.Truncate(raw, 200)))
		return domain.Verdict{}, fmt.Errorf("%w: %w", domain.ErrEvaluationFailed, err)
	}
	return NormalizeVerdict(req.Selection, obj), nil
}

// NormalizeVerdict maps a decoded judge reply onto the selection. Keys are
// matched exactly, then by normalised form. Missing judgments default to N;
// missing or empty justifications become domain.NoExplanation.
func NormalizeVerdict(sel domain.Selection, obj map[string]any) domain.Verdict {
	loose := make(map[string]any, len(obj))
	for k, v := range obj {
		nk := domain.NormalizeKey(k)
		if _, dup := loose[nk]; !dup {
			loose[nk] = v
		}
	}
	lookup := func(key string) (any, bool) {
		if v, ok := obj[key]; ok {
			return v, true
		}
		v, ok := loose[domain.NormalizeKey(key)]
		return v, ok
	}

	v := domain.Verdict{Judgments: make([]domain.Judgment, 0, len(sel))}
	for _, p := range sel {
		jd := domain.Judgment{Key: p.Key, Label: p.Label, Value: domain.JudgmentNo}
		raw, ok := lookup(p.Key)
		if !ok {
			raw, ok = lookup(p.Label)
		}
		if ok {
			// tolerate {"fairness": {"value": "Y", "reason": "..."}}
			if nested, isObj := raw.(map[string]any); isObj {
				raw = firstOf(nested, "value", "judgment", "verdict", "answer")
				jd.Reason = stringify(firstOf(nested, "reason", "justification", "explanation"))
			}
			jd.Value = normalizeJudgment(raw)
		}
		if r, ok := lookup(p.Key + "_reason"); ok {
			if s := stringify(r); s != "" {
				jd.Reason = s
			}
		}
		jd.Reason = strings.TrimSpace(jd.Reason)
		if jd.Reason == "" {
			jd.Reason = domain.NoExplanation
		}
		v.Judgments = append(v.Judgments, jd)
	}
	return v
}

func normalizeJudgment(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return domain.JudgmentYes
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "y", "yes", "true", "pass":
			return domain.JudgmentYes
		}
	}
	return domain.JudgmentNo
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
