package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	obsmetrics "github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/observability"
)

// Detector estimates whether a response was AI-generated. It never returns
// an error: any failure yields domain.UnknownOrigin().
type Detector struct {
	Client    domain.AIClient
	Prompt    *config.PromptTemplate
	MaxTokens int
	cleaner   *ResponseCleaner
}

// NewDetector builds a Detector.
func NewDetector(c domain.AIClient, prompt *config.PromptTemplate, maxTokens int) *Detector {
	return &Detector{Client: c, Prompt: prompt, MaxTokens: maxTokens, cleaner: NewResponseCleaner()}
}

// Detect implements domain.OriginDetector.
func (d *Detector) Detect(ctx domain.Context, text string) (origin domain.AIOrigin) {
	lg := observability.LoggerFromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			lg.Error("ai origin detection panicked", slog.Any("panic", r))
			origin = domain.UnknownOrigin()
		}
		obsmetrics.ObserveDetection(detectionOutcome(origin))
	}()

	if strings.TrimSpace(text) == "" {
		return domain.UnknownOrigin()
	}
	user, err := d.Prompt.Render(struct{ Text string }{Text: text})
	if err != nil {
		lg.Warn("ai origin detection failed", slog.Any("error", err))
		return domain.UnknownOrigin()
	}
	raw, err := d.Client.ChatJSON(ctx, d.Prompt.System, user, d.MaxTokens)
	if err != nil {
		lg.Warn("ai origin detection failed", slog.Any("error", err))
		return domain.UnknownOrigin()
	}
	obj, err := d.cleaner.DecodeObject(raw)
	if err != nil {
		lg.Warn("ai origin detection failed", slog.Any("error", err))
		return domain.UnknownOrigin()
	}
	o, err := NormalizeOrigin(obj)
	if err != nil {
		lg.Warn("ai origin detection failed", slog.Any("error", err))
		return domain.UnknownOrigin()
	}
	return o
}

// NormalizeOrigin reads is_ai_generated, confidence and reason from a decoded
// reply. Confidence may be an integer, a float or a numeric string and is
// clamped to 0..100. A reply without a boolean flag is an error.
func NormalizeOrigin(obj map[string]any) (domain.AIOrigin, error) {
	flag, ok := parseFlag(obj["is_ai_generated"])
	if !ok {
		return domain.AIOrigin{}, fmt.Errorf("reply has no boolean is_ai_generated")
	}
	return domain.AIOrigin{
		IsAIGenerated: &flag,
		Confidence:    parseConfidence(obj["confidence"]),
		Reason:        strings.TrimSpace(stringify(obj["reason"])),
	}, nil
}

func parseFlag(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

func parseConfidence(v any) int {
	var f float64
	switch t := v.(type) {
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return 0
		}
		f = x
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		x, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0
		}
		f = x
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

func detectionOutcome(o domain.AIOrigin) string {
	switch {
	case !o.Known():
		return obsmetrics.DetectionUnknown
	case o.Generated():
		return obsmetrics.DetectionAI
	default:
		return obsmetrics.DetectionHuman
	}
}
