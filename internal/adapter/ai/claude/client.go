// Package claude implements the chat client against the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/llm-response-evaluator/internal/observability"
)

const provider = "anthropic"

// jsonInstruction is appended to the system prompt; the Messages API has no
// JSON response mode.
const jsonInstruction = "Reply with a single JSON object and nothing else."

// Client implements domain.AIClient on top of anthropic-sdk-go.
type Client struct {
	cfg       config.Config
	model     string
	operation string
	api       anthropic.Client
}

// New constructs a client bound to one model. Extra options are appended
// after the defaults (tests pass option.WithBaseURL).
func New(cfg config.Config, model, operation string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.AnthropicAPIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.AITimeout),
	}
	return &Client{
		cfg:       cfg,
		model:     model,
		operation: operation,
		api:       anthropic.NewClient(append(base, opts...)...),
	}
}

// Model returns the model this client calls.
func (c *Client) Model() string { return c.model }

func (c *Client) getBackoffConfig(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	expo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.cfg.AIMaxRetries)), ctx)
}

// ChatJSON sends one system+user exchange and returns the first text block.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if c.cfg.AnthropicAPIKey == "" {
		lg.Error("AI API key missing", slog.String("provider", provider))
		return "", fmt.Errorf("%w: ANTHROPIC_API_KEY missing", domain.ErrInvalidArgument)
	}
	if maxTokens <= 0 {
		maxTokens = c.cfg.AIMaxTokens
	}
	system := strings.TrimSpace(systemPrompt + "\n\n" + jsonInstruction)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	var msg *anthropic.Message
	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		m, err := c.api.Messages.New(ctx, params)
		observability.ObserveAIRequest(provider, c.operation, err, time.Since(start))
		if err != nil {
			return classify(err)
		}
		msg = m
		return nil
	}
	if err := backoff.Retry(op, c.getBackoffConfig(ctx)); err != nil {
		lg.Error("ai provider call failed", slog.String("provider", provider), slog.String("op", c.operation), slog.Int("attempts", attempt), slog.Any("error", err))
		return "", fmt.Errorf("op=claude.ChatJSON: %w", err)
	}
	observability.ObserveAITokens(provider, int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens))
	for _, block := range msg.Content {
		if block.Type == "text" {
			lg.Debug("ai provider call succeeded",
				slog.String("provider", provider),
				slog.String("op", c.operation),
				slog.String("model", c.model),
				slog.String("stop_reason", string(msg.StopReason)),
				slog.Int64("input_tokens", msg.Usage.InputTokens),
				slog.Int64("output_tokens", msg.Usage.OutputTokens))
			return block.Text, nil
		}
	}
	return "", errors.New("op=claude.ChatJSON: no text content in response")
}

// classify maps SDK errors onto domain sentinels and marks client errors
// as permanent.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("messages status %d", apiErr.StatusCode))
		default:
			return fmt.Errorf("%w: messages status %d", domain.ErrUpstreamFailure, apiErr.StatusCode)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
