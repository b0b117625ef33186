// Package real implements the chat client against an OpenAI-compatible
// chat completions API.
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/llm-response-evaluator/internal/observability"
	"github.com/fairyhunter13/llm-response-evaluator/pkg/textx"
)

const provider = "openai"

// Client implements domain.AIClient using chat completions in JSON mode.
type Client struct {
	cfg       config.Config
	model     string
	operation string
	hc        *http.Client
	counter   *tokencount.Counter
}

// New constructs a client bound to one model. operation labels metrics and
// logs (judge, detector).
func New(cfg config.Config, model, operation string) *Client {
	return &Client{
		cfg:       cfg,
		model:     model,
		operation: operation,
		hc:        &http.Client{Timeout: cfg.AITimeout},
		counter:   tokencount.DefaultCounter,
	}
}

// Model returns the model this client calls.
func (c *Client) Model() string { return c.model }

// getBackoffConfig returns the retry policy. With AI_MAX_RETRIES=0 a failed
// call is reported after the first attempt.
func (c *Client) getBackoffConfig(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	expo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.cfg.AIMaxRetries)), ctx)
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
	Messages       []chatMessage     `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatJSON sends one system+user exchange and returns the message content.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if c.cfg.OpenAIAPIKey == "" {
		lg.Error("AI API key missing", slog.String("provider", provider))
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})
	b, err := json.Marshal(chatRequest{
		Model:          c.model,
		Temperature:    0,
		MaxTokens:      maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
		Messages:       messages,
	})
	if err != nil {
		return "", fmt.Errorf("op=ai.ChatJSON: %w", err)
	}
	endpoint := c.cfg.OpenAIBaseURL + "/chat/completions"

	var out chatResponse
	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		if err != nil {
			observability.ObserveAIRequest(provider, c.operation, err, time.Since(start))
			if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
				return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
			}
			return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			observability.ObserveAIRequest(provider, c.operation, err, time.Since(start))
			return err
		}
		var statusErr error
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			statusErr = fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
			lg.Warn("ai provider rate limited", slog.String("provider", provider), slog.String("op", c.operation), slog.Int("attempt", attempt))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			lg.Warn("ai provider 4xx", slog.String("provider", provider), slog.String("op", c.operation),
				slog.Int("status", resp.StatusCode), slog.String("model", c.model), slog.String("body", textx.Truncate(string(body), 512)))
			statusErr = backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			lg.Error("ai provider non-2xx", slog.String("provider", provider), slog.String("op", c.operation),
				slog.Int("status", resp.StatusCode), slog.String("model", c.model), slog.String("body", textx.Truncate(string(body), 512)))
			statusErr = fmt.Errorf("%w: chat status %d", domain.ErrUpstreamFailure, resp.StatusCode)
		}
		observability.ObserveAIRequest(provider, c.operation, statusErr, time.Since(start))
		if statusErr != nil {
			return statusErr
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
		}
		return nil
	}
	if err := backoff.Retry(op, c.getBackoffConfig(ctx)); err != nil {
		lg.Error("ai provider call failed", slog.String("provider", provider), slog.String("op", c.operation), slog.Int("attempts", attempt), slog.Any("error", err))
		return "", fmt.Errorf("op=ai.ChatJSON: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("op=ai.ChatJSON: empty choices")
	}
	msg := out.Choices[0].Message
	if msg.Content == "" && msg.Refusal != "" {
		return "", fmt.Errorf("op=ai.ChatJSON: model refused: %s", textx.Truncate(msg.Refusal, 200))
	}
	usage := c.counter.Usage(systemPrompt, userPrompt, msg.Content, c.model)
	observability.ObserveAITokens(provider, usage.PromptTokens, usage.CompletionTokens)
	lg.Debug("ai provider call succeeded",
		slog.String("provider", provider),
		slog.String("op", c.operation),
		slog.String("model", c.model),
		slog.String("finish_reason", out.Choices[0].FinishReason),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens))
	return msg.Content, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
