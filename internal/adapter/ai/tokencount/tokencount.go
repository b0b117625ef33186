// Package tokencount estimates token usage of judge and detector calls with
// tiktoken-go. Estimates feed the ai_tokens_total metric; providers that
// report exact usage are not required.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// BPE ranks ship with the binary; no download at first use.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Encoding names.
const (
	EncodingO200K  = "o200k_base"
	EncodingCL100K = "cl100k_base"
)

// TokenUsage represents token counts for one chat call.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}

// Counter provides thread-safe token counting.
type Counter struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken)}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

// EncodingFor picks the encoding used to approximate model. Newer OpenAI
// families use o200k; everything else, Claude included, is approximated
// with cl100k.
func EncodingFor(model string) string {
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"), strings.HasPrefix(m, "gpt-5"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return EncodingO200K
	default:
		return EncodingCL100K
	}
}

func (c *Counter) encoding(name string) (*tiktoken.Tiktoken, error) {
	c.mu.RLock()
	enc, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	c.cache[name] = enc
	return enc, nil
}

// CountTokens counts the tokens of text for model. On encoder failure it
// falls back to roughly four characters per token.
func (c *Counter) CountTokens(text, model string) int {
	enc, err := c.encoding(EncodingFor(model))
	if err != nil {
		slog.Debug("token encoder unavailable; estimating", slog.String("model", model), slog.Any("error", err))
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// CountChatTokens counts a system+user exchange including the per-message
// framing used by chat APIs.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) int {
	const perMessage = 4 // role and framing tokens
	const replyPriming = 3
	n := replyPriming
	if systemPrompt != "" {
		n += perMessage + c.CountTokens(systemPrompt, model)
	}
	n += perMessage + c.CountTokens(userPrompt, model)
	return n
}

// Usage computes the full usage of one call.
func (c *Counter) Usage(systemPrompt, userPrompt, completion, model string) TokenUsage {
	p := c.CountChatTokens(systemPrompt, userPrompt, model)
	o := c.CountTokens(completion, model)
	return TokenUsage{PromptTokens: p, CompletionTokens: o, TotalTokens: p + o, Model: model}
}
