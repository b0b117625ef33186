// Package ai implements the evaluation client (judge) and the AI-origin
// detector on top of a provider-neutral chat client.
package ai

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JSONValidationError reports a model reply that is not a JSON object.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string {
	return e.Message
}

// ResponseCleaner strips presentation noise from model replies.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanJSONResponse removes surrounding whitespace and a markdown code fence.
// The content itself is left untouched so justifications keep their quotes.
func (rc *ResponseCleaner) CleanJSONResponse(response string) string {
	return rc.removeMarkdownBlocks(strings.TrimSpace(strings.TrimPrefix(response, "\uFEFF")))
}

func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	if !strings.HasPrefix(response, "```") {
		return response
	}
	body := strings.TrimPrefix(response, "```")
	// drop the info string, e.g. "json"
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(strings.TrimPrefix(body, "json"), "JSON")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	return json.Valid([]byte(response))
}

// DecodeObject cleans the reply and decodes it as a JSON object. Numbers are
// kept as json.Number.
func (rc *ResponseCleaner) DecodeObject(response string) (map[string]any, error) {
	cleaned := rc.CleanJSONResponse(response)
	if !strings.HasPrefix(cleaned, "{") || !rc.IsValidJSON(cleaned) {
		return nil, &JSONValidationError{
			Original: response,
			Cleaned:  cleaned,
			Message:  "model reply is not a JSON object",
		}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, &JSONValidationError{Original: response, Cleaned: cleaned, Message: err.Error()}
	}
	return out, nil
}
