package usecase

import (
	"strings"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
)

const (
	promptMarker   = "prompt:"
	responseMarker = "response:"
)

// ParseEntries scans text for "Prompt:"/"Response:" markers and returns the
// complete pairs in document order. Markers match case-insensitively at the
// start of a trimmed line. Continuation lines are joined with a single space
// onto whichever side is open; blank lines are ignored. A pair missing either
// side is dropped.
func ParseEntries(text string) []domain.Entry {
	var (
		entries     []domain.Entry
		prompt      string
		response    string
		hasResponse bool
		inPrompt    bool
	)
	flush := func() {
		if prompt != "" && response != "" {
			entries = append(entries, domain.Entry{Prompt: prompt, Response: response})
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, promptMarker):
			flush()
			prompt = strings.TrimSpace(line[len(promptMarker):])
			response, hasResponse = "", false
			inPrompt = true
		case strings.HasPrefix(lower, responseMarker):
			response = strings.TrimSpace(line[len(responseMarker):])
			hasResponse = true
			inPrompt = false
		case inPrompt:
			prompt = joinLine(prompt, line)
		case hasResponse:
			response = joinLine(response, line)
		}
	}
	flush()
	return entries
}

// FormatEntries renders entries in the marker format ParseEntries reads.
func FormatEntries(entries []domain.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Prompt: ")
		b.WriteString(e.Prompt)
		b.WriteString("\nResponse: ")
		b.WriteString(e.Response)
		b.WriteString("\n")
	}
	return b.String()
}

func joinLine(acc, line string) string {
	if acc == "" {
		return line
	}
	return acc + " " + line
}
