package usecase_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

func TestParseEntries_Example(t *testing.T) {
	got := usecase.ParseEntries("Prompt: What is 2+2?\nResponse: 4\nPrompt: Name a color\nResponse: Blue")
	assert.Equal(t, []domain.Entry{
		{Prompt: "What is 2+2?", Response: "4"},
		{Prompt: "Name a color", Response: "Blue"},
	}, got)
}

func TestParseEntries_Cases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []domain.Entry
	}{
		{
			name: "multi-line prompt and response are joined",
			in:   "Prompt: Explain\nrecursion briefly\n\nResponse: A function\ncalling itself.\n",
			want: []domain.Entry{{Prompt: "Explain recursion briefly", Response: "A function calling itself."}},
		},
		{
			name: "markers are case insensitive and CRLF tolerant",
			in:   "PROMPT: hi\r\nresponse: hello\r\n",
			want: []domain.Entry{{Prompt: "hi", Response: "hello"}},
		},
		{
			name: "prompt without response is dropped",
			in:   "Prompt: orphan\nPrompt: q\nResponse: a",
			want: []domain.Entry{{Prompt: "q", Response: "a"}},
		},
		{
			name: "trailing prompt without response is dropped",
			in:   "Prompt: q\nResponse: a\nPrompt: dangling",
			want: []domain.Entry{{Prompt: "q", Response: "a"}},
		},
		{
			name: "text before the first marker is ignored",
			in:   "Title line\nPrompt: q\nResponse: a",
			want: []domain.Entry{{Prompt: "q", Response: "a"}},
		},
		{
			name: "empty marker content picks up continuation",
			in:   "Prompt:\nq on next line\nResponse:\na on next line",
			want: []domain.Entry{{Prompt: "q on next line", Response: "a on next line"}},
		},
		{
			name: "blank lines never separate entries",
			in:   "Prompt: q\n\n\nmore\nResponse: a\n\n\nstill a",
			want: []domain.Entry{{Prompt: "q more", Response: "a still a"}},
		},
		{name: "no markers", in: "just text\nwithout markers", want: nil},
		{name: "empty", in: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usecase.ParseEntries(tt.in))
		})
	}
}

func TestParseEntries_RoundTrip(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta?", "1+1", "colour", "naïve", "日本", "x:y"}
	r := rand.New(rand.NewSource(7))
	phrase := func() string {
		n := 1 + r.Intn(5)
		s := words[r.Intn(len(words))]
		for i := 1; i < n; i++ {
			s += " " + words[r.Intn(len(words))]
		}
		return s
	}
	for iter := 0; iter < 200; iter++ {
		n := r.Intn(6)
		var in []domain.Entry
		for i := 0; i < n; i++ {
			in = append(in, domain.Entry{Prompt: phrase(), Response: phrase()})
		}
		got := usecase.ParseEntries(usecase.FormatEntries(in))
		require.Equal(t, in, got, fmt.Sprintf("iteration %d", iter))
	}
}
