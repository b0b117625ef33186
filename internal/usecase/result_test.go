package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

func seededRuns(t *testing.T) *memRunStore {
	t.Helper()
	runs := newMemRunStore()
	human := false
	require.NoError(t, runs.Save(context.Background(), domain.Run{
		ID:      "run-1",
		UserID:  "u1",
		Mode:    domain.RunModeBatch,
		Entries: 2,
		Failed:  1,
		Records: []domain.Record{{
			Index: 1, Prompt: "p", Response: "r",
			Verdict: domain.Verdict{Judgments: []domain.Judgment{{Key: "fairness", Label: "Fairness", Value: "Y", Reason: "fine"}}},
			Origin:  &domain.AIOrigin{IsAIGenerated: &human, Confidence: 30, Reason: "casual"},
		}},
	}))
	return runs
}

func TestResult_Preview(t *testing.T) {
	svc := usecase.NewResultService(seededRuns(t), nil, stubRenderer{})
	rep, etag, notModified, err := svc.Preview(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.False(t, notModified)
	assert.NotEmpty(t, etag)
	assert.Equal(t, domain.ReportTitle, rep.Title)
	require.Len(t, rep.Sections, 1)
	assert.Equal(t, "Evaluation #1", rep.Sections[0].Heading)
	require.NotNil(t, rep.Sections[0].Origin)
	assert.Equal(t, "Likely human-written (Confidence: 70%)", rep.Sections[0].Origin.Summary)

	_, etag2, notModified, err := svc.Preview(context.Background(), "u1", etag)
	require.NoError(t, err)
	assert.True(t, notModified)
	assert.Equal(t, etag, etag2)
}

func TestResult_NoCurrentRun(t *testing.T) {
	svc := usecase.NewResultService(newMemRunStore(), nil, stubRenderer{})
	_, _, _, err := svc.Preview(context.Background(), "u1", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, _, err = svc.Download(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, _, err = svc.Preview(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestResult_Download(t *testing.T) {
	svc := usecase.NewResultService(seededRuns(t), nil, stubRenderer{})
	body, ct, name, err := svc.Download(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportTitle, string(body))
	assert.Equal(t, "application/pdf", ct)
	assert.Equal(t, "report.pdf", name)

	svc.Renderer = stubRenderer{err: errors.New("font missing")}
	_, _, _, err = svc.Download(context.Background(), "u1")
	assert.Error(t, err)
}

func TestResult_DiscardAndHistory(t *testing.T) {
	runs := seededRuns(t)
	hist := &memHistory{rows: []domain.RunSummary{{ID: "a", UserID: "u1"}, {ID: "b", UserID: "u2"}}}
	svc := usecase.NewResultService(runs, hist, stubRenderer{})

	require.NoError(t, svc.Discard(context.Background(), "u1"))
	_, err := runs.Current(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rows, err := svc.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)

	_, err = svc.History(context.Background(), "", 10)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	none := usecase.NewResultService(runs, nil, stubRenderer{})
	rows, err = none.History(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
