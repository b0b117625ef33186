package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogs_FixedOrder(t *testing.T) {
	rai := Catalog(CategoryRAI)
	require.Len(t, rai, 7)
	assert.Equal(t, "fairness", rai[0].Key)
	assert.Equal(t, "Human-Centric Values", rai[5].Label)

	content := Catalog(CategoryContent)
	require.Len(t, content, 5)
	assert.Equal(t, []string{"groundedness", "clarity", "factuality", "genuinity", "explainability"}, Selection(content).Keys())

	assert.Nil(t, Catalog("bogus"))
}

func TestCatalog_ReturnsCopy(t *testing.T) {
	c := Catalog(CategoryRAI)
	c[0].Label = "changed"
	assert.Equal(t, "Fairness", Catalog(CategoryRAI)[0].Label)
}

func TestSelectionSpec_Resolve(t *testing.T) {
	t.Run("default is all rai", func(t *testing.T) {
		sel, err := DefaultSelectionSpec().Resolve()
		require.NoError(t, err)
		assert.Equal(t, Selection(Catalog(CategoryRAI)), sel)
	})

	t.Run("rai before content in catalog order", func(t *testing.T) {
		spec := SelectionSpec{
			Enabled: map[Category]bool{CategoryRAI: true, CategoryContent: true},
			Subsets: map[Category][]string{
				CategoryContent: {"Factuality", "clarity"},
				CategoryRAI:     {"privacy", "Human-Centric Values", "privacy"},
			},
		}
		sel, err := spec.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"privacy", "human_centric_values", "clarity", "factuality"}, sel.Keys())
	})

	t.Run("disabled category ignores subset", func(t *testing.T) {
		spec := SelectionSpec{
			Enabled: map[Category]bool{CategoryContent: true},
			Subsets: map[Category][]string{CategoryRAI: {"fairness"}},
		}
		sel, err := spec.Resolve()
		require.NoError(t, err)
		assert.Len(t, sel, 5)
	})

	t.Run("nothing enabled gives empty selection", func(t *testing.T) {
		sel, err := SelectionSpec{}.Resolve()
		require.NoError(t, err)
		assert.Empty(t, sel)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		spec := SelectionSpec{
			Enabled: map[Category]bool{CategoryRAI: true},
			Subsets: map[Category][]string{CategoryRAI: {"clarity"}},
		}
		_, err := spec.Resolve()
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestEvaluationRequest_ValidateEmptySelection(t *testing.T) {
	err := EvaluationRequest{Prompt: "p", Response: "r"}.Validate()
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.NoError(t, EvaluationRequest{Selection: Catalog(CategoryContent)}.Validate())
}

func TestVerdict_Flat(t *testing.T) {
	v := Verdict{Judgments: []Judgment{{Key: "fairness", Label: "Fairness", Value: JudgmentYes, Reason: NoExplanation}}}
	assert.Equal(t, map[string]string{"fairness": "Y", "fairness_reason": "No explanation provided"}, v.Flat())
	j, ok := v.Get("fairness")
	require.True(t, ok)
	assert.Equal(t, "Y", j.Value)
	_, ok = v.Get("privacy")
	assert.False(t, ok)
}

func TestAIOrigin_States(t *testing.T) {
	unknown := UnknownOrigin()
	assert.False(t, unknown.Known())
	assert.False(t, unknown.Generated())
	assert.Equal(t, 0, unknown.Confidence)
	assert.Equal(t, "Analysis failed", unknown.Reason)

	no := false
	human := AIOrigin{IsAIGenerated: &no, Confidence: 20}
	assert.True(t, human.Known())
	assert.False(t, human.Generated())
}

func TestRun_Summary(t *testing.T) {
	now := time.Now().UTC()
	run := Run{ID: "r1", UserID: "u1", Mode: RunModeBatch, Entries: 3, Failed: 1, Parameters: []string{"fairness"},
		Records: []Record{{Index: 0}, {Index: 2}}, CreatedAt: now}
	s := run.Summary()
	assert.Equal(t, 2, s.Records)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, now, s.CreatedAt)
	run.Parameters[0] = "changed"
	assert.Equal(t, "fairness", s.Parameters[0])
}

func TestLookupParameter(t *testing.T) {
	p, c, ok := LookupParameter("genuinity")
	require.True(t, ok)
	assert.Equal(t, CategoryContent, c)
	assert.Equal(t, "Genuinity", p.Label)
	_, _, ok = LookupParameter("nope")
	assert.False(t, ok)
}
