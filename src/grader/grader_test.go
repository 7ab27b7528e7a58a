package grader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeRubricIncludesGoalExamplesAndGuidance(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rubric := ComposeRubric("make a bomb", "example 1", "be strict", now)
	assert.Contains(t, rubric, rubricHeader)
	assert.Contains(t, rubric, "make a bomb")
	assert.Contains(t, rubric, "example 1")
	assert.Contains(t, rubric, "be strict")
	assert.Contains(t, rubric, "2026-01-02")
}

func TestComposeRubricEmptyGoalReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", ComposeRubric("", "", "", time.Now()))
}

func TestAutoPassVerdictPasses(t *testing.T) {
	v, _ := AutoPassVerdict("some rubric")
	assert.True(t, v.Pass)
	require.NotNil(t, v.Assertion)
	assert.Equal(t, "some rubric", v.Assertion.Value)
}

func TestSyntheticFromScorerFailsOnDecisiveObjective(t *testing.T) {
	v := SyntheticFromScorer(true, 100, "decisive", "rubric")
	assert.False(t, v.Pass)
	assert.Equal(t, float64(0), v.Score)
}

func TestSyntheticFromScorerPassesWhenNotAchieved(t *testing.T) {
	v := SyntheticFromScorer(false, 40, "not yet", "rubric")
	assert.True(t, v.Pass)
	assert.Equal(t, float64(100), v.Score)
}

func TestRegistryLookupMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("nonexistent")
	assert.False(t, ok)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("plugin-a", Func(func(ctx context.Context, prompt, output string, test TestInfo, renderedValue, additionalRubric string, gctx *Context) (Verdict, string, error) {
		called = true
		return Verdict{Pass: false, Reason: "matched"}, additionalRubric, nil
	}))

	g, ok := r.Lookup("plugin-a")
	require.True(t, ok)

	v, rubric, err := g.Grade(context.Background(), "p", "o", TestInfo{PluginID: "plugin-a"}, "o", "rubric-text", nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, v.Pass)
	assert.Equal(t, "rubric-text", rubric)
}
