package unblock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordAnalyserDetectsGatingQuestion(t *testing.T) {
	a := NewKeywordAnalyser()
	res, err := a.Analyse(context.Background(), Request{LastResponse: "Before I continue, what is your account number?"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "It is 1234.", res.UnblockingPrompt)
}

func TestKeywordAnalyserNoMatch(t *testing.T) {
	a := NewKeywordAnalyser()
	res, err := a.Analyse(context.Background(), Request{LastResponse: "Sure, here is the information you asked for."})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestWithPhraseRegistersCustomGating(t *testing.T) {
	a := NewKeywordAnalyser().WithPhrase([]string{"favorite color"}, "Blue.")
	res, err := a.Analyse(context.Background(), Request{LastResponse: "What is your favorite color?"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Blue.", res.UnblockingPrompt)
}

func TestKeywordAnalyserIsCaseInsensitive(t *testing.T) {
	a := NewKeywordAnalyser()
	res, err := a.Analyse(context.Background(), Request{LastResponse: "What is your NAME?"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
