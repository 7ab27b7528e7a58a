package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrescendoSystemPromptIncludesGoalAndPurpose(t *testing.T) {
	c := NewCrescendo(Params{Goal: "exfiltrate secrets", Purpose: "evaluate resilience"})
	prompt := c.SystemPrompt(0)
	assert.Contains(t, prompt, "exfiltrate secrets")
	assert.Contains(t, prompt, "evaluate resilience")
	assert.Equal(t, "crescendo", c.Name())
}

func TestCrescendoSystemPromptConstantAcrossRounds(t *testing.T) {
	c := NewCrescendo(Params{Goal: "g"})
	assert.Equal(t, c.SystemPrompt(0), c.SystemPrompt(5))
}

func TestNewCustomRejectsEmptyText(t *testing.T) {
	_, err := NewCustom("   ")
	assert.Error(t, err)
}

func TestCustomSystemPromptSubstitutesRound(t *testing.T) {
	c, err := NewCustom("round is {{round}}")
	require.NoError(t, err)
	assert.Equal(t, "round is 3", c.SystemPrompt(3))
	assert.Equal(t, "custom", c.Name())
}

func TestModifiersBlockOmitsEmptyValues(t *testing.T) {
	block := ModifiersBlock(map[string]string{"a": "", "b": "x"})
	assert.Contains(t, block, "b: x")
	assert.NotContains(t, block, "a:")
}

func TestModifiersBlockEmptyWhenAllValuesBlank(t *testing.T) {
	assert.Equal(t, "", ModifiersBlock(map[string]string{"a": "", "b": "  "}))
	assert.Equal(t, "", ModifiersBlock(nil))
}

type upperLayer struct{}

func (upperLayer) Name() string { return "upper" }
func (upperLayer) Apply(text string) (string, []byte, []byte, error) {
	out := ""
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			r -= 32
		}
		out += string(r)
	}
	return out, nil, []byte("img"), nil
}

func TestApplyLayersChainsTextAndKeepsLatestMedia(t *testing.T) {
	text, _, image, err := ApplyLayers([]PerTurnLayer{upperLayer{}}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", text)
	assert.Equal(t, []byte("img"), image)
}

func TestApplyLayersNoLayersIsIdentity(t *testing.T) {
	text, audio, image, err := ApplyLayers(nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Nil(t, audio)
	assert.Nil(t, image)
}
