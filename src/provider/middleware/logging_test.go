package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactorMasksEmailAndAPIKey(t *testing.T) {
	r := NewRedactor()
	out := r.Redact("contact me at jane@example.com, key sk-ant-" + strings.Repeat("x", 24))
	assert.Contains(t, out, "[EMAIL]")
	assert.Contains(t, out, "[ANTHROPIC_API_KEY]")
	assert.NotContains(t, out, "jane@example.com")
}

func TestRedactorAddCustomPattern(t *testing.T) {
	r := NewRedactor()
	require.NoError(t, r.Add(`secret-\d+`, "[SECRET]"))
	assert.Equal(t, "token: [SECRET]", r.Redact("token: secret-42"))
}

func TestRedactorAddInvalidPatternErrors(t *testing.T) {
	r := NewRedactor()
	err := r.Add("(", "x")
	assert.Error(t, err)
}
