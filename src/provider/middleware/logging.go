package middleware

import (
	"fmt"
	"regexp"
)

// Redactor strips PII-shaped substrings from provider request/response text
// before it reaches zerolog fields, so prompts and replies can be logged at
// debug level without leaking secrets.
type Redactor struct {
	patterns []*regexp.Regexp
	replace  []string
}

// NewRedactor creates a redactor pre-loaded with the default PII patterns:
// email, phone, SSN, credit card, and OpenAI/Anthropic API keys.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.mustAdd(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, "[EMAIL]")
	r.mustAdd(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`, "[PHONE]")
	r.mustAdd(`\b\d{3}[-]?\d{2}[-]?\d{4}\b`, "[SSN]")
	r.mustAdd(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13})\b`, "[CREDIT_CARD]")
	r.mustAdd(`\bsk-[A-Za-z0-9]{20,}\b`, "[OPENAI_API_KEY]")
	r.mustAdd(`\bsk-ant-[A-Za-z0-9-]{20,}\b`, "[ANTHROPIC_API_KEY]")
	return r
}

func (r *Redactor) mustAdd(pattern, replacement string) {
	if err := r.Add(pattern, replacement); err != nil {
		panic(fmt.Sprintf("middleware: invalid built-in redact pattern %q: %v", pattern, err))
	}
}

// Add registers an additional pattern/replacement pair.
func (r *Redactor) Add(pattern, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile redact pattern: %w", err)
	}
	r.patterns = append(r.patterns, re)
	r.replace = append(r.replace, replacement)
	return nil
}

// Redact applies every registered pattern to s in order.
func (r *Redactor) Redact(s string) string {
	for i, re := range r.patterns {
		s = re.ReplaceAllString(s, r.replace[i])
	}
	return s
}
