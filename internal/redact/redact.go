// Package redact substitutes identifying patient values with placeholder
// tokens before text leaves the process for an external inference endpoint,
// and restores them in the responses.
package redact

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder tokens shared with the reply service's prompt template.
const (
	NamePlaceholder = "<PATIENT_NAME>"
	AgePlaceholder  = "<PATIENT_AGE>"
)

type pair struct {
	value       string
	placeholder string
}

// Map is the bidirectional substitution table for one call, built once from
// the patient identity at session creation.
type Map struct {
	pairs []pair
}

// NewMap builds the table for a patient. Empty values produce no pairs, so
// Forward and Restore degrade to the identity function.
func NewMap(name string, age int) *Map {
	m := &Map{}
	if name = strings.TrimSpace(name); name != "" {
		m.pairs = append(m.pairs, pair{value: name, placeholder: NamePlaceholder})
	}
	if age > 0 {
		m.pairs = append(m.pairs, pair{value: fmt.Sprintf("%d ans", age), placeholder: AgePlaceholder})
	}
	return m
}

// Forward replaces identifying values with placeholders. Text without any
// known value passes through unchanged, including text already redacted.
func (m *Map) Forward(text string) string {
	for _, p := range m.pairs {
		text = replaceToken(text, p.value, p.placeholder)
	}
	return text
}

// Restore replaces placeholders with the real values. It is a no-op on text
// that carries no placeholders, so restoring already-restored text is safe.
func (m *Map) Restore(text string) string {
	for _, p := range m.pairs {
		text = replaceToken(text, p.placeholder, p.value)
	}
	return text
}

// replaceToken substitutes old with new only where old is delimited by
// non-alphanumeric runes, so a patient name that happens to be a substring
// of an unrelated word is left alone.
func replaceToken(text, old, new string) string {
	if text == "" || old == "" {
		return text
	}
	var b strings.Builder
	i := 0
	for {
		j := strings.Index(text[i:], old)
		if j < 0 {
			b.WriteString(text[i:])
			return b.String()
		}
		j += i
		end := j + len(old)
		if boundaryBefore(text, j) && boundaryAfter(text, end) {
			b.WriteString(text[i:j])
			b.WriteString(new)
			i = end
		} else {
			// Overlapping or embedded occurrence; move one byte past the
			// match start and keep scanning.
			b.WriteString(text[i : j+1])
			i = j + 1
		}
	}
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
