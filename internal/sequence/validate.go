// Package sequence validates and normalizes amino acid sequences before
// they are accepted into the inference pipeline.
package sequence

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLength is the maximum accepted sequence length after normalization.
const MaxLength = 10000

// Alphabet holds the 20 standard amino acid letters.
const Alphabet = "ACDEFGHIKLMNPQRSTVWY"

var punctuation = ".,;:!?()[]{}"

// ValidationResult is the outcome of validating one input. It is
// constructed once and never mutated.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// Normalize trims surrounding whitespace and uppercases a sequence.
// Normalize(Normalize(x)) == Normalize(x) for any input.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeValue normalizes an untyped input. Non-string values,
// including nil, normalize to the empty string.
func NormalizeValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}

// ValidateValue validates an untyped input, rejecting non-strings
// outright before any content checks.
func ValidateValue(v any) ValidationResult {
	s, ok := v.(string)
	if !ok {
		return ValidationResult{IsValid: false, Errors: []string{"sequence must be a string"}}
	}
	return Validate(s)
}

// Validate checks a raw sequence against the accepted alphabet and
// structural limits. All violations found are accumulated in a fixed
// order (structural checks first, then content checks) so a single call
// surfaces everything the caller needs to fix.
func Validate(raw string) ValidationResult {
	var errs []string

	cleaned := Normalize(raw)

	if cleaned == "" {
		errs = append(errs, "sequence cannot be empty")
		return ValidationResult{IsValid: false, Errors: errs}
	}

	// Length is counted in characters, not bytes.
	if utf8.RuneCountInString(cleaned) > MaxLength {
		errs = append(errs, "sequence exceeds maximum length of 10000 characters")
	}

	if invalid := invalidCharacters(cleaned); len(invalid) > 0 {
		errs = append(errs, "invalid amino acid characters found: "+strings.Join(invalid, ", ")+
			" (allowed: "+strings.Join(strings.Split(Alphabet, ""), ", ")+")")
	}

	if strings.ContainsFunc(cleaned, unicode.IsDigit) {
		errs = append(errs, "sequence must not contain numbers")
	}

	if strings.ContainsAny(cleaned, punctuation) {
		errs = append(errs, "sequence must not contain punctuation")
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// invalidCharacters returns the sorted set of characters outside the
// accepted alphabet.
func invalidCharacters(cleaned string) []string {
	seen := make(map[rune]bool)
	for _, r := range cleaned {
		if !strings.ContainsRune(Alphabet, r) {
			seen[r] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}
