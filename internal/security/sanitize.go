// Package security screens visitor messages before they reach the model.
// Known prompt-injection phrasings are replaced with a marker; personal data
// such as phone numbers and e-mail addresses is only flagged, never removed.
package security

import (
	"regexp"
)

// Filtered replaces every matched injection phrase.
const Filtered = "[FILTERED]"

// Warning values reported by Sanitize.
const (
	// WarnInjection is reported once per matching injection pattern.
	WarnInjection = "potential_injection_attempt"
	// WarnPhone is reported when the input contains a phone number.
	WarnPhone = "contains_phone"
	// WarnEmail is reported when the input contains an e-mail address.
	WarnEmail = "contains_email"
)

// injectionPatterns are matched case-insensitively.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (previous|above|all|prior) instructions?`),
	regexp.MustCompile(`(?i)you are now`),
	regexp.MustCompile(`(?i)new (instructions?|role|system prompt)`),
	regexp.MustCompile(`(?i)system prompt:`),
	regexp.MustCompile(`(?i)disregard (previous|above|all)`),
}

// phonePattern matches ten digits in groups of 3-3-4. Digits, spaces and
// word boundaries are Unicode-aware, so full-width numbers such as
// "０９０-１２３-４５６７" are caught too. RE2's \d, \s and \b are ASCII-only.
const phonePattern = `(?:^|[^\p{L}\p{N}_])\p{Nd}{3}[-.\s\p{Zs}]?\p{Nd}{3}[-.\s\p{Zs}]?\p{Nd}{4}(?:$|[^\p{L}\p{N}_])`

// piiPatterns are checked in order; each match adds its warning.
var piiPatterns = []struct {
	warning string
	re      *regexp.Regexp
}{
	{WarnPhone, regexp.MustCompile(phonePattern)},
	{WarnEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
}

// Sanitize returns input with injection phrases replaced by Filtered, and
// the warnings raised. Detection runs against the original input. The
// returned slice is never nil.
func Sanitize(input string) (string, []string) {
	warnings := []string{}
	sanitized := input

	for _, re := range injectionPatterns {
		if re.MatchString(input) {
			warnings = append(warnings, WarnInjection)
			sanitized = re.ReplaceAllLiteralString(sanitized, Filtered)
		}
	}

	for _, p := range piiPatterns {
		if p.re.MatchString(input) {
			warnings = append(warnings, p.warning)
		}
	}

	return sanitized, warnings
}
