// Package budget estimates prompt size and trims conversation history to fit
// a token budget. Chat backends tokenize differently, so estimates use a
// conservative character heuristic of 4 characters per token, counted in
// Unicode code points so non-Latin history is not under-counted.
package budget

import (
	"unicode/utf8"

	"github.com/54b3r/folio-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perMessageTokens approximates the role and framing overhead every chat
	// API adds to a message.
	perMessageTokens = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It leaves
	// room for the system prompt, three context chunks, and several turns
	// well inside the smallest supported context window.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s, at least 1 for non-empty s.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return max(n/charsPerToken, 1)
}

// EstimateMessage returns the estimated cost of one message with the given
// role and content.
func EstimateMessage(role, content string) int {
	return perMessageTokens + Estimate(role) + Estimate(content)
}

// EstimateTurns returns the estimated cost of history.
func EstimateTurns(history []rag.Turn) int {
	total := 0
	for _, t := range history {
		total += EstimateMessage(string(t.Role), t.Content)
	}
	return total
}

// Fit drops the oldest turns of history until fixedTokens plus the remaining
// history fits within maxTokens, and returns the kept suffix. fixedTokens is
// the cost of the messages that are always sent (system prompt and the
// current question with its context). When even that exceeds the budget the
// result is empty; the fixed part itself is never trimmed here.
func Fit(fixedTokens int, history []rag.Turn, maxTokens int) []rag.Turn {
	if len(history) == 0 {
		return history
	}
	remaining := EstimateTurns(history)
	for len(history) > 0 && fixedTokens+remaining > maxTokens {
		remaining -= EstimateMessage(string(history[0].Role), history[0].Content)
		history = history[1:]
	}
	return history
}
