// Package confidence scores an answer by how well the retrieved sources
// support it. The score is a heuristic: the mean relevance of the sources,
// halved when the answer itself admits the information is missing.
package confidence

import (
	"strings"

	"github.com/54b3r/folio-go/internal/rag"
)

// DefaultThreshold is the mean relevance a set of sources must exceed to count
// as sufficient context.
const DefaultThreshold = 0.7

// DefaultPhrases are the lower-case markers of an answer that declines for
// lack of information.
var DefaultPhrases = []string{
	"i don't have",
	"i cannot find",
	"not in my knowledge",
	"please contact yuka directly",
}

// Result is the outcome of one evaluation.
type Result struct {
	// Confidence is in [0, 1], rounded to two decimals.
	Confidence float64
	// HasSufficientContext is true when there was at least one source and the
	// mean relevance exceeded the threshold.
	HasSufficientContext bool
}

// Evaluator computes a Result from sources and answer text. It is stateless
// and safe for concurrent use.
type Evaluator struct {
	// threshold is the strict lower bound on mean relevance for sufficiency.
	threshold float64
	// phrases are matched case-insensitively as substrings of the answer.
	phrases []string
}

// New constructs an Evaluator. A nil phrases slice selects DefaultPhrases.
// Phrases are lower-cased once here.
func New(threshold float64, phrases []string) *Evaluator {
	if phrases == nil {
		phrases = DefaultPhrases
	}
	lower := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lower = append(lower, p)
		}
	}
	return &Evaluator{threshold: threshold, phrases: lower}
}

// Threshold returns the configured sufficiency threshold.
func (e *Evaluator) Threshold() float64 { return e.threshold }

// Evaluate scores answer against sources. Sufficiency is judged on the
// undiscounted mean relevance.
func (e *Evaluator) Evaluate(sources []rag.Source, answer string) Result {
	var avg float64
	if len(sources) > 0 {
		var sum float64
		for _, s := range sources {
			sum += s.RelevanceScore
		}
		avg = sum / float64(len(sources))
	}

	confidence := avg
	if e.declines(answer) {
		confidence *= 0.5
	}

	return Result{
		Confidence:           rag.Round2(confidence),
		HasSufficientContext: len(sources) > 0 && avg > e.threshold,
	}
}

// declines reports whether answer contains any low-confidence phrase.
func (e *Evaluator) declines(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range e.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
