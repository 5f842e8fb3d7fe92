package confidence

import (
	"testing"

	"github.com/54b3r/folio-go/internal/rag"
)

func sources(scores ...float64) []rag.Source {
	out := make([]rag.Source, len(scores))
	for i, s := range scores {
		out[i] = rag.Source{Document: "doc.md", RelevanceScore: s}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		sources        []rag.Source
		answer         string
		wantConfidence float64
		wantSufficient bool
	}{
		{
			name:           "strong sources, confident answer",
			sources:        sources(0.8, 0.9, 0.7),
			answer:         "Yuka has worked with Go for five years.",
			wantConfidence: 0.8,
			wantSufficient: true,
		},
		{
			name:           "no sources",
			sources:        nil,
			answer:         "Hello!",
			wantConfidence: 0,
			wantSufficient: false,
		},
		{
			name:           "no sources and declining answer",
			sources:        nil,
			answer:         "I don't have that information.",
			wantConfidence: 0,
			wantSufficient: false,
		},
		{
			name:           "declining answer halves confidence",
			sources:        sources(0.8, 0.8),
			answer:         "I don't have that information. Please contact Yuka directly via LinkedIn.",
			wantConfidence: 0.4,
			wantSufficient: true,
		},
		{
			name:           "phrase match is case-insensitive",
			sources:        sources(0.6),
			answer:         "Sorry, I CANNOT FIND anything about that.",
			wantConfidence: 0.3,
			wantSufficient: false,
		},
		{
			name:           "threshold is strict",
			sources:        sources(0.7, 0.7),
			answer:         "Yes.",
			wantConfidence: 0.7,
			wantSufficient: false,
		},
		{
			name:           "rounded to two decimals",
			sources:        sources(0.5, 0.5, 0.51),
			answer:         "Yes.",
			wantConfidence: 0.5,
			wantSufficient: false,
		},
		{
			name:           "halved exact tie rounds to even",
			sources:        sources(0.25),
			answer:         "I don't have that.",
			wantConfidence: 0.12,
			wantSufficient: false,
		},
		{
			name:           "not in my knowledge",
			sources:        sources(1.0),
			answer:         "That is not in my knowledge base.",
			wantConfidence: 0.5,
			wantSufficient: true,
		},
	}

	e := New(DefaultThreshold, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := e.Evaluate(tc.sources, tc.answer)
			if got.Confidence != tc.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tc.wantConfidence)
			}
			if got.HasSufficientContext != tc.wantSufficient {
				t.Errorf("HasSufficientContext = %v, want %v", got.HasSufficientContext, tc.wantSufficient)
			}
		})
	}
}

func TestEvaluate_ConfidenceBounded(t *testing.T) {
	t.Parallel()
	e := New(DefaultThreshold, nil)
	for _, s := range [][]float64{{0}, {1}, {1, 1, 1}, {0.01, 0.99}} {
		for _, answer := range []string{"ok", "i don't have it"} {
			got := e.Evaluate(sources(s...), answer)
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("scores %v answer %q: confidence %v out of [0,1]", s, answer, got.Confidence)
			}
		}
	}
}

func TestNew_CustomPhrases(t *testing.T) {
	t.Parallel()
	e := New(0.5, []string{"  NO IDEA ", ""})

	got := e.Evaluate(sources(0.8), "I have no idea.")
	if got.Confidence != 0.4 {
		t.Errorf("custom phrase: Confidence = %v, want 0.4", got.Confidence)
	}
	got = e.Evaluate(sources(0.8), "I don't have that.")
	if got.Confidence != 0.8 {
		t.Errorf("default phrases must be replaced: Confidence = %v, want 0.8", got.Confidence)
	}
	if e.Threshold() != 0.5 {
		t.Errorf("Threshold() = %v", e.Threshold())
	}
}
