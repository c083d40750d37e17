package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const DefaultToxicityThreshold = 0.5

// ToxicityClassifier scores one sentence in [0, 1].
type ToxicityClassifier interface {
	Score(ctx context.Context, sentence string) (float64, error)
}

// ToxicityPolicy fails when any sentence scores above the threshold.
type ToxicityPolicy struct {
	classifier ToxicityClassifier
	threshold  float64
}

func NewToxicityPolicy(classifier ToxicityClassifier, threshold float64) *ToxicityPolicy {
	if classifier == nil {
		classifier = NewLexiconClassifier()
	}
	return &ToxicityPolicy{classifier: classifier, threshold: threshold}
}

func (p *ToxicityPolicy) Name() string { return PolicyToxic }

func (p *ToxicityPolicy) Check(ctx context.Context, payload string) error {
	for _, sentence := range SplitSentences(payload) {
		score, err := p.classifier.Score(ctx, sentence)
		if err != nil {
			return fmt.Errorf("toxicity classification: %w", err)
		}
		if score > p.threshold {
			return &ValidationError{
				Policy: PolicyToxic,
				Detail: fmt.Sprintf("sentence %q scored %.2f (threshold %.2f)", sentence, score, p.threshold),
			}
		}
	}
	return nil
}

var sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)|\n+`)

// SplitSentences splits text on terminal punctuation and line breaks,
// dropping empty fragments.
func SplitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}
