package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/receiptqa/server/internal/agent/model"
)

// defaultLexicon weights abusive terms; a sentence scores the sum of the
// weights it matches, capped at 1.
var defaultLexicon = map[string]float64{
	"idiot":      0.6,
	"idiots":     0.6,
	"moron":      0.6,
	"stupid":     0.4,
	"dumb":       0.3,
	"loser":      0.4,
	"worthless":  0.4,
	"pathetic":   0.4,
	"shut up":    0.4,
	"hate you":   0.6,
	"kill you":   0.9,
	"go to hell": 0.7,
	"disgusting": 0.3,
	"garbage":    0.2,
	"trash":      0.2,
}

// LexiconClassifier is a deterministic, dependency-free toxicity scorer.
type LexiconClassifier struct {
	terms []weightedTerm
}

type weightedTerm struct {
	re     *regexp.Regexp
	weight float64
}

func NewLexiconClassifier() *LexiconClassifier {
	return NewLexiconClassifierWith(defaultLexicon)
}

func NewLexiconClassifierWith(lexicon map[string]float64) *LexiconClassifier {
	c := &LexiconClassifier{}
	for term, w := range lexicon {
		c.terms = append(c.terms, weightedTerm{
			re:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
			weight: w,
		})
	}
	return c
}

func (c *LexiconClassifier) Score(_ context.Context, sentence string) (float64, error) {
	score := 0.0
	for _, t := range c.terms {
		if t.re.MatchString(sentence) {
			score += t.weight
		}
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

const modelClassifierPrompt = `You are a content moderation classifier.
Rate how toxic (insulting, threatening, obscene, hateful) the user's sentence is.
Answer with a single number between 0 and 1 and nothing else.`

// ModelClassifier asks a chat model for a toxicity score. Each call is billed
// to the run attached to the context.
type ModelClassifier struct {
	model     einomodel.BaseChatModel
	modelName string
}

func NewModelClassifier(m einomodel.BaseChatModel, modelName string) *ModelClassifier {
	return &ModelClassifier{model: m, modelName: modelName}
}

var scorePattern = regexp.MustCompile(`\d*\.?\d+`)

func (c *ModelClassifier) Score(ctx context.Context, sentence string) (float64, error) {
	out, err := c.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(modelClassifierPrompt),
		schema.UserMessage(sentence),
	})
	if err != nil {
		return 0, err
	}
	var usage *schema.TokenUsage
	if out.ResponseMeta != nil {
		usage = out.ResponseMeta.Usage
	}
	model.Charge(ctx, c.modelName, usage)

	raw := scorePattern.FindString(strings.TrimSpace(out.Content))
	if raw == "" {
		return 0, fmt.Errorf("classifier returned no score: %q", out.Content)
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse classifier score: %w", err)
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("classifier score out of range: %v", score)
	}
	return score, nil
}
