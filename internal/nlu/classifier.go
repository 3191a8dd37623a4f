package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/llm"
)

var (
	productKeywords = regexp.MustCompile(`(?i)\b(dress(es)?|products?|wedding|midi|sizes?|prices?|eta|under)\b`)
	orderKeywords   = regexp.MustCompile(`(?i)\b(cancel\w*|orders?|refunds?)\b`)
	cancelWord      = regexp.MustCompile(`(?i)\bcancel`)
)

// ExpressesCancellation reports whether the utterance asks to cancel.
func ExpressesCancellation(utterance string) bool {
	return cancelWord.MatchString(utterance)
}

// RuleClassifier classifies by keyword. It is deterministic and offline.
type RuleClassifier struct{}

// NewRuleClassifier creates the keyword classifier.
func NewRuleClassifier() *RuleClassifier { return &RuleClassifier{} }

// Classify never fails. Product keywords win unless the utterance mentions
// cancelling; order keywords come next; anything else is other.
func (RuleClassifier) Classify(_ context.Context, utterance string) (domain.Intent, error) {
	switch {
	case productKeywords.MatchString(utterance) && !ExpressesCancellation(utterance):
		return domain.IntentProductAssist, nil
	case orderKeywords.MatchString(utterance):
		return domain.IntentOrderHelp, nil
	}
	return domain.IntentOther, nil
}

const classifierPrompt = `You route customer messages for an online dress shop.
Answer with a JSON object {"intent": "<label>"} where <label> is exactly one of:
- product_assist: finding products, prices, sizes or delivery estimates
- order_help: looking up, cancelling or getting a refund for an existing order
- other: anything else
Do not add any other keys or text.`

// ModelClassifier asks an LLM for the intent label.
type ModelClassifier struct {
	provider  llm.Provider
	maxTokens int
	logger    *slog.Logger
}

// NewModelClassifier creates a classifier backed by p.
func NewModelClassifier(p llm.Provider, maxTokens int, logger *slog.Logger) *ModelClassifier {
	if maxTokens <= 0 {
		maxTokens = 32
	}
	return &ModelClassifier{provider: p, maxTokens: maxTokens, logger: logger}
}

// Classify returns an error wrapping domain.ErrUpstream when the provider
// fails or answers with something that is not a known label.
func (c *ModelClassifier) Classify(ctx context.Context, utterance string) (domain.Intent, error) {
	req := llm.UserPrompt(classifierPrompt, utterance, c.maxTokens)
	req.JSON = true
	resp, err := c.provider.SendMessage(ctx, req)
	if err != nil {
		return domain.IntentOther, fmt.Errorf("classifier %s: %w: %w", c.provider.Name(), domain.ErrUpstream, err)
	}
	intent, ok := parseLabel(resp.Text())
	if !ok {
		c.logger.WarnContext(ctx, "classifier returned unknown label",
			slog.String("provider", c.provider.Name()),
			slog.String("label", truncate(resp.Text(), 64)),
		)
		return domain.IntentOther, fmt.Errorf("classifier %s: unparseable label: %w", c.provider.Name(), domain.ErrUpstream)
	}
	return intent, nil
}

// parseLabel accepts {"intent": "..."} or a bare label.
func parseLabel(text string) (domain.Intent, bool) {
	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return domain.ParseIntent(out.Intent)
	}
	return domain.ParseIntent(strings.Trim(text, "\"'` \n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var (
	_ Classifier = (*RuleClassifier)(nil)
	_ Classifier = (*ModelClassifier)(nil)
)
