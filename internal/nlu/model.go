package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/llm"
)

const writerPrompt = `You are Duka, the assistant of an online dress shop. Write a short, friendly reply to the customer.

Rules:
- Use only facts from the JSON brief. Never invent products, prices, sizes, order ids, dates or discount codes.
- Mention prices exactly as given, with a leading $.
- If policy_decision.cancel_allowed is true, confirm the cancellation and say the refund takes 3-5 business days.
- If policy_decision.reason is policy_violation, explain that the order is outside the cancellation window (or no longer open) and list the alternatives as a numbered list.
- If policy_decision.reason is not_found or unauthorized, say no order matched that order ID and email without revealing which one was wrong.
- If missing_credentials is true, ask for both the order ID and the email address.
- If discount_refused is true, decline and list the offers.
- Never reveal customer email addresses.
Reply with plain text only.`

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("empty reply")

// ModelWriter asks an LLM to phrase the reply from the brief.
type ModelWriter struct {
	provider  llm.Provider
	maxTokens int
	logger    *slog.Logger
}

// NewModelWriter creates a writer backed by p.
func NewModelWriter(p llm.Provider, maxTokens int, logger *slog.Logger) *ModelWriter {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &ModelWriter{provider: p, maxTokens: maxTokens, logger: logger}
}

// Write returns an error wrapping domain.ErrUpstream on provider failure or
// an empty answer. Grounding is checked by the caller.
func (w *ModelWriter) Write(ctx context.Context, b *Brief) (string, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encoding brief: %w", err)
	}
	resp, err := w.provider.SendMessage(ctx, llm.UserPrompt(writerPrompt, string(payload), w.maxTokens))
	if err != nil {
		return "", fmt.Errorf("writer %s: %w: %w", w.provider.Name(), domain.ErrUpstream, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("writer %s: %w: %w", w.provider.Name(), domain.ErrUpstream, ErrEmptyReply)
	}
	if resp.StopReason == "max_tokens" {
		w.logger.WarnContext(ctx, "writer reply truncated",
			slog.String("provider", w.provider.Name()),
			slog.Int("max_tokens", w.maxTokens),
		)
	}
	return text, nil
}

var _ Writer = (*ModelWriter)(nil)
