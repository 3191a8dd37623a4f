package pipeline

import (
	"context"
	"log/slog"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/nlu"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/tools"
)

// respond writes the reply and the trace. A writer failure or an
// ungrounded reply falls back to the templates; a trace that still fails
// validation is replaced by SafeTrace.
func (p *Pipeline) respond(ctx context.Context, rc *RequestContext) {
	brief := p.brief(rc)

	text, err := p.write(ctx, brief)
	if err == nil {
		err = CheckGrounding(text, rc.Evidence)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "writer fallback to template",
			slog.String("request_id", rc.RequestID),
			slog.Any("error", err))
		rc.addError(StageResponder, domain.KindUpstreamUnavailable, "reply writer unavailable; used template reply")
		text = nlu.Render(brief)
	}

	tr := rc.buildTrace(text)
	if err := tr.Validate(); err != nil {
		p.logger.ErrorContext(ctx, "invalid trace",
			slog.String("request_id", rc.RequestID),
			slog.Any("error", err))
		tr = rc.buildTrace(nlu.Render(brief))
		if err := tr.Validate(); err != nil {
			tr = SafeTrace(rc.Intent)
		}
	}
	rc.Trace = tr
	rc.Reply = tr.FinalMessage
}

func (p *Pipeline) write(ctx context.Context, b *nlu.Brief) (string, error) {
	if _, ok := p.writer.(*nlu.TemplateWriter); ok {
		return nlu.Render(b), nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.writer.Write(ctx, b)
}

func (p *Pipeline) brief(rc *RequestContext) *nlu.Brief {
	b := &nlu.Brief{
		Intent:             rc.Intent,
		Utterance:          redactEmails(rc.Utterance),
		Searched:           rc.invocation(tools.ProductSearch) != nil,
		Products:           rc.Products,
		Size:               rc.SizeRec,
		SizeProduct:        rc.SizeProduct,
		ETA:                rc.ETA,
		Order:              nlu.SummarizeOrder(rc.Order),
		CancelRequested:    rc.Intent == domain.IntentOrderHelp && rc.Slots.Cancel,
		Decision:           rc.Decision,
		WindowMinutes:      int(p.guard.Window().Minutes()),
		MissingCredentials: rc.hasError(StageToolSelector, domain.KindInvalidInput),
		DiscountRefused:    rc.DiscountRefused,
		Unavailable:        rc.unavailable(),
	}
	if rc.Decision != nil {
		b.ElapsedMinutes = rc.Decision.Elapsed.Minutes()
	}
	if rc.DiscountRefused {
		b.Offers = policy.LegitimateOffers
	}
	return b
}

// redactEmails masks addresses so the writer, and any model behind it,
// never sees them.
func redactEmails(utterance string) string {
	return emailPattern.ReplaceAllString(utterance, "[email]")
}
