package pipeline

import (
	"context"
	"log/slog"
	"slices"

	"github.com/jkaninda/duka/internal/audit"
	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/tools"
)

// enforce runs the policy guard over the executor results.
func (p *Pipeline) enforce(ctx context.Context, rc *RequestContext) {
	switch rc.Intent {
	case domain.IntentOther:
		rc.DiscountRefused = policy.RequestsFakeDiscount(rc.Utterance)
		return
	case domain.IntentOrderHelp:
	default:
		return
	}

	lookup := rc.invocation(tools.OrderLookup)
	cancel := rc.invocation(tools.OrderCancel)
	failed := lookup
	if failed == nil || !failed.Failed() {
		failed = cancel
	}
	if failed != nil && failed.Failed() {
		switch failed.Kind {
		case domain.KindNotFound, domain.KindUnauthorized:
			d := p.guard.Evaluate(policy.SubjectOf(nil, failed.Err), rc.Now)
			p.decide(ctx, rc, d, rc.Slots.OrderID, false, rc.Slots.Cancel)
		}
		return
	}
	if cancel == nil || rc.cancelReq == nil {
		return
	}

	req := rc.cancelReq
	proposed := p.guard.Evaluate(policy.SubjectOf(req.Order, nil), req.Now)
	d, updated, err := p.guard.Enforce(ctx, p.store, req.Order.ID, proposed)
	if err != nil {
		p.logger.ErrorContext(ctx, "cancellation write failed",
			slog.String("request_id", rc.RequestID),
			slog.String("order_id", req.Order.ID),
			slog.Any("error", err))
		rc.addError(StagePolicyGuard, domain.KindUpstreamUnavailable, "cancellation could not be completed")
		p.countCancellation("failed")
		p.audit(ctx, rc, req.Order.ID, proposed, false)
		return
	}

	if updated != nil {
		rc.Order = updated
		for i := range rc.Evidence {
			if rc.Evidence[i].Type == EvidenceOrder && rc.Evidence[i].ID == updated.ID {
				rc.Evidence[i].Status = updated.Status
			}
		}
		p.countCancellation("committed")
	} else if proposed.CancelAllowed {
		p.countCancellation("lost_race")
		p.logger.InfoContext(ctx, "cancellation lost race",
			slog.String("request_id", rc.RequestID),
			slog.String("order_id", req.Order.ID))
	}
	p.decide(ctx, rc, d, req.Order.ID, updated != nil, true)
}

func (p *Pipeline) decide(ctx context.Context, rc *RequestContext, d policy.Decision, orderID string, committed, audited bool) {
	rc.Decision = &d
	if d.Reason == policy.ReasonNotFound || d.Reason == policy.ReasonUnauthorized {
		rc.dropOrderEvidence()
	}
	if p.metrics != nil {
		p.metrics.PolicyDecisionsTotal.WithLabelValues(string(d.Reason)).Inc()
	}
	p.logger.InfoContext(ctx, "policy decision",
		slog.String("request_id", rc.RequestID),
		slog.String("order_id", orderID),
		slog.Bool("cancel_allowed", d.CancelAllowed),
		slog.String("reason", string(d.Reason)),
	)
	if audited {
		p.audit(ctx, rc, orderID, d, committed)
	}
}

func (p *Pipeline) audit(ctx context.Context, rc *RequestContext, orderID string, d policy.Decision, committed bool) {
	event := audit.Event{
		RequestID:      rc.RequestID,
		ReferenceTime:  rc.Now,
		Tool:           tools.OrderCancel,
		OrderID:        orderID,
		CancelAllowed:  d.CancelAllowed,
		Reason:         string(d.Reason),
		Status:         string(d.Status),
		ElapsedSeconds: d.Elapsed.Seconds(),
		Committed:      committed,
	}
	if err := p.auditLog.Log(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit log failed",
			slog.String("request_id", rc.RequestID),
			slog.Any("error", err))
	}
}

func (p *Pipeline) countCancellation(outcome string) {
	if p.metrics != nil {
		p.metrics.CancellationsTotal.WithLabelValues(outcome).Inc()
	}
}

// dropOrderEvidence removes order snapshots; a rejected lookup must not
// reveal the order.
func (rc *RequestContext) dropOrderEvidence() {
	rc.Order = nil
	rc.Evidence = slices.DeleteFunc(rc.Evidence, func(ev Evidence) bool { return ev.Type == EvidenceOrder })
}
