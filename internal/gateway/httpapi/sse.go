package httpapi

import (
	"github.com/jkaninda/okapi"

	"github.com/jkaninda/duka/internal/pipeline"
	"github.com/jkaninda/duka/internal/policy"
)

// SSEEvent represents a server-sent event for streaming responses.
type SSEEvent struct {
	Type      string           `json:"type"`                      // "intent", "tool", "policy_decision", "message", "done"
	RequestID string           `json:"request_id,omitempty"`      // Set on "done".
	Intent    string           `json:"intent,omitempty"`          // Resolved intent.
	Tool      string           `json:"tool,omitempty"`            // Tool name for tool events.
	Decision  *policy.Decision `json:"policy_decision,omitempty"` // Cancellation outcome.
	Content   string           `json:"content,omitempty"`         // Reply text.
}

// handleAssistStream handles POST /v1/assist/stream with SSE responses.
// The pipeline runs to completion first; its stages are then replayed as
// events in trace order.
func (g *Gateway) handleAssistStream(c *okapi.Context) error {
	req, abort := g.bindAssist(c)
	if abort != nil {
		return abort()
	}

	res := g.assistant.Run(c.Context(), req)
	for _, ev := range streamEvents(res) {
		if err := c.SSEvent(ev.Type, ev); err != nil {
			return nil
		}
	}
	return nil
}

func streamEvents(res *pipeline.Result) []SSEEvent {
	tr := res.Trace
	events := []SSEEvent{{Type: "intent", Intent: string(tr.Intent)}}
	for _, tool := range tr.ToolsCalled {
		events = append(events, SSEEvent{Type: "tool", Tool: tool})
	}
	if tr.PolicyDecision != nil {
		events = append(events, SSEEvent{Type: "policy_decision", Decision: tr.PolicyDecision})
	}
	events = append(events,
		SSEEvent{Type: "message", Content: tr.FinalMessage},
		SSEEvent{Type: "done", RequestID: res.RequestID},
	)
	return events
}
