package nlu

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/llm"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/tools/catalog"
	"github.com/jkaninda/duka/internal/tools/shipping"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedProvider struct {
	reply string
	stop  string
	err   error
	last  *llm.Request
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) SendMessage(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.reply, StopReason: s.stop}, nil
}

func TestRuleClassifier(t *testing.T) {
	tests := []struct {
		utterance string
		want      domain.Intent
	}{
		{"Wedding guest, midi, under $120 — I'm between M/L. ETA to 560001?", domain.IntentProductAssist},
		{"Show me a wedding dress under $100", domain.IntentProductAssist},
		{"Cancel order A1003 — email mira@example.com.", domain.IntentOrderHelp},
		{"Cancel my wedding dress order", domain.IntentOrderHelp},
		{"Where is my order A1002?", domain.IntentOrderHelp},
		{"I want a refund", domain.IntentOrderHelp},
		{"Can you give me a discount code that doesn't exist?", domain.IntentOther},
		{"hello", domain.IntentOther},
		{"", domain.IntentOther},
	}
	c := NewRuleClassifier()
	for _, tt := range tests {
		got, err := c.Classify(context.Background(), tt.utterance)
		if err != nil {
			t.Fatalf("Classify(%q): %v", tt.utterance, err)
		}
		if got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.utterance, got, tt.want)
		}
	}
}

func TestModelClassifier(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		want    domain.Intent
		wantErr bool
	}{
		{name: "json", reply: `{"intent":"order_help"}`, want: domain.IntentOrderHelp},
		{name: "bare label", reply: "product_assist\n", want: domain.IntentProductAssist},
		{name: "quoted label", reply: `"other"`, want: domain.IntentOther},
		{name: "unknown label", reply: "shipping", want: domain.IntentOther, wantErr: true},
		{name: "provider error", err: errors.New("boom"), want: domain.IntentOther, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{reply: tt.reply, err: tt.err}
			c := NewModelClassifier(p, 0, discardLogger())
			got, err := c.Classify(context.Background(), "hi")
			if got != tt.want {
				t.Errorf("intent = %s, want %s", got, tt.want)
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUpstream) {
					t.Errorf("err = %v, want ErrUpstream", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !p.last.JSON || p.last.MaxTokens != 32 {
				t.Errorf("request = %+v, want JSON mode with 32 tokens", p.last)
			}
		})
	}
}

func TestModelWriter(t *testing.T) {
	b := &Brief{Intent: domain.IntentOther, Utterance: "hi"}

	p := &scriptedProvider{reply: "  Hello there!  "}
	text, err := NewModelWriter(p, 0, discardLogger()).Write(context.Background(), b)
	if err != nil || text != "Hello there!" {
		t.Fatalf("Write = %q, %v", text, err)
	}
	if !strings.Contains(p.last.Messages[0].Content, `"intent":"other"`) {
		t.Errorf("prompt does not carry the brief: %s", p.last.Messages[0].Content)
	}

	_, err = NewModelWriter(&scriptedProvider{reply: "   "}, 0, discardLogger()).Write(context.Background(), b)
	if !errors.Is(err, ErrEmptyReply) || !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("empty reply err = %v", err)
	}

	_, err = NewModelWriter(&scriptedProvider{err: errors.New("down")}, 0, discardLogger()).Write(context.Background(), b)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("provider error err = %v", err)
	}
}

func TestRenderProducts(t *testing.T) {
	p1 := domain.Product{ID: "P1", Title: "Midi Wrap Dress", Price: 119, Sizes: []string{"S", "M", "L"}, Color: "Charcoal"}
	p2 := domain.Product{ID: "P2", Title: "Satin Slip Dress", Price: 99, Sizes: []string{"XS", "S", "M"}, Color: "Blush"}
	eta := shipping.Lookup("560001")
	b := &Brief{
		Intent:      domain.IntentProductAssist,
		Searched:    true,
		Products:    []domain.Product{p1, p2},
		Size:        &catalog.SizeRecommendation{ProductID: "P1", Candidates: []string{"M", "L"}},
		SizeProduct: &p1,
		ETA:         &eta,
	}
	got := Render(b)
	for _, want := range []string{
		"I found 2 dresses for you:",
		"• Midi Wrap Dress ($119, Charcoal) - Available in S, M, L",
		"• Satin Slip Dress ($99, Blush) - Available in XS, S, M",
		"For M vs L: choose M if you prefer a fitted look, L if you want more room.",
		"Delivery to 560001: 2-3 business days.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestRenderProductVariants(t *testing.T) {
	p2 := domain.Product{ID: "P2", Title: "Satin Slip Dress", Price: 99, Sizes: []string{"XS", "S", "M"}}
	tests := []struct {
		name string
		b    *Brief
		want string
	}{
		{"no products", &Brief{Intent: domain.IntentProductAssist, Searched: true}, MsgNoProducts},
		{"catalog down", &Brief{Intent: domain.IntentProductAssist, Searched: true, Unavailable: true}, MsgCatalogUnavailable},
		{"nothing asked", &Brief{Intent: domain.IntentProductAssist}, MsgProductPrompt},
		{"single", &Brief{Intent: domain.IntentProductAssist, Searched: true, Products: []domain.Product{p2}}, "I found 1 dress for you:"},
		{
			"confident fitted",
			&Brief{Intent: domain.IntentProductAssist, Size: &catalog.SizeRecommendation{ProductID: "P2", Size: "S", Confident: true, Fit: catalog.FitFitted}, SizeProduct: &p2},
			"For the Satin Slip Dress I'd recommend size S for a more fitted look.",
		},
		{
			"open question",
			&Brief{Intent: domain.IntentProductAssist, Size: &catalog.SizeRecommendation{ProductID: "P2", Candidates: []string{"XS", "S", "M"}}, SizeProduct: &p2},
			"The Satin Slip Dress comes in XS, S, M.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.b); !strings.Contains(got, tt.want) {
				t.Errorf("Render = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestRenderOrder(t *testing.T) {
	created := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	order := &OrderSummary{ID: "A1003", Status: domain.OrderOpen, CreatedAt: created, Items: []domain.LineItem{{ProductID: "P3", Size: "L"}}}
	guard := policy.NewGuard(policy.Config{})
	allowed := guard.Evaluate(policy.Subject{Found: true, Authorized: true, Status: domain.OrderOpen, CreatedAt: created}, created.Add(30*time.Minute))
	late := guard.Evaluate(policy.Subject{Found: true, Authorized: true, Status: domain.OrderOpen, CreatedAt: created}, created.Add(95*time.Minute))
	fulfilled := guard.Evaluate(policy.Subject{Found: true, Authorized: true, Status: domain.OrderFulfilled, CreatedAt: created}, created.Add(time.Minute))
	notFound := guard.Evaluate(policy.Subject{}, created)
	unauthorized := guard.Evaluate(policy.Subject{Found: true}, created)

	tests := []struct {
		name string
		b    *Brief
		want []string
	}{
		{"status", &Brief{Intent: domain.IntentOrderHelp, Order: order}, []string{"Order A1003 is currently open.", "Sep 7, 2025 at 12:00 UTC", "P3 (size L)"}},
		{"allowed", &Brief{Intent: domain.IntentOrderHelp, Order: order, Decision: &allowed}, []string{"Order A1003 cancelled successfully. Refund will process in 3-5 business days."}},
		{"late", &Brief{Intent: domain.IntentOrderHelp, Order: order, Decision: &late, ElapsedMinutes: 95, WindowMinutes: 60}, []string{
			"was placed 95 minutes ago, beyond our 60-minute cancellation window.",
			"1. Update shipping address",
			"2. Convert to store credit",
			"3. Connect with customer support",
			"Which option would you prefer?",
		}},
		{"fulfilled", &Brief{Intent: domain.IntentOrderHelp, Order: order, Decision: &fulfilled}, []string{"already been fulfilled"}},
		{"not found", &Brief{Intent: domain.IntentOrderHelp, Decision: &notFound}, []string{MsgOrderNotMatched}},
		{"unauthorized", &Brief{Intent: domain.IntentOrderHelp, Decision: &unauthorized}, []string{MsgOrderNotMatched}},
		{"missing credentials", &Brief{Intent: domain.IntentOrderHelp, MissingCredentials: true}, []string{MsgMissingCredentials}},
		{"store down", &Brief{Intent: domain.IntentOrderHelp, Unavailable: true}, []string{MsgOrderUnavailable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.b)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Render missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestRenderDiscountAndFallback(t *testing.T) {
	got := Render(&Brief{Intent: domain.IntentOther, DiscountRefused: true, Offers: policy.LegitimateOffers})
	if !strings.HasPrefix(got, MsgDiscountRefused) {
		t.Errorf("discount reply = %q", got)
	}
	for _, o := range policy.LegitimateOffers {
		if !strings.Contains(got, o) {
			t.Errorf("discount reply missing offer %q", o)
		}
	}
	if got := Render(&Brief{Intent: domain.IntentOther}); got != MsgFallback {
		t.Errorf("fallback = %q", got)
	}
}

func TestFormatPrice(t *testing.T) {
	for in, want := range map[float64]string{119: "$119", 99.5: "$99.50", 0: "$0", 12.25: "$12.25"} {
		if got := FormatPrice(in); got != want {
			t.Errorf("FormatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		minutes float64
		want    string
	}{
		{1, "1 minute"},
		{60.0166, "61 minutes"},
		{95, "95 minutes"},
		{150, "2.5 hours"},
		{24 * 60 * 3, "3 days"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.minutes); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}
