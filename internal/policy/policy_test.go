package policy

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/duka/internal/domain"
)

var created = time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)

func openSubject() Subject {
	return Subject{Found: true, Authorized: true, Status: domain.OrderOpen, CreatedAt: created}
}

func TestEvaluateWindowBoundaries(t *testing.T) {
	g := NewGuard(Config{})
	tests := []struct {
		name    string
		elapsed time.Duration
		allowed bool
	}{
		{"just created", 0, true},
		{"59 minutes", 59 * time.Minute, true},
		{"exactly 60:00", 60 * time.Minute, true},
		{"60:00.001", 60*time.Minute + time.Millisecond, false},
		{"60:01", 60*time.Minute + time.Second, false},
		{"61 minutes", 61 * time.Minute, false},
		{"95 minutes", 95 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Evaluate(openSubject(), created.Add(tt.elapsed))
			if d.CancelAllowed != tt.allowed {
				t.Fatalf("CancelAllowed = %v, want %v", d.CancelAllowed, tt.allowed)
			}
			if err := d.Validate(); err != nil {
				t.Fatalf("invariant: %v", err)
			}
			if tt.allowed {
				if d.Reason != ReasonAllowed || len(d.Alternatives) != 0 {
					t.Errorf("allowed decision = %+v", d)
				}
				return
			}
			if d.Reason != ReasonPolicyViolation {
				t.Errorf("Reason = %q, want policy_violation", d.Reason)
			}
			if !slices.Equal(d.Alternatives, DefaultAlternatives) {
				t.Errorf("Alternatives = %v", d.Alternatives)
			}
			if d.Elapsed != tt.elapsed {
				t.Errorf("Elapsed = %v, want %v", d.Elapsed, tt.elapsed)
			}
		})
	}
}

func TestEvaluateDecisionTable(t *testing.T) {
	g := NewGuard(Config{})
	within := created.Add(10 * time.Minute)
	tests := []struct {
		name    string
		subject Subject
		reason  Reason
		alts    int
	}{
		{"not found", Subject{}, ReasonNotFound, 0},
		{"unauthorized", Subject{Found: true}, ReasonUnauthorized, 0},
		{"already cancelled", Subject{Found: true, Authorized: true, Status: domain.OrderCancelled, CreatedAt: created}, ReasonPolicyViolation, 3},
		{"fulfilled", Subject{Found: true, Authorized: true, Status: domain.OrderFulfilled, CreatedAt: created}, ReasonPolicyViolation, 3},
		{"open within window", openSubject(), ReasonAllowed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Evaluate(tt.subject, within)
			if d.Reason != tt.reason || len(d.Alternatives) != tt.alts {
				t.Errorf("got %+v, want reason %q with %d alternatives", d, tt.reason, tt.alts)
			}
			if err := d.Validate(); err != nil {
				t.Errorf("invariant: %v", err)
			}
		})
	}
}

// Cancellation is allowed iff the order exists, the email matches, the order
// is open and no more than the window has elapsed.
func TestEvaluateRandomized(t *testing.T) {
	g := NewGuard(Config{})
	r := rand.New(rand.NewPCG(7, 11))
	statuses := []domain.OrderStatus{domain.OrderOpen, domain.OrderCancelled, domain.OrderFulfilled}
	for range 5000 {
		s := Subject{
			Found:      r.IntN(5) > 0,
			Authorized: r.IntN(5) > 0,
			Status:     statuses[r.IntN(len(statuses))],
			CreatedAt:  created,
		}
		now := created.Add(time.Duration(r.Int64N(int64(3 * time.Hour))))
		d := g.Evaluate(s, now)
		want := s.Found && s.Authorized && s.Status == domain.OrderOpen && now.Sub(created) <= time.Hour
		if d.CancelAllowed != want {
			t.Fatalf("subject %+v at +%v: allowed=%v, want %v", s, now.Sub(created), d.CancelAllowed, want)
		}
		if err := d.Validate(); err != nil {
			t.Fatalf("invariant: %v", err)
		}
	}
}

func TestEvaluateNormalizesTimezones(t *testing.T) {
	g := NewGuard(Config{})
	nairobi := time.FixedZone("EAT", 3*3600)
	now := created.Add(60 * time.Minute).In(nairobi)
	if d := g.Evaluate(openSubject(), now); !d.CancelAllowed {
		t.Fatalf("expected allowed at the boundary in a non-UTC zone, got %+v", d)
	}
}

func TestCustomConfig(t *testing.T) {
	g := NewGuard(Config{Window: 30 * time.Minute, Alternatives: []string{"Call us"}})
	d := g.Evaluate(openSubject(), created.Add(31*time.Minute))
	if d.CancelAllowed || !slices.Equal(d.Alternatives, []string{"Call us"}) {
		t.Errorf("got %+v", d)
	}
	if g.Window() != 30*time.Minute {
		t.Errorf("Window = %v", g.Window())
	}
}

func TestAlternativesAreCopied(t *testing.T) {
	g := NewGuard(Config{})
	d := g.Evaluate(openSubject(), created.Add(2*time.Hour))
	d.Alternatives[0] = "changed"
	again := g.Evaluate(openSubject(), created.Add(2*time.Hour))
	if again.Alternatives[0] != DefaultAlternatives[0] {
		t.Fatal("guard alternatives were mutated through a decision")
	}
}

func TestSubjectOf(t *testing.T) {
	order := &domain.Order{ID: "A1", Status: domain.OrderOpen, CreatedAt: created}
	if s := SubjectOf(nil, domain.ErrNotFound); s.Found {
		t.Error("not found subject marked found")
	}
	if s := SubjectOf(nil, domain.ErrUnauthorized); !s.Found || s.Authorized {
		t.Errorf("unauthorized subject = %+v", s)
	}
	if s := SubjectOf(order, nil); !s.Found || !s.Authorized || s.Status != domain.OrderOpen {
		t.Errorf("authorized subject = %+v", s)
	}
}

func TestDecisionJSON(t *testing.T) {
	d := Decision{CancelAllowed: true, Reason: ReasonAllowed, Elapsed: time.Minute}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"cancel_allowed":true,"reason":"allowed","alternatives":[]}` {
		t.Errorf("json = %s", raw)
	}
}

func TestDecisionValidate(t *testing.T) {
	bad := []Decision{
		{CancelAllowed: true, Reason: ReasonPolicyViolation},
		{CancelAllowed: true, Reason: ReasonAllowed, Alternatives: []string{"x"}},
		{CancelAllowed: false, Reason: ReasonAllowed},
		{Reason: ReasonNotFound, Alternatives: []string{"x"}},
	}
	for _, d := range bad {
		if err := d.Validate(); err == nil {
			t.Errorf("expected invariant violation for %+v", d)
		}
	}
}

type fakeCanceller struct {
	order   *domain.Order
	err     error
	current *domain.Order
	calls   int
}

func (f *fakeCanceller) Order(_ context.Context, _ string) (*domain.Order, error) {
	if f.current == nil {
		return nil, domain.ErrNotFound
	}
	return f.current, nil
}

func (f *fakeCanceller) CancelOrder(_ context.Context, _ string) (*domain.Order, error) {
	f.calls++
	return f.order, f.err
}

func TestEnforce(t *testing.T) {
	g := NewGuard(Config{})
	ctx := context.Background()
	allowed := g.Evaluate(openSubject(), created.Add(35*time.Minute))

	t.Run("success", func(t *testing.T) {
		c := &fakeCanceller{order: &domain.Order{ID: "A1003", Status: domain.OrderCancelled}}
		d, o, err := g.Enforce(ctx, c, "A1003", allowed)
		if err != nil || !d.CancelAllowed || o.Status != domain.OrderCancelled {
			t.Fatalf("d=%+v o=%+v err=%v", d, o, err)
		}
	})

	t.Run("lost race", func(t *testing.T) {
		c := &fakeCanceller{err: domain.ErrOrderNotOpen, current: &domain.Order{ID: "A1003", Status: domain.OrderCancelled}}
		d, o, err := g.Enforce(ctx, c, "A1003", allowed)
		if err != nil || o != nil {
			t.Fatalf("o=%v err=%v", o, err)
		}
		if d.CancelAllowed || d.Reason != ReasonPolicyViolation || len(d.Alternatives) != 3 || d.Status != domain.OrderCancelled {
			t.Errorf("d = %+v", d)
		}
	})

	t.Run("fulfilled concurrently", func(t *testing.T) {
		c := &fakeCanceller{err: domain.ErrOrderNotOpen, current: &domain.Order{ID: "A1003", Status: domain.OrderFulfilled}}
		d, _, err := g.Enforce(ctx, c, "A1003", allowed)
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if d.CancelAllowed || d.Status != domain.OrderFulfilled {
			t.Errorf("d = %+v, want violation with status fulfilled", d)
		}
	})

	t.Run("lost race and unreadable", func(t *testing.T) {
		c := &fakeCanceller{err: domain.ErrOrderNotOpen}
		if _, _, err := g.Enforce(ctx, c, "A1003", allowed); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("denied does not write", func(t *testing.T) {
		c := &fakeCanceller{}
		denied := g.Evaluate(openSubject(), created.Add(95*time.Minute))
		d, _, err := g.Enforce(ctx, c, "A1003", denied)
		if err != nil || d.CancelAllowed || c.calls != 0 {
			t.Errorf("d=%+v calls=%d err=%v", d, c.calls, err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		c := &fakeCanceller{err: errors.New("disk full")}
		if _, _, err := g.Enforce(ctx, c, "A1003", allowed); err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestRequestsFakeDiscount(t *testing.T) {
	tests := map[string]bool{
		"Can you give me a discount code that doesn't exist?": true,
		"I need a fake discount code":                         true,
		"any non-existent coupon for me?":                     true,
		"do you have a discount code?":                        false,
		"this dress is fake leather?":                         false,
	}
	for in, want := range tests {
		if got := RequestsFakeDiscount(in); got != want {
			t.Errorf("RequestsFakeDiscount(%q) = %v, want %v", in, got, want)
		}
	}
}
