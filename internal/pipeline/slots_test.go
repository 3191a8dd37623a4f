package pipeline

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools"
)

var testCatalog = []domain.Product{
	{ID: "P1", Title: "Midi Wrap Dress", Price: 119, Tags: []string{"wedding", "midi"}},
	{ID: "P2", Title: "Satin Slip Dress", Price: 99, Tags: []string{"wedding", "midi"}},
	{ID: "P5", Title: "Sequin Party Dress", Price: 149, Tags: []string{"party"}},
}

func TestExtractPriceCap(t *testing.T) {
	e := NewExtractor(testCatalog)
	tests := []struct {
		utterance string
		want      float64
	}{
		{"wedding dress under $100", 100},
		{"something below 80", 80},
		{"less than $75.50 please", 75.5},
		{"max 120", 120},
		{"dresses <90", 90},
		{"up to $60", 60},
	}
	for _, tt := range tests {
		s := e.Extract(tt.utterance)
		if s.PriceCap == nil || *s.PriceCap != tt.want {
			t.Errorf("Extract(%q).PriceCap = %v, want %v", tt.utterance, s.PriceCap, tt.want)
		}
	}
	if s := e.Extract("a party dress"); s.PriceCap != nil {
		t.Errorf("unexpected price cap %v", *s.PriceCap)
	}
}

func TestExtractVocabulary(t *testing.T) {
	s := NewExtractor(testCatalog).Extract("Wedding guest, midi, under $120")
	if !slices.Equal(s.Tags, []string{"wedding", "midi"}) {
		t.Errorf("tags = %v", s.Tags)
	}
	if !slices.Equal(s.Terms, []string{"midi"}) {
		t.Errorf("terms = %v", s.Terms)
	}
	if !s.HasSearch() {
		t.Error("HasSearch = false")
	}
}

func TestExtractZipCode(t *testing.T) {
	e := NewExtractor(testCatalog)
	if s := e.Extract("ETA to 560001?"); s.ZipCode != "560001" {
		t.Errorf("zip = %q", s.ZipCode)
	}
	if s := e.Extract("under 10000 delivered to 94107"); s.ZipCode != "94107" || s.PriceCap == nil || *s.PriceCap != 10000 {
		t.Errorf("zip = %q, cap = %v", s.ZipCode, s.PriceCap)
	}
	if s := e.Extract("order A123456"); s.ZipCode != "" {
		t.Errorf("zip taken from an order id: %q", s.ZipCode)
	}
}

func TestExtractSizes(t *testing.T) {
	e := NewExtractor(testCatalog)
	tests := []struct {
		utterance string
		sizes     []string
		fit       string
		asked     bool
	}{
		{"I'm between M/L", []string{"M", "L"}, "", true},
		{"between s and m, fitted please", []string{"S", "M"}, "fitted", true},
		{"usually a size XL", []string{"XL"}, "", true},
		{"something roomy", nil, "relaxed", true},
		{"what sizes does P2 come in", nil, "", true},
		{"a wedding dress", nil, "", false},
	}
	for _, tt := range tests {
		s := e.Extract(tt.utterance)
		if !slices.Equal(s.Sizes, tt.sizes) || s.Fit != tt.fit || s.SizeAsked != tt.asked {
			t.Errorf("Extract(%q) = sizes %v fit %q asked %v", tt.utterance, s.Sizes, s.Fit, s.SizeAsked)
		}
	}
}

func TestExtractOrderCredentials(t *testing.T) {
	e := NewExtractor(testCatalog)
	tests := []struct {
		utterance string
		id, email string
		cancel    bool
	}{
		{"Cancel order A1003 — email mira@example.com.", "A1003", "mira@example.com", true},
		{"order #a1002, alex@example.com", "A1002", "alex@example.com", false},
		{"I bought P1 in B2040, contact me at x.y+z@mail.example.org", "B2040", "x.y+z@mail.example.org", false},
		{"cancel it please", "", "", true},
	}
	for _, tt := range tests {
		s := e.Extract(tt.utterance)
		if s.OrderID != tt.id || s.Email != tt.email || s.Cancel != tt.cancel {
			t.Errorf("Extract(%q) = id %q email %q cancel %v", tt.utterance, s.OrderID, s.Email, s.Cancel)
		}
	}
}

func TestSelectTools(t *testing.T) {
	now := time.Date(2025, 9, 7, 12, 35, 0, 0, time.UTC)
	e := NewExtractor(testCatalog)

	plan, serr := SelectTools(domain.IntentProductAssist, e.Extract("midi under $120, between M/L, ETA 560001"), now)
	if serr != nil || !slices.Equal(plan.Tools(), []string{tools.ProductSearch, tools.SizeRecommender, tools.ETA}) {
		t.Errorf("product plan = %v, %v", plan.Tools(), serr)
	}

	plan, _ = SelectTools(domain.IntentProductAssist, e.Extract("which size fits best?"), now)
	if len(plan) != 0 {
		t.Errorf("size without a product planned %v", plan.Tools())
	}

	plan, serr = SelectTools(domain.IntentOrderHelp, e.Extract("cancel order A1003 mira@example.com"), now)
	if serr != nil || !slices.Equal(plan.Tools(), []string{tools.OrderLookup, tools.OrderCancel}) {
		t.Fatalf("order plan = %v, %v", plan.Tools(), serr)
	}
	if step, _ := plan.step(tools.OrderCancel); step.Params["now"] != now {
		t.Errorf("cancel now = %v", step.Params["now"])
	}

	_, serr = SelectTools(domain.IntentOrderHelp, e.Extract("cancel order A1003"), now)
	if serr == nil || serr.Kind != domain.KindInvalidInput {
		t.Errorf("missing email: %v", serr)
	}

	if plan, serr := SelectTools(domain.IntentOther, e.Extract("cancel order A1003 mira@example.com"), now); plan != nil || serr != nil {
		t.Errorf("other planned %v, %v", plan, serr)
	}
}

func TestCheckGrounding(t *testing.T) {
	price := 99.0
	evidence := []Evidence{
		{Type: EvidenceProduct, ID: "P2", Price: &price},
		{Type: EvidenceOrder, ID: "A1003", Items: []domain.LineItem{{ProductID: "P3", Size: "L"}}},
	}
	tests := []struct {
		text string
		ok   bool
	}{
		{"P2 costs $99.00 and order A1003 holds P3.", true},
		{"Delivery takes 2-3 business days.", true},
		{"P4 is great", false},
		{"Order A1004 is open", false},
		{"Only $1,099!", false},
		{"Now $98", false},
		{"order a1003 holds p3", true},
		{"p9 is back in stock", false},
		{"Order a1004 is open", false},
		{"It is 99 dollars", true},
		{"Only 49 dollars today", false},
		{"Just 49 USD", false},
		{"We emailed mira@example.com about A1003.", false},
	}
	for _, tt := range tests {
		err := CheckGrounding(tt.text, evidence)
		if (err == nil) != tt.ok {
			t.Errorf("CheckGrounding(%q) = %v, want ok=%v", tt.text, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrUngrounded) {
			t.Errorf("error %v does not wrap ErrUngrounded", err)
		}
	}
}

func TestTraceValidate(t *testing.T) {
	safe := SafeTrace("bogus")
	if err := safe.Validate(); err != nil {
		t.Errorf("SafeTrace invalid: %v", err)
	}
	bad := SafeTrace(domain.IntentOther)
	bad.ToolsCalled = []string{"shell"}
	if bad.Validate() == nil {
		t.Error("unknown tool accepted")
	}
	noMsg := SafeTrace(domain.IntentOther)
	noMsg.FinalMessage = ""
	if noMsg.Validate() == nil {
		t.Error("empty message accepted")
	}
}
