package pipeline

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools/catalog"
)

// Slots are the arguments extracted from an utterance.
type Slots struct {
	Terms    []string `json:"query_terms,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	PriceCap *float64 `json:"price_cap,omitempty"`
	ZipCode  string   `json:"zip_code,omitempty"`

	ProductID string   `json:"product_id,omitempty"`
	Sizes     []string `json:"sizes,omitempty"`
	Fit       string   `json:"fit,omitempty"`
	SizeAsked bool     `json:"size_asked,omitempty"`

	OrderID string `json:"order_id,omitempty"`
	Email   string `json:"-"`
	Cancel  bool   `json:"cancel,omitempty"`
}

// HasSearch reports whether any product_search slot is present.
func (s Slots) HasSearch() bool {
	return len(s.Tags) > 0 || len(s.Terms) > 0 || s.PriceCap != nil
}

const sizeToken = `(XXS|XS|XXL|XL|S|M|L)`

var (
	priceCapPattern = regexp.MustCompile(`(?i)(?:under|below|less than|max(?:imum)?|up to|<)\s*\$?\s*(\d+(?:\.\d+)?)`)
	zipPattern      = regexp.MustCompile(`\b\d{5,6}\b`)
	orderRefPattern = regexp.MustCompile(`(?i)\border\s*(?:#|id|number|no\.?)?\s*:?\s*([A-Z]\d{3,})\b`)
	orderIDPattern  = regexp.MustCompile(`(?i)\b([A-Z]\d{3,})\b`)
	emailPattern    = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
	productIDRef    = regexp.MustCompile(`(?i)\bP\d+\b`)
	wordPattern     = regexp.MustCompile(`[a-z][a-z-]*[a-z]`)

	sizeNamed   = regexp.MustCompile(`(?i)\bsize\s+` + sizeToken + `\b`)
	sizeBetween = regexp.MustCompile(`(?i)\bbetween\s+(?:size\s+)?` + sizeToken + `\s*(?:/|-|and|or)\s*` + sizeToken + `\b`)
	sizePair    = regexp.MustCompile(`(?i)\b` + sizeToken + `\s*/\s*` + sizeToken + `\b`)
	sizeWord    = regexp.MustCompile(`(?i)\b(sizes?|sizing|fit)\b`)

	fittedWords  = regexp.MustCompile(`(?i)\b(fitted|tight|snug|petite|slim)\b`)
	relaxedWords = regexp.MustCompile(`(?i)\b(relaxed|loose|roomy|comfortable|comfy)\b`)

	cancelPattern = regexp.MustCompile(`(?i)\bcancel`)
)

// Extractor pulls slots out of utterances using a vocabulary taken from the
// catalog.
type Extractor struct {
	tags       map[string]bool
	terms      map[string]bool
	productIDs map[string]bool
}

// NewExtractor builds the tag and title-term vocabulary from products.
func NewExtractor(products []domain.Product) *Extractor {
	e := &Extractor{tags: map[string]bool{}, terms: map[string]bool{}, productIDs: map[string]bool{}}
	for _, p := range products {
		e.productIDs[strings.ToUpper(p.ID)] = true
		for _, t := range p.Tags {
			e.tags[strings.ToLower(t)] = true
		}
		for _, w := range wordPattern.FindAllString(strings.ToLower(p.Title), -1) {
			if len(w) >= 3 {
				e.terms[w] = true
			}
		}
	}
	return e
}

// Extract parses utterance. It never fails; missing slots stay empty.
func (e *Extractor) Extract(utterance string) Slots {
	var s Slots

	priceSpan := []int(nil)
	if m := priceCapPattern.FindStringSubmatchIndex(utterance); m != nil {
		if v, err := strconv.ParseFloat(utterance[m[2]:m[3]], 64); err == nil {
			s.PriceCap = &v
			priceSpan = m[2:4]
		}
	}
	for _, m := range zipPattern.FindAllStringIndex(utterance, -1) {
		if priceSpan != nil && m[0] < priceSpan[1] && priceSpan[0] < m[1] {
			continue
		}
		s.ZipCode = utterance[m[0]:m[1]]
		break
	}

	lower := strings.ToLower(utterance)
	for _, w := range wordPattern.FindAllString(lower, -1) {
		if e.tags[w] && !slices.Contains(s.Tags, w) {
			s.Tags = append(s.Tags, w)
		}
		if e.terms[w] && !slices.Contains(s.Terms, w) {
			s.Terms = append(s.Terms, w)
		}
	}

	if m := productIDRef.FindString(utterance); m != "" {
		s.ProductID = strings.ToUpper(m)
	}
	s.Sizes = extractSizes(utterance)
	switch {
	case fittedWords.MatchString(utterance):
		s.Fit = catalog.FitFitted
	case relaxedWords.MatchString(utterance):
		s.Fit = catalog.FitRelaxed
	}
	s.SizeAsked = len(s.Sizes) > 0 || s.Fit != "" || sizeWord.MatchString(utterance)

	s.Email = emailPattern.FindString(utterance)
	s.OrderID = e.orderID(utterance, s.Email)
	s.Cancel = cancelPattern.MatchString(utterance)
	return s
}

// orderID prefers an id introduced by the word "order", then the first
// letter+digits token that is not a catalog product id.
func (e *Extractor) orderID(utterance, email string) string {
	if email != "" {
		utterance = strings.ReplaceAll(utterance, email, " ")
	}
	if m := orderRefPattern.FindStringSubmatch(utterance); m != nil {
		return strings.ToUpper(m[1])
	}
	for _, m := range orderIDPattern.FindAllStringSubmatch(utterance, -1) {
		id := strings.ToUpper(m[1])
		if !e.productIDs[id] {
			return id
		}
	}
	return ""
}

func extractSizes(utterance string) []string {
	var out []string
	add := func(sizes ...string) {
		for _, sz := range sizes {
			sz = strings.ToUpper(sz)
			if sz != "" && !slices.Contains(out, sz) {
				out = append(out, sz)
			}
		}
	}
	for _, m := range sizeBetween.FindAllStringSubmatch(utterance, -1) {
		add(m[1], m[2])
	}
	for _, m := range sizePair.FindAllStringSubmatch(utterance, -1) {
		add(m[1], m[2])
	}
	for _, m := range sizeNamed.FindAllStringSubmatch(utterance, -1) {
		add(m[1])
	}
	return out
}
