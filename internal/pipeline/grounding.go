package pipeline

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrUngrounded is returned when a reply mentions facts absent from the
// evidence.
var ErrUngrounded = errors.New("reply is not grounded in evidence")

var (
	productRef = regexp.MustCompile(`(?i)\bP\d+\b`)
	orderRef   = regexp.MustCompile(`(?i)\b[A-Z]\d{3,}\b`)
	priceRef   = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?`)
	wordPrice  = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?\s*(?:dollars?|usd)\b`)
)

// CheckGrounding verifies that every product id, order id and dollar price
// in text appears in evidence. Line item product ids count as evidence.
// Replies must never contain an email address.
func CheckGrounding(text string, evidence []Evidence) error {
	ids := map[string]bool{}
	var prices []float64
	for _, ev := range evidence {
		ids[strings.ToUpper(ev.ID)] = true
		for _, it := range ev.Items {
			ids[strings.ToUpper(it.ProductID)] = true
		}
		if ev.Price != nil {
			prices = append(prices, *ev.Price)
		}
	}

	if emailPattern.MatchString(text) {
		return fmt.Errorf("%w: reply contains an email address", ErrUngrounded)
	}
	for _, ref := range append(productRef.FindAllString(text, -1), orderRef.FindAllString(text, -1)...) {
		ref = strings.ToUpper(ref)
		if !ids[ref] {
			return fmt.Errorf("%w: unknown id %s", ErrUngrounded, ref)
		}
	}
	matches := append(priceRef.FindAllStringSubmatch(text, -1), wordPrice.FindAllStringSubmatch(text, -1)...)
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "")+m[2], 64)
		if err != nil || !knownPrice(prices, v) {
			return fmt.Errorf("%w: unknown price %s", ErrUngrounded, strings.TrimSpace(m[0]))
		}
	}
	return nil
}

func knownPrice(prices []float64, v float64) bool {
	for _, p := range prices {
		if math.Abs(p-v) < 0.005 {
			return true
		}
	}
	return false
}
