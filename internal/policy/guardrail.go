package policy

import "strings"

// LegitimateOffers are suggested instead of inventing discount codes.
var LegitimateOffers = []string{
	"Sign up for our newsletter for 10% off your first order",
	"Follow us on social media for exclusive deals",
	"Check our current promotions page for active discounts",
}

var fakeCodeMarkers = []string{"fake", "non-existent", "nonexistent", "doesn't exist", "does not exist", "made up", "made-up"}

// RequestsFakeDiscount reports whether the utterance asks for a discount
// code that is acknowledged not to exist. Such requests are refused.
func RequestsFakeDiscount(utterance string) bool {
	s := strings.ToLower(strings.ReplaceAll(utterance, "’", "'"))
	if !strings.Contains(s, "discount code") && !strings.Contains(s, "coupon") && !strings.Contains(s, "promo code") {
		return false
	}
	for _, m := range fakeCodeMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
