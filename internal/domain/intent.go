package domain

import "strings"

// Intent is the closed classification of a user utterance.
type Intent string

const (
	IntentProductAssist Intent = "product_assist"
	IntentOrderHelp     Intent = "order_help"
	IntentOther         Intent = "other"
)

// Intents lists every valid intent.
var Intents = []Intent{IntentProductAssist, IntentOrderHelp, IntentOther}

// ParseIntent maps a label onto an intent. Unknown labels resolve to
// IntentOther with ok=false.
func ParseIntent(label string) (intent Intent, ok bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(label))) {
	case IntentProductAssist:
		return IntentProductAssist, true
	case IntentOrderHelp:
		return IntentOrderHelp, true
	case IntentOther:
		return IntentOther, true
	}
	return IntentOther, false
}
