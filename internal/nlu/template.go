package nlu

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/tools/catalog"
)

// Fixed replies.
const (
	MsgFallback           = "I'm here to help with product searches and order management. How can I assist you today?"
	MsgMissingCredentials = "I need both your order ID and email address to help you with order-related requests."
	MsgOrderNotMatched    = "I couldn't find an order matching that order ID and email. Please double-check both and try again."
	MsgNoProducts         = "I couldn't find any products matching your criteria. Please try adjusting your price range or preferences."
	MsgProductPrompt      = "Tell me what you're shopping for (occasion, budget, size or delivery zip code) and I'll find options for you."
	MsgCatalogUnavailable = "I couldn't reach our catalog right now. Please try again in a moment."
	MsgOrderUnavailable   = "I couldn't reach our order system right now. Please try again in a moment."
	MsgDiscountRefused    = "I can't provide non-existent discount codes, but I can suggest these legitimate offers:"
)

// TemplateWriter renders replies from fixed templates. It never fails and
// needs no network.
type TemplateWriter struct{}

// NewTemplateWriter creates the template writer.
func NewTemplateWriter() *TemplateWriter { return &TemplateWriter{} }

func (w TemplateWriter) Write(_ context.Context, b *Brief) (string, error) {
	return Render(b), nil
}

// Render is the template writer as a plain function.
func Render(b *Brief) string {
	switch {
	case b.DiscountRefused:
		return renderDiscount(b.Offers)
	case b.MissingCredentials:
		return MsgMissingCredentials
	case b.Intent == domain.IntentProductAssist:
		return renderProducts(b)
	case b.Intent == domain.IntentOrderHelp:
		return renderOrder(b)
	}
	return MsgFallback
}

func renderDiscount(offers []string) string {
	var sb strings.Builder
	sb.WriteString(MsgDiscountRefused)
	for _, o := range offers {
		sb.WriteString("\n• ")
		sb.WriteString(o)
	}
	return sb.String()
}

func renderProducts(b *Brief) string {
	var parts []string
	switch {
	case len(b.Products) > 0:
		noun := "dress"
		if len(b.Products) > 1 {
			noun = "dresses"
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "I found %d %s for you:\n", len(b.Products), noun)
		for _, p := range b.Products {
			fmt.Fprintf(&sb, "\n• %s (%s", p.Title, FormatPrice(p.Price))
			if p.Color != "" {
				sb.WriteString(", " + p.Color)
			}
			sb.WriteString(")")
			if len(p.Sizes) > 0 {
				sb.WriteString(" - Available in " + strings.Join(p.Sizes, ", "))
			}
		}
		parts = append(parts, sb.String())
	case b.Searched && b.Unavailable:
		parts = append(parts, MsgCatalogUnavailable)
	case b.Searched:
		parts = append(parts, MsgNoProducts)
	}

	if line := renderSize(b.Size, b.SizeProduct); line != "" {
		parts = append(parts, line)
	}
	if b.ETA != nil {
		parts = append(parts, fmt.Sprintf("Delivery to %s: %s.", b.ETA.ZipCode, b.ETA.Range()))
	}
	if len(parts) == 0 {
		if b.Unavailable {
			return MsgCatalogUnavailable
		}
		return MsgProductPrompt
	}
	return strings.Join(parts, "\n\n")
}

func renderSize(rec *catalog.SizeRecommendation, p *domain.Product) string {
	if rec == nil {
		return ""
	}
	name := rec.ProductID
	if p != nil {
		name = "the " + p.Title
	}
	if rec.Confident {
		line := fmt.Sprintf("For %s I'd recommend size %s", name, rec.Size)
		switch rec.Fit {
		case catalog.FitFitted:
			line += " for a more fitted look"
		case catalog.FitRelaxed:
			line += " for a more relaxed fit"
		}
		return line + "."
	}
	switch len(rec.Candidates) {
	case 0:
		return fmt.Sprintf("I don't have size information for %s.", name)
	case 2:
		small, large := rec.Candidates[0], rec.Candidates[1]
		return fmt.Sprintf("For %s vs %s: choose %s if you prefer a fitted look, %s if you want more room.", small, large, small, large)
	}
	return fmt.Sprintf("%s comes in %s. Tell me your usual size or whether you prefer a fitted or relaxed fit and I'll narrow it down.",
		capitalize(name), strings.Join(rec.Candidates, ", "))
}

func renderOrder(b *Brief) string {
	d := b.Decision
	if d == nil {
		switch {
		case b.Order != nil && !b.Unavailable:
			return renderOrderStatus(b.Order)
		case b.CancelRequested && b.Order != nil:
			return fmt.Sprintf("I couldn't complete the cancellation of order %s right now. Please try again in a moment.", b.Order.ID)
		case b.Unavailable:
			return MsgOrderUnavailable
		}
		return MsgMissingCredentials
	}

	switch d.Reason {
	case policy.ReasonAllowed:
		if b.Order == nil {
			return "Your order was cancelled successfully. Refund will process in 3-5 business days."
		}
		return fmt.Sprintf("Order %s cancelled successfully. Refund will process in 3-5 business days.", b.Order.ID)
	case policy.ReasonNotFound, policy.ReasonUnauthorized:
		return MsgOrderNotMatched
	}

	var sb strings.Builder
	switch {
	case b.Order == nil:
		sb.WriteString("This order can't be cancelled.")
	case d.Status == domain.OrderCancelled:
		fmt.Fprintf(&sb, "Order %s has already been cancelled.", b.Order.ID)
	case d.Status == domain.OrderFulfilled:
		fmt.Fprintf(&sb, "Order %s has already been fulfilled and can no longer be cancelled.", b.Order.ID)
	default:
		fmt.Fprintf(&sb, "Order %s was placed %s ago, beyond our %d-minute cancellation window.",
			b.Order.ID, FormatElapsed(b.ElapsedMinutes), b.WindowMinutes)
	}
	if len(d.Alternatives) > 0 {
		sb.WriteString("\n\nI can help you with these alternatives:\n")
		for i, alt := range d.Alternatives {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, alt)
		}
		sb.WriteString("\nWhich option would you prefer?")
	}
	return sb.String()
}

func renderOrderStatus(o *OrderSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Order %s is currently %s. It was placed on %s.", o.ID, o.Status, o.CreatedAt.UTC().Format("Jan 2, 2006 at 15:04 UTC"))
	if len(o.Items) > 0 {
		items := make([]string, len(o.Items))
		for i, it := range o.Items {
			items[i] = it.ProductID
			if it.Size != "" {
				items[i] += " (size " + it.Size + ")"
			}
		}
		sb.WriteString(" Items: " + strings.Join(items, ", ") + ".")
	}
	return sb.String()
}

// FormatPrice renders a price as "$119" or "$99.50".
func FormatPrice(p float64) string {
	if p == float64(int64(p)) {
		return "$" + strconv.FormatInt(int64(p), 10)
	}
	return "$" + strconv.FormatFloat(p, 'f', 2, 64)
}

// FormatElapsed renders an order age: minutes rounded up below two hours, hours
// with one decimal below two days, whole days beyond.
func FormatElapsed(minutes float64) string {
	d := time.Duration(minutes * float64(time.Minute))
	switch {
	case d < 2*time.Hour:
		m := int(math.Ceil(minutes))
		if m == 1 {
			return "1 minute"
		}
		return strconv.Itoa(m) + " minutes"
	case d < 48*time.Hour:
		return strconv.FormatFloat(d.Hours(), 'f', 1, 64) + " hours"
	}
	return strconv.Itoa(int(d.Hours()/24)) + " days"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var _ Writer = (*TemplateWriter)(nil)
