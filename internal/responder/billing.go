package responder

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nebulatel/handoff/internal/domain"
)

// autoCreditLimit is the largest credit the responder may grant on its own.
// Anything above it goes to a supervisor for approval.
const autoCreditLimit = 10.0

const movieRentalPrice = 14.99

var (
	dollarAmountPattern = regexp.MustCompile(`\$\s*([0-9]+(?:\.[0-9]{1,2})?)`)
	bareAmountPattern   = regexp.MustCompile(`([0-9]+(?:\.[0-9]{1,2})?)\s*(?:dollar|buck)`)
)

// BillingResponder answers billing questions, grants small credits directly,
// and raises an approval request for disputes and larger credits.
type BillingResponder struct{}

// NewBilling creates a billing responder.
func NewBilling() Responder {
	return &BillingResponder{}
}

// Name returns the routing name of the responder.
func (*BillingResponder) Name() string { return "billing" }

// Respond handles one billing message. A disputed movie rental or a credit
// above the auto-credit limit carries an approval effect; the hub pauses the
// conversation until a supervisor decides.
func (*BillingResponder) Respond(_ context.Context, message string, _ []domain.Message) (Reply, error) {
	text := strings.ToLower(message)

	if containsAny(text, "movie", "rental") {
		if containsAny(text, "not ", "n't", "never", "wrong", "unauthorized") {
			return Reply{
				Text: "I understand you're disputing a movie rental charge. Let me request a credit for you.",
				Effect: &Effect{
					Kind:   EffectApproval,
					Amount: movieRentalPrice,
					Reason: "Movie Rental Dispute - Customer claims unauthorized charge",
				},
			}, nil
		}
		return Reply{Text: fmt.Sprintf("I see a movie rental charge of $%.2f on your account. Is this charge correct?", movieRentalPrice)}, nil
	}

	if containsAny(text, "credit", "refund") {
		if amount, ok := parseAmount(text); ok {
			if amount <= autoCreditLimit {
				return Reply{Text: fmt.Sprintf("Done! I've applied a $%.2f credit to your account. It will show on your next statement.", amount)}, nil
			}
			return Reply{
				Text: fmt.Sprintf("A credit of $%.2f needs a supervisor's sign-off. Let me request that for you now.", amount),
				Effect: &Effect{
					Kind:   EffectApproval,
					Amount: amount,
					Reason: "Customer request",
				},
			}, nil
		}
	}

	if containsAny(text, "bill", "charge", "credit", "refund") {
		return Reply{Text: "I can help with billing questions. What would you like to know about your bill?"}, nil
	}

	return Reply{Text: "I can help with billing and credit requests. What do you need assistance with?"}, nil
}

// parseAmount extracts a dollar amount from the message, preferring an
// explicit $ figure over a bare "15 dollars" form.
func parseAmount(text string) (float64, bool) {
	m := dollarAmountPattern.FindStringSubmatch(text)
	if m == nil {
		m = bareAmountPattern.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, false
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}
