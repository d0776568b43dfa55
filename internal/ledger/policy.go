package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

// OverpaymentPolicy decides where the part of a payment above the price goes.
type OverpaymentPolicy string

const (
	// PolicyRefund credits the seller exactly the price and the excess back
	// to the buyer's recorded balance.
	PolicyRefund OverpaymentPolicy = "refund"
	// PolicyForward credits the seller the whole payment.
	PolicyForward OverpaymentPolicy = "forward"
	// PolicyReject accepts only a payment equal to the price.
	PolicyReject OverpaymentPolicy = "reject"
)

// ParseOverpaymentPolicy accepts "refund", "forward" or "reject".
func ParseOverpaymentPolicy(s string) (OverpaymentPolicy, error) {
	switch p := OverpaymentPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyRefund, PolicyForward, PolicyReject:
		return p, nil
	case "":
		return PolicyRefund, nil
	default:
		return "", fmt.Errorf("unknown overpayment policy %q", s)
	}
}

// split returns the seller's share and the buyer's refund for a payment that
// already covers the price.
func (p OverpaymentPolicy) split(price, paid model.Amount) (seller, refund model.Amount, err *Error) {
	excess := paid.Sub(price)
	switch p {
	case PolicyForward:
		return paid, decimal.Zero, nil
	case PolicyReject:
		if excess.IsPositive() {
			return decimal.Zero, decimal.Zero, invalidArgument(opPurchase, "payment must equal price")
		}
		return price, decimal.Zero, nil
	default:
		return price, excess, nil
	}
}
