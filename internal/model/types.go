// Package model defines domain types used by the service.
package model

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Identity is an opaque account identity. Only equality is meaningful.
type Identity string

// Amount is a count of the smallest native value unit.
type Amount = decimal.Decimal

// MaxAmountDigits bounds every amount to the range of a uint256.
const MaxAmountDigits = 78

// maxAmountText bounds the textual form accepted by ParseAmount.
const maxAmountText = 2 * MaxAmountDigits

var (
	ErrAmountFraction = errors.New("amount must be a whole number of units")
	ErrAmountRange    = errors.New("amount exceeds 78 digits")
	ErrAmountSyntax   = errors.New("amount is not a decimal number")
)

// IsAmountError reports whether err came from amount validation.
func IsAmountError(err error) bool {
	return errors.Is(err, ErrAmountFraction) || errors.Is(err, ErrAmountRange) || errors.Is(err, ErrAmountSyntax)
}

// ParseAmount parses a base-10 integer amount such as "1000000000000000000".
// The result is canonical: exponent zero, at most MaxAmountDigits digits.
func ParseAmount(s string) (Amount, error) {
	if s == "" || len(s) > maxAmountText {
		return Amount{}, ErrAmountSyntax
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrAmountSyntax
	}
	return CheckAmount(d)
}

// CheckAmount bounds a and rescales it to exponent zero. It inspects only
// the exponent and coefficient size before doing any arithmetic, so hostile
// values such as 1e200000000 are rejected in constant time.
func CheckAmount(a Amount) (Amount, error) {
	exp := int64(a.Exponent())
	coef := a.Coefficient()
	// 10^78 needs 260 bits; a negative exponent may add as many digits again.
	if coef.BitLen() > 2*260 {
		return Amount{}, ErrAmountRange
	}
	digits := int64(len(coef.Abs(coef).Text(10)))
	switch {
	case exp < -MaxAmountDigits:
		return Amount{}, ErrAmountFraction
	case exp > 0 && digits+exp > MaxAmountDigits:
		return Amount{}, ErrAmountRange
	case exp < 0 && !a.IsInteger():
		return Amount{}, ErrAmountFraction
	}
	c := decimal.NewFromBigInt(a.BigInt(), 0)
	if len(c.Abs().String()) > MaxAmountDigits {
		return Amount{}, ErrAmountRange
	}
	return c, nil
}

// AmountJSON decodes an amount from untrusted JSON, given as a string or a
// bare number, through ParseAmount.
type AmountJSON struct{ Amount }

func (a *AmountJSON) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		a.Amount = Amount{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	a.Amount = v
	return nil
}

// Units returns n smallest units as an Amount.
func Units(n int64) Amount { return decimal.NewFromInt(n) }

// Product represents one listed item and its current rights-holder.
type Product struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Price       Amount   `json:"price"`
	Owner       Identity `json:"owner"`
	IsPurchased bool     `json:"is_purchased"`
}

// EventKind names the ledger transition an Event reports.
type EventKind string

const (
	ProductCreated   EventKind = "product_created"
	ProductPurchased EventKind = "product_purchased"
)

// Event is emitted after every committed create or purchase and carries the
// full record as of the commit.
type Event struct {
	Sequence    uint64    `json:"sequence"`
	Kind        EventKind `json:"kind"`
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Price       Amount    `json:"price"`
	Owner       Identity  `json:"owner"`
	IsPurchased bool      `json:"is_purchased"`
	At          time.Time `json:"at"`
}

// NewEvent snapshots p into an event of the given kind.
func NewEvent(kind EventKind, seq uint64, p Product, at time.Time) Event {
	return Event{
		Sequence:    seq,
		Kind:        kind,
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Owner:       p.Owner,
		IsPurchased: p.IsPurchased,
		At:          at.UTC(),
	}
}

// Product returns the record carried by the event.
func (e Event) Product() Product {
	return Product{ID: e.ID, Name: e.Name, Price: e.Price, Owner: e.Owner, IsPurchased: e.IsPurchased}
}
