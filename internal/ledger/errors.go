package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation was rejected.
type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindNotFound
	KindAlreadySold
	KindSelfPurchase
	KindInsufficientPayment
	KindTransferFailed
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindAlreadySold:
		return "ALREADY_SOLD"
	case KindSelfPurchase:
		return "SELF_PURCHASE"
	case KindInsufficientPayment:
		return "INSUFFICIENT_PAYMENT"
	case KindTransferFailed:
		return "TRANSFER_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Error is a rejected ledger operation. Every Error leaves ledger state
// unchanged.
type Error struct {
	Kind    Kind
	Op      string
	ID      uint64
	Message string
	Err     error
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAlreadySold         = &Error{Kind: KindAlreadySold}
	ErrSelfPurchase        = &Error{Kind: KindSelfPurchase}
	ErrInsufficientPayment = &Error{Kind: KindInsufficientPayment}
	ErrTransferFailed      = &Error{Kind: KindTransferFailed}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.ID != 0 {
		msg = fmt.Sprintf("%s: product %d: %s", e.Op, e.ID, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// KindOf returns the Kind carried by err, or 0 if err is not a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func invalidArgument(op, msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Message: msg}
}
