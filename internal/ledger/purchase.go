package ledger

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/marketplace-ledger/internal/funds"
	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/marketplace-ledger/internal/store"
)

// Processor executes purchases against a Ledger.
type Processor struct {
	ledger   *Ledger
	transfer funds.Transferrer
	policy   OverpaymentPolicy
}

// NewProcessor returns a Processor routing payments through t. A nil t
// records balances only.
func NewProcessor(l *Ledger, t funds.Transferrer, policy OverpaymentPolicy) *Processor {
	if t == nil {
		t = funds.Noop{}
	}
	if policy == "" {
		policy = PolicyRefund
	}
	return &Processor{ledger: l, transfer: t, policy: policy}
}

// Policy returns the overpayment policy in effect.
func (p *Processor) Policy() OverpaymentPolicy { return p.policy }

// Purchase transfers product id to buyer against paid. Checks run in order:
// existence, not yet sold, buyer differs from owner, payment covers price.
// The transfer, the balance credits and the ownership change commit together
// or not at all.
func (p *Processor) Purchase(ctx context.Context, id uint64, buyer model.Identity, paid model.Amount) (model.Product, error) {
	l := p.ledger
	ctx, span := obs.Tracer().Start(ctx, "ledger.Purchase", trace.WithAttributes(
		attribute.Int64("product.id", int64(id)),
	))
	defer span.End()

	if buyer == "" {
		return l.fail(span, invalidArgument(opPurchase, "buyer identity is required"))
	}
	paid, err := model.CheckAmount(paid)
	if err != nil {
		return l.fail(span, invalidArgument(opPurchase, "payment: "+err.Error()))
	}
	span.SetAttributes(attribute.String("payment.amount", paid.String()))

	l.mu.Lock()
	defer l.mu.Unlock()

	var sold model.Product
	err = l.store.Update(ctx, func(tx store.Tx) error {
		rec, err := lookup(ctx, tx, opPurchase, id)
		if err != nil {
			return err
		}
		if rec.IsPurchased {
			return &Error{Kind: KindAlreadySold, Op: opPurchase, ID: id, Message: "product already purchased"}
		}
		if buyer == rec.Owner {
			return &Error{Kind: KindSelfPurchase, Op: opPurchase, ID: id, Message: "buyer is the current owner"}
		}
		if paid.LessThan(rec.Price) {
			return &Error{Kind: KindInsufficientPayment, Op: opPurchase, ID: id,
				Message: "payment " + paid.String() + " below price " + rec.Price.String()}
		}
		toSeller, refund, perr := p.policy.split(rec.Price, paid)
		if perr != nil {
			perr.ID = id
			return perr
		}

		seller := rec.Owner
		if err := tx.Credit(ctx, seller, toSeller); err != nil {
			return err
		}
		if refund.IsPositive() {
			if err := tx.Credit(ctx, buyer, refund); err != nil {
				return err
			}
		}

		rec.Owner = buyer
		rec.IsPurchased = true
		if err := tx.UpdateProduct(ctx, rec); err != nil {
			return err
		}
		// value moves last so only the commit itself can fail afterwards
		if err := p.transfer.Transfer(ctx, seller, toSeller); err != nil {
			return &Error{Kind: KindTransferFailed, Op: opPurchase, ID: id, Message: "value transfer failed", Err: err}
		}
		sold = rec
		return nil
	})
	if err != nil {
		if KindOf(err) == 0 {
			err = errors.Wrap(err, "purchase product")
		}
		return l.fail(span, err)
	}
	l.emit(ctx, model.ProductPurchased, sold)
	return sold, nil
}
