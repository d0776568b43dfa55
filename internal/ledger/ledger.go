// Package ledger holds the marketplace state machine: product creation and
// the one-time Listed → Sold transition on purchase.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/marketplace-ledger/internal/events"
	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/marketplace-ledger/internal/store"
)

const (
	opCreate   = "create"
	opGet      = "get"
	opPurchase = "purchase"
)

// Ledger owns the product records and the product counter. Every mutation
// runs under one lock, so read-validate-write steps never interleave.
type Ledger struct {
	mu    sync.Mutex
	store store.Store
	sink  events.Sink
	seq   events.Sequencer
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink sets the sink notified after every commit.
func WithSink(s events.Sink) Option { return func(l *Ledger) { l.sink = s } }

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// New returns a ledger over st. Event sequence numbers continue from the
// number of transitions already committed in st.
func New(ctx context.Context, st store.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{store: st, sink: events.Discard, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	var committed uint64
	err := st.View(ctx, func(tx store.Tx) error {
		n, err := tx.Count(ctx)
		if err != nil {
			return err
		}
		sold, err := tx.SoldCount(ctx)
		if err != nil {
			return err
		}
		committed = n + sold
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load ledger state")
	}
	l.seq.Reset(committed)
	return l, nil
}

// Create lists a new product owned by creator and returns the stored record.
func (l *Ledger) Create(ctx context.Context, name string, price model.Amount, creator model.Identity) (model.Product, error) {
	ctx, span := obs.Tracer().Start(ctx, "ledger.Create", trace.WithAttributes(
		attribute.String("product.name", name),
	))
	defer span.End()

	price, err := model.CheckAmount(price)
	if err != nil {
		return l.fail(span, invalidArgument(opCreate, "price: "+err.Error()))
	}
	switch {
	case name == "":
		return l.fail(span, invalidArgument(opCreate, "product must have a name"))
	case !price.IsPositive():
		return l.fail(span, invalidArgument(opCreate, "product must have a positive price"))
	case creator == "":
		return l.fail(span, invalidArgument(opCreate, "creator identity is required"))
	}
	span.SetAttributes(attribute.String("product.price", price.String()))

	l.mu.Lock()
	defer l.mu.Unlock()

	var p model.Product
	err = l.store.Update(ctx, func(tx store.Tx) error {
		n, err := tx.Count(ctx)
		if err != nil {
			return err
		}
		p = model.Product{ID: n + 1, Name: name, Price: price, Owner: creator}
		return tx.InsertProduct(ctx, p)
	})
	if err != nil {
		return l.fail(span, errors.Wrap(err, "create product"))
	}
	span.SetAttributes(attribute.Int64("product.id", int64(p.ID)))
	l.emit(ctx, model.ProductCreated, p)
	return p, nil
}

// Get returns the latest committed record for id.
func (l *Ledger) Get(ctx context.Context, id uint64) (model.Product, error) {
	var p model.Product
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		p, err = lookup(ctx, tx, opGet, id)
		return err
	})
	return p, err
}

// Count returns the number of products ever created, which is also the most
// recently assigned id.
func (l *Ledger) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.Count(ctx)
		return err
	})
	return n, err
}

// List returns products in creation order. A non-positive limit returns all
// products after offset.
func (l *Ledger) List(ctx context.Context, offset, limit int) ([]model.Product, error) {
	var out []model.Product
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Products(ctx, offset, limit)
		return err
	})
	return out, err
}

// Balance returns the value recorded as routed to who.
func (l *Ledger) Balance(ctx context.Context, who model.Identity) (model.Amount, error) {
	var b model.Amount
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		b, err = tx.Balance(ctx, who)
		return err
	})
	return b, err
}

// LastSequence returns the sequence number of the latest committed event.
func (l *Ledger) LastSequence() uint64 { return l.seq.Current() }

// lookup resolves id inside tx, mapping a missing record to NotFound.
func lookup(ctx context.Context, tx store.Tx, op string, id uint64) (model.Product, error) {
	if id == 0 {
		return model.Product{}, &Error{Kind: KindNotFound, Op: op, Message: "product ids start at 1"}
	}
	p, err := tx.Product(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Product{}, &Error{Kind: KindNotFound, Op: op, ID: id, Message: "no such product"}
	}
	return p, err
}

// emit must be called with l.mu held so sinks observe commit order.
func (l *Ledger) emit(ctx context.Context, kind model.EventKind, p model.Product) {
	ev := model.NewEvent(kind, l.seq.Next(), p, l.now())
	if err := l.sink.Publish(ctx, ev); err != nil {
		obs.Logger.Warn("event_sink_error", "kind", string(kind), "sequence", ev.Sequence, "product_id", p.ID, "error", err)
	}
}

func (l *Ledger) fail(span trace.Span, err error) (model.Product, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return model.Product{}, err
}
