// Package events delivers committed ledger events to observers.
package events

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

// Sink receives events synchronously, in commit order.
type Sink interface {
	Publish(ctx context.Context, ev model.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev model.Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev model.Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, model.Event) error { return nil })

// Fanout publishes each event to all sinks concurrently and waits for all of
// them. Every sink sees events in the order Publish is called.
type Fanout []Sink

// Publish returns the first error reported by any sink. A failing sink does
// not cancel its siblings.
func (f Fanout) Publish(ctx context.Context, ev model.Event) error {
	switch len(f) {
	case 0:
		return nil
	case 1:
		return f[0].Publish(ctx, ev)
	}
	var g errgroup.Group
	for _, s := range f {
		g.Go(func() error { return s.Publish(ctx, ev) })
	}
	return g.Wait()
}
