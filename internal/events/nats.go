package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
)

// NATSSink publishes events as JSON on <subject>.<kind>, for example
// marketplace.events.product_created.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// DialNATS connects to url and returns a sink publishing under subject.
func DialNATS(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("marketplace-ledger"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	obs.Logger.Info("nats_connected", "url", url, "subject", subject)
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Subject returns the subject events of kind k are published on.
func (s *NATSSink) Subject(k model.EventKind) string { return s.subject + "." + string(k) }

func (s *NATSSink) Publish(_ context.Context, ev model.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := s.nc.Publish(s.Subject(ev.Kind), b); err != nil {
		return errors.Wrapf(err, "nats publish seq=%d", ev.Sequence)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}
