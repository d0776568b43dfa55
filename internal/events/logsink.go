package events

import (
	"context"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
)

// LogSink writes every event to the global logger.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, ev model.Event) error {
	obs.Logger.Info(string(ev.Kind),
		"sequence", ev.Sequence,
		"product_id", ev.ID,
		"name", ev.Name,
		"price", ev.Price.String(),
		"owner", string(ev.Owner),
		"is_purchased", ev.IsPurchased,
	)
	return nil
}
