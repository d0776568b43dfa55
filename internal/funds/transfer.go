// Package funds moves value to sellers when a purchase commits.
package funds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

// Transferrer moves amount to the destination identity and reports the
// outcome synchronously.
type Transferrer interface {
	Transfer(ctx context.Context, to model.Identity, amount model.Amount) error
}

// Func adapts a function to Transferrer.
type Func func(ctx context.Context, to model.Identity, amount model.Amount) error

func (f Func) Transfer(ctx context.Context, to model.Identity, amount model.Amount) error {
	return f(ctx, to, amount)
}

// Noop accepts every transfer. Value is then tracked only by the ledger's
// recorded balances.
type Noop struct{}

func (Noop) Transfer(context.Context, model.Identity, model.Amount) error { return nil }

// HTTPGateway forwards transfers to a payment endpoint as JSON.
type HTTPGateway struct {
	url    string
	client *http.Client
}

type transferRequest struct {
	To     model.Identity `json:"to"`
	Amount model.Amount   `json:"amount"`
}

// NewHTTPGateway returns a gateway posting to url with the given timeout.
func NewHTTPGateway(url string, timeout time.Duration) *HTTPGateway {
	t := http.DefaultTransport.(*http.Transport).Clone()
	return &HTTPGateway{url: url, client: &http.Client{Transport: t, Timeout: timeout}}
}

// Transfer posts {"to","amount"} and treats any non-2xx answer as failure.
// Each call carries a fresh Idempotency-Key.
func (g *HTTPGateway) Transfer(ctx context.Context, to model.Identity, amount model.Amount) error {
	body, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return errors.Wrap(err, "encode transfer")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build transfer request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send transfer")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway answered %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
