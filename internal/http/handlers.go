package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/marketplace-ledger/internal/config"
	"github.com/fairyhunter13/marketplace-ledger/internal/events"
	httpopenapi "github.com/fairyhunter13/marketplace-ledger/internal/http/openapi"
	"github.com/fairyhunter13/marketplace-ledger/internal/ledger"
	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/marketplace-ledger/internal/queue"
)

const (
	maxEventsPage = 500
	maxBodyBytes  = 64 << 10
)

type App struct {
	Cfg       config.Config
	Ledger    *ledger.Ledger
	Processor *ledger.Processor
	Journal   *events.Journal
	// Relay is nil when no network sink is configured.
	Relay   *queue.Manager
	closing atomic.Bool
	started time.Time
}

type createRequest struct {
	Name  string           `json:"name"`
	Price model.AmountJSON `json:"price"`
}

type purchaseRequest struct {
	Amount model.AmountJSON `json:"amount"`
}

type balanceResponse struct {
	Account model.Identity `json:"account"`
	Balance model.Amount   `json:"balance"`
}

type eventsResponse struct {
	Events       []model.Event `json:"events"`
	LastSequence uint64        `json:"last_sequence"`
}

func NewApp(cfg config.Config, l *ledger.Ledger, p *ledger.Processor, j *events.Journal, relay *queue.Manager) *App {
	return &App{Cfg: cfg, Ledger: l, Processor: p, Journal: j, Relay: relay, started: time.Now()}
}

// StartShutdown makes every mutating endpoint answer 503.
func (a *App) StartShutdown() { a.closing.Store(true) }

// mutating runs the shared preamble of write endpoints and returns the
// caller identity, or false after writing an error response.
func (a *App) mutating(w http.ResponseWriter, r *http.Request, body any) (model.Identity, bool) {
	if a.closing.Load() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return "", false
	}
	who := IdentityFromContext(r.Context())
	if who == "" {
		WriteJSONError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is required")
		return "", false
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return "", false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(body); err != nil {
		code := "invalid_json"
		if model.IsAmountError(err) {
			code = "invalid_argument"
		}
		WriteJSONError(w, http.StatusBadRequest, code, err.Error())
		return "", false
	}
	return who, true
}

func productID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_argument", "product id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (a *App) infoHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.Ledger.Count(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":               a.Cfg.Market.Name,
		"overpayment_policy": a.Processor.Policy(),
		"product_count":      n,
	})
}

func (a *App) createProductHandler(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	who, ok := a.mutating(w, r, &req)
	if !ok {
		return
	}
	p, err := a.Ledger.Create(r.Context(), req.Name, req.Price.Amount, who)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.Header().Set("Location", "/products/"+strconv.FormatUint(p.ID, 10))
	writeJSON(w, http.StatusCreated, p)
	obs.Logger.Info("product_created",
		"request_id", RequestIDFromContext(r.Context()),
		"product_id", p.ID,
		"owner", string(p.Owner),
		"price", p.Price.String(),
	)
}

func (a *App) purchaseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	who, ok := a.mutating(w, r, &req)
	if !ok {
		return
	}
	p, err := a.Processor.Purchase(r.Context(), id, who, req.Amount.Amount)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
	obs.Logger.Info("product_purchased",
		"request_id", RequestIDFromContext(r.Context()),
		"product_id", p.ID,
		"buyer", string(who),
		"amount", req.Amount.String(),
	)
}

func (a *App) getProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := a.Ledger.Get(r.Context(), id)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *App) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	offset, err1 := queryInt(r, "offset")
	limit, err2 := queryInt(r, "limit")
	if err1 != nil || err2 != nil || offset < 0 || limit < 0 {
		WriteJSONError(w, http.StatusBadRequest, "invalid_argument", "offset and limit must be non-negative integers")
		return
	}
	ps, err := a.Ledger.List(r.Context(), offset, limit)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if ps == nil {
		ps = []model.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (a *App) countHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.Ledger.Count(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"product_count": n})
}

func (a *App) balanceHandler(w http.ResponseWriter, r *http.Request) {
	who := model.Identity(r.PathValue("identity"))
	b, err := a.Ledger.Balance(r.Context(), who)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: who, Balance: b})
}

func (a *App) eventsHandler(w http.ResponseWriter, r *http.Request) {
	after, err := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	if err != nil && r.URL.Query().Get("after") != "" {
		WriteJSONError(w, http.StatusBadRequest, "invalid_argument", "after must be a sequence number")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		WriteJSONError(w, http.StatusBadRequest, "invalid_argument", "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxEventsPage {
		limit = maxEventsPage
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:       a.Journal.Since(after, limit),
		LastSequence: a.Ledger.LastSequence(),
	})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if a.closing.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (a *App) metricsHandler(w http.ResponseWriter, r *http.Request) {
	n, _ := a.Ledger.Count(r.Context())
	m := map[string]any{
		"product_count":  n,
		"last_sequence":  a.Ledger.LastSequence(),
		"journal_events": a.Journal.Len(),
		"uptime_sec":     time.Since(a.started).Seconds(),
	}
	if a.Relay != nil {
		m["relay"] = a.Relay.Stats()
		m["relay_workers"] = a.Relay.WorkerCount()
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>` + a.Cfg.Market.Name + ` API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
