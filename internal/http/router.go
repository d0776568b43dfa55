package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /info", app.infoHandler)
	mux.HandleFunc("POST /products", app.createProductHandler)
	mux.HandleFunc("GET /products", app.listProductsHandler)
	mux.HandleFunc("GET /products/count", app.countHandler)
	mux.HandleFunc("GET /products/{id}", app.getProductHandler)
	mux.HandleFunc("POST /products/{id}/purchase", app.purchaseHandler)
	mux.HandleFunc("GET /accounts/{identity}/balance", app.balanceHandler)
	mux.HandleFunc("GET /events", app.eventsHandler)
	mux.HandleFunc("GET /healthz", app.healthHandler)
	mux.HandleFunc("GET /debug/metrics", app.metricsHandler)
	mux.Handle("GET /debug/vars", expvar.Handler())
	mux.HandleFunc("GET /openapi.yaml", app.openapiHandler)
	mux.HandleFunc("GET /docs", app.docsHandler)

	identity := WithIdentity([]byte(app.Cfg.Auth.JWTSecret))
	return WithRequestID(WithTracing(identity(WithLogging(mux))))
}
