package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyIdentity
)

// AccountHeader carries the caller identity when no JWT secret is configured.
const AccountHeader = "X-Account"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

// IdentityFromContext returns the authenticated caller, or "" if none.
func IdentityFromContext(ctx context.Context) model.Identity {
	v, _ := ctx.Value(ctxKeyIdentity).(model.Identity)
	return v
}

type statusRecorder struct {
	h  http.ResponseWriter
	st int
	n  int
}

func (w *statusRecorder) Header() http.Header { return w.h.Header() }
func (w *statusRecorder) WriteHeader(code int) {
	w.st = code
	w.h.WriteHeader(code)
}
func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.h.Write(b)
	w.n += n
	return n, err
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{h: w, st: 200}
		next.ServeHTTP(sr, r)
		lat := time.Since(start)
		obs.Logger.Info("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.st,
			"bytes", sr.n,
			"latency_ms", float64(lat.Microseconds())/1000.0,
			"request_id", RequestIDFromContext(r.Context()),
			"account", string(IdentityFromContext(r.Context())),
		)
	})
}

// WithTracing wraps each request in a server span.
func WithTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := obs.Tracer().Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		sr := &statusRecorder{h: w, st: 200}
		r = r.WithContext(ctx)
		next.ServeHTTP(sr, r)
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.Int("http.response.status_code", sr.st),
			attribute.String("request.id", RequestIDFromContext(ctx)),
		)
		if sr.st >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sr.st))
		}
	})
}

// WithIdentity resolves the caller. With an empty secret the X-Account header
// is trusted as is. With a secret only an HS256 bearer token is accepted and
// its subject claim becomes the identity; an invalid token is rejected.
func WithIdentity(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var who model.Identity
			if len(secret) == 0 {
				who = model.Identity(strings.TrimSpace(r.Header.Get(AccountHeader)))
			} else if raw, ok := bearer(r); ok {
				sub, err := subject(raw, secret)
				if err != nil {
					WriteJSONError(w, http.StatusUnauthorized, "invalid_token", err.Error())
					return
				}
				who = model.Identity(sub)
			}
			if who != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity, who))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func subject(raw string, secret []byte) (string, error) {
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", err
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", jwt.ErrTokenRequiredClaimMissing
	}
	return sub, nil
}
