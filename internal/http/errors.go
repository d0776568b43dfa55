// Package httpapi exposes the marketplace ledger over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fairyhunter13/marketplace-ledger/internal/ledger"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a ledger error kind to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch ledger.KindOf(err) {
	case ledger.KindInvalidArgument:
		return http.StatusBadRequest, "invalid_argument"
	case ledger.KindNotFound:
		return http.StatusNotFound, "not_found"
	case ledger.KindAlreadySold:
		return http.StatusConflict, "already_sold"
	case ledger.KindSelfPurchase:
		return http.StatusConflict, "self_purchase"
	case ledger.KindInsufficientPayment:
		return http.StatusPaymentRequired, "insufficient_payment"
	case ledger.KindTransferFailed:
		return http.StatusBadGateway, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	details := err.Error()
	if status == http.StatusInternalServerError {
		obs.Logger.Error("request_failed",
			"request_id", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		details = ""
	}
	WriteJSONError(w, status, code, details)
}
