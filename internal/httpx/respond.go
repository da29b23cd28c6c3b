package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bidhaaline/fulfillment/internal/cart"
	"github.com/bidhaaline/fulfillment/internal/catalog"
	"github.com/bidhaaline/fulfillment/internal/inventory"
	"github.com/bidhaaline/fulfillment/internal/mpesa"
	"github.com/bidhaaline/fulfillment/internal/orders"
	"github.com/bidhaaline/fulfillment/internal/payments"
)

// Envelope is the uniform response shape: {status, message?, data?}.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondData(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, Envelope{Status: "success", Message: message, Data: data})
}

func respondErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), Envelope{Status: "error", Message: err.Error()})
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, Envelope{Status: "error", Message: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, payments.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidState),
		errors.Is(err, orders.ErrInvalidInput),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, mpesa.ErrInvalidPhoneNumber),
		errors.Is(err, payments.ErrAmountMismatch),
		errors.Is(err, cart.ErrStockCap):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrInitInFlight):
		return http.StatusConflict
	case errors.Is(err, mpesa.ErrAuth), errors.Is(err, mpesa.ErrGateway):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func context5s(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

// userID returns the authenticated user set by the upstream auth layer.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, Envelope{Status: "error", Message: "missing user"})
		return "", false
	}
	return uid, true
}

// pageWindow reads ?page=&limit= the way the clients send them.
func pageWindow(r *http.Request) (limit, offset int) {
	limit = 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	return limit, (page - 1) * limit
}
