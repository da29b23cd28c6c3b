package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bidhaaline/fulfillment/internal/mpesa"
	"github.com/bidhaaline/fulfillment/internal/payments"
)

// StatusQuerier is the polling fallback against the gateway.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (mpesa.QueryResult, error)
}

type PaymentsHandler struct {
	Initiator  *payments.Initiator
	Reconciler *payments.Reconciler
	Store      payments.Store
	Orders     payments.OrderReader
	Gateway    StatusQuerier
	Log        *zap.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/mpesa/initiate", h.initiate)
	r.Get("/payments/mpesa/status/{checkoutRequestId}", h.status)
	r.Post("/payments/mpesa/callback", h.callback)
	r.Get("/payments/transactions", h.transactions)
	r.Get("/payments/order/{orderId}", h.byOrder)
}

func (h *PaymentsHandler) initiate(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		OrderID     string `json:"order_id"`
		PhoneNumber string `json:"phone_number"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid json")
		return
	}
	if req.OrderID == "" || req.PhoneNumber == "" {
		respondBadRequest(w, "order_id and phone_number are required")
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	res, err := h.Initiator.Initiate(ctx, uid, req.OrderID, req.PhoneNumber, req.AmountCents)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK,
		"Payment request sent to your phone. Enter your M-Pesa PIN to complete the payment.",
		res)
}

func (h *PaymentsHandler) status(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	checkoutID := chi.URLParam(r, "checkoutRequestId")

	ctx, cancel := context5s(r)
	defer cancel()

	local, err := h.Store.GetByCheckoutID(ctx, checkoutID)
	if err != nil {
		respondErr(w, err)
		return
	}
	gw, err := h.Gateway.QueryStatus(ctx, checkoutID)
	if err != nil {
		// local record still answers; the gateway view is best-effort
		h.Log.Warn("gateway status query failed",
			zap.String("checkout_request_id", checkoutID), zap.Error(err))
	}
	respondData(w, http.StatusOK, "", map[string]any{
		"mpesaStatus":      gw,
		"localTransaction": local,
	})
}

// callback is the gateway webhook. Whatever happens inside, the gateway
// gets its fixed acknowledgment; a non-2xx here only provokes redelivery
// of something we already have durable state for.
func (h *PaymentsHandler) callback(w http.ResponseWriter, r *http.Request) {
	ack := func() {
		writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Success"})
	}

	var env mpesa.CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.Log.Error("undecodable callback body", zap.Error(err))
		ack()
		return
	}

	res := h.Reconciler.HandleCallback(r.Context(), env)
	h.Log.Info("callback processed",
		zap.String("outcome", res.Outcome),
		zap.String("checkout_request_id", res.CheckoutRequestID),
		zap.String("order_id", res.OrderID))
	ack()
}

func (h *PaymentsHandler) transactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, offset := pageWindow(r)

	ctx, cancel := context5s(r)
	defer cancel()

	list, err := h.Store.List(ctx, payments.ListParams{
		UserID: uid,
		Status: payments.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]any{"transactions": list})
}

func (h *PaymentsHandler) byOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context5s(r)
	defer cancel()

	// ownership check rides on the order lookup
	if _, err := h.Orders.GetByID(ctx, uid, orderID); err != nil {
		respondErr(w, err)
		return
	}
	txn, err := h.Store.GetByOrderID(ctx, orderID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]any{"transaction": txn})
}
