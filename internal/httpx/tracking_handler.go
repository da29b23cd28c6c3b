package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/bidhaaline/fulfillment/internal/orders"
	"github.com/bidhaaline/fulfillment/internal/redisx"
	"github.com/bidhaaline/fulfillment/internal/tracking"
)

// TrackingStore is the slice of the tracking repo the handler needs.
type TrackingStore interface {
	History(ctx context.Context, orderID string) ([]tracking.Event, error)
}

type TrackingHandler struct {
	Orders   orders.Store
	Tracking TrackingStore
	Redis    *redis.Client // optional status cache
}

func (h *TrackingHandler) Register(r chi.Router) {
	r.Get("/tracking/{orderId}", h.get)
	r.Post("/tracking/{orderId}", h.add)
}

func (h *TrackingHandler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context5s(r)
	defer cancel()

	o, err := h.Orders.GetByID(ctx, uid, orderID)
	if err != nil {
		respondErr(w, err)
		return
	}
	history, err := h.Tracking.History(ctx, orderID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]any{
		"order": map[string]any{
			"id":             o.ID,
			"status":         o.Status,
			"total_cents":    o.TotalCents,
			"created_at":     o.CreatedAt,
			"customer_name":  o.CustomerName,
			"customer_phone": o.CustomerPhone,
		},
		"trackingHistory": history,
	})
}

// add accepts fulfillment updates from the (externally authenticated) admin
// workflow. Only Shipped and Delivered are settable here; the remaining
// labels are written by order creation, payment reconciliation, and
// cancellation, and the status machine rejects out-of-order updates.
func (h *TrackingHandler) add(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid json")
		return
	}
	kind, err := tracking.KindForLabel(req.Status)
	if err != nil {
		respondBadRequest(w, err.Error())
		return
	}
	var to orders.Status
	switch kind {
	case tracking.KindShipped:
		to = orders.StatusShipped
	case tracking.KindDelivered:
		to = orders.StatusDelivered
	default:
		respondBadRequest(w, "only Shipped and Delivered can be set through tracking")
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	if _, err := h.Orders.GetByID(ctx, uid, orderID); err != nil {
		respondErr(w, err)
		return
	}
	if err := h.Orders.Advance(ctx, orderID, to); err != nil {
		respondErr(w, err)
		return
	}
	h.refreshStatusCache(ctx, orderID, to)
	respondData(w, http.StatusCreated, "Tracking update added", map[string]any{
		"order_id": orderID,
		"status":   to,
	})
}

func (h *TrackingHandler) refreshStatusCache(ctx context.Context, orderID string, s orders.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(statusBody(orderID, s))
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
