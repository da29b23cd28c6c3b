package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bidhaaline/fulfillment/internal/events"
	kafkax "github.com/bidhaaline/fulfillment/internal/kafka"
	"github.com/bidhaaline/fulfillment/internal/metrics"
	"github.com/bidhaaline/fulfillment/internal/orders"
	"github.com/bidhaaline/fulfillment/internal/redisx"
)

type OrdersHandler struct {
	Store    orders.Store
	Producer *kafkax.Producer // optional
	Redis    *redis.Client    // optional status cache
	Metrics  *metrics.Metrics // optional
	Log      *zap.Logger
	Service  string
}

type CreateOrderReq struct {
	Items           []orders.ItemInput `json:"items"`
	PaymentMethod   string             `json:"payment_method"`
	CustomerName    string             `json:"customer_name"`
	CustomerEmail   string             `json:"customer_email"`
	CustomerPhone   string             `json:"customer_phone"`
	ShippingAddress string             `json:"shipping_address"`
	Notes           string             `json:"notes"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.create)
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.status)
	r.Post("/orders/{id}/cancel", h.cancel)
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid json")
		return
	}
	if len(req.Items) == 0 || req.PaymentMethod == "" {
		respondBadRequest(w, "items and payment_method are required")
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	o, err := h.Store.Create(ctx, orders.CreateParams{
		UserID:          uid,
		Items:           req.Items,
		PaymentMethod:   req.PaymentMethod,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		respondErr(w, err)
		return
	}

	h.cacheStatus(ctx, o.ID, o.Status)
	if h.Metrics != nil {
		h.Metrics.OrdersCreated.Inc()
	}
	h.publish(r, events.TopicOrderCreated, events.TypeOrderCreated, o.ID,
		events.OrderCreatedPayload{
			OrderID: o.ID, UserID: uid, TotalCents: o.TotalCents, ItemCount: len(o.Items),
		})
	h.Log.Info("order created", zap.String("order_id", o.ID),
		zap.String("user_id", uid), zap.Int64("total_cents", o.TotalCents))

	respondData(w, http.StatusCreated, "Order created successfully", map[string]any{"order": o})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context5s(r)
	defer cancel()

	if err := h.Store.Cancel(ctx, uid, orderID); err != nil {
		respondErr(w, err)
		return
	}

	h.cacheStatus(ctx, orderID, orders.StatusCancelled)
	if h.Metrics != nil {
		h.Metrics.OrdersCancelled.Inc()
	}
	h.publish(r, events.TopicOrderCancelled, events.TypeOrderCancelled, orderID,
		events.OrderCancelledPayload{OrderID: orderID, UserID: uid})
	h.Log.Info("order cancelled", zap.String("order_id", orderID), zap.String("user_id", uid))

	respondData(w, http.StatusOK, "Order cancelled successfully", nil)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	o, err := h.Store.GetByID(ctx, uid, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]any{"order": o})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, offset := pageWindow(r)

	ctx, cancel := context5s(r)
	defer cancel()

	list, err := h.Store.ListByUser(ctx, uid, limit, offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]any{"orders": list})
}

// status answers the polling clients (order tracking page) from the cache
// when it can, falling back to the status column and repopulating the key.
// The cache holds bare statuses keyed by order id; ids are high-entropy, so
// a hit skips the ownership read the DB path performs.
func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context5s(r)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			respondData(w, http.StatusOK, "", json.RawMessage(s))
			return
		}
	}

	st, err := h.Store.StatusByID(ctx, uid, orderID)
	if err != nil {
		respondErr(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, st)
	respondData(w, http.StatusOK, "", statusBody(orderID, st))
}

func statusBody(orderID string, s orders.Status) map[string]any {
	return map[string]any{"order_id": orderID, "status": s}
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, s orders.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(statusBody(orderID, s))
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publish(r *http.Request, topic, eventType, orderID string, payload any) {
	if h.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       middleware.GetReqID(r.Context()),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	h.Producer.Publish(topic, events.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
