package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bidhaaline/fulfillment/internal/events"
	kafkax "github.com/bidhaaline/fulfillment/internal/kafka"
	"github.com/bidhaaline/fulfillment/internal/metrics"
	"github.com/bidhaaline/fulfillment/internal/mpesa"
	"github.com/bidhaaline/fulfillment/internal/orders"
	"github.com/bidhaaline/fulfillment/internal/redisx"
)

// Reconciliation outcomes, also used as the callbacks metric label.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeUnknown   = "unknown"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
)

type ReconciliationResult struct {
	Outcome           string
	CheckoutRequestID string
	OrderID           string
	Status            Status
}

// Reconciler maps gateway callbacks onto transaction and order state. It
// never returns an error to the webhook: the gateway is always acknowledged
// and internal failures go to the log, the dead-letter table, and the
// conflict/error counters instead.
type Reconciler struct {
	Store    Store
	Redis    *redis.Client    // optional dedup fast path
	Producer *kafkax.Producer // optional event stream
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Service  string
}

func (r *Reconciler) HandleCallback(ctx context.Context, env mpesa.CallbackEnvelope) ReconciliationResult {
	raw, _ := json.Marshal(env)

	cb, err := mpesa.ParseCallback(env)
	if err != nil {
		r.Log.Error("malformed payment callback", zap.Error(err))
		r.count(OutcomeError)
		_ = r.Store.RecordFailure(ctx, "", "malformed callback: "+err.Error(), raw)
		return ReconciliationResult{Outcome: OutcomeError}
	}

	log := r.Log.With(
		zap.String("checkout_request_id", cb.CheckoutRequestID),
		zap.Int("result_code", cb.ResultCode))

	if r.seenBefore(ctx, cb.CheckoutRequestID) {
		log.Info("duplicate callback (dedup cache)")
		r.count(OutcomeDuplicate)
		return ReconciliationResult{Outcome: OutcomeDuplicate, CheckoutRequestID: cb.CheckoutRequestID}
	}

	txn, err := r.Store.GetByCheckoutID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, ErrTransactionNotFound) {
		// A callback for a push we never initiated. Never fabricate a
		// transaction from callback data; record and move on.
		log.Warn("callback for unknown transaction")
		r.count(OutcomeUnknown)
		_ = r.Store.RecordFailure(ctx, cb.CheckoutRequestID, "unknown transaction", raw)
		r.publishDeadLetter(cb.CheckoutRequestID, "unknown transaction")
		return ReconciliationResult{Outcome: OutcomeUnknown, CheckoutRequestID: cb.CheckoutRequestID}
	}
	if err != nil {
		log.Error("transaction lookup failed", zap.Error(err))
		r.count(OutcomeError)
		return ReconciliationResult{Outcome: OutcomeError, CheckoutRequestID: cb.CheckoutRequestID}
	}

	if txn.Status.Terminal() {
		log.Info("duplicate callback (already terminal)", zap.String("status", string(txn.Status)))
		r.markSeen(ctx, cb.CheckoutRequestID)
		r.count(OutcomeDuplicate)
		return ReconciliationResult{
			Outcome: OutcomeDuplicate, CheckoutRequestID: cb.CheckoutRequestID,
			OrderID: txn.OrderID, Status: txn.Status,
		}
	}

	params := FinalizeParams{
		CheckoutRequestID: cb.CheckoutRequestID,
		Succeeded:         cb.Succeeded(),
		ReceiptNumber:     cb.ReceiptNumber,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if !cb.TransactionDate.IsZero() {
		d := cb.TransactionDate
		params.TransactionDate = &d
	}

	fin, err := r.Store.Finalize(ctx, params)
	if err != nil {
		log.Error("finalize failed", zap.Error(err))
		r.count(OutcomeError)
		_ = r.Store.RecordFailure(ctx, cb.CheckoutRequestID, "finalize failed: "+err.Error(), raw)
		return ReconciliationResult{Outcome: OutcomeError, CheckoutRequestID: cb.CheckoutRequestID}
	}
	if !fin.Applied {
		// a concurrent delivery won the conditional update
		log.Info("duplicate callback (lost finalize race)")
		r.markSeen(ctx, cb.CheckoutRequestID)
		r.count(OutcomeDuplicate)
		return ReconciliationResult{Outcome: OutcomeDuplicate, CheckoutRequestID: cb.CheckoutRequestID, OrderID: txn.OrderID}
	}
	r.markSeen(ctx, cb.CheckoutRequestID)

	status := StatusFailed
	if cb.Succeeded() {
		status = StatusSuccess
	}
	res := ReconciliationResult{
		Outcome:           OutcomeApplied,
		CheckoutRequestID: cb.CheckoutRequestID,
		OrderID:           fin.OrderID,
		Status:            status,
	}

	switch {
	case cb.Succeeded() && !fin.OrderConfirmed:
		// Money moved at the gateway but the order is no longer
		// Processing. Keep the success record, leave the order as is,
		// and flag for manual refund follow-up.
		reason := fmt.Sprintf("payment succeeded but order %s was not in Processing", fin.OrderID)
		log.Error("order state conflict on successful payment", zap.String("order_id", fin.OrderID))
		r.count(OutcomeConflict)
		_ = r.Store.RecordFailure(ctx, cb.CheckoutRequestID, reason, raw)
		r.publishDeadLetter(cb.CheckoutRequestID, reason)
		res.Outcome = OutcomeConflict

	case cb.Succeeded():
		log.Info("payment confirmed", zap.String("order_id", fin.OrderID),
			zap.String("receipt", cb.ReceiptNumber))
		r.refreshStatusCache(ctx, fin.OrderID, orders.StatusConfirmed)
		r.count(OutcomeApplied)
		r.publish(events.TopicPaymentConfirmed, events.TypePaymentConfirmed, fin.OrderID,
			events.PaymentConfirmedPayload{
				OrderID:           fin.OrderID,
				CheckoutRequestID: cb.CheckoutRequestID,
				ReceiptNumber:     cb.ReceiptNumber,
				AmountCents:       cb.AmountCents,
			})

	default:
		log.Info("payment failed", zap.String("order_id", fin.OrderID),
			zap.String("result_desc", cb.ResultDesc))
		r.count(OutcomeApplied)
		r.publish(events.TopicPaymentFailed, events.TypePaymentFailed, fin.OrderID,
			events.PaymentFailedPayload{
				OrderID:           fin.OrderID,
				CheckoutRequestID: cb.CheckoutRequestID,
				ResultCode:        cb.ResultCode,
				ResultDesc:        cb.ResultDesc,
			})
	}
	return res
}

func (r *Reconciler) seenBefore(ctx context.Context, checkoutRequestID string) bool {
	if r.Redis == nil {
		return false
	}
	key := fmt.Sprintf(redisx.KeyCallbackDedup, checkoutRequestID)
	seen, err := redisx.Exists(ctx, r.Redis, key)
	return err == nil && seen
}

// markSeen is set only after the DB has a terminal row, so a crashed
// delivery retried by the gateway is never dropped by the cache alone.
func (r *Reconciler) markSeen(ctx context.Context, checkoutRequestID string) {
	if r.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyCallbackDedup, checkoutRequestID)
	_ = r.Redis.Set(ctx, key, "1", redisx.TTLCallback).Err()
}

// refreshStatusCache keeps the polled status key current after the order
// moves to Confirmed off the HTTP path. The payload mirrors what the status
// endpoint caches.
func (r *Reconciler) refreshStatusCache(ctx context.Context, orderID string, s orders.Status) {
	if r.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"order_id": orderID, "status": s})
	_ = r.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (r *Reconciler) count(outcome string) {
	if r.Metrics != nil {
		r.Metrics.Callbacks.WithLabelValues(outcome).Inc()
	}
}

func (r *Reconciler) publish(topic, eventType, orderID string, payload any) {
	if r.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      r.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	r.Producer.Publish(topic, events.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (r *Reconciler) publishDeadLetter(checkoutRequestID, reason string) {
	r.publish(events.TopicCallbackDeadLetter, events.TypeCallbackDeadLetter, checkoutRequestID,
		events.CallbackDeadLetterPayload{CheckoutRequestID: checkoutRequestID, Reason: reason})
}
