package events

import (
	"encoding/json"
	"time"
)

const (
	TypeOrderCreated       = "OrderCreated"
	TypeOrderCancelled     = "OrderCancelled"
	TypePaymentConfirmed   = "PaymentConfirmed"
	TypePaymentFailed      = "PaymentFailed"
	TypeCallbackDeadLetter = "PaymentCallbackDeadLetter"
)

const (
	TopicOrderCreated       = "fulfillment.order.created"
	TopicOrderCancelled     = "fulfillment.order.cancelled"
	TopicPaymentConfirmed   = "fulfillment.payment.confirmed"
	TopicPaymentFailed      = "fulfillment.payment.failed"
	TopicCallbackDeadLetter = "fulfillment.payment.callback.deadletter"
)

// Partition key = order_id so every event for one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	TotalCents int64  `json:"total_cents"`
	ItemCount  int    `json:"item_count"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

type PaymentConfirmedPayload struct {
	OrderID           string `json:"order_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	ReceiptNumber     string `json:"receipt_number"`
	AmountCents       int64  `json:"amount_cents"`
}

type PaymentFailedPayload struct {
	OrderID           string `json:"order_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	ResultCode        int    `json:"result_code"`
	ResultDesc        string `json:"result_desc"`
}

// CallbackDeadLetterPayload records a callback the reconciler could not
// apply: unknown checkout id, or a success for an order no longer payable.
type CallbackDeadLetterPayload struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	Reason            string `json:"reason"`
}
