package tracking

import (
	"fmt"
	"time"
)

// Kind is the closed set of tracking events this service emits. Labels and
// descriptions live here so the stream stays auditable; nothing builds
// tracking strings ad hoc.
type Kind int

const (
	KindOrderPlaced Kind = iota
	KindPaymentConfirmed
	KindOrderCancelled
	KindShipped
	KindDelivered
)

var kindInfo = map[Kind]struct {
	label string
	desc  string
}{
	KindOrderPlaced:      {"Order Placed", "Your order has been placed successfully"},
	KindPaymentConfirmed: {"Payment Confirmed", "Payment received via M-Pesa. Order confirmed and being prepared."},
	KindOrderCancelled:   {"Order Cancelled", "Order cancelled by customer"},
	KindShipped:          {"Shipped", "Your order has been handed to the courier"},
	KindDelivered:        {"Delivered", "Your order has been delivered"},
}

func (k Kind) Label() string { return kindInfo[k].label }

func (k Kind) Description() string { return kindInfo[k].desc }

func (k Kind) Valid() bool {
	_, ok := kindInfo[k]
	return ok
}

// KindForLabel maps an external status label (admin workflow input) back to
// a known kind.
func KindForLabel(label string) (Kind, error) {
	for k, v := range kindInfo {
		if v.label == label {
			return k, nil
		}
	}
	return 0, fmt.Errorf("tracking: unknown status label %q", label)
}

type Event struct {
	ID          int64     `json:"id"`
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
