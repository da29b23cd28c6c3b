package redisx

import "time"

const (
	// Cache order status: order_status:{order_id} -> {"status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup payment callbacks ahead of the DB guard:
	// dedup:callback:{checkout_request_id} -> 1
	KeyCallbackDedup = "dedup:callback:%s"

	// In-flight payment initiation per order, so a double-tap on "Pay"
	// does not fire two STK pushes: idem:payment:init:{order_id}
	KeyPaymentInit = "idem:payment:init:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLCallback    = 48 * time.Hour
	TTLPaymentInit = 90 * time.Second
)
