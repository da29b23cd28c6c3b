package payments

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bidhaaline/fulfillment/internal/metrics"
	"github.com/bidhaaline/fulfillment/internal/mpesa"
	"github.com/bidhaaline/fulfillment/internal/orders"
	"github.com/bidhaaline/fulfillment/internal/redisx"
)

// Gateway is the slice of the M-Pesa client the initiator needs.
type Gateway interface {
	STKPush(ctx context.Context, phone string, amountCents int64, orderID, accountRef string) (mpesa.STKPushResult, error)
}

// OrderReader is the order surface payment initiation needs: ownership
// check plus stamping the checkout request id back onto the order.
type OrderReader interface {
	GetByID(ctx context.Context, userID, orderID string) (orders.Order, error)
	SetCheckoutRequestID(ctx context.Context, orderID, checkoutRequestID string) error
}

type Initiator struct {
	Orders  OrderReader
	Store   Store
	Gateway Gateway
	Redis   *redis.Client // optional in-flight guard
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

type InitiateResult struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage"`
}

// Initiate pushes a payment prompt for an order the caller owns. The order
// total is authoritative for the charge; a client-supplied amount that
// disagrees is rejected rather than trusted. The pending transaction row is
// written before returning, so the later callback has something to
// correlate against.
func (i *Initiator) Initiate(ctx context.Context, userID, orderID, phone string, amountCents int64) (out InitiateResult, err error) {
	o, err := i.Orders.GetByID(ctx, userID, orderID)
	if err != nil {
		return InitiateResult{}, err
	}
	if o.Status != orders.StatusProcessing {
		return InitiateResult{}, fmt.Errorf("%w: order is not in a payable state", orders.ErrInvalidState)
	}
	if amountCents != 0 && amountCents != o.TotalCents {
		return InitiateResult{}, ErrAmountMismatch
	}

	if i.Redis != nil {
		key := fmt.Sprintf(redisx.KeyPaymentInit, orderID)
		acquired, rerr := i.Redis.SetNX(ctx, key, "1", redisx.TTLPaymentInit).Result()
		if rerr == nil && !acquired {
			return InitiateResult{}, ErrInitInFlight
		}
		defer func() {
			// release on failure so the customer can retry at once;
			// on success the TTL holds until the push settles
			if err != nil {
				i.Redis.Del(context.WithoutCancel(ctx), key)
			}
		}()
	}

	res, err := i.Gateway.STKPush(ctx, phone, o.TotalCents, orderID, "Bidhaaline-"+orderID)
	if err != nil {
		return InitiateResult{}, err
	}

	if _, err = i.Store.CreatePending(ctx, Transaction{
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		OrderID:           orderID,
		PhoneNumber:       res.Phone,
		AmountCents:       o.TotalCents,
	}); err != nil {
		// The push already happened; without this row the callback
		// cannot be correlated. Surface loudly.
		i.Log.Error("pending transaction write failed after push",
			zap.String("order_id", orderID),
			zap.String("checkout_request_id", res.CheckoutRequestID),
			zap.Error(err))
		return InitiateResult{}, err
	}

	if err := i.Orders.SetCheckoutRequestID(ctx, orderID, res.CheckoutRequestID); err != nil {
		i.Log.Warn("failed to stamp checkout request id on order",
			zap.String("order_id", orderID), zap.Error(err))
	}

	if i.Metrics != nil {
		i.Metrics.PaymentsInitiated.Inc()
	}
	i.Log.Info("stk push initiated",
		zap.String("order_id", orderID),
		zap.String("checkout_request_id", res.CheckoutRequestID),
		zap.Int64("amount_cents", o.TotalCents))

	return InitiateResult{
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		CustomerMessage:   res.CustomerMessage,
	}, nil
}
