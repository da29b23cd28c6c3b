package payments

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/bidhaaline/fulfillment/internal/mpesa"
	"github.com/bidhaaline/fulfillment/internal/orders"
)

type fakeOrderReader struct {
	order     orders.Order
	stampedID string
}

func (f *fakeOrderReader) GetByID(ctx context.Context, userID, orderID string) (orders.Order, error) {
	if f.order.ID != orderID || f.order.UserID != userID {
		return orders.Order{}, orders.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeOrderReader) SetCheckoutRequestID(ctx context.Context, orderID, checkoutRequestID string) error {
	f.stampedID = checkoutRequestID
	return nil
}

type fakeGateway struct {
	err    error
	pushes []int64 // amounts in cents as seen by the gateway
}

func (f *fakeGateway) STKPush(ctx context.Context, phone string, amountCents int64, orderID, accountRef string) (mpesa.STKPushResult, error) {
	if f.err != nil {
		return mpesa.STKPushResult{}, f.err
	}
	f.pushes = append(f.pushes, amountCents)
	normalized, err := mpesa.FormatPhoneNumber(phone)
	if err != nil {
		return mpesa.STKPushResult{}, err
	}
	return mpesa.STKPushResult{
		CheckoutRequestID: "ws_CO_push",
		MerchantRequestID: "mr_push",
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
		Phone:             normalized,
	}, nil
}

func processingOrder() orders.Order {
	return orders.Order{
		ID:         "ORD-1",
		UserID:     "user-1",
		Status:     orders.StatusProcessing,
		TotalCents: 34800,
	}
}

func newInitiator(t *testing.T, reader *fakeOrderReader, store Store, gw Gateway) *Initiator {
	t.Helper()
	return &Initiator{Orders: reader, Store: store, Gateway: gw, Log: zaptest.NewLogger(t)}
}

func TestInitiate(t *testing.T) {
	reader := &fakeOrderReader{order: processingOrder()}
	store := newFakeStore()
	gw := &fakeGateway{}
	i := newInitiator(t, reader, store, gw)

	res, err := i.Initiate(context.Background(), "user-1", "ORD-1", "0712345678", 0)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if res.CheckoutRequestID != "ws_CO_push" {
		t.Errorf("checkout id = %q", res.CheckoutRequestID)
	}

	// the order total is what goes to the gateway
	if len(gw.pushes) != 1 || gw.pushes[0] != 34800 {
		t.Errorf("gateway amounts = %v, want [34800]", gw.pushes)
	}

	txn, err := store.GetByCheckoutID(context.Background(), "ws_CO_push")
	if err != nil {
		t.Fatalf("pending row missing: %v", err)
	}
	if txn.OrderID != "ORD-1" || txn.AmountCents != 34800 || txn.Status != StatusPending {
		t.Errorf("pending txn = %+v", txn)
	}
	if reader.stampedID != "ws_CO_push" {
		t.Errorf("order stamped with %q, want ws_CO_push", reader.stampedID)
	}
}

func TestInitiateMatchingAmountAccepted(t *testing.T) {
	reader := &fakeOrderReader{order: processingOrder()}
	i := newInitiator(t, reader, newFakeStore(), &fakeGateway{})

	if _, err := i.Initiate(context.Background(), "user-1", "ORD-1", "0712345678", 34800); err != nil {
		t.Fatalf("Initiate with matching amount: %v", err)
	}
}

func TestInitiateAmountMismatch(t *testing.T) {
	reader := &fakeOrderReader{order: processingOrder()}
	gw := &fakeGateway{}
	i := newInitiator(t, reader, newFakeStore(), gw)

	_, err := i.Initiate(context.Background(), "user-1", "ORD-1", "0712345678", 100)
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("err = %v, want ErrAmountMismatch", err)
	}
	if len(gw.pushes) != 0 {
		t.Error("gateway was called despite amount mismatch")
	}
}

func TestInitiateOrderNotPayable(t *testing.T) {
	o := processingOrder()
	o.Status = orders.StatusCancelled
	reader := &fakeOrderReader{order: o}
	i := newInitiator(t, reader, newFakeStore(), &fakeGateway{})

	_, err := i.Initiate(context.Background(), "user-1", "ORD-1", "0712345678", 0)
	if !errors.Is(err, orders.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestInitiateWrongUser(t *testing.T) {
	reader := &fakeOrderReader{order: processingOrder()}
	i := newInitiator(t, reader, newFakeStore(), &fakeGateway{})

	_, err := i.Initiate(context.Background(), "someone-else", "ORD-1", "0712345678", 0)
	if !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInitiateGatewayFailureLeavesNoPendingRow(t *testing.T) {
	reader := &fakeOrderReader{order: processingOrder()}
	store := newFakeStore()
	gw := &fakeGateway{err: mpesa.ErrGateway}
	i := newInitiator(t, reader, store, gw)

	_, err := i.Initiate(context.Background(), "user-1", "ORD-1", "0712345678", 0)
	if !errors.Is(err, mpesa.ErrGateway) {
		t.Fatalf("err = %v, want ErrGateway", err)
	}
	if len(store.byCheck) != 0 {
		t.Error("pending row written despite failed push")
	}
	if reader.stampedID != "" {
		t.Error("checkout id stamped despite failed push")
	}
}
