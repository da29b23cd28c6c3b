package payments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransactionNotFound = errors.New("payments: transaction not found")
	ErrAmountMismatch      = errors.New("payments: amount does not match order total")
	ErrInitInFlight        = errors.New("payments: a payment for this order is already in progress")
)

type FinalizeParams struct {
	CheckoutRequestID string
	Succeeded         bool
	ReceiptNumber     string
	TransactionDate   *time.Time
	ResultCode        int
	ResultDesc        string
}

type FinalizeResult struct {
	// Applied is false when the transaction was already terminal; the
	// caller must treat the callback as a duplicate.
	Applied bool
	OrderID string
	// OrderConfirmed is false on a successful payment whose order was no
	// longer Processing (cancelled in the interim) - the conflict case.
	OrderConfirmed bool
}

type ListParams struct {
	UserID string // empty = all users (admin view)
	Status Status // empty = any
	Limit  int
	Offset int
}

type Store interface {
	CreatePending(ctx context.Context, t Transaction) (Transaction, error)
	GetByCheckoutID(ctx context.Context, checkoutRequestID string) (Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (Transaction, error)
	List(ctx context.Context, p ListParams) ([]ListEntry, error)

	// Finalize writes the terminal status iff the row is still pending,
	// and on success advances the order Processing->Confirmed plus its
	// tracking event, all in one transaction.
	Finalize(ctx context.Context, p FinalizeParams) (FinalizeResult, error)

	// RecordFailure appends to the callback dead-letter table.
	RecordFailure(ctx context.Context, checkoutRequestID, reason string, payload []byte) error
}
