package orders

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("orders: order not found")
	ErrProductNotFound = errors.New("orders: product not found")
	ErrInvalidState    = errors.New("orders: operation not permitted in current status")
	ErrInvalidInput    = errors.New("orders: invalid input")
)

// Store is the order lifecycle surface consumed by the HTTP layer and the
// payment initiator. The pgx Repo is the production implementation; tests
// use an in-memory fake.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Order, error)
	Cancel(ctx context.Context, userID, orderID string) error
	GetByID(ctx context.Context, userID, orderID string) (Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	StatusByID(ctx context.Context, userID, orderID string) (Status, error)
	SetCheckoutRequestID(ctx context.Context, orderID, checkoutRequestID string) error

	// Advance drives the admin fulfillment path; transitions outside the
	// status machine are rejected with ErrInvalidState.
	Advance(ctx context.Context, orderID string, to Status) error
}
