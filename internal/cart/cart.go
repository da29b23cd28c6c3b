package cart

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	ErrItemNotFound = errors.New("cart: item not found")
	ErrStockCap     = errors.New("cart: quantity exceeds available stock")
)

type Item struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineItem is a cart row joined with its product, as shown to the client.
type LineItem struct {
	Item
	ProductName string `json:"name"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
}

type Store interface {
	Add(ctx context.Context, userID, productID string, qty int) (Item, error)
	List(ctx context.Context, userID string) ([]LineItem, error)
	UpdateQuantity(ctx context.Context, userID string, itemID int64, qty int) (Item, error)
	Remove(ctx context.Context, userID string, itemID int64) error
	Clear(ctx context.Context, userID string) error
	ClearTx(ctx context.Context, tx pgx.Tx, userID string) error
}
