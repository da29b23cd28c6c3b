package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: product not found")

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"image_url"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the read surface the rest of the service needs. Stock is never
// written through here; all stock mutation goes through the inventory
// package inside an order transaction.
type Store interface {
	GetActive(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, limit, offset int) ([]Product, error)
}
