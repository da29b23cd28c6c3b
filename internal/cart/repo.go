package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidhaaline/fulfillment/internal/catalog"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

// Add upserts the (user, product) row, merging quantities. The merged
// quantity is capped against current stock in the same statement; the hard
// stock check happens again at order time, this is a UX guard only.
func (r *Repo) Add(ctx context.Context, userID, productID string, qty int) (Item, error) {
	var it Item
	err := r.DB.QueryRow(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		SELECT $1, p.id, LEAST($3, p.stock)
		FROM products p WHERE p.id = $2 AND p.is_active AND p.stock >= 1
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity,
			(SELECT stock FROM products WHERE id = $2)),
		    updated_at = now()
		RETURNING id, user_id, product_id, quantity, created_at, updated_at`,
		userID, productID, qty).
		Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// zero rows: product unknown/inactive, or nothing in stock
		var n int
		if e := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE id=$1 AND is_active`,
			productID).Scan(&n); e == nil && n > 0 {
			return Item{}, ErrStockCap
		}
		return Item{}, catalog.ErrNotFound
	}
	return it, err
}

func (r *Repo) List(ctx context.Context, userID string) ([]LineItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at,
		       p.name, p.price_cents, p.stock
		FROM cart_items c
		JOIN products p ON p.id = c.product_id AND p.is_active
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.ID, &li.UserID, &li.ProductID, &li.Quantity,
			&li.CreatedAt, &li.UpdatedAt, &li.ProductName, &li.PriceCents, &li.Stock); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateQuantity(ctx context.Context, userID string, itemID int64, qty int) (Item, error) {
	var it Item
	err := r.DB.QueryRow(ctx, `
		UPDATE cart_items c SET quantity = $3, updated_at = now()
		FROM products p
		WHERE c.id = $1 AND c.user_id = $2 AND p.id = c.product_id AND p.stock >= $3
		RETURNING c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at`,
		itemID, userID, qty).
		Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// row missing vs over-stock: one extra lookup to tell them apart
		var n int
		if e := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM cart_items WHERE id=$1 AND user_id=$2`,
			itemID, userID).Scan(&n); e == nil && n > 0 {
			return Item{}, ErrStockCap
		}
		return Item{}, ErrItemNotFound
	}
	return it, err
}

func (r *Repo) Remove(ctx context.Context, userID string, itemID int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE id=$1 AND user_id=$2`, itemID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repo) Clear(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return err
}

// ClearTx empties the cart inside the order-creation transaction.
func (r *Repo) ClearTx(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return err
}
