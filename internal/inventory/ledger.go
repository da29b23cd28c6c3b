// Package inventory owns every stock mutation. Reserve and Restore are
// single-statement conditional updates so concurrent reservations against
// the same product serialize inside Postgres; callers never read stock,
// compare, and write it back. Both run inside a caller-owned transaction
// (order creation, cancellation) so stock moves commit with the order rows.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ReserveTx decrements stock iff at least qty is available.
func ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("inventory: invalid quantity %d", qty)
	}
	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// RestoreTx returns qty units to stock (cancellation).
func RestoreTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("inventory: invalid quantity %d", qty)
	}
	_, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	return err
}
