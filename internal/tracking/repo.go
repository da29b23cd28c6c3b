package tracking

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// AppendTx writes an event inside a caller-owned transaction so the event
// commits or rolls back with the state change it describes.
func AppendTx(ctx context.Context, tx pgx.Tx, orderID string, kind Kind) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_tracking (order_id, status, description)
		VALUES ($1, $2, $3)`, orderID, kind.Label(), kind.Description())
	return err
}

// History returns the append-only stream for an order, oldest first.
func (r *Repo) History(ctx context.Context, orderID string) ([]Event, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, status, description, created_at
		FROM order_tracking WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.Status, &ev.Description, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
