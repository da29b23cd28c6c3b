package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidhaaline/fulfillment/internal/orders"
	"github.com/bidhaaline/fulfillment/internal/tracking"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) CreatePending(ctx context.Context, t Transaction) (Transaction, error) {
	t.Status = StatusPending
	err := r.DB.QueryRow(ctx, `
		INSERT INTO mpesa_transactions
			(checkout_request_id, merchant_request_id, order_id, phone_number, amount_cents, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at`,
		t.CheckoutRequestID, t.MerchantRequestID, t.OrderID, t.PhoneNumber,
		t.AmountCents, t.Status).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const txCols = `id, checkout_request_id, merchant_request_id, order_id, phone_number,
	amount_cents, status, COALESCE(mpesa_receipt, ''), transaction_date,
	result_code, COALESCE(result_desc, ''), created_at, updated_at`

func (r *Repo) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (Transaction, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+txCols+` FROM mpesa_transactions
		WHERE checkout_request_id=$1`, checkoutRequestID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

func (r *Repo) GetByOrderID(ctx context.Context, orderID string) (Transaction, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+txCols+` FROM mpesa_transactions
		WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

func (r *Repo) List(ctx context.Context, p ListParams) ([]ListEntry, error) {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 10
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	rows, err := r.DB.Query(ctx, `
		SELECT t.id, t.checkout_request_id, t.merchant_request_id, t.order_id,
		       t.phone_number, t.amount_cents, t.status, COALESCE(t.mpesa_receipt, ''),
		       t.transaction_date, t.result_code, COALESCE(t.result_desc, ''),
		       t.created_at, t.updated_at,
		       o.customer_name, o.customer_email, o.total_cents
		FROM mpesa_transactions t
		JOIN orders o ON o.id = t.order_id
		WHERE ($1 = '' OR o.user_id = $1)
		  AND ($2 = '' OR t.status = $2)
		ORDER BY t.created_at DESC
		LIMIT $3 OFFSET $4`,
		p.UserID, string(p.Status), p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListEntry
	for rows.Next() {
		var e ListEntry
		if err := rows.Scan(&e.ID, &e.CheckoutRequestID, &e.MerchantRequestID,
			&e.OrderID, &e.PhoneNumber, &e.AmountCents, &e.Status, &e.ReceiptNumber,
			&e.TransactionDate, &e.ResultCode, &e.ResultDesc, &e.CreatedAt,
			&e.UpdatedAt, &e.CustomerName, &e.CustomerEmail, &e.OrderTotalCents); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Finalize is the one writer that moves a transaction out of pending. The
// conditional UPDATE makes concurrent callback deliveries race safely: one
// wins, the rest see zero rows and report a duplicate. The order CAS and
// tracking event ride the same transaction, so a successful payment either
// fully confirms the order or records a conflict.
func (r *Repo) Finalize(ctx context.Context, p FinalizeParams) (FinalizeResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FinalizeResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status := StatusFailed
	if p.Succeeded {
		status = StatusSuccess
	}

	var orderID string
	err = tx.QueryRow(ctx, `
		UPDATE mpesa_transactions
		SET status=$2, mpesa_receipt=NULLIF($3, ''), transaction_date=$4,
		    result_code=$5, result_desc=$6, updated_at=now()
		WHERE checkout_request_id=$1 AND status=$7
		RETURNING order_id`,
		p.CheckoutRequestID, status, p.ReceiptNumber, p.TransactionDate,
		p.ResultCode, p.ResultDesc, StatusPending).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		// already terminal; nothing to apply
		return FinalizeResult{Applied: false}, nil
	}
	if err != nil {
		return FinalizeResult{}, err
	}

	res := FinalizeResult{Applied: true, OrderID: orderID}
	if p.Succeeded {
		ct, err := tx.Exec(ctx, `
			UPDATE orders SET status=$2, updated_at=now()
			WHERE id=$1 AND status=$3`,
			orderID, orders.StatusConfirmed, orders.StatusProcessing)
		if err != nil {
			return FinalizeResult{}, err
		}
		if ct.RowsAffected() == 1 {
			if err := tracking.AppendTx(ctx, tx, orderID, tracking.KindPaymentConfirmed); err != nil {
				return FinalizeResult{}, err
			}
			res.OrderConfirmed = true
		}
		// 0 rows: the order left Processing in the interim. Keep the
		// terminal write; the caller records the conflict.
	}

	if err := tx.Commit(ctx); err != nil {
		return FinalizeResult{}, err
	}
	return res, nil
}

func (r *Repo) RecordFailure(ctx context.Context, checkoutRequestID, reason string, payload []byte) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payment_callback_failures (checkout_request_id, reason, payload)
		VALUES ($1, $2, $3)`, checkoutRequestID, reason, payload)
	return err
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.CheckoutRequestID, &t.MerchantRequestID, &t.OrderID,
		&t.PhoneNumber, &t.AmountCents, &t.Status, &t.ReceiptNumber,
		&t.TransactionDate, &t.ResultCode, &t.ResultDesc, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
