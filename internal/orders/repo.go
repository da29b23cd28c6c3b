package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidhaaline/fulfillment/internal/inventory"
	"github.com/bidhaaline/fulfillment/internal/tracking"
)

// CartClearer is the one cart operation order creation needs.
type CartClearer interface {
	ClearTx(ctx context.Context, tx pgx.Tx, userID string) error
}

type Repo struct {
	DB   *pgxpool.Pool
	Cart CartClearer
}

var _ Store = (*Repo)(nil)

// Create places an order in a single transaction: price snapshot, stock
// reservation, order + item rows, the "Order Placed" tracking event, and
// the cart clear all commit together or not at all.
func (r *Repo) Create(ctx context.Context, p CreateParams) (Order, error) {
	if len(p.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}
	for _, it := range p.Items {
		if it.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: quantity %d for product %s", ErrInvalidInput, it.Quantity, it.ProductID)
		}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Price and name snapshot, active products only, one batch read.
	ids := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		ids = append(ids, it.ProductID)
	}
	rows, err := tx.Query(ctx, `
		SELECT id, name, price_cents FROM products
		WHERE id = ANY($1) AND is_active`, ids)
	if err != nil {
		return Order{}, err
	}
	type snap struct {
		name  string
		price int64
	}
	snaps := map[string]snap{}
	for rows.Next() {
		var id string
		var s snap
		if err := rows.Scan(&id, &s.name, &s.price); err != nil {
			rows.Close()
			return Order{}, err
		}
		snaps[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	var subtotal int64
	items := make([]Item, 0, len(p.Items))
	for _, it := range p.Items {
		s, ok := snaps[it.ProductID]
		if !ok {
			return Order{}, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		line := s.price * int64(it.Quantity)
		subtotal += line
		items = append(items, Item{
			ProductID:   it.ProductID,
			ProductName: s.name,
			PriceCents:  s.price,
			Quantity:    it.Quantity,
			TotalCents:  line,
		})
	}
	totals := ComputeTotals(subtotal)

	// Conditional decrement per product; a concurrent order that would
	// oversell loses here and the whole transaction rolls back.
	for _, it := range items {
		if err := inventory.ReserveTx(ctx, tx, it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return Order{}, fmt.Errorf("%w for product %s", inventory.ErrInsufficientStock, it.ProductName)
			}
			return Order{}, err
		}
	}

	o := Order{
		ID:              NewOrderID(),
		UserID:          p.UserID,
		Status:          StatusProcessing,
		SubtotalCents:   totals.SubtotalCents,
		TaxCents:        totals.TaxCents,
		TotalCents:      totals.TotalCents,
		PaymentMethod:   p.PaymentMethod,
		CustomerName:    p.CustomerName,
		CustomerEmail:   p.CustomerEmail,
		CustomerPhone:   p.CustomerPhone,
		ShippingAddress: p.ShippingAddress,
		Notes:           p.Notes,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, status, subtotal_cents, tax_cents, total_cents,
			payment_method, customer_name, customer_email, customer_phone,
			shipping_address, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Status, o.SubtotalCents, o.TaxCents, o.TotalCents,
		o.PaymentMethod, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.ShippingAddress, o.Notes).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}

	for i := range items {
		items[i].OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, price_cents, quantity, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			o.ID, items[i].ProductID, items[i].ProductName, items[i].PriceCents,
			items[i].Quantity, items[i].TotalCents).Scan(&items[i].ID)
		if err != nil {
			return Order{}, err
		}
	}
	o.Items = items

	if err := tracking.AppendTx(ctx, tx, o.ID, tracking.KindOrderPlaced); err != nil {
		return Order{}, err
	}
	if err := r.Cart.ClearTx(ctx, tx, p.UserID); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Cancel flips a Processing order to Cancelled and puts every reserved unit
// back. The status CAS and the restores share one transaction, so a crash
// partway leaves nothing half-restored.
func (r *Repo) Cancel(ctx context.Context, userID, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND user_id=$2 AND status=$4`,
		orderID, userID, StatusCancelled, StatusProcessing)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var cur Status
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 AND user_id=$2`,
			orderID, userID).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidState, cur)
	}

	rows, err := tx.Query(ctx, `SELECT product_id, quantity FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return err
	}
	type line struct {
		pid string
		qty int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.pid, &l.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		if err := inventory.RestoreTx(ctx, tx, l.pid, l.qty); err != nil {
			return err
		}
	}
	if err := tracking.AppendTx(ctx, tx, orderID, tracking.KindOrderCancelled); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Advance moves an order along the fulfillment path (Confirmed -> Shipped ->
// Delivered) and appends the matching tracking event in the same
// transaction. The CAS on the current status keeps two concurrent updates
// from skipping a step.
func (r *Repo) Advance(ctx context.Context, orderID string, to Status) error {
	kind, ok := fulfillmentKind(to)
	if !ok {
		return fmt.Errorf("%w: %s is not a fulfillment status", ErrInvalidInput, to)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(cur, to) {
		return fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidState, cur, to)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3`, orderID, to, cur)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// status moved under us between the read and the CAS
		return fmt.Errorf("%w: order status changed concurrently", ErrInvalidState)
	}
	if err := tracking.AppendTx(ctx, tx, orderID, kind); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func fulfillmentKind(to Status) (tracking.Kind, bool) {
	switch to {
	case StatusShipped:
		return tracking.KindShipped, true
	case StatusDelivered:
		return tracking.KindDelivered, true
	}
	return 0, false
}

const orderCols = `id, user_id, status, subtotal_cents, tax_cents, total_cents,
	payment_method, customer_name, customer_email, customer_phone,
	shipping_address, notes, COALESCE(mpesa_checkout_request_id, ''),
	created_at, updated_at`

func (r *Repo) GetByID(ctx context.Context, userID, orderID string) (Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 AND user_id=$2`,
		orderID, userID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	items, err := r.itemsFor(ctx, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

// StatusByID is the cheap read behind the status endpoint; it skips the
// item join the full projections pay for.
func (r *Repo) StatusByID(ctx context.Context, userID, orderID string) (Status, error) {
	var s Status
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 AND user_id=$2`,
		orderID, userID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return s, err
}

func (r *Repo) SetCheckoutRequestID(ctx context.Context, orderID, checkoutRequestID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET mpesa_checkout_request_id=$2, updated_at=now() WHERE id=$1`,
		orderID, checkoutRequestID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) itemsFor(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, price_cents, quantity, total_cents
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.PriceCents, &it.Quantity, &it.TotalCents); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.SubtotalCents, &o.TaxCents,
		&o.TotalCents, &o.PaymentMethod, &o.CustomerName, &o.CustomerEmail,
		&o.CustomerPhone, &o.ShippingAddress, &o.Notes, &o.CheckoutRequestID,
		&o.CreatedAt, &o.UpdatedAt)
	return o, err
}
