package orders

import "time"

type Order struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Status            Status    `json:"status"`
	SubtotalCents     int64     `json:"subtotal_cents"`
	TaxCents          int64     `json:"tax_cents"`
	TotalCents        int64     `json:"total_cents"`
	PaymentMethod     string    `json:"payment_method"`
	CustomerName      string    `json:"customer_name"`
	CustomerEmail     string    `json:"customer_email"`
	CustomerPhone     string    `json:"customer_phone"`
	ShippingAddress   string    `json:"shipping_address"`
	Notes             string    `json:"notes,omitempty"`
	CheckoutRequestID string    `json:"mpesa_checkout_request_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Items []Item `json:"items"`
}

// Item snapshots the product at order time; later catalog edits never
// change a placed order.
type Item struct {
	ID          int64  `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int    `json:"quantity"`
	TotalCents  int64  `json:"total_cents"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateParams struct {
	UserID          string
	Items           []ItemInput
	PaymentMethod   string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	Notes           string
}
