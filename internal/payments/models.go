package payments

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether a transaction has left pending. A terminal
// transaction never transitions again; repeated callbacks become no-ops.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFailed }

type Transaction struct {
	ID                int64      `json:"id"`
	CheckoutRequestID string     `json:"checkout_request_id"`
	MerchantRequestID string     `json:"merchant_request_id"`
	OrderID           string     `json:"order_id"`
	PhoneNumber       string     `json:"phone_number"`
	AmountCents       int64      `json:"amount_cents"`
	Status            Status     `json:"status"`
	ReceiptNumber     string     `json:"mpesa_receipt,omitempty"`
	TransactionDate   *time.Time `json:"transaction_date,omitempty"`
	ResultCode        *int       `json:"result_code,omitempty"`
	ResultDesc        string     `json:"result_desc,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ListEntry joins a transaction with order fields for history views.
type ListEntry struct {
	Transaction
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	OrderTotalCents int64  `json:"order_total_cents"`
}
