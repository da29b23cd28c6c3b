package orders

import (
	"strings"

	"github.com/google/uuid"
)

// TaxBasisPoints is the VAT rate applied to every order: 16%.
const TaxBasisPoints = 1600

type Totals struct {
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
}

// ComputeTotals derives the order money fields from snapshot line prices.
// Tax rounds half-up on the subtotal, computed once; nothing recomputes it
// after the order row is written.
func ComputeTotals(subtotalCents int64) Totals {
	tax := (subtotalCents*TaxBasisPoints + 5000) / 10000
	return Totals{
		SubtotalCents: subtotalCents,
		TaxCents:      tax,
		TotalCents:    subtotalCents + tax,
	}
}

// NewOrderID returns a customer-facing order id. The UUID body keeps ids
// unique under concurrent requests; a timestamp suffix would not.
func NewOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString())
}
