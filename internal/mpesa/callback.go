package mpesa

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// CallbackEnvelope mirrors the webhook body Daraja delivers:
// {"Body":{"stkCallback":{...}}}. CallbackMetadata is present only when the
// push succeeded.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values arrive as a mix of strings and JSON numbers.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// CallbackResult is the flattened view the reconciler consumes.
type CallbackResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string

	// Populated only when ResultCode == 0.
	ReceiptNumber   string
	TransactionDate time.Time
	PhoneNumber     string
	AmountCents     int64
}

func (r CallbackResult) Succeeded() bool { return r.ResultCode == 0 }

// ParseCallback flattens the envelope. Metadata items are read only on
// success; a failed push carries none.
func ParseCallback(env CallbackEnvelope) (CallbackResult, error) {
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return CallbackResult{}, fmt.Errorf("mpesa: callback missing CheckoutRequestID")
	}

	out := CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.ResultCode != 0 || cb.CallbackMetadata == nil {
		return out, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			out.ReceiptNumber = rawString(item.Value)
		case "TransactionDate":
			ts, err := time.Parse("20060102150405", rawString(item.Value))
			if err == nil {
				out.TransactionDate = ts
			}
		case "PhoneNumber":
			out.PhoneNumber = rawString(item.Value)
		case "Amount":
			if f, err := rawFloat(item.Value); err == nil {
				out.AmountCents = int64(math.Round(f * 100))
			}
		}
	}
	return out, nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func rawFloat(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
