// Package mpesa is the client for Safaricom's Daraja STK push API: OAuth
// token exchange, push initiation, and the polling status query. It never
// touches local state; persistence around pushes and callbacks lives in
// internal/payments.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bidhaaline/fulfillment/internal/config"
)

var (
	ErrAuth    = errors.New("mpesa: authentication failed")
	ErrGateway = errors.New("mpesa: gateway request failed")
)

type Client struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	BaseURL        string

	HTTPClient *http.Client
	Now        func() time.Time
}

func NewClient(cfg config.MpesaConfig) *Client {
	return &Client{
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		ShortCode:      cfg.ShortCode,
		Passkey:        cfg.Passkey,
		CallbackURL:    cfg.CallbackURL,
		BaseURL:        cfg.BaseURL(),
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		Now:            time.Now,
	}
}

// AccessToken exchanges the static credentials for a short-lived bearer
// token. Tokens are not cached; every push re-authenticates.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.ConsumerKey + ":" + c.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", ErrAuth, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuth)
	}
	return body.AccessToken, nil
}

type STKPushResult struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
	Phone               string
}

// STKPush sends a payment prompt to the customer's phone. amountCents is
// converted to whole shillings for the wire, rounding half-up.
func (c *Client) STKPush(ctx context.Context, phone string, amountCents int64, orderID, accountRef string) (STKPushResult, error) {
	normalized, err := FormatPhoneNumber(phone)
	if err != nil {
		return STKPushResult{}, err
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return STKPushResult{}, err
	}

	password, timestamp := c.password()
	payload := map[string]any{
		"BusinessShortCode": c.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            (amountCents + 50) / 100,
		"PartyA":            normalized,
		"PartyB":            c.ShortCode,
		"PhoneNumber":       normalized,
		"CallBackURL":       c.CallbackURL,
		"AccountReference":  accountRef,
		"TransactionDesc":   "Payment for order " + orderID,
	}

	var body struct {
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		MerchantRequestID   string `json:"MerchantRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &body); err != nil {
		return STKPushResult{}, err
	}
	return STKPushResult{
		CheckoutRequestID:   body.CheckoutRequestID,
		MerchantRequestID:   body.MerchantRequestID,
		ResponseCode:        body.ResponseCode,
		ResponseDescription: body.ResponseDescription,
		CustomerMessage:     body.CustomerMessage,
		Phone:               normalized,
	}, nil
}

type QueryResult struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QueryStatus asks the gateway directly for a push's outcome. It is the
// polling fallback when no callback has arrived; only the callback path may
// finalize local transaction state.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (QueryResult, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	password, timestamp := c.password()
	payload := map[string]any{
		"BusinessShortCode": c.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}
	var out QueryResult
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &out); err != nil {
		return QueryResult{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path, token string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// password derives the Daraja request password for the current second.
func (c *Client) password() (password, timestamp string) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	timestamp = now().Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(c.ShortCode + c.Passkey + timestamp))
	return password, timestamp
}
