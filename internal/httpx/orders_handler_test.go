package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/bidhaaline/fulfillment/internal/inventory"
	"github.com/bidhaaline/fulfillment/internal/orders"
)

// fakeOrderStore mimics the transactional repo: stock checks, ownership
// scoping, and the Processing-only cancel rule.
type fakeOrderStore struct {
	mu     sync.Mutex
	stock  map[string]int   // product id -> units
	prices map[string]int64 // product id -> price cents
	orders map[string]*orders.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		stock:  map[string]int{"prod-1": 10, "prod-2": 3},
		prices: map[string]int64{"prod-1": 10000, "prod-2": 2500},
		orders: make(map[string]*orders.Order),
	}
}

func (s *fakeOrderStore) Create(ctx context.Context, p orders.CreateParams) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subtotal int64
	items := make([]orders.Item, 0, len(p.Items))
	for _, in := range p.Items {
		price, ok := s.prices[in.ProductID]
		if !ok {
			return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, in.ProductID)
		}
		if s.stock[in.ProductID] < in.Quantity {
			return orders.Order{}, inventory.ErrInsufficientStock
		}
		subtotal += price * int64(in.Quantity)
		items = append(items, orders.Item{
			ProductID: in.ProductID, PriceCents: price,
			Quantity: in.Quantity, TotalCents: price * int64(in.Quantity),
		})
	}
	for _, in := range p.Items {
		s.stock[in.ProductID] -= in.Quantity
	}

	totals := orders.ComputeTotals(subtotal)
	o := &orders.Order{
		ID:            orders.NewOrderID(),
		UserID:        p.UserID,
		Status:        orders.StatusProcessing,
		SubtotalCents: totals.SubtotalCents,
		TaxCents:      totals.TaxCents,
		TotalCents:    totals.TotalCents,
		PaymentMethod: p.PaymentMethod,
		Items:         items,
	}
	s.orders[o.ID] = o
	return *o, nil
}

func (s *fakeOrderStore) Cancel(ctx context.Context, userID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return orders.ErrNotFound
	}
	if o.Status != orders.StatusProcessing {
		return orders.ErrInvalidState
	}
	o.Status = orders.StatusCancelled
	for _, it := range o.Items {
		s.stock[it.ProductID] += it.Quantity
	}
	return nil
}

func (s *fakeOrderStore) GetByID(ctx context.Context, userID, orderID string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return orders.Order{}, orders.ErrNotFound
	}
	return *o, nil
}

func (s *fakeOrderStore) StatusByID(ctx context.Context, userID, orderID string) (orders.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return "", orders.ErrNotFound
	}
	return o.Status, nil
}

func (s *fakeOrderStore) Advance(ctx context.Context, orderID string, to orders.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to != orders.StatusShipped && to != orders.StatusDelivered {
		return fmt.Errorf("%w: cannot advance to %s", orders.ErrInvalidInput, to)
	}
	o, ok := s.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	if !orders.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s to %s", orders.ErrInvalidState, o.Status, to)
	}
	o.Status = to
	return nil
}

func (s *fakeOrderStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) SetCheckoutRequestID(ctx context.Context, orderID, checkoutRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	o.CheckoutRequestID = checkoutRequestID
	return nil
}

func ordersRouter(t *testing.T, store orders.Store) *chi.Mux {
	t.Helper()
	r := NewRouter(zaptest.NewLogger(t), nil)
	(&OrdersHandler{Store: store, Log: zaptest.NewLogger(t), Service: "test"}).Register(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, user, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env Envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestCreateOrder(t *testing.T) {
	store := newFakeOrderStore()
	r := ordersRouter(t, store)

	body := `{"items":[{"product_id":"prod-1","quantity":2},{"product_id":"prod-2","quantity":1}],
	          "payment_method":"mpesa","customer_name":"Jane","customer_phone":"0712345678"}`
	rec, env := doJSON(t, r, http.MethodPost, "/orders", "user-1", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if env.Status != "success" {
		t.Errorf("envelope status = %q", env.Status)
	}

	data := env.Data.(map[string]any)
	order := data["order"].(map[string]any)
	// 2*10000 + 2500 = 22500 subtotal, 16% tax
	if got := order["total_cents"].(float64); got != 26100 {
		t.Errorf("total_cents = %v, want 26100", got)
	}
	if order["status"] != "Processing" {
		t.Errorf("status = %v, want Processing", order["status"])
	}
	if store.stock["prod-1"] != 8 || store.stock["prod-2"] != 2 {
		t.Errorf("stock after create = %v", store.stock)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	store := newFakeOrderStore()
	r := ordersRouter(t, store)

	body := `{"items":[{"product_id":"prod-2","quantity":5}],"payment_method":"mpesa"}`
	rec, env := doJSON(t, r, http.MethodPost, "/orders", "user-1", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Status != "error" {
		t.Errorf("envelope status = %q", env.Status)
	}
	if len(store.orders) != 0 {
		t.Error("order was stored despite stock failure")
	}
	if store.stock["prod-2"] != 3 {
		t.Errorf("stock mutated on failed create: %v", store.stock)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	r := ordersRouter(t, newFakeOrderStore())

	rec, _ := doJSON(t, r, http.MethodPost, "/orders", "user-1", `{"items":[],"payment_method":"mpesa"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty items: status = %d, want 400", rec.Code)
	}
	rec, _ = doJSON(t, r, http.MethodPost, "/orders", "user-1", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rec.Code)
	}
}

func TestOrdersRequireUser(t *testing.T) {
	r := ordersRouter(t, newFakeOrderStore())

	rec, _ := doJSON(t, r, http.MethodPost, "/orders", "", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	rec, _ = doJSON(t, r, http.MethodGet, "/orders", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCancelOrder(t *testing.T) {
	store := newFakeOrderStore()
	r := ordersRouter(t, store)

	o, err := store.Create(context.Background(), orders.CreateParams{
		UserID: "user-1",
		Items:  []orders.ItemInput{{ProductID: "prod-1", Quantity: 4}},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, _ := doJSON(t, r, http.MethodPost, "/orders/"+o.ID+"/cancel", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if store.orders[o.ID].Status != orders.StatusCancelled {
		t.Errorf("order status = %q, want Cancelled", store.orders[o.ID].Status)
	}
	// reserved units come back
	if store.stock["prod-1"] != 10 {
		t.Errorf("stock = %d, want 10 after restore", store.stock["prod-1"])
	}

	// a second cancel is no longer permitted
	rec, _ = doJSON(t, r, http.MethodPost, "/orders/"+o.ID+"/cancel", "user-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second cancel: status = %d, want 400", rec.Code)
	}
}

func TestCancelOrderWrongUser(t *testing.T) {
	store := newFakeOrderStore()
	r := ordersRouter(t, store)

	o, _ := store.Create(context.Background(), orders.CreateParams{
		UserID: "user-1",
		Items:  []orders.ItemInput{{ProductID: "prod-1", Quantity: 1}},
	})

	rec, _ := doJSON(t, r, http.MethodPost, "/orders/"+o.ID+"/cancel", "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if store.orders[o.ID].Status != orders.StatusProcessing {
		t.Error("another user's cancel mutated the order")
	}
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	store := newFakeOrderStore()
	store.stock["prod-last"] = 1
	store.prices["prod-last"] = 500

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Create(context.Background(), orders.CreateParams{
				UserID: "user-1",
				Items:  []orders.ItemInput{{ProductID: "prod-last", Quantity: 1}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if err != inventory.ErrInsufficientStock {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d creates succeeded for one unit of stock, want exactly 1", succeeded)
	}
	if store.stock["prod-last"] != 0 {
		t.Errorf("stock = %d, want 0", store.stock["prod-last"])
	}
}

func TestGetOrderScopedToUser(t *testing.T) {
	store := newFakeOrderStore()
	r := ordersRouter(t, store)

	o, _ := store.Create(context.Background(), orders.CreateParams{
		UserID: "user-1",
		Items:  []orders.ItemInput{{ProductID: "prod-1", Quantity: 1}},
	})

	rec, _ := doJSON(t, r, http.MethodGet, "/orders/"+o.ID, "user-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("owner get: status = %d, want 200", rec.Code)
	}
	rec, _ = doJSON(t, r, http.MethodGet, "/orders/"+o.ID, "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("stranger get: status = %d, want 404", rec.Code)
	}
}

func TestOrderStatusEndpoint(t *testing.T) {
	store := newFakeOrderStore()
	r := ordersRouter(t, store)

	o, _ := store.Create(context.Background(), orders.CreateParams{
		UserID: "user-1",
		Items:  []orders.ItemInput{{ProductID: "prod-1", Quantity: 1}},
	})

	rec, env := doJSON(t, r, http.MethodGet, "/orders/"+o.ID+"/status", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	data := env.Data.(map[string]any)
	if data["status"] != "Processing" {
		t.Errorf("status = %v, want Processing", data["status"])
	}
	if data["order_id"] != o.ID {
		t.Errorf("order_id = %v, want %s", data["order_id"], o.ID)
	}

	store.orders[o.ID].Status = orders.StatusConfirmed
	_, env = doJSON(t, r, http.MethodGet, "/orders/"+o.ID+"/status", "user-1", "")
	if got := env.Data.(map[string]any)["status"]; got != "Confirmed" {
		t.Errorf("status after confirm = %v, want Confirmed", got)
	}

	rec, _ = doJSON(t, r, http.MethodGet, "/orders/"+o.ID+"/status", "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("stranger status = %d, want 404", rec.Code)
	}
	rec, _ = doJSON(t, r, http.MethodGet, "/orders/ORD-MISSING/status", "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing order status = %d, want 404", rec.Code)
	}
}
