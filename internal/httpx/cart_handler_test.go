package httpx

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap/zaptest"

	"github.com/bidhaaline/fulfillment/internal/cart"
)

type fakeCartStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*cart.LineItem
	stock  map[string]int
	prices map[string]int64
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{
		items:  make(map[int64]*cart.LineItem),
		stock:  map[string]int{"prod-1": 5},
		prices: map[string]int64{"prod-1": 10000},
	}
}

func (s *fakeCartStore) Add(ctx context.Context, userID, productID string, qty int) (cart.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.UserID == userID && it.ProductID == productID {
			it.Quantity += qty
			if it.Quantity > s.stock[productID] {
				it.Quantity = s.stock[productID]
			}
			return it.Item, nil
		}
	}
	s.nextID++
	if qty > s.stock[productID] {
		qty = s.stock[productID]
	}
	it := &cart.LineItem{
		Item:       cart.Item{ID: s.nextID, UserID: userID, ProductID: productID, Quantity: qty},
		PriceCents: s.prices[productID],
		Stock:      s.stock[productID],
	}
	s.items[s.nextID] = it
	return it.Item, nil
}

func (s *fakeCartStore) List(ctx context.Context, userID string) ([]cart.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cart.LineItem
	for _, it := range s.items {
		if it.UserID == userID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (s *fakeCartStore) UpdateQuantity(ctx context.Context, userID string, itemID int64, qty int) (cart.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok || it.UserID != userID {
		return cart.Item{}, cart.ErrItemNotFound
	}
	if qty > s.stock[it.ProductID] {
		return cart.Item{}, cart.ErrStockCap
	}
	it.Quantity = qty
	return it.Item, nil
}

func (s *fakeCartStore) Remove(ctx context.Context, userID string, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok || it.UserID != userID {
		return cart.ErrItemNotFound
	}
	delete(s.items, itemID)
	return nil
}

func (s *fakeCartStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, it := range s.items {
		if it.UserID == userID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *fakeCartStore) ClearTx(ctx context.Context, tx pgx.Tx, userID string) error {
	return s.Clear(ctx, userID)
}

func cartRouter(t *testing.T, store cart.Store) http.Handler {
	t.Helper()
	r := NewRouter(zaptest.NewLogger(t), nil)
	(&CartHandler{Store: store, Log: zaptest.NewLogger(t)}).Register(r)
	return r
}

func TestCartAddAndSummary(t *testing.T) {
	store := newFakeCartStore()
	r := cartRouter(t, store)

	rec, _ := doJSON(t, r, http.MethodPost, "/cart", "user-1", `{"product_id":"prod-1","quantity":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d: %s", rec.Code, rec.Body.String())
	}

	rec, env := doJSON(t, r, http.MethodGet, "/cart", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	data := env.Data.(map[string]any)
	summary := data["summary"].(map[string]any)
	// 2 * 10000 = 20000 subtotal, 16% tax
	if summary["subtotal_cents"].(float64) != 20000 {
		t.Errorf("subtotal = %v", summary["subtotal_cents"])
	}
	if summary["tax_cents"].(float64) != 3200 {
		t.Errorf("tax = %v", summary["tax_cents"])
	}
	if summary["total_cents"].(float64) != 23200 {
		t.Errorf("total = %v", summary["total_cents"])
	}
	if summary["itemCount"].(float64) != 2 {
		t.Errorf("itemCount = %v", summary["itemCount"])
	}
}

func TestCartUpdateValidation(t *testing.T) {
	store := newFakeCartStore()
	r := cartRouter(t, store)

	it, _ := store.Add(context.Background(), "user-1", "prod-1", 1)

	rec, _ := doJSON(t, r, http.MethodPut, "/cart/999", "user-1", `{"quantity":2}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing item: status = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, r, http.MethodPut, "/cart/abc", "user-1", `{"quantity":2}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, r, http.MethodPut, cartPath(it.ID), "user-1", `{"quantity":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero quantity: status = %d, want 400", rec.Code)
	}

	// quantity above stock hits the cap guard
	rec, _ = doJSON(t, r, http.MethodPut, cartPath(it.ID), "user-1", `{"quantity":50}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("over stock: status = %d, want 400", rec.Code)
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	store := newFakeCartStore()
	r := cartRouter(t, store)

	it, _ := store.Add(context.Background(), "user-1", "prod-1", 1)

	rec, _ := doJSON(t, r, http.MethodDelete, cartPath(it.ID), "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("stranger remove: status = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, r, http.MethodDelete, cartPath(it.ID), "user-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("remove: status = %d", rec.Code)
	}

	_, _ = store.Add(context.Background(), "user-1", "prod-1", 1)
	rec, _ = doJSON(t, r, http.MethodDelete, "/cart", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("clear: status = %d", rec.Code)
	}
	if items, _ := store.List(context.Background(), "user-1"); len(items) != 0 {
		t.Errorf("cart not empty after clear: %v", items)
	}
}

func cartPath(id int64) string {
	return "/cart/" + strconv.FormatInt(id, 10)
}
