package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bidhaaline/fulfillment/internal/cart"
	"github.com/bidhaaline/fulfillment/internal/orders"
)

type CartHandler struct {
	Store cart.Store
	Log   *zap.Logger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Post("/cart", h.add)
	r.Get("/cart", h.list)
	r.Put("/cart/{id}", h.update)
	r.Delete("/cart/{id}", h.remove)
	r.Delete("/cart", h.clear)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid json")
		return
	}
	if req.ProductID == "" || req.Quantity < 1 {
		respondBadRequest(w, "product_id and a positive quantity are required")
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	item, err := h.Store.Add(ctx, uid, req.ProductID, req.Quantity)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusCreated, "Item added to cart", map[string]any{"cartItem": item})
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	items, err := h.Store.List(ctx, uid)
	if err != nil {
		respondErr(w, err)
		return
	}

	var subtotal int64
	count := 0
	for _, it := range items {
		subtotal += it.PriceCents * int64(it.Quantity)
		count += it.Quantity
	}
	totals := orders.ComputeTotals(subtotal)

	respondData(w, http.StatusOK, "", map[string]any{
		"cartItems": items,
		"summary": map[string]any{
			"subtotal_cents": totals.SubtotalCents,
			"tax_cents":      totals.TaxCents,
			"total_cents":    totals.TotalCents,
			"itemCount":      count,
		},
	})
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondBadRequest(w, "invalid cart item id")
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid json")
		return
	}
	if req.Quantity < 1 {
		respondBadRequest(w, "quantity must be greater than 0")
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	item, err := h.Store.UpdateQuantity(ctx, uid, itemID, req.Quantity)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "Cart item updated", map[string]any{"cartItem": item})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondBadRequest(w, "invalid cart item id")
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	if err := h.Store.Remove(ctx, uid, itemID); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "Item removed from cart", nil)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context5s(r)
	defer cancel()

	if err := h.Store.Clear(ctx, uid); err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "Cart cleared", nil)
}
