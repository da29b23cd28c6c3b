package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bidhaaline/fulfillment/internal/catalog"
)

type ProductsHandler struct {
	Store catalog.Store
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageWindow(r)

	ctx, cancel := context5s(r)
	defer cancel()

	ps, err := h.Store.List(ctx, limit, offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]any{"products": ps})
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context5s(r)
	defer cancel()

	p, err := h.Store.GetActive(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondData(w, http.StatusOK, "", map[string]any{"product": p})
}
