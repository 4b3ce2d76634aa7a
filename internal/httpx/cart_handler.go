package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace/internal/cart"
	"github.com/go-chi/chi/v5"
)

type cartService interface {
	Get(ctx context.Context, userID string) (cart.View, error)
	SetItem(ctx context.Context, userID, productID string, qty int) (cart.View, error)
	RemoveItem(ctx context.Context, userID, productID string) (cart.View, error)
	Clear(ctx context.Context, userID string) error
}

type CartHandler struct {
	Cart cartService
}

type cartItemReq struct {
	Qty *int `json:"qty" validate:"required,gte=0"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.get)
	r.Put("/cart/items/{productID}", h.setItem)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Delete("/cart", h.clear)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Cart.Get(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CartHandler) setItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.Cart.SetItem(r.Context(), principal(r).UserID, chi.URLParam(r, "productID"), *req.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	v, err := h.Cart.RemoveItem(r.Context(), principal(r).UserID, chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), principal(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
