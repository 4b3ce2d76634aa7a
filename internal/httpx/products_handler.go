package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/catalog"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/ariefcatur/go-marketplace/internal/slots"
	"github.com/go-chi/chi/v5"
)

type catalogService interface {
	List(ctx context.Context, f catalog.Filter) (paging.Result[catalog.Product], error)
	ListOwn(ctx context.Context, actor auth.Principal, f catalog.Filter) (paging.Result[catalog.Product], error)
	Get(ctx context.Context, id string) (catalog.Product, error)
	Create(ctx context.Context, actor auth.Principal, in catalog.CreateInput) (catalog.Product, error)
	Update(ctx context.Context, actor auth.Principal, id string, patch catalog.Patch) (catalog.Product, error)
	SetStock(ctx context.Context, actor auth.Principal, id string, qty int) (catalog.Product, error)
	Deactivate(ctx context.Context, actor auth.Principal, id string) error
}

type ProductsHandler struct {
	Catalog catalogService
	Slots   slotService
}

type productDetail struct {
	catalog.Product
	Slots []slots.Slot `json:"delivery_slots"`
}

type stockReq struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

func (h *ProductsHandler) RegisterPublic(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
}

// RegisterProducer mounts the producer's own catalog management.
func (h *ProductsHandler) RegisterProducer(r chi.Router) {
	r.Get("/producer/products", h.listOwn)
	r.Post("/producer/products", h.create)
	r.Patch("/producer/products/{id}", h.update)
	r.Put("/producer/products/{id}/stock", h.setStock)
	r.Delete("/producer/products/{id}", h.deactivate)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	var f catalog.Filter
	if err := decodeQuery(r, &f); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Catalog.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := productDetail{Product: p, Slots: []slots.Slot{}}
	if p.IsFresh {
		upcoming, err := h.Slots.ListSlots(r.Context(), slots.Filter{ProductID: id, From: time.Now().UTC()})
		if err != nil {
			writeError(w, r, err)
			return
		}
		out.Slots = upcoming
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) listOwn(w http.ResponseWriter, r *http.Request) {
	var f catalog.Filter
	if err := decodeQuery(r, &f); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Catalog.ListOwn(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Create(r.Context(), principal(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch catalog.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Update(r.Context(), principal(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.SetStock(r.Context(), principal(r), chi.URLParam(r, "id"), *req.Stock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Deactivate(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
