package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/go-chi/chi/v5"
)

type orderService interface {
	Checkout(ctx context.Context, userID, key string, in orders.CheckoutInput) (orders.CheckoutResult, error)
	Get(ctx context.Context, actor auth.Principal, id string) (orders.Order, error)
	Status(ctx context.Context, actor auth.Principal, id string) (orders.Status, error)
	ListMine(ctx context.Context, userID string, f orders.Filter) (paging.Result[orders.Order], error)
	ListForProducer(ctx context.Context, producerUserID string, f orders.Filter) (paging.Result[orders.Order], error)
	ListAll(ctx context.Context, f orders.Filter) (paging.Result[orders.Order], error)
	UpdateStatus(ctx context.Context, actor auth.Principal, id string, to orders.Status) (orders.Order, error)
	Cancel(ctx context.Context, actor auth.Principal, id string) (orders.Order, error)
}

type OrdersHandler struct {
	Orders orderService
}

type statusReq struct {
	Status orders.Status `json:"status" validate:"required"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.status)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.With(auth.RequireRole(auth.RoleClient)).Post("/orders", h.checkout)
	r.With(auth.RequireRole(auth.RoleProducer, auth.RoleAdmin)).Patch("/orders/{id}/status", h.updateStatus)
}

// checkout requires an Idempotency-Key header; replays return the first order with 200.
func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var in orders.CheckoutInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Orders.Checkout(r.Context(), principal(r).UserID, r.Header.Get("Idempotency-Key"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Idempotent {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	var f orders.Filter
	if err := decodeQuery(r, &f); err != nil {
		writeError(w, r, err)
		return
	}
	p := principal(r)
	var (
		res paging.Result[orders.Order]
		err error
	)
	switch p.Role {
	case auth.RoleAdmin:
		res, err = h.Orders.ListAll(r.Context(), f)
	case auth.RoleProducer:
		res, err = h.Orders.ListForProducer(r.Context(), p.UserID, f)
	default:
		res, err = h.Orders.ListMine(r.Context(), p.UserID, f)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.Orders.Status(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": s})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), principal(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Cancel(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
