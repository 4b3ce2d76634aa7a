package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/slots"
	"github.com/go-chi/chi/v5"
)

type slotService interface {
	CreateSlot(ctx context.Context, actor auth.Principal, productID string, in slots.CreateSlotInput) (slots.Slot, error)
	UpdateCapacity(ctx context.Context, actor auth.Principal, slotID string, maxCapacity int) (slots.Slot, error)
	DeleteSlot(ctx context.Context, actor auth.Principal, slotID string) error
	ListSlots(ctx context.Context, f slots.Filter) ([]slots.Slot, error)
	Hold(ctx context.Context, userID, slotID string, qty int) (slots.Booking, error)
	MyBookings(ctx context.Context, userID string, status slots.BookingStatus) ([]slots.Booking, error)
	Cancel(ctx context.Context, actor auth.Principal, bookingID string) (slots.Booking, error)
	Sweep(ctx context.Context) (int, error)
}

type SlotsHandler struct {
	Slots slotService
}

type holdReq struct {
	Qty int `json:"qty" validate:"required,gt=0"`
}

type capacityReq struct {
	MaxCapacity int `json:"max_capacity" validate:"required,gt=0"`
}

type bookingsQuery struct {
	Status string `schema:"status" validate:"omitempty,oneof=TEMPORARY PENDING CONFIRMED CANCELLED"`
}

func (h *SlotsHandler) RegisterPublic(r chi.Router) {
	r.Get("/delivery-slots", h.list)
}

func (h *SlotsHandler) Register(r chi.Router) {
	r.Post("/delivery-slots/cleanup", h.cleanup)
}

func (h *SlotsHandler) RegisterClient(r chi.Router) {
	r.Post("/delivery-slots/{id}/hold", h.hold)
	r.Get("/bookings", h.myBookings)
	r.Delete("/bookings/{id}", h.cancel)
}

func (h *SlotsHandler) RegisterProducer(r chi.Router) {
	r.Post("/producer/products/{id}/slots", h.create)
	r.Patch("/producer/slots/{id}", h.updateCapacity)
	r.Delete("/producer/slots/{id}", h.delete)
}

func (h *SlotsHandler) list(w http.ResponseWriter, r *http.Request) {
	var f slots.Filter
	if err := decodeQuery(r, &f); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Slots.ListSlots(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// cleanup releases expired holds on demand, in addition to the background sweeper.
func (h *SlotsHandler) cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.Slots.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": n})
}

func (h *SlotsHandler) hold(w http.ResponseWriter, r *http.Request) {
	var req holdReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.Slots.Hold(r.Context(), principal(r).UserID, chi.URLParam(r, "id"), req.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *SlotsHandler) myBookings(w http.ResponseWriter, r *http.Request) {
	var q bookingsQuery
	if err := decodeQuery(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Slots.MyBookings(r.Context(), principal(r).UserID, slots.BookingStatus(q.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SlotsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	b, err := h.Slots.Cancel(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *SlotsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in slots.CreateSlotInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Slots.CreateSlot(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *SlotsHandler) updateCapacity(w http.ResponseWriter, r *http.Request) {
	var req capacityReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Slots.UpdateCapacity(r.Context(), principal(r), chi.URLParam(r, "id"), req.MaxCapacity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SlotsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Slots.DeleteSlot(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
