package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace/internal/notifications"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/go-chi/chi/v5"
)

type notificationService interface {
	List(ctx context.Context, userID string, f notifications.Filter) (paging.Result[notifications.Notification], error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type NotificationsHandler struct {
	Notifications notificationService
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Post("/notifications/{id}/read", h.markRead)
	r.Post("/notifications/read-all", h.markAllRead)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	var f notifications.Filter
	if err := decodeQuery(r, &f); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Notifications.List(r.Context(), principal(r).UserID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *NotificationsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkRead(r.Context(), principal(r).UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationsHandler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkAllRead(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
