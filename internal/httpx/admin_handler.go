package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/ariefcatur/go-marketplace/internal/stats"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/go-chi/chi/v5"
)

type userAdmin interface {
	List(ctx context.Context, f users.Filter) (paging.Result[users.User], error)
	Update(ctx context.Context, actor auth.Principal, id string, p users.Patch) (users.User, error)
	Delete(ctx context.Context, actor auth.Principal, id string) error
}

type statsService interface {
	Snapshot(ctx context.Context) (stats.Snapshot, error)
	Invalidate(ctx context.Context)
}

type maintenance interface {
	RunOnce(ctx context.Context) (map[string]int, error)
}

type AdminHandler struct {
	Users       userAdmin
	Stats       statsService
	Maintenance maintenance
}

// Register expects to be mounted behind RequireRole(ADMIN).
func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/admin/users", h.listUsers)
	r.Patch("/admin/users/{id}", h.updateUser)
	r.Delete("/admin/users/{id}", h.deleteUser)
	r.Get("/admin/stats", h.stats)
	r.Post("/admin/maintenance/sweep", h.sweep)
}

func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	var f users.Filter
	if err := decodeQuery(r, &f); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Users.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	var p users.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.Update(r.Context(), principal(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Stats.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	h.Stats.Invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Stats.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *AdminHandler) sweep(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Maintenance.RunOnce(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
