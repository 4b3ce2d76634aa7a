package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/go-chi/chi/v5"
)

type accountService interface {
	Register(ctx context.Context, in users.RegisterInput) (users.User, error)
	Login(ctx context.Context, email, password string) (users.Session, error)
	Me(ctx context.Context, userID string) (users.User, error)
	SetTelegramChat(ctx context.Context, userID string, chatID *int64) (users.User, error)
}

type AuthHandler struct {
	Users accountService
}

type loginReq struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type telegramReq struct {
	ChatID *int64 `json:"chat_id"`
}

func (h *AuthHandler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Get("/auth/me", h.me)
	r.Put("/auth/me/telegram", h.setTelegram)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in users.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Me(r.Context(), principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) setTelegram(w http.ResponseWriter, r *http.Request) {
	var req telegramReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.SetTelegramChat(r.Context(), principal(r).UserID, req.ChatID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
