package users

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/paging"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactive           = errors.New("account is deactivated")
	ErrInvalidRole        = errors.New("invalid role")
	ErrHasUnpaidInvoices  = errors.New("user has unpaid invoices")
	ErrProducerName       = errors.New("producer name is required")
)

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Name           string    `json:"name"`
	Role           auth.Role `json:"role"`
	Active         bool      `json:"active"`
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty"`
	ProducerID     *string   `json:"producer_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Producer struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type RegisterInput struct {
	Email        string    `json:"email"         validate:"required,email"`
	Password     string    `json:"password"      validate:"required,min=8"`
	Name         string    `json:"name"          validate:"required"`
	Role         auth.Role `json:"role"          validate:"omitempty,oneof=CLIENT PRODUCER"`
	ProducerName string    `json:"producer_name"`
	Description  string    `json:"description"`
}

type Filter struct {
	Role   string `schema:"role"   validate:"omitempty,oneof=CLIENT PRODUCER ADMIN"`
	Search string `schema:"search"`
	Active *bool  `schema:"active"`
	paging.Params
}

type Patch struct {
	Role           *auth.Role `json:"role"             validate:"omitempty,oneof=CLIENT PRODUCER ADMIN"`
	Active         *bool      `json:"active"`
	TelegramChatID *int64     `json:"telegram_chat_id"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}
