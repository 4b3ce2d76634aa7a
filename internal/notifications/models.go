package notifications

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/paging"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	EventID   string     `json:"-"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	OrderID   *string    `json:"order_id,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Filter struct {
	UnreadOnly bool   `schema:"unread_only"`
	UserID     string `schema:"-"`
	paging.Params
}
