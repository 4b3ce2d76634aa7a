package catalog

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/paging"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrNotOwner          = errors.New("product belongs to another producer")
	ErrNoProducerProfile = errors.New("user has no producer profile")
	ErrInvalidStock      = errors.New("stock must be zero or positive")
)

type Product struct {
	ID           string    `json:"id"`
	ProducerID   string    `json:"producer_id"`
	ProducerName string    `json:"producer_name"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Unit         string    `json:"unit"`
	PriceCents   int64     `json:"price_cents"`
	IsFresh      bool      `json:"is_fresh"`
	Active       bool      `json:"active"`
	Stock        int       `json:"stock"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateInput struct {
	Name        string `json:"name"        validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Unit        string `json:"unit"        validate:"omitempty,max=32"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	IsFresh     bool   `json:"is_fresh"`
	Stock       int    `json:"stock"       validate:"gte=0"`
}

type Patch struct {
	Name        *string `json:"name"        validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
	Unit        *string `json:"unit"        validate:"omitempty,max=32"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,gte=0"`
	IsFresh     *bool   `json:"is_fresh"`
	Active      *bool   `json:"active"`
}

type Filter struct {
	ProducerID      string `schema:"producer_id"`
	Search          string `schema:"search"`
	Fresh           *bool  `schema:"fresh"`
	InStock         bool   `schema:"in_stock"`
	IncludeInactive bool   `schema:"-"`
	paging.Params
}
