package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/ariefcatur/go-marketplace/internal/slots"
)

var (
	ErrNotFound              = errors.New("order not found")
	ErrEmptyCheckout         = errors.New("nothing to check out: cart is empty and no delivery slot is held")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrProductUnavailable    = errors.New("product is no longer available")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidTransition     = errors.New("status transition not allowed")
	ErrInvalidStatus         = errors.New("unknown order status")
	ErrManualTransition      = errors.New("status can only be set through payment or cancellation")
	ErrForbidden             = errors.New("not allowed to access this order")
	ErrCheckoutInProgress    = errors.New("a checkout with this idempotency key is still in progress, retry shortly")
	errDuplicateKey          = errors.New("duplicate idempotency key")
)

type Item struct {
	ProductID  string `json:"product_id"`
	ProducerID string `json:"producer_id"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

func (i Item) TotalCents() int64 { return i.PriceCents * int64(i.Qty) }

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          Status          `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	DeliveryAddress string          `json:"delivery_address"`
	TotalCents      int64           `json:"total_cents"`
	Currency        string          `json:"currency"`
	InvoiceID       string          `json:"invoice_id"`
	Items           []Item          `json:"items"`
	Bookings        []slots.Booking `json:"bookings"`
	ProducerUserIDs []string        `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Total is the order invariant: every item line plus every booking line.
func Total(items []Item, bookings []slots.Booking) int64 {
	var sum int64
	for _, it := range items {
		sum += it.TotalCents()
	}
	for _, b := range bookings {
		sum += b.TotalCents()
	}
	return sum
}

type StockShortage struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// StockError lists every line that could not be reserved.
type StockError struct {
	Details []StockShortage
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s (required %d, available %d)", d.ProductID, d.Required, d.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

type CheckoutInput struct {
	PaymentMethod   PaymentMethod `json:"payment_method"   validate:"required,oneof=card bank_transfer"`
	DeliveryAddress string        `json:"delivery_address" validate:"required,max=500"`
}

type CheckoutResult struct {
	Order      Order     `json:"order"`
	InvoiceID  string    `json:"invoice_id"`
	DueDate    time.Time `json:"due_date"`
	Idempotent bool      `json:"idempotent"`
}

// draft carries everything the checkout transaction needs.
type draft struct {
	OrderID         string
	InvoiceID       string
	UserID          string
	IdempotencyKey  string
	PaymentMethod   PaymentMethod
	Status          Status
	DeliveryAddress string
	Currency        string
	Lines           map[string]int
	Now             time.Time
	DueDate         time.Time
}

type Filter struct {
	Status string    `schema:"status"`
	From   time.Time `schema:"from"`
	To     time.Time `schema:"to"`
	// set by the service from the caller, never from the query string
	UserID         string `schema:"-"`
	ProducerUserID string `schema:"-"`
	paging.Params
}
