package invoices

import (
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/paging"
)

var (
	ErrNotFound            = errors.New("invoice not found")
	ErrForbidden           = errors.New("invoice belongs to another user")
	ErrCancelled           = errors.New("invoice is cancelled")
	ErrNotPayable          = errors.New("invoice is not awaiting payment")
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")
	ErrAmountMismatch      = errors.New("paid amount does not match invoice amount")
	ErrCurrencyMismatch    = errors.New("payment currency does not match invoice currency")
	ErrIntentMismatch      = errors.New("payment intent was created for another invoice")
	ErrPaymentRefUsed      = errors.New("payment reference already settled another invoice")
	ErrOrderState          = errors.New("order cannot be marked as paid")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Payable() bool { return s == StatusPending || s == StatusOverdue }

type Invoice struct {
	ID            string                `json:"id"`
	OrderID       string                `json:"order_id"`
	UserID        string                `json:"user_id"`
	AmountCents   int64                 `json:"amount_cents"`
	Currency      string                `json:"currency"`
	DueDate       time.Time             `json:"due_date"`
	Status        Status                `json:"status"`
	PaidAt        *time.Time            `json:"paid_at,omitempty"`
	PaymentMethod *orders.PaymentMethod `json:"payment_method,omitempty"`
	PaymentRef    *string               `json:"payment_ref,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Settlement is the outcome of marking an invoice paid.
type Settlement struct {
	Invoice         Invoice
	OrderFrom       orders.Status
	OrderTo         orders.Status
	Replayed        bool
	ProducerUserIDs []string
}

// Overdue is an invoice the sweep flagged. OrderMoved is set when its order
// went from INVOICE_PENDING to INVOICE_OVERDUE in the same transaction.
type Overdue struct {
	Invoice
	OrderMoved      bool
	ProducerUserIDs []string
}

type PaymentIntent struct {
	IntentID     string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

type CardPaymentInput struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type BankTransferInput struct {
	Reference   string `json:"reference"    validate:"required,max=200"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
}

type Filter struct {
	Status  string `schema:"status"`
	Overdue bool   `schema:"overdue"`
	UserID  string `schema:"-"`
	paging.Params
}
