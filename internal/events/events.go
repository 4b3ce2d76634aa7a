package events

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventInvoicePaid        = "invoice.paid"
	EventInvoiceOverdue     = "invoice.overdue"
	EventBookingExpired     = "booking.expired"
)

// Topics returns every topic the marketplace publishes to. One topic per event type.
func Topics() []string {
	return []string{
		EventOrderCreated,
		EventOrderStatusChanged,
		EventOrderCancelled,
		EventInvoicePaid,
		EventInvoiceOverdue,
		EventBookingExpired,
	}
}

// PartitionKey keeps every event of one order on the same partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       string   `json:"order_id"`
	UserID        string   `json:"user_id"`
	ProducerIDs   []string `json:"producer_user_ids"`
	Status        string   `json:"status"`
	PaymentMethod string   `json:"payment_method"`
	TotalCents    int64    `json:"total_cents"`
	Currency      string   `json:"currency"`
	Items         int      `json:"items"`
	Bookings      int      `json:"bookings"`
}

type OrderStatusChangedPayload struct {
	OrderID     string   `json:"order_id"`
	UserID      string   `json:"user_id"`
	ProducerIDs []string `json:"producer_user_ids"`
	From        string   `json:"from"`
	To          string   `json:"to"`
}

type OrderCancelledPayload struct {
	OrderID     string   `json:"order_id"`
	UserID      string   `json:"user_id"`
	ProducerIDs []string `json:"producer_user_ids"`
	CancelledBy string   `json:"cancelled_by"`
}

type InvoicePaidPayload struct {
	InvoiceID     string   `json:"invoice_id"`
	OrderID       string   `json:"order_id"`
	UserID        string   `json:"user_id"`
	AmountCents   int64    `json:"amount_cents"`
	Currency      string   `json:"currency"`
	PaymentMethod string   `json:"payment_method"`
	PaymentRef    string   `json:"payment_ref"`
	ProducerIDs   []string `json:"producer_user_ids"`
}

type InvoiceOverduePayload struct {
	InvoiceID   string    `json:"invoice_id"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	DueDate     time.Time `json:"due_date"`
	ProducerIDs []string  `json:"producer_user_ids"`
}

type BookingExpiredPayload struct {
	BookingID string `json:"booking_id"`
	SlotID    string `json:"slot_id"`
	UserID    string `json:"user_id"`
	Qty       int    `json:"qty"`
}
