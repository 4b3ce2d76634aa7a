package slots

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSlotNotFound          = errors.New("delivery slot not found")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrSlotFull              = errors.New("delivery slot has not enough capacity left")
	ErrSlotInPast            = errors.New("delivery slot is in the past")
	ErrInvalidQty            = errors.New("quantity must be positive")
	ErrInvalidCapacity       = errors.New("capacity must be positive")
	ErrCapacityBelowReserved = errors.New("capacity cannot go below the reserved quantity")
	ErrSlotInUse             = errors.New("delivery slot still has bookings")
	ErrNotCancellable        = errors.New("booking can no longer be cancelled")
	ErrNotOwner              = errors.New("booking belongs to another user")
	ErrProductNotFresh       = errors.New("delivery slots are only offered for fresh products")
	ErrProductUnavailable    = errors.New("product is no longer offered for delivery")
	ErrBookingTransition     = errors.New("booking status transition not allowed")
)

type BookingStatus string

const (
	BookingTemporary BookingStatus = "TEMPORARY"
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

var bookingNext = map[BookingStatus]map[BookingStatus]bool{
	BookingTemporary: {BookingPending: true, BookingCancelled: true},
	BookingPending:   {BookingConfirmed: true, BookingCancelled: true},
	BookingConfirmed: {},
	BookingCancelled: {},
}

func CanTransitionBooking(from, to BookingStatus) bool {
	return bookingNext[from][to]
}

func (b *Booking) moveTo(to BookingStatus) error {
	if !CanTransitionBooking(b.Status, to) {
		return fmt.Errorf("%w: booking %s %s -> %s", ErrBookingTransition, b.ID, b.Status, to)
	}
	b.Status = to
	return nil
}

type Slot struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	DeliveryDate time.Time `json:"delivery_date"`
	MaxCapacity  int       `json:"max_capacity"`
	Reserved     int       `json:"reserved"`
	Remaining    int       `json:"remaining"`
	PriceCents   int64     `json:"price_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

// withRemaining fills Remaining from the capacity counters.
func (s Slot) withRemaining() Slot {
	s.Remaining = s.MaxCapacity - s.Reserved
	return s
}

type Booking struct {
	ID           string        `json:"id"`
	SlotID       string        `json:"slot_id"`
	UserID       string        `json:"user_id"`
	OrderID      *string       `json:"order_id,omitempty"`
	Qty          int           `json:"qty"`
	PriceCents   int64         `json:"price_cents"` // per unit, snapshot of the slot price
	Status       BookingStatus `json:"status"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	ProductID    string        `json:"product_id"`
	DeliveryDate time.Time     `json:"delivery_date"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (b Booking) TotalCents() int64 { return b.PriceCents * int64(b.Qty) }

type CreateSlotInput struct {
	DeliveryDate time.Time `json:"delivery_date" validate:"required"`
	MaxCapacity  int       `json:"max_capacity"  validate:"gt=0"`
	PriceCents   int64     `json:"price_cents"   validate:"gte=0"`
}

type Filter struct {
	ProductID     string    `schema:"product_id"`
	From          time.Time `schema:"from"`
	To            time.Time `schema:"to"`
	AvailableOnly bool      `schema:"available"`
}
