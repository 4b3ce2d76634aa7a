package slots

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/catalog"
	"github.com/ariefcatur/go-marketplace/internal/events"
	"github.com/ariefcatur/go-marketplace/internal/metrics"
	"github.com/ariefcatur/go-marketplace/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const sweepBatch = 200

type Repository interface {
	CreateSlot(ctx context.Context, s Slot) error
	SlotByID(ctx context.Context, id string) (Slot, error)
	ListSlots(ctx context.Context, f Filter) ([]Slot, error)
	UpdateCapacity(ctx context.Context, id string, maxCapacity int) (Slot, error)
	DeleteSlot(ctx context.Context, id string) error
	Hold(ctx context.Context, b Booking, now time.Time) (Booking, error)
	BookingByID(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, userID string, status BookingStatus) ([]Booking, error)
	CancelTemporary(ctx context.Context, id string) (Booking, error)
	ExpireBatch(ctx context.Context, now time.Time, limit int) ([]Booking, error)
}

type productOwner interface {
	Owned(ctx context.Context, actor auth.Principal, id string) (catalog.Product, error)
}

type emitter interface {
	Emit(ctx context.Context, eventType, orderID string, payload any)
}

type Service struct {
	repo     Repository
	products productOwner
	events   emitter
	metrics  *metrics.Business
	holdTTL  time.Duration
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Business) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, products productOwner, ev emitter, holdTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		products: products,
		events:   ev,
		metrics:  metrics.NewNopBusiness(),
		holdTTL:  holdTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) CreateSlot(ctx context.Context, actor auth.Principal, productID string, in CreateSlotInput) (Slot, error) {
	p, err := s.products.Owned(ctx, actor, productID)
	if err != nil {
		return Slot{}, err
	}
	if !p.IsFresh {
		return Slot{}, ErrProductNotFresh
	}
	if in.MaxCapacity <= 0 {
		return Slot{}, ErrInvalidCapacity
	}
	now := s.now().UTC()
	if !in.DeliveryDate.After(now) {
		return Slot{}, ErrSlotInPast
	}
	slot := Slot{
		ID:           uuid.NewString(),
		ProductID:    productID,
		DeliveryDate: in.DeliveryDate.UTC(),
		MaxCapacity:  in.MaxCapacity,
		PriceCents:   in.PriceCents,
		CreatedAt:    now,
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return Slot{}, err
	}
	slog.InfoContext(ctx, "delivery slot created", "slot_id", slot.ID, "product_id", productID, "capacity", slot.MaxCapacity)
	return slot.withRemaining(), nil
}

func (s *Service) ownedSlot(ctx context.Context, actor auth.Principal, slotID string) (Slot, error) {
	slot, err := s.repo.SlotByID(ctx, slotID)
	if err != nil {
		return Slot{}, err
	}
	if _, err := s.products.Owned(ctx, actor, slot.ProductID); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

func (s *Service) UpdateCapacity(ctx context.Context, actor auth.Principal, slotID string, maxCapacity int) (Slot, error) {
	if maxCapacity <= 0 {
		return Slot{}, ErrInvalidCapacity
	}
	if _, err := s.ownedSlot(ctx, actor, slotID); err != nil {
		return Slot{}, err
	}
	return s.repo.UpdateCapacity(ctx, slotID, maxCapacity)
}

func (s *Service) DeleteSlot(ctx context.Context, actor auth.Principal, slotID string) error {
	if _, err := s.ownedSlot(ctx, actor, slotID); err != nil {
		return err
	}
	return s.repo.DeleteSlot(ctx, slotID)
}

func (s *Service) ListSlots(ctx context.Context, f Filter) ([]Slot, error) {
	out, err := s.repo.ListSlots(ctx, f)
	if out == nil {
		out = []Slot{}
	}
	return out, err
}

// Hold reserves qty on a slot for the hold TTL.
func (s *Service) Hold(ctx context.Context, userID, slotID string, qty int) (b Booking, err error) {
	ctx, span := tracing.Start(ctx, "slots.Hold", attribute.String("slot_id", slotID), attribute.Int("qty", qty))
	defer func() { tracing.End(span, err) }()

	if qty <= 0 {
		return Booking{}, ErrInvalidQty
	}
	now := s.now().UTC()
	exp := now.Add(s.holdTTL)
	b, err = s.repo.Hold(ctx, Booking{
		ID:        uuid.NewString(),
		SlotID:    slotID,
		UserID:    userID,
		Qty:       qty,
		Status:    BookingTemporary,
		ExpiresAt: &exp,
		CreatedAt: now,
		UpdatedAt: now,
	}, now)
	if err != nil {
		return Booking{}, err
	}
	slog.InfoContext(ctx, "slot held", "booking_id", b.ID, "slot_id", slotID, "user_id", userID, "qty", qty, "expires_at", exp)
	return b, nil
}

func (s *Service) MyBookings(ctx context.Context, userID string, status BookingStatus) ([]Booking, error) {
	out, err := s.repo.ListBookings(ctx, userID, status)
	if out == nil {
		out = []Booking{}
	}
	return out, err
}

// Cancel drops a hold. Bookings already attached to an order are cancelled
// with the order.
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, bookingID string) (Booking, error) {
	b, err := s.repo.BookingByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if b.UserID != actor.UserID && !actor.Is(auth.RoleAdmin) {
		return Booking{}, ErrNotOwner
	}
	if b.Status != BookingTemporary {
		return Booking{}, ErrNotCancellable
	}
	return s.repo.CancelTemporary(ctx, bookingID)
}

// Sweep cancels every expired hold and returns how many were released.
func (s *Service) Sweep(ctx context.Context) (n int, err error) {
	ctx, span := tracing.Start(ctx, "slots.Sweep")
	defer func() { tracing.End(span, err) }()

	now := s.now().UTC()
	for {
		batch, err := s.repo.ExpireBatch(ctx, now, sweepBatch)
		if err != nil {
			return n, err
		}
		for _, b := range batch {
			s.events.Emit(ctx, events.EventBookingExpired, "", events.BookingExpiredPayload{
				BookingID: b.ID, SlotID: b.SlotID, UserID: b.UserID, Qty: b.Qty,
			})
		}
		n += len(batch)
		if len(batch) < sweepBatch {
			break
		}
	}
	if n > 0 {
		s.metrics.BookingsExpired.Add(float64(n))
		slog.InfoContext(ctx, "expired holds released", "count", n)
	}
	return n, nil
}
