package orders

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/events"
	"github.com/ariefcatur/go-marketplace/internal/metrics"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/ariefcatur/go-marketplace/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type Repository interface {
	FindByIdempotencyKey(ctx context.Context, userID, key string) (string, bool, error)
	Checkout(ctx context.Context, d draft) (Order, error)
	ByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	Transition(ctx context.Context, id string, to Status) (Status, error)
	Cancel(ctx context.Context, id string) (Status, error)
}

// Cart is the part of the cart store checkout reads and clears.
type Cart interface {
	Items(ctx context.Context, userID string) (map[string]int, error)
	Clear(ctx context.Context, userID string) error
}

type emitter interface {
	Emit(ctx context.Context, eventType, orderID string, payload any)
}

type Service struct {
	repo       Repository
	cart       Cart
	cache      Cache
	events     emitter
	metrics    *metrics.Business
	currency   string
	invoiceDue time.Duration
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Business) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, cart Cart, cache Cache, ev emitter, currency string, invoiceDue time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		cart:       cart,
		cache:      cache,
		events:     ev,
		metrics:    metrics.NewNopBusiness(),
		currency:   currency,
		invoiceDue: invoiceDue,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Checkout converts the user's cart and live slot holds into an order plus
// its invoice. Replaying the same idempotency key returns the first order.
func (s *Service) Checkout(ctx context.Context, userID, key string, in CheckoutInput) (res CheckoutResult, err error) {
	ctx, span := tracing.Start(ctx, "orders.Checkout", attribute.String("user_id", userID))
	defer func() { tracing.End(span, err) }()

	if key == "" {
		return CheckoutResult{}, ErrMissingIdempotencyKey
	}
	status, ok := InitialStatus(in.PaymentMethod)
	if !ok {
		return CheckoutResult{}, ErrInvalidPaymentMethod
	}

	if res, ok, err := s.replay(ctx, userID, key); err != nil || ok {
		return res, err
	}

	lines, err := s.cart.Items(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}

	now := s.now().UTC()
	d := draft{
		OrderID:         uuid.NewString(),
		InvoiceID:       uuid.NewString(),
		UserID:          userID,
		IdempotencyKey:  key,
		PaymentMethod:   in.PaymentMethod,
		Status:          status,
		DeliveryAddress: in.DeliveryAddress,
		Currency:        s.currency,
		Lines:           lines,
		Now:             now,
		DueDate:         now.Add(s.invoiceDue),
	}
	o, err := s.repo.Checkout(ctx, d)
	if errors.Is(err, errDuplicateKey) {
		// a concurrent request with the same key won the insert
		if res, ok, err := s.replay(ctx, userID, key); err != nil || ok {
			return res, err
		}
		return CheckoutResult{}, ErrCheckoutInProgress
	}
	if err != nil {
		return CheckoutResult{}, err
	}

	s.cache.RememberCheckout(ctx, userID, key, o.ID)
	s.cache.SetStatus(ctx, o.ID, StatusEntry{Status: o.Status, UserID: o.UserID})
	if len(lines) > 0 {
		if err := s.cart.Clear(ctx, userID); err != nil {
			slog.WarnContext(ctx, "clear cart after checkout", "user_id", userID, "err", err)
		}
	}
	s.metrics.OrdersCreated.WithLabelValues(string(o.PaymentMethod)).Inc()

	slog.InfoContext(ctx, "order created",
		"order_id", o.ID, "user_id", userID, "status", o.Status,
		"items", len(o.Items), "bookings", len(o.Bookings), "total_cents", o.TotalCents)

	s.events.Emit(ctx, events.EventOrderCreated, o.ID, events.OrderCreatedPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		ProducerIDs:   o.ProducerUserIDs,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		TotalCents:    o.TotalCents,
		Currency:      o.Currency,
		Items:         len(o.Items),
		Bookings:      len(o.Bookings),
	})

	return CheckoutResult{Order: o, InvoiceID: d.InvoiceID, DueDate: d.DueDate}, nil
}

func (s *Service) replay(ctx context.Context, userID, key string) (CheckoutResult, bool, error) {
	id, ok := s.cache.CheckoutOrder(ctx, userID, key)
	if !ok {
		var err error
		id, ok, err = s.repo.FindByIdempotencyKey(ctx, userID, key)
		if err != nil || !ok {
			return CheckoutResult{}, false, err
		}
	}
	o, err := s.repo.ByID(ctx, id)
	if err != nil {
		return CheckoutResult{}, false, err
	}
	return CheckoutResult{
		Order:      o,
		InvoiceID:  o.InvoiceID,
		DueDate:    o.CreatedAt.Add(s.invoiceDue),
		Idempotent: true,
	}, true, nil
}

func canView(actor auth.Principal, o Order) bool {
	return actor.Is(auth.RoleAdmin) || o.UserID == actor.UserID || slices.Contains(o.ProducerUserIDs, actor.UserID)
}

// Get returns the order to its client, to a producer with goods in it, or to an admin.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (Order, error) {
	o, err := s.repo.ByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !canView(actor, o) {
		return Order{}, ErrForbidden
	}
	return o, nil
}

// Status is the cached lookup used for polling.
func (s *Service) Status(ctx context.Context, actor auth.Principal, id string) (Status, error) {
	if e, ok := s.cache.Status(ctx, id); ok && (e.UserID == actor.UserID || actor.Is(auth.RoleAdmin)) {
		return e.Status, nil
	}
	o, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	s.cache.SetStatus(ctx, id, StatusEntry{Status: o.Status, UserID: o.UserID})
	return o.Status, nil
}

func (s *Service) ListMine(ctx context.Context, userID string, f Filter) (paging.Result[Order], error) {
	f.UserID, f.ProducerUserID = userID, ""
	return s.list(ctx, f)
}

func (s *Service) ListForProducer(ctx context.Context, producerUserID string, f Filter) (paging.Result[Order], error) {
	f.UserID, f.ProducerUserID = "", producerUserID
	return s.list(ctx, f)
}

func (s *Service) ListAll(ctx context.Context, f Filter) (paging.Result[Order], error) {
	f.UserID, f.ProducerUserID = "", ""
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f Filter) (paging.Result[Order], error) {
	if f.Status != "" && !Status(f.Status).Valid() {
		return paging.Result[Order]{}, ErrInvalidStatus
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return paging.Result[Order]{}, err
	}
	return paging.NewResult(items, total, f.Params), nil
}

// UpdateStatus covers the fulfilment steps (SHIPPED, DELIVERED). Payment and
// cancellation have their own operations.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Principal, id string, to Status) (Order, error) {
	if to != StatusShipped && to != StatusDelivered {
		return Order{}, ErrManualTransition
	}
	o, err := s.repo.ByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !actor.Is(auth.RoleAdmin) && !slices.Contains(o.ProducerUserIDs, actor.UserID) {
		return Order{}, ErrForbidden
	}
	from, err := s.repo.Transition(ctx, id, to)
	if err != nil {
		return Order{}, err
	}
	o.Status = to
	o.UpdatedAt = s.now().UTC()
	s.cache.SetStatus(ctx, id, StatusEntry{Status: to, UserID: o.UserID})

	slog.InfoContext(ctx, "order status changed", "order_id", id, "from", from, "to", to, "by", actor.UserID)
	s.events.Emit(ctx, events.EventOrderStatusChanged, id, events.OrderStatusChangedPayload{
		OrderID:     id,
		UserID:      o.UserID,
		ProducerIDs: o.ProducerUserIDs,
		From:        string(from),
		To:          string(to),
	})
	return o, nil
}

// Cancel is open to the client who placed the order and to admins, as long as
// the order is unpaid.
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id string) (o Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.Cancel", attribute.String("order_id", id))
	defer func() { tracing.End(span, err) }()

	o, err = s.repo.ByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != actor.UserID && !actor.Is(auth.RoleAdmin) {
		return Order{}, ErrForbidden
	}
	from, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o, err = s.repo.ByID(ctx, id); err != nil {
		return Order{}, err
	}
	s.cache.SetStatus(ctx, id, StatusEntry{Status: StatusCancelled, UserID: o.UserID})

	slog.InfoContext(ctx, "order cancelled", "order_id", id, "from", from, "by", actor.UserID)
	s.events.Emit(ctx, events.EventOrderCancelled, id, events.OrderCancelledPayload{
		OrderID:     id,
		UserID:      o.UserID,
		ProducerIDs: o.ProducerUserIDs,
		CancelledBy: string(actor.Role),
	})
	return o, nil
}
