package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/auth"
	"github.com/ariefcatur/go-marketplace/internal/events"
	"github.com/ariefcatur/go-marketplace/internal/metrics"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/paging"
	"github.com/ariefcatur/go-marketplace/internal/payments"
	"github.com/ariefcatur/go-marketplace/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const overdueBatch = 200

type Repository interface {
	ByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, f Filter, now time.Time) ([]Invoice, int, error)
	Settle(ctx context.Context, id string, method orders.PaymentMethod, ref string, now time.Time) (Settlement, error)
	MarkOverdue(ctx context.Context, now time.Time, limit int) ([]Overdue, error)
}

// WebhookGuard remembers provider event ids that were already handled.
type WebhookGuard interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

type statusCache interface {
	SetStatus(ctx context.Context, orderID string, e orders.StatusEntry)
}

type emitter interface {
	Emit(ctx context.Context, eventType, orderID string, payload any)
}

type Service struct {
	repo    Repository
	gateway payments.Gateway
	guard   WebhookGuard
	cache   statusCache
	events  emitter
	metrics *metrics.Business
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Business) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, gateway payments.Gateway, guard WebhookGuard, cache statusCache, ev emitter, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		gateway: gateway,
		guard:   guard,
		cache:   cache,
		events:  ev,
		metrics: metrics.NewNopBusiness(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (Invoice, error) {
	in, err := s.repo.ByID(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if in.UserID != actor.UserID && !actor.Is(auth.RoleAdmin) {
		return Invoice{}, ErrForbidden
	}
	return in, nil
}

func (s *Service) ListMine(ctx context.Context, userID string, f Filter) (paging.Result[Invoice], error) {
	f.UserID = userID
	return s.list(ctx, f)
}

func (s *Service) ListAll(ctx context.Context, f Filter) (paging.Result[Invoice], error) {
	f.UserID = ""
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f Filter) (paging.Result[Invoice], error) {
	items, total, err := s.repo.List(ctx, f, s.now().UTC())
	if err != nil {
		return paging.Result[Invoice]{}, err
	}
	return paging.NewResult(items, total, f.Params), nil
}

// CreatePaymentIntent opens a card payment for the invoice amount. The intent
// carries the invoice id so the webhook can find its way back.
func (s *Service) CreatePaymentIntent(ctx context.Context, actor auth.Principal, id string) (PaymentIntent, error) {
	in, err := s.Get(ctx, actor, id)
	if err != nil {
		return PaymentIntent{}, err
	}
	if in.Status == StatusCancelled {
		return PaymentIntent{}, ErrCancelled
	}
	if !in.Status.Payable() {
		return PaymentIntent{}, ErrNotPayable
	}
	pi, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		Metadata: map[string]string{
			"invoice_id": in.ID,
			"order_id":   in.OrderID,
			"user_id":    in.UserID,
		},
	})
	if err != nil {
		return PaymentIntent{}, err
	}
	slog.InfoContext(ctx, "payment intent created", "invoice_id", in.ID, "intent_id", pi.ID, "amount_cents", in.AmountCents)
	return PaymentIntent{IntentID: pi.ID, ClientSecret: pi.ClientSecret, AmountCents: pi.AmountCents, Currency: pi.Currency}, nil
}

// PayByCard reconciles a client-confirmed card payment with the invoice.
func (s *Service) PayByCard(ctx context.Context, actor auth.Principal, id, intentID string) (inv Invoice, err error) {
	ctx, span := tracing.Start(ctx, "invoices.PayByCard", attribute.String("invoice_id", id))
	defer func() { tracing.End(span, err) }()

	in, err := s.Get(ctx, actor, id)
	if err != nil {
		return Invoice{}, err
	}
	if in.Status == StatusPaid {
		return in, nil
	}
	if in.Status == StatusCancelled {
		return Invoice{}, ErrCancelled
	}
	pi, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return Invoice{}, err
	}
	return s.settleCard(ctx, in, pi)
}

func (s *Service) settleCard(ctx context.Context, in Invoice, pi payments.Intent) (Invoice, error) {
	if err := checkIntent(in, pi); err != nil {
		s.metrics.Payments.WithLabelValues(string(orders.PaymentCard), "rejected").Inc()
		slog.WarnContext(ctx, "card payment rejected", "invoice_id", in.ID, "intent_id", pi.ID, "err", err)
		return Invoice{}, err
	}
	return s.settle(ctx, in.ID, orders.PaymentCard, pi.ID)
}

func checkIntent(in Invoice, pi payments.Intent) error {
	switch {
	case pi.Status != payments.IntentSucceeded:
		return fmt.Errorf("%w: intent status %s", ErrPaymentNotSucceeded, pi.Status)
	case pi.AmountCents != in.AmountCents:
		return fmt.Errorf("%w: paid %d, due %d", ErrAmountMismatch, pi.AmountCents, in.AmountCents)
	case !strings.EqualFold(pi.Currency, in.Currency):
		return ErrCurrencyMismatch
	case pi.Metadata["invoice_id"] != in.ID:
		return ErrIntentMismatch
	}
	return nil
}

func (s *Service) settle(ctx context.Context, id string, method orders.PaymentMethod, ref string) (Invoice, error) {
	st, err := s.repo.Settle(ctx, id, method, ref, s.now().UTC())
	if err != nil {
		return Invoice{}, err
	}
	in := st.Invoice
	if st.Replayed {
		slog.InfoContext(ctx, "invoice already paid", "invoice_id", id, "payment_ref", ref)
		return in, nil
	}
	s.metrics.Payments.WithLabelValues(string(method), "paid").Inc()
	s.cache.SetStatus(ctx, in.OrderID, orders.StatusEntry{Status: st.OrderTo, UserID: in.UserID})

	slog.InfoContext(ctx, "invoice paid",
		"invoice_id", in.ID, "order_id", in.OrderID, "method", method,
		"order_from", st.OrderFrom, "order_to", st.OrderTo)
	s.events.Emit(ctx, events.EventInvoicePaid, in.OrderID, events.InvoicePaidPayload{
		InvoiceID:     in.ID,
		OrderID:       in.OrderID,
		UserID:        in.UserID,
		AmountCents:   in.AmountCents,
		Currency:      in.Currency,
		PaymentMethod: string(method),
		PaymentRef:    ref,
		ProducerIDs:   st.ProducerUserIDs,
	})
	return in, nil
}

// HandleWebhook verifies a provider callback and settles the invoice named in
// the intent metadata. Callbacks that can never succeed are acknowledged and
// logged so the provider stops retrying them.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (err error) {
	ctx, span := tracing.Start(ctx, "invoices.HandleWebhook")
	defer func() { tracing.End(span, err) }()

	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if s.guard.Seen(ctx, ev.ID) {
		return nil
	}
	if ev.Type != payments.EventIntentSucceeded || ev.Intent == nil {
		slog.DebugContext(ctx, "webhook ignored", "event_id", ev.ID, "type", ev.Type)
		s.guard.Mark(ctx, ev.ID)
		return nil
	}

	// intents created outside this service carry no invoice id; ByID reports
	// them as unknown and they are acknowledged below
	invoiceID := ev.Intent.Metadata["invoice_id"]
	in, err := s.repo.ByID(ctx, invoiceID)
	switch {
	case errors.Is(err, ErrNotFound):
		slog.WarnContext(ctx, "webhook for unknown invoice", "event_id", ev.ID, "intent_id", ev.Intent.ID, "invoice_id", invoiceID)
		s.guard.Mark(ctx, ev.ID)
		return nil
	case err != nil:
		return err
	}

	if _, err := s.settleCard(ctx, in, *ev.Intent); err != nil && !permanent(err) {
		return err
	}
	s.guard.Mark(ctx, ev.ID)
	return nil
}

func permanent(err error) bool {
	for _, e := range []error{ErrCancelled, ErrNotPayable, ErrPaymentNotSucceeded, ErrAmountMismatch,
		ErrCurrencyMismatch, ErrIntentMismatch, ErrPaymentRefUsed, ErrOrderState} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// ConfirmBankTransfer records a transfer an admin matched on the bank statement.
func (s *Service) ConfirmBankTransfer(ctx context.Context, actor auth.Principal, id string, in BankTransferInput) (Invoice, error) {
	if !actor.Is(auth.RoleAdmin) {
		return Invoice{}, ErrForbidden
	}
	inv, err := s.repo.ByID(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status == StatusPaid {
		return inv, nil
	}
	if in.AmountCents != inv.AmountCents {
		return Invoice{}, fmt.Errorf("%w: received %d, due %d", ErrAmountMismatch, in.AmountCents, inv.AmountCents)
	}
	return s.settle(ctx, id, orders.PaymentBankTransfer, in.Reference)
}

// MarkOverdue flags every pending invoice past its due date and returns the count.
func (s *Service) MarkOverdue(ctx context.Context) (n int, err error) {
	ctx, span := tracing.Start(ctx, "invoices.MarkOverdue")
	defer func() { tracing.End(span, err) }()

	now := s.now().UTC()
	for {
		batch, err := s.repo.MarkOverdue(ctx, now, overdueBatch)
		if err != nil {
			return n, err
		}
		for _, in := range batch {
			if in.OrderMoved {
				s.cache.SetStatus(ctx, in.OrderID, orders.StatusEntry{Status: orders.StatusInvoiceOverdue, UserID: in.UserID})
			}
			s.events.Emit(ctx, events.EventInvoiceOverdue, in.OrderID, events.InvoiceOverduePayload{
				InvoiceID:   in.ID,
				OrderID:     in.OrderID,
				UserID:      in.UserID,
				AmountCents: in.AmountCents,
				Currency:    in.Currency,
				DueDate:     in.DueDate,
				ProducerIDs: in.ProducerUserIDs,
			})
		}
		n += len(batch)
		s.metrics.InvoicesOverdue.Add(float64(len(batch)))
		if len(batch) < overdueBatch {
			break
		}
	}
	if n > 0 {
		slog.InfoContext(ctx, "invoices marked overdue", "count", n)
	}
	return n, nil
}
