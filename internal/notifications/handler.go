package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/events"
	kafkax "github.com/ariefcatur/go-marketplace/internal/kafka"
	"github.com/ariefcatur/go-marketplace/internal/metrics"
	"github.com/ariefcatur/go-marketplace/internal/money"
	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

const consumerName = "notifier"

type Store interface {
	Insert(ctx context.Context, ns []Notification) ([]Notification, error)
	ChatIDs(ctx context.Context, userIDs []string) (map[string]int64, error)
}

// Dedup claims an event id for this consumer.
type Dedup interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string)
}

// Handler turns domain events into stored notifications and pushes them to
// the users' chat when they linked one.
type Handler struct {
	store   Store
	dedup   Dedup
	sender  Sender
	metrics *metrics.Business
	now     func() time.Time
}

func NewHandler(store Store, dedup Dedup, sender Sender, m *metrics.Business) *Handler {
	if m == nil {
		m = metrics.NewNopBusiness()
	}
	return &Handler{store: store, dedup: dedup, sender: sender, metrics: m, now: time.Now}
}

// Handle is a kafka.Handler. It returns an error only when the message should
// be retried.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		slog.WarnContext(ctx, "skip undecodable event", "topic", m.Topic, "offset", m.Offset, "err", err)
		h.metrics.EventsConsumed.WithLabelValues(m.Topic, "invalid").Inc()
		return nil
	}

	fresh, err := h.dedup.Claim(ctx, env.EventID)
	if err != nil {
		// rows are unique per (event_id, user_id); proceed without the claim
		slog.WarnContext(ctx, "dedup unavailable", "event_id", env.EventID, "err", err)
		fresh = true
	}
	if !fresh {
		h.metrics.EventsConsumed.WithLabelValues(env.EventType, "duplicate").Inc()
		return nil
	}

	ns, err := compose(env, h.now().UTC())
	if err != nil {
		slog.WarnContext(ctx, "skip event with bad payload", "event_id", env.EventID, "type", env.EventType, "err", err)
		h.metrics.EventsConsumed.WithLabelValues(env.EventType, "invalid").Inc()
		return nil
	}
	if len(ns) == 0 {
		h.metrics.EventsConsumed.WithLabelValues(env.EventType, "ignored").Inc()
		return nil
	}

	stored, err := h.store.Insert(ctx, ns)
	if err != nil {
		h.dedup.Release(ctx, env.EventID)
		h.metrics.EventsConsumed.WithLabelValues(env.EventType, "error").Inc()
		return fmt.Errorf("store notifications: %w", err)
	}
	h.deliver(ctx, stored)
	h.metrics.EventsConsumed.WithLabelValues(env.EventType, "ok").Inc()
	slog.InfoContext(ctx, "event handled", "event_id", env.EventID, "type", env.EventType, "notifications", len(stored))
	return nil
}

// deliver is best effort; the stored notification is the record of truth.
func (h *Handler) deliver(ctx context.Context, ns []Notification) {
	if len(ns) == 0 {
		return
	}
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.UserID)
	}
	chats, err := h.store.ChatIDs(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "load chat ids", "err", err)
		return
	}
	for _, n := range ns {
		chat, ok := chats[n.UserID]
		if !ok {
			continue
		}
		result := "ok"
		if err := h.sender.Send(ctx, chat, n.Title+"\n"+n.Body); err != nil {
			result = "error"
			slog.WarnContext(ctx, "send notification", "channel", h.sender.Channel(), "user_id", n.UserID, "err", err)
		}
		h.metrics.NotificationSent.WithLabelValues(h.sender.Channel(), result).Inc()
	}
}

func compose(env events.Envelope, now time.Time) ([]Notification, error) {
	var out []Notification
	add := func(userID, title, body, orderID string) {
		n := Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			EventID:   env.EventID,
			Kind:      env.EventType,
			Title:     title,
			Body:      body,
			CreatedAt: now,
		}
		if orderID != "" {
			n.OrderID = &orderID
		}
		out = append(out, n)
	}

	switch env.EventType {
	case events.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		total := money.Format(p.TotalCents, p.Currency)
		add(p.UserID, "Order placed",
			fmt.Sprintf("Order %s for %s is %s.", short(p.OrderID), total, humanStatus(p.Status)), p.OrderID)
		for _, u := range p.ProducerIDs {
			add(u, "New order", fmt.Sprintf("Order %s includes your products or delivery slots.", short(p.OrderID)), p.OrderID)
		}

	case events.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[events.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		title := "Order " + humanStatus(p.To)
		body := fmt.Sprintf("Order %s moved from %s to %s.", short(p.OrderID), humanStatus(p.From), humanStatus(p.To))
		add(p.UserID, title, body, p.OrderID)
		for _, u := range p.ProducerIDs {
			add(u, title, body, p.OrderID)
		}

	case events.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		body := fmt.Sprintf("Order %s was cancelled.", short(p.OrderID))
		add(p.UserID, "Order cancelled", body, p.OrderID)
		for _, u := range p.ProducerIDs {
			add(u, "Order cancelled", body, p.OrderID)
		}

	case events.EventInvoicePaid:
		p, err := kafkax.UnwrapPayload[events.InvoicePaidPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		add(p.UserID, "Payment received",
			fmt.Sprintf("We received %s for order %s.", money.Format(p.AmountCents, p.Currency), short(p.OrderID)), p.OrderID)
		for _, u := range p.ProducerIDs {
			add(u, "Order paid", fmt.Sprintf("Order %s is paid and ready to ship.", short(p.OrderID)), p.OrderID)
		}

	case events.EventInvoiceOverdue:
		p, err := kafkax.UnwrapPayload[events.InvoiceOverduePayload](env.Payload)
		if err != nil {
			return nil, err
		}
		add(p.UserID, "Invoice overdue",
			fmt.Sprintf("The invoice for order %s (%s) was due on %s.",
				short(p.OrderID), money.Format(p.AmountCents, p.Currency), p.DueDate.Format("2006-01-02")), p.OrderID)
		for _, u := range p.ProducerIDs {
			add(u, "Payment overdue", fmt.Sprintf("Payment for order %s is overdue; hold the shipment.", short(p.OrderID)), p.OrderID)
		}

	case events.EventBookingExpired:
		p, err := kafkax.UnwrapPayload[events.BookingExpiredPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		add(p.UserID, "Delivery slot released",
			fmt.Sprintf("Your hold on %d unit(s) expired before checkout.", p.Qty), "")
	}
	return out, nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanStatus(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", " "))
}

// RedisDedup claims event ids with SETNX, one key space per consumer.
type RedisDedup struct {
	rdb redis.Cmdable
}

func NewRedisDedup(rdb redis.Cmdable) *RedisDedup {
	return &RedisDedup{rdb: rdb}
}

func (d *RedisDedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return redisx.Claim(ctx, d.rdb, fmt.Sprintf(redisx.KeyDedup, consumerName, eventID), redisx.TTLDedup)
}

func (d *RedisDedup) Release(ctx context.Context, eventID string) {
	_ = d.rdb.Del(ctx, fmt.Sprintf(redisx.KeyDedup, consumerName, eventID)).Err()
}
