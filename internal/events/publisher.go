package events

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-marketplace/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

const eventVersion = 1

type producer interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) bool
}

// Publisher wraps payloads in an Envelope and hands them to the Kafka producer.
type Publisher struct {
	prod    producer
	service string
	now     func() time.Time
}

func NewPublisher(prod producer, service string) *Publisher {
	return &Publisher{prod: prod, service: service, now: time.Now}
}

// Emit is best effort: a failure is logged and never rolls back the caller.
func (p *Publisher) Emit(ctx context.Context, eventType, orderID string, payload any) {
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    p.now().UTC(),
		Producer:      p.service,
		TraceID:       traceID(ctx),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	key := PartitionKey(orderID)
	if orderID == "" {
		key = []byte(env.EventID)
	}
	ok := p.prod.Publish(eventType, key, kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(eventVersion))},
	)
	if !ok {
		slog.WarnContext(ctx, "event dropped, producer closed", "event_type", eventType, "order_id", orderID)
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
