package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/go-marketplace/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafkago.Header
}

type fakeProducer struct {
	sent []sentMessage
}

func (f *fakeProducer) Publish(topic string, key, value []byte, headers ...kafkago.Header) bool {
	f.sent = append(f.sent, sentMessage{topic: topic, key: key, value: value, headers: headers})
	return true
}

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	fp := &fakeProducer{}
	p := NewPublisher(fp, "marketplace-api")
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	p.Emit(context.Background(), EventInvoicePaid, "order-1", InvoicePaidPayload{
		InvoiceID: "inv-1", OrderID: "order-1", AmountCents: 1250, PaymentMethod: "card",
	})

	require.Len(t, fp.sent, 1)
	msg := fp.sent[0]
	assert.Equal(t, EventInvoicePaid, msg.topic)
	assert.Equal(t, []byte("order-1"), msg.key)
	assert.Equal(t, "x-event-type", msg.headers[0].Key)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.value, &env))
	assert.Equal(t, EventInvoicePaid, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "marketplace-api", env.Producer)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	payload, err := kafkax.UnwrapPayload[InvoicePaidPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), payload.AmountCents)
}

func TestEmitWithoutOrderUsesEventIDAsKey(t *testing.T) {
	fp := &fakeProducer{}
	NewPublisher(fp, "svc").Emit(context.Background(), EventBookingExpired, "", BookingExpiredPayload{BookingID: "b-1"})

	require.Len(t, fp.sent, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(fp.sent[0].value, &env))
	assert.Equal(t, []byte(env.EventID), fp.sent[0].key)
}

func TestTopicsCoverEveryEventType(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"order.created", "order.status_changed", "order.cancelled",
		"invoice.paid", "invoice.overdue", "booking.expired",
	}, Topics())
}
