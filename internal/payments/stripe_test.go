package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

const succeededEvent = `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2023-10-16",
  "type": "payment_intent.succeeded",
  "data": {"object": {
    "id": "pi_1", "object": "payment_intent", "status": "succeeded",
    "amount": 1250, "currency": "eur",
    "metadata": {"invoice_id": "inv-1"}
  }}
}`

func TestParseWebhook(t *testing.T) {
	s := NewStripe("sk_test", "whsec_test")
	payload := []byte(succeededEvent)

	ev, err := s.ParseWebhook(payload, sign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventIntentSucceeded, ev.Type)
	require.NotNil(t, ev.Intent)
	assert.Equal(t, "pi_1", ev.Intent.ID)
	assert.Equal(t, IntentSucceeded, ev.Intent.Status)
	assert.Equal(t, int64(1250), ev.Intent.AmountCents)
	assert.Equal(t, "inv-1", ev.Intent.Metadata["invoice_id"])
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	s := NewStripe("sk_test", "whsec_test")
	payload := []byte(succeededEvent)

	_, err := s.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = s.ParseWebhook(payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDisabledGateway(t *testing.T) {
	var g Gateway = Disabled{}
	_, err := g.GetIntent(t.Context(), "pi_1")
	assert.ErrorIs(t, err, ErrGatewayDisabled)
	_, err = g.ParseWebhook(nil, "")
	assert.ErrorIs(t, err, ErrGatewayDisabled)
}
