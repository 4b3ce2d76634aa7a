package payments

import (
	"context"
	"errors"
)

var (
	ErrGatewayDisabled  = errors.New("card payments are not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIntentNotFound   = errors.New("payment intent not found")
)

const EventIntentSucceeded = "payment_intent.succeeded"

type IntentStatus string

const IntentSucceeded IntentStatus = "succeeded"

// Intent is the provider-neutral view of a card payment.
type Intent struct {
	ID           string
	Status       IntentStatus
	AmountCents  int64
	Currency     string
	ClientSecret string
	Metadata     map[string]string
}

type IntentRequest struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// WebhookEvent is a verified provider callback. Intent is set only for
// payment intent events.
type WebhookEvent struct {
	ID     string
	Type   string
	Intent *Intent
}

type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// Disabled is used when no provider key is configured.
type Disabled struct{}

func (Disabled) CreateIntent(context.Context, IntentRequest) (Intent, error) {
	return Intent{}, ErrGatewayDisabled
}

func (Disabled) GetIntent(context.Context, string) (Intent, error) {
	return Intent{}, ErrGatewayDisabled
}

func (Disabled) ParseWebhook([]byte, string) (WebhookEvent, error) {
	return WebhookEvent{}, ErrGatewayDisabled
}
