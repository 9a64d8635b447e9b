package payment

import (
	"context"
	"errors"
)

var (
	ErrInvalidWebhook  = errors.New("invalid webhook payload")
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// ChargeRequest asks a provider to start collecting a payment.
type ChargeRequest struct {
	OrderID     string
	AmountCents int64
	Currency    string
	Description string
	ReturnURL   string
}

// Charge is a payment created at the provider.
type Charge struct {
	PaymentID      string
	PaymentURL     string
	ProviderStatus string
}

// WebhookEvent is the unverified content of a provider notification. The
// reconciler trusts only what GetPayment returns for PaymentID.
type WebhookEvent struct {
	EventID   string
	Type      string
	PaymentID string
	// Relevant is false for notifications that carry no payment outcome.
	Relevant bool
}

type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetPayment(ctx context.Context, paymentID string) (*Outcome, error)
	ParseWebhook(body []byte) (*WebhookEvent, error)
}
