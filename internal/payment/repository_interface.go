package payment

import (
	"context"
	"time"

	"skibook/internal/db"
)

type Repository interface {
	CreatePending(ctx context.Context, q db.DBTX, nt NewTransaction) (*Transaction, error)
	AttachProviderPayment(ctx context.Context, id int64, paymentID, paymentURL, providerStatus string) error
	GetByOrderID(ctx context.Context, orderID string) (*Transaction, error)
	LockByOrderID(ctx context.Context, q db.DBTX, orderID string) (*Transaction, error)
	LockByPaymentID(ctx context.Context, q db.DBTX, provider, paymentID string) (*Transaction, error)
	UpdateOutcome(ctx context.Context, q db.DBTX, id int64, u Update) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error)

	LogWebhook(ctx context.Context, l WebhookLog) (int64, error)
	FinishWebhookLog(ctx context.Context, id int64, l WebhookLog) error
}
