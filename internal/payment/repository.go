package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skibook/internal/db"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrStatusChanged       = errors.New("transaction status changed concurrently")
)

const transactionColumns = `id, order_id, client_id, slot_id, booking_id, amount_cents, currency, status,
	provider, provider_payment_id, provider_status, payment_url, failure_reason, raw_payload, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePending(ctx context.Context, q db.DBTX, nt NewTransaction) (*Transaction, error) {
	payload, err := encodePayload(nt.BookingData)
	if err != nil {
		return nil, fmt.Errorf("encode booking data: %w", err)
	}

	var t Transaction
	err = q.GetContext(ctx, &t, `
		INSERT INTO transactions (order_id, client_id, slot_id, amount_cents, currency, status, provider, raw_payload)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
		RETURNING `+transactionColumns,
		nt.OrderID, nt.ClientID, nt.SlotID, nt.AmountCents, nt.Currency, nt.Provider, payload,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) AttachProviderPayment(ctx context.Context, id int64, paymentID, paymentURL, providerStatus string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET provider_payment_id = $2, payment_url = NULLIF($3, ''), provider_status = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1
	`, id, paymentID, paymentURL, providerStatus)
	return err
}

func (r *repository) GetByOrderID(ctx context.Context, orderID string) (*Transaction, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, ErrTransactionNotFound
	}
	return r.get(ctx, r.db, `SELECT `+transactionColumns+` FROM transactions WHERE order_id = $1`, orderID)
}

func (r *repository) LockByOrderID(ctx context.Context, q db.DBTX, orderID string) (*Transaction, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, ErrTransactionNotFound
	}
	return r.get(ctx, q, `SELECT `+transactionColumns+` FROM transactions WHERE order_id = $1 FOR UPDATE`, orderID)
}

func (r *repository) LockByPaymentID(ctx context.Context, q db.DBTX, provider, paymentID string) (*Transaction, error) {
	return r.get(ctx, q, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE provider = $1 AND provider_payment_id = $2
		FOR UPDATE`, provider, paymentID)
}

func (r *repository) get(ctx context.Context, q db.DBTX, query string, args ...interface{}) (*Transaction, error) {
	var t Transaction
	err := q.GetContext(ctx, &t, query, args...)
	if db.IsNoRows(err) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateOutcome moves the transaction from u.From to u.To. Zero-valued
// optional fields keep the stored values.
func (r *repository) UpdateOutcome(ctx context.Context, q db.DBTX, id int64, u Update) error {
	res, err := q.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3,
		    booking_id = COALESCE($4, booking_id),
		    provider_status = COALESCE(NULLIF($5, ''), provider_status),
		    failure_reason = COALESCE(NULLIF($6, ''), failure_reason),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, u.From, u.To, u.BookingID, u.ProviderStatus, u.FailureReason)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error) {
	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	return txs, err
}

func (r *repository) LogWebhook(ctx context.Context, l WebhookLog) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `
		INSERT INTO webhook_logs (provider, event_type, payment_id, order_id, status, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, l.Provider, l.EventType, l.PaymentID, l.OrderID, l.Status, l.Payload)
	return id, err
}

func (r *repository) FinishWebhookLog(ctx context.Context, id int64, l WebhookLog) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_logs
		SET event_type = $2, payment_id = $3, order_id = $4, status = $5, processed = $6, error_message = $7
		WHERE id = $1
	`, id, l.EventType, l.PaymentID, l.OrderID, l.Status, l.Processed, l.ErrorMessage)
	return err
}
