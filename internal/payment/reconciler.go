package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"skibook/internal/booking"
	"skibook/internal/db"
	"skibook/internal/events"
	"skibook/internal/logger"
	"skibook/internal/metrics"
	"skibook/internal/schedule"
	"skibook/internal/wallet"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

var ErrPaymentMismatch = errors.New("provider payment does not belong to the transaction")

// SlotStore is the part of the schedule store checkouts need.
type SlotStore interface {
	GetResource(ctx context.Context, q db.DBTX, id int64) (*schedule.Resource, error)
	LockSlot(ctx context.Context, q db.DBTX, id int64) (*schedule.Slot, error)
	HasOverlap(ctx context.Context, q db.DBTX, slot *schedule.Slot) (bool, error)
	HoldSlot(ctx context.Context, q db.DBTX, slotID, transactionID int64, until time.Time) error
	ReleaseHold(ctx context.Context, q db.DBTX, slotID, transactionID int64) (bool, error)
}

// BookingCreator turns a paid hold into a booking.
type BookingCreator interface {
	CreateFromHold(ctx context.Context, q db.DBTX, h booking.HoldConversion) (*booking.Booking, error)
	AfterConfirm(ctx context.Context, b *booking.Booking)
}

type Ledger interface {
	ApplyTx(ctx context.Context, q db.DBTX, clientID, amountCents int64, txType, reference string) (*wallet.Transaction, error)
}

type Notifier interface {
	PaymentFailed(ctx context.Context, clientID int64, orderID, reason string)
	WalletToppedUp(ctx context.Context, clientID, amountCents int64)
}

// Reconciler applies provider outcomes to pending transactions. Every
// change happens under the transaction row lock, so replays and the
// webhook/poll race resolve to a single effect.
type Reconciler struct {
	db        *sqlx.DB
	repo      Repository
	slots     SlotStore
	bookings  BookingCreator
	ledger    Ledger
	notifier  Notifier
	publisher events.Publisher
	providers map[string]Provider
}

func NewReconciler(
	db *sqlx.DB,
	repo Repository,
	slots SlotStore,
	bookings BookingCreator,
	ledger Ledger,
	notifier Notifier,
	publisher events.Publisher,
	providers ...Provider,
) *Reconciler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	r := &Reconciler{
		db:        db,
		repo:      repo,
		slots:     slots,
		bookings:  bookings,
		ledger:    ledger,
		notifier:  notifier,
		publisher: publisher,
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// HandleWebhook logs a provider notification, verifies it by re-fetching the
// payment from the provider and applies the verified outcome. Notifications
// for unknown transactions are logged and ignored.
func (r *Reconciler) HandleWebhook(ctx context.Context, provider string, body []byte) (Result, error) {
	p, ok := r.providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	entry := WebhookLog{Provider: provider, Payload: webhookPayload(body)}
	logID, err := r.repo.LogWebhook(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("log webhook: %w", err)
	}

	finish := func(res Result, err error) {
		entry.Processed = err == nil
		if err != nil {
			msg := err.Error()
			entry.ErrorMessage = &msg
		}
		if ferr := r.repo.FinishWebhookLog(context.WithoutCancel(ctx), logID, entry); ferr != nil {
			logger.Error("failed to update webhook log", "webhook_log_id", logID, "error", ferr)
		}
		outcome := string(res)
		if err != nil {
			outcome = "error"
		}
		metrics.RecordWebhook(provider, outcome)
	}

	ev, err := p.ParseWebhook(body)
	if err != nil {
		logger.Warn("webhook rejected", "provider", provider, "error", err)
		finish("", err)
		return "", err
	}
	entry.EventType = ev.Type
	entry.PaymentID = ev.PaymentID
	if !ev.Relevant {
		entry.Status = string(ResultIgnored)
		finish(ResultIgnored, nil)
		return ResultIgnored, nil
	}

	out, err := p.GetPayment(ctx, ev.PaymentID)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		logger.Warn("webhook could not be verified", "provider", provider, "payment_id", ev.PaymentID, "error", err)
		finish("", err)
		return "", err
	}
	entry.OrderID = out.OrderID
	entry.Status = out.ProviderStatus

	res, err := r.Apply(ctx, *out)
	if errors.Is(err, ErrTransactionNotFound) || errors.Is(err, ErrPaymentMismatch) {
		logger.Error("webhook for unknown transaction ignored",
			"provider", provider, "payment_id", out.PaymentID, "order_id", out.OrderID, "error", err)
		msg := err.Error()
		entry.ErrorMessage = &msg
		finish(ResultIgnored, nil)
		return ResultIgnored, nil
	}
	finish(res, err)
	return res, err
}

// Apply records a verified outcome. It is idempotent: a transaction that is
// no longer pending is not changed again, except that a success arriving
// after the checkout was abandoned credits the amount to the wallet once.
func (r *Reconciler) Apply(ctx context.Context, out Outcome) (Result, error) {
	var (
		t       *Transaction
		result  Result
		created *booking.Booking
	)
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		t, err = r.lock(ctx, tx, out)
		if err != nil {
			return err
		}
		result, created, err = r.apply(ctx, tx, t, out)
		return err
	})
	if err != nil {
		return "", err
	}

	logger.Info("payment outcome applied",
		"order_id", t.OrderID,
		"transaction_id", t.ID,
		"provider_status", out.ProviderStatus,
		"result", string(result),
	)
	r.after(ctx, t, result, created)
	return result, nil
}

func (r *Reconciler) lock(ctx context.Context, q db.DBTX, out Outcome) (*Transaction, error) {
	var (
		t   *Transaction
		err error
	)
	if out.OrderID != "" {
		t, err = r.repo.LockByOrderID(ctx, q, out.OrderID)
	}
	if out.OrderID == "" || errors.Is(err, ErrTransactionNotFound) {
		if out.PaymentID == "" {
			return nil, ErrTransactionNotFound
		}
		t, err = r.repo.LockByPaymentID(ctx, q, out.Provider, out.PaymentID)
	}
	if err != nil {
		return nil, err
	}
	if t.Provider != out.Provider ||
		(t.ProviderPaymentID != nil && out.PaymentID != "" && *t.ProviderPaymentID != out.PaymentID) {
		return nil, ErrPaymentMismatch
	}
	return t, nil
}

func (r *Reconciler) apply(ctx context.Context, q db.DBTX, t *Transaction, out Outcome) (Result, *booking.Booking, error) {
	switch t.Status {
	case StatusCompleted:
		return ResultDuplicate, nil, nil
	case StatusFailed:
		if out.State != StateSucceeded || !lateCreditable(t) {
			return ResultDuplicate, nil, nil
		}
		if err := r.credit(ctx, q, t); err != nil {
			return "", nil, err
		}
		if err := r.repo.UpdateOutcome(ctx, q, t.ID, Update{
			From: StatusFailed, To: StatusFailed, ProviderStatus: out.ProviderStatus, FailureReason: ReasonPaidAfterFailure,
		}); err != nil {
			return "", nil, err
		}
		setReason(t, ReasonPaidAfterFailure)
		return ResultLateCredit, nil, nil
	}

	switch out.State {
	case StatePending:
		return ResultPending, nil, nil
	case StateFailed:
		reason := out.Reason
		if reason == "" {
			reason = ReasonPaymentFailed
		}
		return ResultFailed, nil, r.fail(ctx, q, t, reason, out.ProviderStatus)
	}

	if out.AmountCents != t.AmountCents || !strings.EqualFold(out.Currency, t.Currency) {
		logger.Error("paid amount differs from checkout amount",
			"order_id", t.OrderID,
			"expected_cents", t.AmountCents, "expected_currency", t.Currency,
			"paid_cents", out.AmountCents, "paid_currency", out.Currency)
		return ResultAmountMismatch, nil, r.fail(ctx, q, t, ReasonAmountMismatch, out.ProviderStatus)
	}

	bd, err := t.BookingData()
	if err != nil {
		return "", nil, err
	}
	b, err := r.bookings.CreateFromHold(ctx, q, booking.HoldConversion{
		ClientID:      t.ClientID,
		SlotID:        bd.SlotID,
		TransactionID: t.ID,
		Participants:  bd.Participants,
		PriceCents:    t.AmountCents,
	})
	if errors.Is(err, booking.ErrHoldLost) {
		// the slot may already belong to someone else; the money goes to the wallet
		if err := r.repo.UpdateOutcome(ctx, q, t.ID, Update{
			From: StatusPending, To: StatusFailed, ProviderStatus: out.ProviderStatus, FailureReason: ReasonHoldExpired,
		}); err != nil {
			return "", nil, err
		}
		t.Status = StatusFailed
		setReason(t, ReasonHoldExpired)
		if err := r.credit(ctx, q, t); err != nil {
			return "", nil, err
		}
		return ResultHoldExpired, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("create booking for %s: %w", t.OrderID, err)
	}

	if err := r.repo.UpdateOutcome(ctx, q, t.ID, Update{
		From: StatusPending, To: StatusCompleted, BookingID: &b.ID, ProviderStatus: out.ProviderStatus,
	}); err != nil {
		return "", nil, err
	}
	t.Status = StatusCompleted
	t.BookingID = &b.ID
	return ResultCompleted, b, nil
}

// fail marks a pending transaction failed and releases its hold if the
// transaction still owns it.
func (r *Reconciler) fail(ctx context.Context, q db.DBTX, t *Transaction, reason, providerStatus string) error {
	if err := r.repo.UpdateOutcome(ctx, q, t.ID, Update{
		From: StatusPending, To: StatusFailed, ProviderStatus: providerStatus, FailureReason: reason,
	}); err != nil {
		return err
	}
	t.Status = StatusFailed
	setReason(t, reason)

	if t.SlotID == nil {
		return nil
	}
	released, err := r.slots.ReleaseHold(ctx, q, *t.SlotID, t.ID)
	if err != nil {
		return fmt.Errorf("release hold of %s: %w", t.OrderID, err)
	}
	if released {
		logger.Info("hold released", "slot_id", *t.SlotID, "transaction_id", t.ID, "reason", reason)
	}
	return nil
}

func (r *Reconciler) credit(ctx context.Context, q db.DBTX, t *Transaction) error {
	_, err := r.ledger.ApplyTx(ctx, q, t.ClientID, t.AmountCents, wallet.TypeRefund, "transaction:"+t.OrderID)
	if err != nil {
		return fmt.Errorf("credit wallet for %s: %w", t.OrderID, err)
	}
	return nil
}

// Abort fails a pending transaction for a local reason (abandoned checkout,
// provider error, client cancellation) and releases its hold.
func (r *Reconciler) Abort(ctx context.Context, orderID, reason string) (Result, error) {
	var t *Transaction
	result := ResultFailed
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		t, err = r.repo.LockByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			result = ResultDuplicate
			return nil
		}
		return r.fail(ctx, tx, t, reason, "")
	})
	if err != nil {
		return "", err
	}
	if result == ResultFailed {
		logger.Info("checkout aborted", "order_id", orderID, "reason", reason)
		r.after(ctx, t, result, nil)
	}
	return result, nil
}

// Refresh asks the provider about a transaction and applies the answer. A
// transaction the provider never saw is aborted as abandoned.
func (r *Reconciler) Refresh(ctx context.Context, t Transaction) (Result, error) {
	if t.ProviderPaymentID == nil || *t.ProviderPaymentID == "" {
		if t.Status != StatusPending {
			return ResultDuplicate, nil
		}
		return r.Abort(ctx, t.OrderID, ReasonCheckoutAbandoned)
	}

	p, ok := r.providers[t.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, t.Provider)
	}
	out, err := p.GetPayment(ctx, *t.ProviderPaymentID)
	if err != nil {
		return "", err
	}
	if out.OrderID == "" {
		out.OrderID = t.OrderID
	}
	return r.Apply(ctx, *out)
}

type paymentEvent struct {
	OrderID     string `json:"order_id"`
	ClientID    int64  `json:"client_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      Status `json:"status"`
	BookingID   *int64 `json:"booking_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (r *Reconciler) after(ctx context.Context, t *Transaction, result Result, b *booking.Booking) {
	ev := paymentEvent{
		OrderID:     t.OrderID,
		ClientID:    t.ClientID,
		AmountCents: t.AmountCents,
		Currency:    t.Currency,
		Status:      t.Status,
		BookingID:   t.BookingID,
	}
	if t.FailureReason != nil {
		ev.Reason = *t.FailureReason
	}

	switch result {
	case ResultCompleted:
		r.bookings.AfterConfirm(ctx, b)
		r.publish(ctx, events.PaymentCompleted, ev)
	case ResultFailed, ResultAmountMismatch, ResultHoldExpired:
		if r.notifier != nil && ev.Reason != ReasonCancelledByClient {
			r.notifier.PaymentFailed(ctx, t.ClientID, t.OrderID, ev.Reason)
		}
		if result == ResultHoldExpired && r.notifier != nil {
			r.notifier.WalletToppedUp(ctx, t.ClientID, t.AmountCents)
		}
		r.publish(ctx, events.PaymentFailed, ev)
	case ResultLateCredit:
		logger.Warn("late payment credited to wallet", "order_id", t.OrderID, "amount_cents", t.AmountCents)
		if r.notifier != nil {
			r.notifier.WalletToppedUp(ctx, t.ClientID, t.AmountCents)
		}
	}
}

func (r *Reconciler) publish(ctx context.Context, event string, ev paymentEvent) {
	if err := r.publisher.Publish(ctx, event, ev); err != nil {
		logger.Warn("failed to publish payment event", "event", event, "order_id", ev.OrderID, "error", err)
	}
}

func lateCreditable(t *Transaction) bool {
	if t.FailureReason == nil {
		return true
	}
	switch *t.FailureReason {
	case ReasonHoldExpired, ReasonAmountMismatch, ReasonPaidAfterFailure:
		return false
	}
	return true
}

func setReason(t *Transaction, reason string) {
	t.FailureReason = &reason
}

// webhookPayload keeps the raw body for the audit log; bodies that are not
// JSON are stored as a JSON string.
func webhookPayload(body []byte) types.JSONText {
	if json.Valid(body) {
		return types.JSONText(body)
	}
	quoted, _ := json.Marshal(string(body))
	return types.JSONText(quoted)
}
