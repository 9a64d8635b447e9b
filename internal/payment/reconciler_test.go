package payment

import (
	"context"
	"testing"
	"time"

	"skibook/internal/booking"
	"skibook/internal/db"
	"skibook/internal/events"
	"skibook/internal/schedule"
	"skibook/internal/wallet"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) CreatePending(ctx context.Context, q db.DBTX, nt NewTransaction) (*Transaction, error) {
	args := m.Called(ctx, q, nt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *mockRepository) AttachProviderPayment(ctx context.Context, id int64, paymentID, paymentURL, providerStatus string) error {
	return m.Called(ctx, id, paymentID, paymentURL, providerStatus).Error(0)
}

func (m *mockRepository) GetByOrderID(ctx context.Context, orderID string) (*Transaction, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *mockRepository) LockByOrderID(ctx context.Context, q db.DBTX, orderID string) (*Transaction, error) {
	args := m.Called(ctx, q, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *mockRepository) LockByPaymentID(ctx context.Context, q db.DBTX, provider, paymentID string) (*Transaction, error) {
	args := m.Called(ctx, q, provider, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transaction), args.Error(1)
}

func (m *mockRepository) UpdateOutcome(ctx context.Context, q db.DBTX, id int64, u Update) error {
	return m.Called(ctx, q, id, u).Error(0)
}

func (m *mockRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error) {
	args := m.Called(ctx, createdBefore, limit)
	return args.Get(0).([]Transaction), args.Error(1)
}

func (m *mockRepository) LogWebhook(ctx context.Context, l WebhookLog) (int64, error) {
	args := m.Called(ctx, l)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepository) FinishWebhookLog(ctx context.Context, id int64, l WebhookLog) error {
	return m.Called(ctx, id, l).Error(0)
}

type mockSlots struct {
	mock.Mock
}

func (m *mockSlots) GetResource(ctx context.Context, q db.DBTX, id int64) (*schedule.Resource, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Resource), args.Error(1)
}

func (m *mockSlots) LockSlot(ctx context.Context, q db.DBTX, id int64) (*schedule.Slot, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Slot), args.Error(1)
}

func (m *mockSlots) HasOverlap(ctx context.Context, q db.DBTX, slot *schedule.Slot) (bool, error) {
	args := m.Called(ctx, q, slot)
	return args.Bool(0), args.Error(1)
}

func (m *mockSlots) HoldSlot(ctx context.Context, q db.DBTX, slotID, transactionID int64, until time.Time) error {
	return m.Called(ctx, q, slotID, transactionID, until).Error(0)
}

func (m *mockSlots) ReleaseHold(ctx context.Context, q db.DBTX, slotID, transactionID int64) (bool, error) {
	args := m.Called(ctx, q, slotID, transactionID)
	return args.Bool(0), args.Error(1)
}

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) CreateFromHold(ctx context.Context, q db.DBTX, h booking.HoldConversion) (*booking.Booking, error) {
	args := m.Called(ctx, q, h)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *mockBookings) AfterConfirm(ctx context.Context, b *booking.Booking) {
	m.Called(ctx, b)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) ApplyTx(ctx context.Context, q db.DBTX, clientID, amountCents int64, txType, reference string) (*wallet.Transaction, error) {
	args := m.Called(ctx, q, clientID, amountCents, txType, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

type recordingNotifier struct {
	failed  []string
	credits []int64
}

func (n *recordingNotifier) PaymentFailed(_ context.Context, _ int64, _, reason string) {
	n.failed = append(n.failed, reason)
}

func (n *recordingNotifier) WalletToppedUp(_ context.Context, _ int64, amountCents int64) {
	n.credits = append(n.credits, amountCents)
}

type fakeProvider struct {
	events   map[string]*WebhookEvent
	payments map[string]*Outcome
	charge   *Charge
	err      error
}

func (p *fakeProvider) Name() string { return ProviderOmise }

func (p *fakeProvider) CreatePayment(_ context.Context, _ ChargeRequest) (*Charge, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.charge, nil
}

func (p *fakeProvider) GetPayment(_ context.Context, paymentID string) (*Outcome, error) {
	out, ok := p.payments[paymentID]
	if !ok {
		return nil, assert.AnError
	}
	cp := *out
	return &cp, nil
}

func (p *fakeProvider) ParseWebhook(body []byte) (*WebhookEvent, error) {
	ev, ok := p.events[string(body)]
	if !ok {
		return nil, ErrInvalidWebhook
	}
	return ev, nil
}

type reconcilerFixture struct {
	r        *Reconciler
	repo     *mockRepository
	slots    *mockSlots
	bookings *mockBookings
	ledger   *mockLedger
	notifier *recordingNotifier
	provider *fakeProvider
	sql      sqlmock.Sqlmock
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	raw, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	conn := sqlx.NewDb(raw, "sqlmock")
	t.Cleanup(func() { conn.Close() })

	f := &reconcilerFixture{
		repo:     new(mockRepository),
		slots:    new(mockSlots),
		bookings: new(mockBookings),
		ledger:   new(mockLedger),
		notifier: &recordingNotifier{},
		provider: &fakeProvider{events: map[string]*WebhookEvent{}, payments: map[string]*Outcome{}},
		sql:      sqlMock,
	}
	f.r = NewReconciler(conn, f.repo, f.slots, f.bookings, f.ledger, f.notifier, events.NopPublisher{}, f.provider)
	return f
}

const testOrderID = "0b7a4c1e-6a53-4f0e-9d8e-2f1f7c3f8a10"

func pendingTx() *Transaction {
	slotID := int64(42)
	payID := "chrg_test_1"
	payload, _ := encodePayload(BookingData{SlotID: 42, ResourceID: 1, Participants: 1, PriceCents: 300000})
	return &Transaction{
		ID:                7,
		OrderID:           testOrderID,
		ClientID:          5,
		SlotID:            &slotID,
		AmountCents:       300000,
		Currency:          "RUB",
		Status:            StatusPending,
		Provider:          ProviderOmise,
		ProviderPaymentID: &payID,
		RawPayload:        payload,
	}
}

func success() Outcome {
	return Outcome{
		Provider:       ProviderOmise,
		PaymentID:      "chrg_test_1",
		OrderID:        testOrderID,
		State:          StateSucceeded,
		ProviderStatus: "successful",
		AmountCents:    300000,
		Currency:       "RUB",
	}
}

func TestApply_SuccessCreatesBooking(t *testing.T) {
	f := newReconcilerFixture(t)
	tx := pendingTx()

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(tx, nil)
	f.bookings.On("CreateFromHold", mock.Anything, mock.Anything, booking.HoldConversion{
		ClientID: 5, SlotID: 42, TransactionID: 7, Participants: 1, PriceCents: 300000,
	}).Return(&booking.Booking{ID: 100, ClientID: 5, SlotID: 42}, nil)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), mock.MatchedBy(func(u Update) bool {
		return u.From == StatusPending && u.To == StatusCompleted && u.BookingID != nil && *u.BookingID == 100
	})).Return(nil)
	f.bookings.On("AfterConfirm", mock.Anything, mock.Anything).Return()

	res, err := f.r.Apply(context.Background(), success())
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, res)
	f.bookings.AssertExpectations(t)
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestApply_ReplayIsNoOp(t *testing.T) {
	f := newReconcilerFixture(t)
	tx := pendingTx()
	bookingID := int64(100)
	tx.Status = StatusCompleted
	tx.BookingID = &bookingID

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(tx, nil)

	res, err := f.r.Apply(context.Background(), success())
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, res)
	f.bookings.AssertNotCalled(t, "CreateFromHold", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "UpdateOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_HoldLostCreditsWallet(t *testing.T) {
	f := newReconcilerFixture(t)

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.bookings.On("CreateFromHold", mock.Anything, mock.Anything, mock.Anything).Return(nil, booking.ErrHoldLost)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), Update{
		From: StatusPending, To: StatusFailed, ProviderStatus: "successful", FailureReason: ReasonHoldExpired,
	}).Return(nil)
	f.ledger.On("ApplyTx", mock.Anything, mock.Anything, int64(5), int64(300000), wallet.TypeRefund, "transaction:"+testOrderID).
		Return(&wallet.Transaction{ID: 1}, nil)

	res, err := f.r.Apply(context.Background(), success())
	require.NoError(t, err)
	assert.Equal(t, ResultHoldExpired, res)
	f.ledger.AssertExpectations(t)
	f.bookings.AssertNotCalled(t, "AfterConfirm", mock.Anything, mock.Anything)
	assert.Equal(t, []string{ReasonHoldExpired}, f.notifier.failed)
	assert.Equal(t, []int64{300000}, f.notifier.credits)
}

func TestApply_FailureReleasesHold(t *testing.T) {
	f := newReconcilerFixture(t)
	out := success()
	out.State = StateFailed
	out.ProviderStatus = "failed"
	out.Reason = "insufficient_fund"

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), Update{
		From: StatusPending, To: StatusFailed, ProviderStatus: "failed", FailureReason: "insufficient_fund",
	}).Return(nil)
	f.slots.On("ReleaseHold", mock.Anything, mock.Anything, int64(42), int64(7)).Return(true, nil)

	res, err := f.r.Apply(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, res)
	f.slots.AssertExpectations(t)
	assert.Equal(t, []string{"insufficient_fund"}, f.notifier.failed)
}

func TestApply_AmountMismatch(t *testing.T) {
	f := newReconcilerFixture(t)
	out := success()
	out.AmountCents = 100

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), mock.MatchedBy(func(u Update) bool {
		return u.To == StatusFailed && u.FailureReason == ReasonAmountMismatch
	})).Return(nil)
	f.slots.On("ReleaseHold", mock.Anything, mock.Anything, int64(42), int64(7)).Return(true, nil)

	res, err := f.r.Apply(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, ResultAmountMismatch, res)
	f.bookings.AssertNotCalled(t, "CreateFromHold", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "ApplyTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_CurrencyMismatch(t *testing.T) {
	f := newReconcilerFixture(t)
	out := success()
	out.Currency = "THB"

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), mock.MatchedBy(func(u Update) bool {
		return u.From == StatusPending && u.To == StatusFailed && u.FailureReason == ReasonAmountMismatch
	})).Return(nil)
	f.slots.On("ReleaseHold", mock.Anything, mock.Anything, int64(42), int64(7)).Return(true, nil)

	res, err := f.r.Apply(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, ResultAmountMismatch, res)
	f.bookings.AssertNotCalled(t, "CreateFromHold", mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_CurrencyCaseIgnored(t *testing.T) {
	f := newReconcilerFixture(t)
	out := success()
	out.Currency = "rub"

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.bookings.On("CreateFromHold", mock.Anything, mock.Anything, mock.Anything).
		Return(&booking.Booking{ID: 100, ClientID: 5, SlotID: 42}, nil)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), mock.Anything).Return(nil)
	f.bookings.On("AfterConfirm", mock.Anything, mock.Anything).Return()

	res, err := f.r.Apply(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, res)
}

func TestApply_PendingChangesNothing(t *testing.T) {
	f := newReconcilerFixture(t)
	out := success()
	out.State = StatePending

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)

	res, err := f.r.Apply(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, ResultPending, res)
	f.repo.AssertNotCalled(t, "UpdateOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_LateSuccessAfterAbandon(t *testing.T) {
	f := newReconcilerFixture(t)
	tx := pendingTx()
	tx.Status = StatusFailed
	setReason(tx, ReasonCheckoutAbandoned)

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(tx, nil)
	f.ledger.On("ApplyTx", mock.Anything, mock.Anything, int64(5), int64(300000), wallet.TypeRefund, "transaction:"+testOrderID).
		Return(&wallet.Transaction{ID: 2}, nil)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), Update{
		From: StatusFailed, To: StatusFailed, ProviderStatus: "successful", FailureReason: ReasonPaidAfterFailure,
	}).Return(nil)

	res, err := f.r.Apply(context.Background(), success())
	require.NoError(t, err)
	assert.Equal(t, ResultLateCredit, res)
	f.bookings.AssertNotCalled(t, "CreateFromHold", mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_NoSecondCreditAfterHoldExpired(t *testing.T) {
	f := newReconcilerFixture(t)
	tx := pendingTx()
	tx.Status = StatusFailed
	setReason(tx, ReasonHoldExpired)

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(tx, nil)

	res, err := f.r.Apply(context.Background(), success())
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, res)
	f.ledger.AssertNotCalled(t, "ApplyTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApply_BookingInsertFailureRollsBack(t *testing.T) {
	f := newReconcilerFixture(t)

	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.bookings.On("CreateFromHold", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

	_, err := f.r.Apply(context.Background(), success())
	assert.ErrorIs(t, err, assert.AnError)
	f.repo.AssertNotCalled(t, "UpdateOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestApply_ForeignPaymentRejected(t *testing.T) {
	f := newReconcilerFixture(t)
	out := success()
	out.PaymentID = "chrg_other"

	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)

	_, err := f.r.Apply(context.Background(), out)
	assert.ErrorIs(t, err, ErrPaymentMismatch)
}

func TestApply_FallsBackToPaymentID(t *testing.T) {
	f := newReconcilerFixture(t)
	out := success()
	out.OrderID = ""
	out.State = StatePending

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByPaymentID", mock.Anything, mock.Anything, ProviderOmise, "chrg_test_1").Return(pendingTx(), nil)

	res, err := f.r.Apply(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, ResultPending, res)
	f.repo.AssertNotCalled(t, "LockByOrderID", mock.Anything, mock.Anything, mock.Anything)
}

func TestAbort(t *testing.T) {
	f := newReconcilerFixture(t)

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.repo.On("UpdateOutcome", mock.Anything, mock.Anything, int64(7), Update{
		From: StatusPending, To: StatusFailed, FailureReason: ReasonCancelledByClient,
	}).Return(nil)
	f.slots.On("ReleaseHold", mock.Anything, mock.Anything, int64(42), int64(7)).Return(false, nil)

	res, err := f.r.Abort(context.Background(), testOrderID, ReasonCancelledByClient)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, res)
	assert.Empty(t, f.notifier.failed)
}

func TestHandleWebhook_VerifiedSuccess(t *testing.T) {
	f := newReconcilerFixture(t)
	body := `{"object":"event","id":"evnt_1","key":"charge.complete"}`
	f.provider.events[body] = &WebhookEvent{EventID: "evnt_1", Type: "charge.complete", PaymentID: "chrg_test_1", Relevant: true}
	out := success()
	out.State = StatePending
	f.provider.payments["chrg_test_1"] = &out

	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.repo.On("LogWebhook", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.repo.On("FinishWebhookLog", mock.Anything, int64(1), mock.MatchedBy(func(l WebhookLog) bool {
		return l.Processed && l.PaymentID == "chrg_test_1" && l.OrderID == testOrderID && l.EventType == "charge.complete"
	})).Return(nil)

	res, err := f.r.HandleWebhook(context.Background(), ProviderOmise, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, ResultPending, res)
	f.repo.AssertExpectations(t)
}

func TestHandleWebhook_InvalidPayloadChangesNothing(t *testing.T) {
	f := newReconcilerFixture(t)

	f.repo.On("LogWebhook", mock.Anything, mock.MatchedBy(func(l WebhookLog) bool {
		return string(l.Payload) == `"not json"`
	})).Return(int64(2), nil)
	f.repo.On("FinishWebhookLog", mock.Anything, int64(2), mock.MatchedBy(func(l WebhookLog) bool {
		return !l.Processed && l.ErrorMessage != nil
	})).Return(nil)

	_, err := f.r.HandleWebhook(context.Background(), ProviderOmise, []byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidWebhook)
	f.repo.AssertNotCalled(t, "LockByOrderID", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_UnverifiablePayment(t *testing.T) {
	f := newReconcilerFixture(t)
	body := `{"object":"event","id":"evnt_2","key":"charge.complete"}`
	f.provider.events[body] = &WebhookEvent{EventID: "evnt_2", Type: "charge.complete", PaymentID: "chrg_forged", Relevant: true}

	f.repo.On("LogWebhook", mock.Anything, mock.Anything).Return(int64(3), nil)
	f.repo.On("FinishWebhookLog", mock.Anything, int64(3), mock.Anything).Return(nil)

	_, err := f.r.HandleWebhook(context.Background(), ProviderOmise, []byte(body))
	assert.ErrorIs(t, err, ErrInvalidWebhook)
	f.repo.AssertNotCalled(t, "LockByOrderID", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_UnknownTransactionIgnored(t *testing.T) {
	f := newReconcilerFixture(t)
	body := `{"object":"event","id":"evnt_3","key":"charge.complete"}`
	f.provider.events[body] = &WebhookEvent{EventID: "evnt_3", Type: "charge.complete", PaymentID: "chrg_test_1", Relevant: true}
	out := success()
	f.provider.payments["chrg_test_1"] = &out

	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.repo.On("LogWebhook", mock.Anything, mock.Anything).Return(int64(4), nil)
	f.repo.On("LockByOrderID", mock.Anything, mock.Anything, testOrderID).Return(nil, ErrTransactionNotFound)
	f.repo.On("LockByPaymentID", mock.Anything, mock.Anything, ProviderOmise, "chrg_test_1").Return(nil, ErrTransactionNotFound)
	f.repo.On("FinishWebhookLog", mock.Anything, int64(4), mock.MatchedBy(func(l WebhookLog) bool {
		return l.ErrorMessage != nil
	})).Return(nil)

	res, err := f.r.HandleWebhook(context.Background(), ProviderOmise, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, res)
}

func TestHandleWebhook_IrrelevantEvent(t *testing.T) {
	f := newReconcilerFixture(t)
	body := `{"object":"event","id":"evnt_4","key":"customer.create"}`
	f.provider.events[body] = &WebhookEvent{EventID: "evnt_4", Type: "customer.create"}

	f.repo.On("LogWebhook", mock.Anything, mock.Anything).Return(int64(5), nil)
	f.repo.On("FinishWebhookLog", mock.Anything, int64(5), mock.Anything).Return(nil)

	res, err := f.r.HandleWebhook(context.Background(), ProviderOmise, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, res)
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	f := newReconcilerFixture(t)
	_, err := f.r.HandleWebhook(context.Background(), "paypal", []byte("{}"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
