package payment

import (
	"context"
	"testing"
	"time"

	"skibook/internal/schedule"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAborter struct {
	mock.Mock
}

func (m *mockAborter) Abort(ctx context.Context, orderID, reason string) (Result, error) {
	args := m.Called(ctx, orderID, reason)
	return args.Get(0).(Result), args.Error(1)
}

type serviceFixture struct {
	svc      *service
	repo     *mockRepository
	slots    *mockSlots
	aborter  *mockAborter
	provider *fakeProvider
	sql      sqlmock.Sqlmock
}

var fixedNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func newServiceFixture(t *testing.T) *serviceFixture {
	raw, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	conn := sqlx.NewDb(raw, "sqlmock")
	t.Cleanup(func() { conn.Close() })

	f := &serviceFixture{
		repo:     new(mockRepository),
		slots:    new(mockSlots),
		aborter:  new(mockAborter),
		provider: &fakeProvider{charge: &Charge{PaymentID: "chrg_test_1", PaymentURL: "https://pay.example/1", ProviderStatus: "pending"}},
		sql:      sqlMock,
	}
	f.svc = NewService(conn, f.repo, f.slots, f.provider, f.aborter, Options{
		HoldTTL:   15 * time.Minute,
		Currency:  "RUB",
		ReturnURL: "https://skibook.example/payments/return",
	}).(*service)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func availableSlot() *schedule.Slot {
	date, _ := schedule.ParseDate("2030-01-14")
	return &schedule.Slot{
		ID:         42,
		ResourceID: 1,
		Date:       date,
		StartTime:  schedule.NewClock(10, 0),
		EndTime:    schedule.NewClock(11, 0),
		Status:     schedule.StatusAvailable,
	}
}

func (f *serviceFixture) expectHold(slot *schedule.Slot) {
	f.slots.On("LockSlot", mock.Anything, mock.Anything, int64(42)).Return(slot, nil)
	f.slots.On("HasOverlap", mock.Anything, mock.Anything, slot).Return(false, nil)
	f.slots.On("GetResource", mock.Anything, mock.Anything, int64(1)).
		Return(&schedule.Resource{ID: 1, Name: "Slope A", PriceCents: 300000}, nil)
	f.repo.On("CreatePending", mock.Anything, mock.Anything, mock.MatchedBy(func(nt NewTransaction) bool {
		return nt.ClientID == 5 && nt.SlotID == 42 && nt.AmountCents == 600000 &&
			nt.BookingData.Participants == 2 && nt.BookingData.Date == "2030-01-14" && nt.OrderID != ""
	})).Return(&Transaction{ID: 7, OrderID: testOrderID, ClientID: 5, AmountCents: 600000, Currency: "RUB"}, nil)
	f.slots.On("HoldSlot", mock.Anything, mock.Anything, int64(42), int64(7), fixedNow.Add(15*time.Minute)).Return(nil)
}

func TestStartCheckout(t *testing.T) {
	f := newServiceFixture(t)
	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.expectHold(availableSlot())
	f.repo.On("AttachProviderPayment", mock.Anything, int64(7), "chrg_test_1", "https://pay.example/1", "pending").Return(nil)

	checkout, err := f.svc.StartCheckout(context.Background(), 5, 42, 2)
	require.NoError(t, err)
	assert.Equal(t, testOrderID, checkout.OrderID)
	assert.Equal(t, "https://pay.example/1", checkout.PaymentURL)
	assert.Equal(t, int64(600000), checkout.AmountCents)
	assert.Equal(t, fixedNow.Add(15*time.Minute), checkout.HoldUntil)
	f.slots.AssertExpectations(t)
	f.repo.AssertExpectations(t)
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestStartCheckout_ProviderFailureReleasesHold(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.err = assert.AnError
	f.sql.ExpectBegin()
	f.sql.ExpectCommit()
	f.expectHold(availableSlot())
	f.aborter.On("Abort", mock.Anything, testOrderID, ReasonProviderError).Return(ResultFailed, nil)

	_, err := f.svc.StartCheckout(context.Background(), 5, 42, 2)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	f.aborter.AssertExpectations(t)
	f.repo.AssertNotCalled(t, "AttachProviderPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStartCheckout_SlotTaken(t *testing.T) {
	f := newServiceFixture(t)
	slot := availableSlot()
	slot.Status = schedule.StatusHold

	f.sql.ExpectBegin()
	f.sql.ExpectRollback()
	f.slots.On("LockSlot", mock.Anything, mock.Anything, int64(42)).Return(slot, nil)

	_, err := f.svc.StartCheckout(context.Background(), 5, 42, 1)
	assert.ErrorIs(t, err, schedule.ErrSlotUnavailable)
	f.repo.AssertNotCalled(t, "CreatePending", mock.Anything, mock.Anything, mock.Anything)
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestStartCheckout_Disabled(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.provider = nil

	_, err := f.svc.StartCheckout(context.Background(), 5, 42, 1)
	assert.ErrorIs(t, err, ErrPaymentsDisabled)
}

func TestCancelCheckout(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.On("GetByOrderID", mock.Anything, testOrderID).Return(pendingTx(), nil)
	f.aborter.On("Abort", mock.Anything, testOrderID, ReasonCancelledByClient).Return(ResultFailed, nil).Once()

	require.NoError(t, f.svc.CancelCheckout(context.Background(), 5, testOrderID))

	f.aborter.On("Abort", mock.Anything, testOrderID, ReasonCancelledByClient).Return(ResultDuplicate, nil).Once()
	assert.ErrorIs(t, f.svc.CancelCheckout(context.Background(), 5, testOrderID), ErrNotPending)

	assert.ErrorIs(t, f.svc.CancelCheckout(context.Background(), 6, testOrderID), ErrNotOwner)
}

func TestGetTransaction_Ownership(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.On("GetByOrderID", mock.Anything, testOrderID).Return(pendingTx(), nil)

	_, err := f.svc.GetTransaction(context.Background(), 6, testOrderID, false)
	assert.ErrorIs(t, err, ErrNotOwner)

	tx, err := f.svc.GetTransaction(context.Background(), 6, testOrderID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), tx.ID)
}

func TestReturnURL(t *testing.T) {
	f := newServiceFixture(t)
	assert.Equal(t, "https://skibook.example/payments/return?order_id="+testOrderID, f.svc.returnURL(testOrderID))
}

func TestBookingDataRoundTrip(t *testing.T) {
	tx := pendingTx()
	bd, err := tx.BookingData()
	require.NoError(t, err)
	assert.Equal(t, int64(42), bd.SlotID)

	tx.RawPayload = []byte(`{}`)
	_, err = tx.BookingData()
	assert.Error(t, err)
}
