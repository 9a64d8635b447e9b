package schedule

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	resourceCols = []string{"id", "kind", "name", "price_cents", "is_active", "created_at"}
	blockCols    = []string{"id", "resource_id", "weekday", "block_date", "start_time", "end_time", "reason", "is_active", "created_at"}
	groupCols    = []string{"id", "slot_id", "title", "max_participants", "current_participants", "price_cents", "status", "created_at"}
)

func newTestService(t *testing.T) (*service, sqlmock.Sqlmock) {
	repo, conn, mock := setupScheduleMock(t)
	svc := NewService(conn, repo, time.UTC).(*service)
	svc.now = func() time.Time { return time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC) }
	return svc, mock
}

func TestService_GenerateSlots(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM resources WHERE id = $1")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(resourceCols).AddRow(1, "simulator", "Slope A", 300000, true, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_blocks")).
		WillReturnRows(sqlmock.NewRows(blockCols).AddRow(5, nil, 1, nil, "10:00:00", "12:00:00", "service", true, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slots")).
		WithArgs(1, sqlmock.AnyArg(), "09:00:00", "10:00:00", "available", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO slots")).
		WithArgs(1, sqlmock.AnyArg(), "10:00:00", "11:00:00", "blocked", 5).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	result, err := svc.GenerateSlots(context.Background(), GenerateSlotsRequest{
		ResourceIDs: []int64{1},
		From:        "2030-01-14",
		DayStart:    "09:00",
		DayEnd:      "11:00",
		StepMinutes: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Planned)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Blocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_GenerateSlots_UnknownResourceRollsBack(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM resources WHERE id = $1")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(resourceCols))
	mock.ExpectRollback()

	_, err := svc.GenerateSlots(context.Background(), GenerateSlotsRequest{
		ResourceIDs: []int64{9},
		From:        "2030-01-14",
		DayStart:    "09:00",
		DayEnd:      "11:00",
		StepMinutes: 60,
	})
	assert.ErrorIs(t, err, ErrResourceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_GenerateSlots_Validation(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.GenerateSlots(context.Background(), GenerateSlotsRequest{
		ResourceIDs: []int64{1}, From: "2030-01-14", DayStart: "12:00", DayEnd: "09:00", StepMinutes: 60,
	})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = svc.GenerateSlots(context.Background(), GenerateSlotsRequest{
		ResourceIDs: []int64{1}, From: "14.01.2030", DayStart: "09:00", DayEnd: "12:00", StepMinutes: 60,
	})
	assert.ErrorIs(t, err, ErrInvalidDateRange)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateBlock(t *testing.T) {
	svc, mock := newTestService(t)
	wd := 1

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO schedule_blocks")).
		WithArgs(nil, 1, nil, "10:00:00", "12:00:00", "technical service").
		WillReturnRows(sqlmock.NewRows(blockCols).AddRow(5, nil, 1, nil, "10:00:00", "12:00:00", "technical service", true, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'blocked', block_id = $1")).
		WithArgs(int64(5), nil, 1, nil, "10:00:00", "12:00:00").
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectCommit()

	result, err := svc.CreateBlock(context.Background(), CreateBlockRequest{
		Weekday:   &wd,
		StartTime: "10:00",
		EndTime:   "12:00",
		Reason:    " technical service ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Block.ID)
	assert.Equal(t, int64(6), result.SlotsBlocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateBlock_RequiresExactlyOneSelector(t *testing.T) {
	svc, _ := newTestService(t)
	wd := 1

	_, err := svc.CreateBlock(context.Background(), CreateBlockRequest{StartTime: "10:00", EndTime: "12:00"})
	assert.ErrorIs(t, err, ErrInvalidBlock)

	_, err = svc.CreateBlock(context.Background(), CreateBlockRequest{Weekday: &wd, Date: "2030-01-14", StartTime: "10:00", EndTime: "12:00"})
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestService_DeleteBlock_ReappliesRemainingBlocks(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_blocks SET is_active = FALSE")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'available', block_id = NULL")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_blocks")).
		WillReturnRows(sqlmock.NewRows(blockCols).AddRow(6, nil, 1, nil, "11:00:00", "13:00:00", "", true, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'blocked', block_id = $1")).
		WithArgs(int64(6), nil, 1, nil, "11:00:00", "13:00:00").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	freed, err := svc.DeleteBlock(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), freed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateGroupTraining(t *testing.T) {
	t.Run("available slot becomes group", func(t *testing.T) {
		svc, mock := newTestService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(42).WillReturnRows(slotRow(42, StatusAvailable))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta("SET status = $3")).
			WithArgs(42, "available", "group").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO group_trainings")).
			WithArgs(42, "Carving basics", 6, 150000).
			WillReturnRows(sqlmock.NewRows(groupCols).AddRow(3, 42, "Carving basics", 6, 0, 150000, GroupOpen, time.Now()))
		mock.ExpectCommit()

		g, err := svc.CreateGroupTraining(context.Background(), CreateGroupTrainingRequest{
			SlotID: 42, Title: "Carving basics", MaxParticipants: 6, PriceCents: 150000,
		})
		require.NoError(t, err)
		assert.Equal(t, 6, g.FreePlaces())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("booked slot is rejected", func(t *testing.T) {
		svc, mock := newTestService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs(42).WillReturnRows(slotRow(42, StatusBooked))
		mock.ExpectRollback()

		_, err := svc.CreateGroupTraining(context.Background(), CreateGroupTrainingRequest{
			SlotID: 42, Title: "Carving basics", MaxParticipants: 6, PriceCents: 150000,
		})
		assert.ErrorIs(t, err, ErrSlotUnavailable)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestService_ListSlots_DefaultRange(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM resources WHERE id = $1")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(resourceCols).AddRow(1, "simulator", "Slope A", 300000, true, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("slot_date BETWEEN $2 AND $3")).
		WithArgs(1, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(slotRow(42, StatusAvailable))

	slots, err := svc.ListSlots(context.Background(), 1, "", "")
	require.NoError(t, err)
	assert.Len(t, slots, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
