package booking

import (
	"context"
	"errors"
	"fmt"

	"skibook/internal/db"
	"skibook/internal/schedule"

	"github.com/jmoiron/sqlx"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrInvalidStatus   = errors.New("booking status does not allow this change")
)

const bookingColumns = `id, client_id, slot_id, group_training_id, transaction_id, participants,
	price_cents, payment_method, status, created_at, updated_at`

const detailsQuery = `
	SELECT b.id, b.client_id, b.slot_id, b.group_training_id, b.transaction_id, b.participants,
	       b.price_cents, b.payment_method, b.status, b.created_at, b.updated_at,
	       s.resource_id, r.name AS resource_name, s.slot_date, s.start_time, s.end_time,
	       c.full_name AS client_name, c.phone AS client_phone
	FROM bookings b
	JOIN slots s ON s.id = b.slot_id
	JOIN resources r ON r.id = s.resource_id
	JOIN clients c ON c.id = b.client_id
`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// Create inserts a confirmed booking. A second live booking of the same
// individual slot violates ux_bookings_individual_slot and is reported as
// schedule.ErrSlotUnavailable.
func (r *repository) Create(ctx context.Context, q db.DBTX, nb NewBooking) (*Booking, error) {
	var b Booking
	err := q.GetContext(ctx, &b, `
		INSERT INTO bookings (client_id, slot_id, group_training_id, transaction_id, participants, price_cents, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'confirmed')
		RETURNING `+bookingColumns,
		nb.ClientID, nb.SlotID, nb.GroupTrainingID, nb.TransactionID, nb.Participants, nb.PriceCents, nb.PaymentMethod,
	)
	if db.IsUniqueViolation(err) {
		return nil, schedule.ErrSlotUnavailable
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Booking, error) {
	return r.get(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *repository) Lock(ctx context.Context, q db.DBTX, id int64) (*Booking, error) {
	return r.get(ctx, q, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

// CountCompleted locks the client row and then counts their completed
// bookings. The count runs as its own statement so it sees completions
// committed while this transaction waited for the lock.
func (r *repository) CountCompleted(ctx context.Context, q db.DBTX, clientID int64) (int, error) {
	var id int64
	err := q.GetContext(ctx, &id, `SELECT id FROM clients WHERE id = $1 FOR UPDATE`, clientID)
	if err != nil {
		return 0, fmt.Errorf("lock client %d: %w", clientID, err)
	}

	var n int
	err = q.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings WHERE client_id = $1 AND status = 'completed'`, clientID)
	return n, err
}

func (r *repository) get(ctx context.Context, q db.DBTX, query string, id int64) (*Booking, error) {
	var b Booking
	err := q.GetContext(ctx, &b, query, id)
	if db.IsNoRows(err) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) UpdateStatus(ctx context.Context, q db.DBTX, id int64, from, to Status) error {
	res, err := q.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *repository) ListByClient(ctx context.Context, clientID int64) ([]BookingWithDetails, error) {
	bookings := []BookingWithDetails{}
	err := r.db.SelectContext(ctx, &bookings, detailsQuery+`
		WHERE b.client_id = $1
		ORDER BY s.slot_date DESC, s.start_time DESC
	`, clientID)
	return bookings, err
}

func (r *repository) ListBySlot(ctx context.Context, slotID int64) ([]BookingWithDetails, error) {
	bookings := []BookingWithDetails{}
	err := r.db.SelectContext(ctx, &bookings, detailsQuery+`
		WHERE b.slot_id = $1
		ORDER BY b.created_at
	`, slotID)
	return bookings, err
}
