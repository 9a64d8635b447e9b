package booking

import (
	"context"

	"skibook/internal/db"
)

type Repository interface {
	Create(ctx context.Context, q db.DBTX, nb NewBooking) (*Booking, error)
	GetByID(ctx context.Context, id int64) (*Booking, error)
	Lock(ctx context.Context, q db.DBTX, id int64) (*Booking, error)
	UpdateStatus(ctx context.Context, q db.DBTX, id int64, from, to Status) error
	CountCompleted(ctx context.Context, q db.DBTX, clientID int64) (int, error)
	ListByClient(ctx context.Context, clientID int64) ([]BookingWithDetails, error)
	ListBySlot(ctx context.Context, slotID int64) ([]BookingWithDetails, error)
}
