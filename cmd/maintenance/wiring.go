package main

import (
	"context"
	"time"

	"skibook/internal/bonus"
	"skibook/internal/booking"
	"skibook/internal/events"
	"skibook/internal/schedule"
	"skibook/internal/wallet"

	"github.com/jmoiron/sqlx"
)

type quietNotifier struct{}

func (quietNotifier) BookingConfirmed(context.Context, int64, string, time.Time) {}
func (quietNotifier) BookingCancelled(context.Context, int64, int64, int64)      {}
func (quietNotifier) PaymentFailed(context.Context, int64, string, string)       {}
func (quietNotifier) WalletToppedUp(context.Context, int64, int64)               {}
func (quietNotifier) BonusCredited(context.Context, int64, string, int64)        {}

// newBookingService builds the booking writer with the bonus engine attached,
// so a recovered payment still earns its booking bonuses.
func newBookingService(database *sqlx.DB, slots schedule.Repository, ledger wallet.Repository, loc *time.Location) booking.Service {
	bonuses := bonus.NewService(database, bonus.NewRepository(database), ledger, quietNotifier{}, events.NopPublisher{}, loc)
	return booking.NewService(database, booking.NewRepository(database), slots, ledger, bonuses, quietNotifier{}, events.NopPublisher{}, loc)
}
