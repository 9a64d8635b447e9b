package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skibook/internal/bonus"
	"skibook/internal/db"
	"skibook/internal/events"
	"skibook/internal/logger"
	"skibook/internal/metrics"
	"skibook/internal/schedule"
	"skibook/internal/wallet"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNotOwner       = errors.New("booking belongs to another client")
	ErrInvalidRequest = errors.New("invalid booking request")
	ErrHoldLost       = errors.New("slot hold no longer owned by the transaction")
)

// SlotStore is the part of the schedule store bookings need.
type SlotStore interface {
	GetResource(ctx context.Context, q db.DBTX, id int64) (*schedule.Resource, error)
	LockSlot(ctx context.Context, q db.DBTX, id int64) (*schedule.Slot, error)
	HasOverlap(ctx context.Context, q db.DBTX, slot *schedule.Slot) (bool, error)
	TransitionSlot(ctx context.Context, q db.DBTX, slotID int64, from, to schedule.SlotStatus) error
	ConfirmHold(ctx context.Context, q db.DBTX, slotID, transactionID int64) (bool, error)
	LockGroupTraining(ctx context.Context, q db.DBTX, id int64) (*schedule.GroupTraining, error)
	AdjustGroupParticipants(ctx context.Context, q db.DBTX, id int64, delta int) error
}

type Ledger interface {
	ApplyTx(ctx context.Context, q db.DBTX, clientID, amountCents int64, txType, reference string) (*wallet.Transaction, error)
}

type BonusAwarder interface {
	CheckAndAwardBonus(ctx context.Context, t bonus.Type, clientID int64, ev bonus.EventData) ([]bonus.Award, error)
	RevokeBookingBonuses(ctx context.Context, q db.DBTX, clientID, bookingID, limitCents int64) (int64, error)
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, clientID int64, resource string, startsAt time.Time)
	BookingCancelled(ctx context.Context, clientID, bookingID, refundCents int64)
}

type Service interface {
	BookSlot(ctx context.Context, clientID, slotID int64, participants int, method PaymentMethod) (*Booking, error)
	CreateFromHold(ctx context.Context, q db.DBTX, h HoldConversion) (*Booking, error)
	AfterConfirm(ctx context.Context, b *Booking)
	JoinGroup(ctx context.Context, clientID, groupID int64, participants int) (*Booking, error)
	CancelBooking(ctx context.Context, clientID, bookingID int64, asAdmin bool) (*Booking, int64, error)
	CompleteBooking(ctx context.Context, bookingID int64) (*Booking, error)
	ListClientBookings(ctx context.Context, clientID int64) ([]BookingWithDetails, error)
	ListBookingsBySlot(ctx context.Context, slotID int64) ([]BookingWithDetails, error)
}

type service struct {
	db        *sqlx.DB
	repo      Repository
	slots     SlotStore
	ledger    Ledger
	bonuses   BonusAwarder
	notifier  Notifier
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
}

func NewService(
	db *sqlx.DB,
	repo Repository,
	slots SlotStore,
	ledger Ledger,
	bonuses BonusAwarder,
	notifier Notifier,
	publisher events.Publisher,
	loc *time.Location,
) Service {
	if loc == nil {
		loc = time.UTC
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{
		db:        db,
		repo:      repo,
		slots:     slots,
		ledger:    ledger,
		bonuses:   bonuses,
		notifier:  notifier,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
}

// BookSlot books an available slot in one transaction: the slot row is
// locked, checked against overlapping occupied slots, the wallet is debited
// and the booking is inserted before the slot flips to booked. Any failure
// rolls everything back.
func (s *service) BookSlot(ctx context.Context, clientID, slotID int64, participants int, method PaymentMethod) (*Booking, error) {
	if participants <= 0 {
		participants = 1
	}
	if method != MethodWallet && method != MethodAdmin {
		return nil, fmt.Errorf("%w: payment method %q", ErrInvalidRequest, method)
	}

	var (
		booking  *Booking
		slot     *schedule.Slot
		resource *schedule.Resource
	)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		slot, err = s.slots.LockSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if slot.StartsAt(s.loc).Before(s.now()) {
			return schedule.ErrSlotInPast
		}
		if slot.Status != schedule.StatusAvailable {
			return schedule.ErrSlotUnavailable
		}
		overlap, err := s.slots.HasOverlap(ctx, tx, slot)
		if err != nil {
			return err
		}
		if overlap {
			return schedule.ErrSlotUnavailable
		}

		resource, err = s.slots.GetResource(ctx, tx, slot.ResourceID)
		if err != nil {
			return err
		}
		price := resource.PriceCents * int64(participants)
		if method == MethodAdmin {
			price = 0
		}

		booking, err = s.repo.Create(ctx, tx, NewBooking{
			ClientID:      clientID,
			SlotID:        slot.ID,
			Participants:  participants,
			PriceCents:    price,
			PaymentMethod: method,
		})
		if err != nil {
			return err
		}
		if err := s.slots.TransitionSlot(ctx, tx, slot.ID, schedule.StatusAvailable, schedule.StatusBooked); err != nil {
			return err
		}

		if price > 0 {
			if _, err := s.ledger.ApplyTx(ctx, tx, clientID, -price, wallet.TypeBookingPayment, bookingRef(booking.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, schedule.ErrSlotUnavailable) {
			metrics.RecordSlotConflict()
			logger.Warn("booking rejected, slot taken", "slot_id", slotID, "client_id", clientID)
		}
		return nil, err
	}

	logger.Info("booking created",
		"booking_id", booking.ID,
		"slot_id", slot.ID,
		"client_id", clientID,
		"payment_method", string(method),
		"price_cents", booking.PriceCents,
	)
	s.confirmed(ctx, booking, resource.Name, slot.StartsAt(s.loc))
	return booking, nil
}

// CreateFromHold converts the hold owned by a paid transaction into a
// booking using the caller's transaction. It returns ErrHoldLost when the
// hold was released or taken over; the caller's transaction stays usable.
func (s *service) CreateFromHold(ctx context.Context, q db.DBTX, h HoldConversion) (*Booking, error) {
	ok, err := s.slots.ConfirmHold(ctx, q, h.SlotID, h.TransactionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHoldLost
	}

	txID := h.TransactionID
	participants := h.Participants
	if participants <= 0 {
		participants = 1
	}
	return s.repo.Create(ctx, q, NewBooking{
		ClientID:      h.ClientID,
		SlotID:        h.SlotID,
		TransactionID: &txID,
		Participants:  participants,
		PriceCents:    h.PriceCents,
		PaymentMethod: MethodCard,
	})
}

// AfterConfirm runs the post-commit side effects of a booking created by the
// payment flow.
func (s *service) AfterConfirm(ctx context.Context, b *Booking) {
	details, err := s.repo.ListBySlot(ctx, b.SlotID)
	resource, startsAt := "", time.Time{}
	if err == nil {
		for _, d := range details {
			if d.ID == b.ID {
				resource = d.ResourceName
				startsAt = time.Date(d.SlotDate.Year(), d.SlotDate.Month(), d.SlotDate.Day(),
					d.StartTime.Hour(), d.StartTime.Minute(), 0, 0, s.loc)
			}
		}
	} else {
		logger.Warn("failed to load booking details", "booking_id", b.ID, "error", err)
	}
	s.confirmed(ctx, b, resource, startsAt)
}

func (s *service) confirmed(ctx context.Context, b *Booking, resource string, startsAt time.Time) {
	metrics.RecordBooking(string(b.Status), string(b.PaymentMethod))

	if s.notifier != nil {
		s.notifier.BookingConfirmed(ctx, b.ClientID, resource, startsAt)
	}
	s.publish(ctx, events.BookingConfirmed, b)

	if s.bonuses == nil || b.PaymentMethod == MethodAdmin {
		return
	}
	ev := bonus.EventData{BookingID: b.ID, AmountCents: b.PriceCents, StartsAt: startsAt}
	for _, t := range []bonus.Type{bonus.TypeBooking, bonus.TypeTimeOfDay} {
		if _, err := s.bonuses.CheckAndAwardBonus(ctx, t, b.ClientID, ev); err != nil {
			logger.Warn("booking bonus check failed", "booking_id", b.ID, "bonus_type", string(t), "error", err)
		}
	}
}

// JoinGroup adds participants to an open group training, paying from the
// wallet. The group row lock serialises capacity checks.
func (s *service) JoinGroup(ctx context.Context, clientID, groupID int64, participants int) (*Booking, error) {
	if participants <= 0 {
		participants = 1
	}

	var booking *Booking
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		group, err := s.slots.LockGroupTraining(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.Status != schedule.GroupOpen {
			return schedule.ErrGroupClosed
		}
		slot, err := s.slots.LockSlot(ctx, tx, group.SlotID)
		if err != nil {
			return err
		}
		if slot.StartsAt(s.loc).Before(s.now()) {
			return schedule.ErrSlotInPast
		}
		if group.FreePlaces() < participants {
			return schedule.ErrGroupFull
		}
		if err := s.slots.AdjustGroupParticipants(ctx, tx, group.ID, participants); err != nil {
			return err
		}

		price := group.PriceCents * int64(participants)
		gid := group.ID
		booking, err = s.repo.Create(ctx, tx, NewBooking{
			ClientID:        clientID,
			SlotID:          slot.ID,
			GroupTrainingID: &gid,
			Participants:    participants,
			PriceCents:      price,
			PaymentMethod:   MethodWallet,
		})
		if err != nil {
			return err
		}
		if price > 0 {
			if _, err := s.ledger.ApplyTx(ctx, tx, clientID, -price, wallet.TypeBookingPayment, bookingRef(booking.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("group training joined", "booking_id", booking.ID, "group_training_id", groupID, "client_id", clientID)
	s.AfterConfirm(ctx, booking)
	return booking, nil
}

// CancelBooking cancels a confirmed future booking, frees its slot (or its
// group places) and refunds paid bookings to the wallet. It returns the
// refunded amount.
func (s *service) CancelBooking(ctx context.Context, clientID, bookingID int64, asAdmin bool) (*Booking, int64, error) {
	var (
		booking *Booking
		refund  int64
		revoked int64
	)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		booking, err = s.repo.Lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if !asAdmin && booking.ClientID != clientID {
			return ErrNotOwner
		}
		if booking.Status != StatusConfirmed {
			return ErrInvalidStatus
		}

		// group row before slot row, same order as JoinGroup
		if booking.GroupTrainingID != nil {
			if _, err := s.slots.LockGroupTraining(ctx, tx, *booking.GroupTrainingID); err != nil {
				return err
			}
		}
		slot, err := s.slots.LockSlot(ctx, tx, booking.SlotID)
		if err != nil {
			return err
		}
		if !asAdmin && slot.StartsAt(s.loc).Before(s.now()) {
			return schedule.ErrSlotInPast
		}

		if err := s.repo.UpdateStatus(ctx, tx, booking.ID, StatusConfirmed, StatusCancelled); err != nil {
			return err
		}
		booking.Status = StatusCancelled

		if booking.GroupTrainingID != nil {
			err = s.slots.AdjustGroupParticipants(ctx, tx, *booking.GroupTrainingID, -booking.Participants)
		} else {
			err = s.slots.TransitionSlot(ctx, tx, slot.ID, schedule.StatusBooked, schedule.StatusAvailable)
		}
		if err != nil {
			return fmt.Errorf("release slot %d: %w", slot.ID, err)
		}

		if booking.PaymentMethod == MethodAdmin || booking.PriceCents <= 0 {
			return nil
		}
		refund = booking.PriceCents
		entry, err := s.ledger.ApplyTx(ctx, tx, booking.ClientID, refund, wallet.TypeRefund, bookingRef(booking.ID))
		if err != nil {
			return err
		}
		if s.bonuses != nil {
			revoked, err = s.bonuses.RevokeBookingBonuses(ctx, tx, booking.ClientID, booking.ID, entry.BalanceAfter)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	metrics.RecordBookingCancellation()
	logger.Info("booking cancelled",
		"booking_id", booking.ID, "client_id", booking.ClientID, "refund_cents", refund, "bonus_revoked_cents", revoked)
	if s.notifier != nil {
		s.notifier.BookingCancelled(ctx, booking.ClientID, booking.ID, refund)
	}
	s.publish(ctx, events.BookingCancelled, booking)
	return booking, refund, nil
}

// CompleteBooking marks an attended training and runs the milestone rules.
func (s *service) CompleteBooking(ctx context.Context, bookingID int64) (*Booking, error) {
	var (
		booking *Booking
		before  int
	)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		booking, err = s.repo.Lock(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != StatusConfirmed {
			return ErrInvalidStatus
		}
		before, err = s.repo.CountCompleted(ctx, tx, booking.ClientID)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, tx, booking.ID, StatusConfirmed, StatusCompleted); err != nil {
			return err
		}
		booking.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordBooking(string(StatusCompleted), string(booking.PaymentMethod))
	s.publish(ctx, events.BookingCompleted, booking)
	if s.bonuses != nil {
		ev := bonus.EventData{BookingID: booking.ID, AmountCents: booking.PriceCents, CompletedBefore: before}
		if _, err := s.bonuses.CheckAndAwardBonus(ctx, bonus.TypeMilestone, booking.ClientID, ev); err != nil {
			logger.Warn("milestone bonus check failed", "booking_id", booking.ID, "error", err)
		}
	}
	return booking, nil
}

func (s *service) ListClientBookings(ctx context.Context, clientID int64) ([]BookingWithDetails, error) {
	return s.repo.ListByClient(ctx, clientID)
}

func (s *service) ListBookingsBySlot(ctx context.Context, slotID int64) ([]BookingWithDetails, error) {
	return s.repo.ListBySlot(ctx, slotID)
}

func (s *service) publish(ctx context.Context, event string, b *Booking) {
	if err := s.publisher.Publish(ctx, event, b); err != nil {
		logger.Warn("failed to publish booking event", "event", event, "booking_id", b.ID, "error", err)
	}
}

func bookingRef(id int64) string {
	return fmt.Sprintf("booking:%d", id)
}
