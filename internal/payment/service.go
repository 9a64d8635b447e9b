package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"skibook/internal/db"
	"skibook/internal/logger"
	"skibook/internal/metrics"
	"skibook/internal/schedule"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrPaymentsDisabled    = errors.New("card payments are not configured")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrNotOwner            = errors.New("transaction belongs to another client")
	ErrNotPending          = errors.New("transaction is no longer pending")
	ErrInvalidRequest      = errors.New("invalid checkout request")
)

// Aborter fails pending checkouts; implemented by Reconciler.
type Aborter interface {
	Abort(ctx context.Context, orderID, reason string) (Result, error)
}

type Service interface {
	StartCheckout(ctx context.Context, clientID, slotID int64, participants int) (*Checkout, error)
	CancelCheckout(ctx context.Context, clientID int64, orderID string) error
	GetTransaction(ctx context.Context, clientID int64, orderID string, asAdmin bool) (*Transaction, error)
	GetStatus(ctx context.Context, orderID string) (Status, error)
}

type Options struct {
	HoldTTL   time.Duration
	Currency  string
	ReturnURL string
	Location  *time.Location
}

type service struct {
	db       *sqlx.DB
	repo     Repository
	slots    SlotStore
	provider Provider
	aborter  Aborter
	opts     Options
	now      func() time.Time
}

// NewService builds the checkout service. A nil provider disables card
// checkouts; wallet bookings keep working.
func NewService(db *sqlx.DB, repo Repository, slots SlotStore, provider Provider, aborter Aborter, opts Options) Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = 15 * time.Minute
	}
	return &service{
		db:       db,
		repo:     repo,
		slots:    slots,
		provider: provider,
		aborter:  aborter,
		opts:     opts,
		now:      time.Now,
	}
}

// StartCheckout holds the slot for a new pending transaction and creates the
// provider charge. The hold and the transaction commit together before the
// provider is called; a provider failure fails the transaction and releases
// the hold.
func (s *service) StartCheckout(ctx context.Context, clientID, slotID int64, participants int) (*Checkout, error) {
	if s.provider == nil {
		return nil, ErrPaymentsDisabled
	}
	if participants <= 0 {
		participants = 1
	}

	var (
		t         *Transaction
		bd        BookingData
		holdUntil = s.now().Add(s.opts.HoldTTL)
	)
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		slot, err := s.slots.LockSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if slot.StartsAt(s.opts.Location).Before(s.now()) {
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

		resource, err := s.slots.GetResource(ctx, tx, slot.ResourceID)
		if err != nil {
			return err
		}
		amount := resource.PriceCents * int64(participants)
		if amount <= 0 {
			return fmt.Errorf("%w: resource %d has no price", ErrInvalidRequest, resource.ID)
		}

		bd = BookingData{
			SlotID:       slot.ID,
			ResourceID:   resource.ID,
			ResourceName: resource.Name,
			Date:         slot.Date.Format(schedule.DateLayout),
			StartTime:    slot.StartTime,
			EndTime:      slot.EndTime,
			Participants: participants,
			PriceCents:   amount,
		}
		t, err = s.repo.CreatePending(ctx, tx, NewTransaction{
			OrderID:     uuid.NewString(),
			ClientID:    clientID,
			SlotID:      slot.ID,
			AmountCents: amount,
			Currency:    s.opts.Currency,
			Provider:    s.provider.Name(),
			BookingData: bd,
		})
		if err != nil {
			return err
		}
		return s.slots.HoldSlot(ctx, tx, slot.ID, t.ID, holdUntil)
	})
	if err != nil {
		if errors.Is(err, schedule.ErrSlotUnavailable) {
			metrics.RecordSlotConflict()
			logger.Warn("checkout rejected, slot taken", "slot_id", slotID, "client_id", clientID)
		}
		return nil, err
	}

	metrics.RecordHoldCreated()
	logger.Info("hold created",
		"order_id", t.OrderID,
		"transaction_id", t.ID,
		"slot_id", slotID,
		"client_id", clientID,
		"hold_until", holdUntil,
	)

	charge, err := s.provider.CreatePayment(ctx, ChargeRequest{
		OrderID:     t.OrderID,
		AmountCents: t.AmountCents,
		Currency:    t.Currency,
		Description: fmt.Sprintf("%s %s %s", bd.ResourceName, bd.Date, bd.StartTime),
		ReturnURL:   s.returnURL(t.OrderID),
	})
	if err != nil {
		logger.Error("provider charge failed", "order_id", t.OrderID, "error", err)
		if _, abortErr := s.aborter.Abort(context.WithoutCancel(ctx), t.OrderID, ReasonProviderError); abortErr != nil {
			logger.Error("failed to abort checkout", "order_id", t.OrderID, "error", abortErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := s.repo.AttachProviderPayment(ctx, t.ID, charge.PaymentID, charge.PaymentURL, charge.ProviderStatus); err != nil {
		return nil, fmt.Errorf("attach provider payment: %w", err)
	}

	return &Checkout{
		OrderID:     t.OrderID,
		PaymentURL:  charge.PaymentURL,
		AmountCents: t.AmountCents,
		Currency:    t.Currency,
		HoldUntil:   holdUntil,
	}, nil
}

// CancelCheckout lets a client give up a checkout before paying.
func (s *service) CancelCheckout(ctx context.Context, clientID int64, orderID string) error {
	t, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if t.ClientID != clientID {
		return ErrNotOwner
	}

	res, err := s.aborter.Abort(ctx, orderID, ReasonCancelledByClient)
	if err != nil {
		return err
	}
	if res != ResultFailed {
		return ErrNotPending
	}
	return nil
}

func (s *service) GetTransaction(ctx context.Context, clientID int64, orderID string, asAdmin bool) (*Transaction, error) {
	t, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !asAdmin && t.ClientID != clientID {
		return nil, ErrNotOwner
	}
	return t, nil
}

func (s *service) GetStatus(ctx context.Context, orderID string) (Status, error) {
	t, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

func (s *service) returnURL(orderID string) string {
	if s.opts.ReturnURL == "" {
		return ""
	}
	u, err := url.Parse(s.opts.ReturnURL)
	if err != nil {
		return s.opts.ReturnURL
	}
	q := u.Query()
	q.Set("order_id", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}
