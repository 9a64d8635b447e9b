package bonus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skibook/internal/db"
	"skibook/internal/events"
	"skibook/internal/logger"
	"skibook/internal/metrics"
	"skibook/internal/wallet"

	"github.com/jmoiron/sqlx"
)

// Ledger credits a wallet inside the caller's transaction.
type Ledger interface {
	ApplyTx(ctx context.Context, q db.DBTX, clientID, amountCents int64, txType, reference string) (*wallet.Transaction, error)
}

type Notifier interface {
	BonusCredited(ctx context.Context, clientID int64, name string, amountCents int64)
}

type Service interface {
	CheckAndAwardBonus(ctx context.Context, t Type, clientID int64, ev EventData) ([]Award, error)
	RevokeBookingBonuses(ctx context.Context, q db.DBTX, clientID, bookingID, limitCents int64) (int64, error)
	AwardBirthdays(ctx context.Context) (int, error)
	CreateSetting(ctx context.Context, req CreateSettingRequest) (*Setting, error)
	ListSettings(ctx context.Context) ([]Setting, error)
	ListClientBonuses(ctx context.Context, clientID int64) ([]Transaction, error)
}

type service struct {
	db        *sqlx.DB
	repo      Repository
	ledger    Ledger
	notifier  Notifier
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
}

func NewService(db *sqlx.DB, repo Repository, ledger Ledger, notifier Notifier, publisher events.Publisher, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{
		db:        db,
		repo:      repo,
		ledger:    ledger,
		notifier:  notifier,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
}

// CheckAndAwardBonus evaluates every active rule of type t for the client and
// credits the wallet for each one that pays out. A failing rule does not stop
// the others; their errors are joined.
func (s *service) CheckAndAwardBonus(ctx context.Context, t Type, clientID int64, ev EventData) ([]Award, error) {
	if !t.Valid() {
		return nil, ErrUnknownType
	}

	now := s.now().In(s.loc)
	settings, err := s.repo.ActiveSettings(ctx, t, now)
	if err != nil {
		return nil, fmt.Errorf("load %s bonus settings: %w", t, err)
	}

	awards := []Award{}
	var errs []error
	for _, setting := range settings {
		award, err := s.award(ctx, setting, clientID, ev, now)
		if errors.Is(err, ErrAlreadyAwarded) {
			logger.Debug("bonus already awarded", "bonus_setting_id", setting.ID, "client_id", clientID)
			continue
		}
		if err != nil {
			logger.Error("failed to award bonus", "bonus_setting_id", setting.ID, "client_id", clientID, "error", err)
			errs = append(errs, fmt.Errorf("bonus setting %d: %w", setting.ID, err))
			continue
		}
		if award == nil {
			continue
		}

		awards = append(awards, *award)
		s.afterAward(ctx, *award)
	}

	return awards, errors.Join(errs...)
}

// award re-reads the client's facts under a row lock and writes the wallet
// ledger row and the bonus row in one transaction.
func (s *service) award(ctx context.Context, setting Setting, clientID int64, ev EventData, now time.Time) (*Award, error) {
	var out *Award
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.repo.LockClient(ctx, tx, clientID); err != nil {
			return err
		}
		facts, err := s.repo.LoadFacts(ctx, tx, setting.ID, clientID)
		if err != nil {
			return err
		}

		key, ok := Evaluate(setting, *facts, ev, now)
		if !ok {
			return nil
		}

		taken, err := s.repo.HasAward(ctx, tx, setting.ID, clientID, key)
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyAwarded
		}

		entry, err := s.ledger.ApplyTx(ctx, tx, clientID, setting.AmountCents, wallet.TypeBonus,
			fmt.Sprintf("bonus:%d:%s", setting.ID, key))
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}

		a := Award{
			SettingID:           setting.ID,
			ClientID:            clientID,
			Name:                setting.Name,
			Type:                setting.BonusType,
			AmountCents:         setting.AmountCents,
			PeriodKey:           key,
			WalletTransactionID: entry.ID,
		}
		a.ID, err = s.repo.InsertAward(ctx, tx, a)
		if err != nil {
			return err
		}
		out = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) afterAward(ctx context.Context, a Award) {
	metrics.RecordBonus(string(a.Type))
	logger.Info("bonus credited",
		"bonus_setting_id", a.SettingID,
		"client_id", a.ClientID,
		"amount_cents", a.AmountCents,
		"period_key", a.PeriodKey,
	)

	if s.notifier != nil {
		s.notifier.BonusCredited(ctx, a.ClientID, a.Name, a.AmountCents)
	}
	if err := s.publisher.Publish(ctx, events.BonusCredited, a); err != nil {
		logger.Warn("failed to publish bonus event", "client_id", a.ClientID, "error", err)
	}
}

// RevokeBookingBonuses takes back the booking and time-of-day awards earned by
// a booking that is being cancelled, inside the caller's transaction. The
// wallet is debited by at most limitCents; the rest stays with the client.
func (s *service) RevokeBookingBonuses(ctx context.Context, q db.DBTX, clientID, bookingID, limitCents int64) (int64, error) {
	revoked, err := s.repo.RevokeAwards(ctx, q, clientID, bookingKey(bookingID))
	if err != nil {
		return 0, fmt.Errorf("revoke booking %d bonuses: %w", bookingID, err)
	}

	var total int64
	for _, t := range revoked {
		total += t.AmountCents
	}
	debit := min(total, limitCents)
	if debit <= 0 {
		return 0, nil
	}

	if _, err := s.ledger.ApplyTx(ctx, q, clientID, -debit, wallet.TypeBonusRevoke, "bonus:"+bookingKey(bookingID)); err != nil {
		return 0, fmt.Errorf("debit revoked bonus: %w", err)
	}
	for _, t := range revoked {
		metrics.RecordBonusRevoked(string(t.BonusType))
	}
	logger.Info("booking bonuses revoked",
		"booking_id", bookingID, "client_id", clientID, "revoked_cents", total, "debited_cents", debit)
	return debit, nil
}

// AwardBirthdays runs the birthday rules for everyone whose birthday is today
// in the business time zone. Safe to run repeatedly: the period key is the year.
func (s *service) AwardBirthdays(ctx context.Context) (int, error) {
	today := s.now().In(s.loc)
	ids, err := s.repo.ClientsWithBirthday(ctx, today.Month(), today.Day())
	if err != nil {
		return 0, fmt.Errorf("list birthdays: %w", err)
	}

	credited := 0
	var errs []error
	for _, id := range ids {
		awards, err := s.CheckAndAwardBonus(ctx, TypeBirthday, id, EventData{})
		credited += len(awards)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return credited, errors.Join(errs...)
}

func (s *service) CreateSetting(ctx context.Context, req CreateSettingRequest) (*Setting, error) {
	setting := Setting{
		Name:           strings.TrimSpace(req.Name),
		BonusType:      Type(req.BonusType),
		AmountCents:    req.AmountCents,
		MinAmountCents: req.MinAmountCents,
		MaxPerClient:   req.MaxPerClient,
		MilestoneCount: req.MilestoneCount,
		HourFrom:       req.HourFrom,
		HourTo:         req.HourTo,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
	}
	if err := validateSetting(setting); err != nil {
		return nil, err
	}
	return s.repo.CreateSetting(ctx, setting)
}

func validateSetting(s Setting) error {
	if !s.BonusType.Valid() {
		return ErrUnknownType
	}
	if s.Name == "" || s.AmountCents <= 0 {
		return fmt.Errorf("%w: name and a positive amount are required", ErrInvalidSetting)
	}
	if s.BonusType == TypeMilestone && s.MilestoneCount <= 0 {
		return fmt.Errorf("%w: milestone_count must be positive", ErrInvalidSetting)
	}
	if s.BonusType == TypeTimeOfDay && s.HourFrom == s.HourTo {
		return fmt.Errorf("%w: empty time-of-day window", ErrInvalidSetting)
	}
	if s.ValidFrom != nil && s.ValidUntil != nil && !s.ValidUntil.After(*s.ValidFrom) {
		return fmt.Errorf("%w: valid_until must be after valid_from", ErrInvalidSetting)
	}
	return nil
}

func (s *service) ListSettings(ctx context.Context) ([]Setting, error) {
	return s.repo.ListSettings(ctx)
}

func (s *service) ListClientBonuses(ctx context.Context, clientID int64) ([]Transaction, error) {
	return s.repo.ListClientBonuses(ctx, clientID)
}
