package bonus

import (
	"context"
	"errors"
	"time"

	"skibook/internal/db"

	"github.com/jmoiron/sqlx"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrAlreadyAwarded = errors.New("bonus already awarded for this period")
	ErrInvalidSetting = errors.New("invalid bonus setting")
	ErrUnknownType    = errors.New("unknown bonus type")
)

const settingColumns = `id, name, bonus_type, amount_cents, min_amount_cents, max_per_client,
	milestone_count, hour_from, hour_to, valid_from, valid_until, is_active, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ActiveSettings(ctx context.Context, t Type, at time.Time) ([]Setting, error) {
	settings := []Setting{}
	err := r.db.SelectContext(ctx, &settings, `
		SELECT `+settingColumns+`
		FROM bonus_settings
		WHERE is_active AND bonus_type = $1
		  AND (valid_from IS NULL OR valid_from <= $2)
		  AND (valid_until IS NULL OR valid_until >= $2)
		ORDER BY id
	`, t, at)
	return settings, err
}

// LockClient serialises bonus evaluation for one client.
func (r *repository) LockClient(ctx context.Context, q db.DBTX, clientID int64) error {
	var id int64
	err := q.GetContext(ctx, &id, `SELECT id FROM clients WHERE id = $1 FOR UPDATE`, clientID)
	if db.IsNoRows(err) {
		return ErrClientNotFound
	}
	return err
}

func (r *repository) LoadFacts(ctx context.Context, q db.DBTX, settingID, clientID int64) (*Facts, error) {
	var f Facts
	err := q.GetContext(ctx, &f, `
		SELECT
			(SELECT COUNT(*) FROM bonus_transactions
			 WHERE bonus_setting_id = $1 AND client_id = $2 AND status = 'credited') AS awarded,
			c.birth_date
		FROM clients c
		WHERE c.id = $2
	`, settingID, clientID)
	if db.IsNoRows(err) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repository) HasAward(ctx context.Context, q db.DBTX, settingID, clientID int64, periodKey string) (bool, error) {
	return db.Exists(ctx, q, `
		SELECT EXISTS (
			SELECT 1 FROM bonus_transactions
			WHERE bonus_setting_id = $1 AND client_id = $2 AND period_key = $3
		)`, settingID, clientID, periodKey)
}

func (r *repository) InsertAward(ctx context.Context, q db.DBTX, a Award) (int64, error) {
	var id int64
	err := q.GetContext(ctx, &id, `
		INSERT INTO bonus_transactions (bonus_setting_id, client_id, amount_cents, status, period_key, wallet_transaction_id)
		VALUES ($1, $2, $3, 'credited', $4, $5)
		RETURNING id
	`, a.SettingID, a.ClientID, a.AmountCents, a.PeriodKey, a.WalletTransactionID)
	if db.IsUniqueViolation(err) {
		return 0, ErrAlreadyAwarded
	}
	return id, err
}

// RevokeAwards flips the client's credited awards under periodKey to revoked
// and returns them.
func (r *repository) RevokeAwards(ctx context.Context, q db.DBTX, clientID int64, periodKey string) ([]Transaction, error) {
	revoked := []Transaction{}
	err := q.SelectContext(ctx, &revoked, `
		UPDATE bonus_transactions bt
		SET status = 'revoked'
		FROM bonus_settings bs
		WHERE bs.id = bt.bonus_setting_id
		  AND bt.client_id = $1 AND bt.period_key = $2 AND bt.status = 'credited'
		RETURNING bt.id, bt.bonus_setting_id, bs.name, bs.bonus_type, bt.client_id, bt.amount_cents,
		          bt.status, bt.period_key, bt.wallet_transaction_id, bt.created_at
	`, clientID, periodKey)
	return revoked, err
}

func (r *repository) CreateSetting(ctx context.Context, s Setting) (*Setting, error) {
	var out Setting
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO bonus_settings (name, bonus_type, amount_cents, min_amount_cents, max_per_client,
			milestone_count, hour_from, hour_to, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+settingColumns,
		s.Name, s.BonusType, s.AmountCents, s.MinAmountCents, s.MaxPerClient,
		s.MilestoneCount, s.HourFrom, s.HourTo, s.ValidFrom, s.ValidUntil,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repository) ListSettings(ctx context.Context) ([]Setting, error) {
	settings := []Setting{}
	err := r.db.SelectContext(ctx, &settings, `SELECT `+settingColumns+` FROM bonus_settings ORDER BY id`)
	return settings, err
}

func (r *repository) ListClientBonuses(ctx context.Context, clientID int64) ([]Transaction, error) {
	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT bt.id, bt.bonus_setting_id, bs.name, bs.bonus_type, bt.client_id, bt.amount_cents,
		       bt.status, bt.period_key, bt.wallet_transaction_id, bt.created_at
		FROM bonus_transactions bt
		JOIN bonus_settings bs ON bs.id = bt.bonus_setting_id
		WHERE bt.client_id = $1
		ORDER BY bt.created_at DESC
	`, clientID)
	return txs, err
}

// ClientsWithBirthday lists clients born on month/day. 29 February birthdays
// are matched by the caller's IsBirthday check, so the query also returns
// them when day is 28.
func (r *repository) ClientsWithBirthday(ctx context.Context, month time.Month, day int) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM clients
		WHERE birth_date IS NOT NULL
		  AND EXTRACT(MONTH FROM birth_date)::int = $1
		  AND (EXTRACT(DAY FROM birth_date)::int = $2
		    OR ($1 = 2 AND $2 = 28 AND EXTRACT(DAY FROM birth_date)::int = 29))
		ORDER BY id
	`, int(month), day)
	return ids, err
}
