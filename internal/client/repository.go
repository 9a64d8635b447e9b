package client

import (
	"context"
	"errors"

	"skibook/internal/db"

	"github.com/jmoiron/sqlx"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrDuplicate      = errors.New("client with this phone or referral code already exists")
)

const clientColumns = `id, full_name, phone, email, password_hash, role, birth_date, telegram_id,
	referral_code, referred_by, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, nc NewClient) (*Client, error) {
	var c Client
	err := r.db.GetContext(ctx, &c, `
		INSERT INTO clients (full_name, phone, email, password_hash, role, birth_date, referral_code, referred_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+clientColumns,
		nc.FullName, nc.Phone, nc.Email, nc.PasswordHash, nc.Role, nc.BirthDate, nc.ReferralCode, nc.ReferredBy,
	)
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) FindByPhone(ctx context.Context, phone string) (*Client, error) {
	return r.find(ctx, `SELECT `+clientColumns+` FROM clients WHERE phone = $1`, phone)
}

func (r *repository) FindByID(ctx context.Context, id int64) (*Client, error) {
	return r.find(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
}

func (r *repository) FindByReferralCode(ctx context.Context, code string) (*Client, error) {
	return r.find(ctx, `SELECT `+clientColumns+` FROM clients WHERE referral_code = $1`, code)
}

func (r *repository) find(ctx context.Context, query string, arg interface{}) (*Client, error) {
	var c Client
	err := r.db.GetContext(ctx, &c, query, arg)
	if db.IsNoRows(err) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return db.Exists(ctx, r.db, `SELECT EXISTS(SELECT 1 FROM clients WHERE phone = $1)`, phone)
}
