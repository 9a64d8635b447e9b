package wallet

import (
	"context"
	"errors"
	"fmt"

	"skibook/internal/db"

	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

const walletColumns = `id, client_id, balance_cents, currency, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetOrCreateWallet(ctx context.Context, clientID int64) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT `+walletColumns+` FROM wallets WHERE client_id = $1`, clientID)
	if err == nil {
		return w, nil
	}
	if !db.IsNoRows(err) {
		return nil, err
	}

	err = r.db.GetContext(ctx, w,
		`INSERT INTO wallets (client_id)
		 VALUES ($1)
		 ON CONFLICT (client_id) DO UPDATE SET updated_at = wallets.updated_at
		 RETURNING `+walletColumns,
		clientID,
	)
	if err != nil {
		return nil, err
	}

	return w, nil
}

// AddTransaction applies amountCents (negative for debits) in its own
// transaction.
func (r *repository) AddTransaction(ctx context.Context, clientID, amountCents int64, txType, reference string) (*Transaction, error) {
	var entry *Transaction
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		entry, err = r.ApplyTx(ctx, tx, clientID, amountCents, txType, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyTx locks the wallet row, moves the balance and appends the ledger row
// using the caller's transaction. The balance never goes below zero.
func (r *repository) ApplyTx(ctx context.Context, q db.DBTX, clientID, amountCents int64, txType, reference string) (*Transaction, error) {
	var w Wallet
	err := q.GetContext(ctx, &w,
		`SELECT `+walletColumns+`
		 FROM wallets
		 WHERE client_id = $1
		 FOR UPDATE`,
		clientID,
	)
	if db.IsNoRows(err) {
		err = q.GetContext(ctx, &w,
			`INSERT INTO wallets (client_id)
			 VALUES ($1)
			 RETURNING `+walletColumns,
			clientID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	newBalance := w.BalanceCents + amountCents
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	_, err = q.ExecContext(ctx,
		`UPDATE wallets
		 SET balance_cents = $1, updated_at = NOW()
		 WHERE id = $2`,
		newBalance, w.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	entry := &Transaction{}
	err = q.GetContext(ctx, entry,
		`INSERT INTO wallet_transactions (wallet_id, amount_cents, type, balance_after, reference)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, wallet_id, amount_cents, type, balance_after, reference, created_at`,
		w.ID, amountCents, txType, newBalance, reference,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger row: %w", err)
	}

	return entry, nil
}

func (r *repository) TopUp(ctx context.Context, clientID, amountCents int64, reference string) (*Transaction, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return r.AddTransaction(ctx, clientID, amountCents, TypeTopUp, reference)
}

func (r *repository) GetTransactions(ctx context.Context, clientID int64, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	txs := []Transaction{}
	err := r.db.SelectContext(ctx, &txs, `
		SELECT t.id, t.wallet_id, t.amount_cents, t.type, t.balance_after, t.reference, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.client_id = $1
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}

	return txs, nil
}
