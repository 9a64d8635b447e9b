package wallet

import (
	"context"

	"skibook/internal/db"
)

type Repository interface {
	GetOrCreateWallet(ctx context.Context, clientID int64) (*Wallet, error)
	AddTransaction(ctx context.Context, clientID, amountCents int64, txType, reference string) (*Transaction, error)
	ApplyTx(ctx context.Context, q db.DBTX, clientID, amountCents int64, txType, reference string) (*Transaction, error)
	TopUp(ctx context.Context, clientID, amountCents int64, reference string) (*Transaction, error)
	GetTransactions(ctx context.Context, clientID int64, limit, offset int) ([]Transaction, error)
}
