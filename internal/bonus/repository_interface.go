package bonus

import (
	"context"
	"time"

	"skibook/internal/db"
)

type Repository interface {
	ActiveSettings(ctx context.Context, t Type, at time.Time) ([]Setting, error)
	LockClient(ctx context.Context, q db.DBTX, clientID int64) error
	LoadFacts(ctx context.Context, q db.DBTX, settingID, clientID int64) (*Facts, error)
	HasAward(ctx context.Context, q db.DBTX, settingID, clientID int64, periodKey string) (bool, error)
	InsertAward(ctx context.Context, q db.DBTX, a Award) (int64, error)
	RevokeAwards(ctx context.Context, q db.DBTX, clientID int64, periodKey string) ([]Transaction, error)

	CreateSetting(ctx context.Context, s Setting) (*Setting, error)
	ListSettings(ctx context.Context) ([]Setting, error)
	ListClientBonuses(ctx context.Context, clientID int64) ([]Transaction, error)
	ClientsWithBirthday(ctx context.Context, month time.Month, day int) ([]int64, error)
}
