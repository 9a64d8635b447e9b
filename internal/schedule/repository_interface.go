package schedule

import (
	"context"
	"time"

	"skibook/internal/db"
)

// Repository is the slot store. Methods taking a db.DBTX run on the caller's
// connection or transaction so that slot changes commit together with the
// rows that depend on them.
type Repository interface {
	CreateResource(ctx context.Context, kind ResourceKind, name string, priceCents int64) (*Resource, error)
	ListResources(ctx context.Context, activeOnly bool) ([]Resource, error)
	GetResource(ctx context.Context, q db.DBTX, id int64) (*Resource, error)

	InsertSlots(ctx context.Context, q db.DBTX, planned []PlannedSlot) (int, error)
	ListSlots(ctx context.Context, resourceID int64, from, to time.Time) ([]Slot, error)
	GetSlot(ctx context.Context, id int64) (*Slot, error)
	LockSlot(ctx context.Context, q db.DBTX, id int64) (*Slot, error)
	HasOverlap(ctx context.Context, q db.DBTX, slot *Slot) (bool, error)
	TransitionSlot(ctx context.Context, q db.DBTX, slotID int64, from, to SlotStatus) error

	HoldSlot(ctx context.Context, q db.DBTX, slotID, transactionID int64, until time.Time) error
	ConfirmHold(ctx context.Context, q db.DBTX, slotID, transactionID int64) (bool, error)
	ReleaseHold(ctx context.Context, q db.DBTX, slotID, transactionID int64) (bool, error)
	ClearExpiredHolds(ctx context.Context, now time.Time) ([]ReleasedHold, error)
	ReleaseOrphanHolds(ctx context.Context) ([]ReleasedHold, error)

	ListActiveBlocks(ctx context.Context, q db.DBTX) ([]Block, error)
	InsertBlock(ctx context.Context, q db.DBTX, b Block) (*Block, error)
	ApplyBlock(ctx context.Context, q db.DBTX, b Block) (int64, error)
	DeactivateBlock(ctx context.Context, q db.DBTX, id int64) error
	FreeBlockedSlots(ctx context.Context, q db.DBTX, blockID *int64) (int64, error)
	CountOrphanBlockedSlots(ctx context.Context) (int, error)

	CreateGroupTraining(ctx context.Context, q db.DBTX, slotID int64, title string, maxParticipants int, priceCents int64) (*GroupTraining, error)
	LockGroupTraining(ctx context.Context, q db.DBTX, id int64) (*GroupTraining, error)
	AdjustGroupParticipants(ctx context.Context, q db.DBTX, id int64, delta int) error
	ListGroupTrainings(ctx context.Context, from, to time.Time) ([]GroupTrainingWithSlot, error)
}
