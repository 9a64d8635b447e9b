package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skibook/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidResource  = errors.New("invalid resource")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrSlotUnavailable  = errors.New("slot is not available")
	ErrSlotInPast       = errors.New("slot is in the past")
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrBlockNotFound    = errors.New("block not found")
	ErrInvalidBlock     = errors.New("invalid block")
	ErrGroupNotFound    = errors.New("group training not found")
	ErrGroupFull        = errors.New("group training is full")
	ErrGroupClosed      = errors.New("group training is not open")
)

const (
	resourceColumns = `id, kind, name, price_cents, is_active, created_at`
	slotColumns     = `id, resource_id, slot_date, start_time, end_time, status, hold_until, hold_transaction_id, block_id, created_at, updated_at`
	blockColumns    = `id, resource_id, weekday, block_date, start_time, end_time, reason, is_active, created_at`
	groupColumns    = `id, slot_id, title, max_participants, current_participants, price_cents, status, created_at`
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateResource(ctx context.Context, kind ResourceKind, name string, priceCents int64) (*Resource, error) {
	var res Resource
	err := r.db.GetContext(ctx, &res, `
		INSERT INTO resources (kind, name, price_cents)
		VALUES ($1, $2, $3)
		RETURNING `+resourceColumns,
		kind, name, priceCents,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repository) ListResources(ctx context.Context, activeOnly bool) ([]Resource, error) {
	resources := []Resource{}
	err := r.db.SelectContext(ctx, &resources, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE is_active OR NOT $1
		ORDER BY kind, name
	`, activeOnly)
	return resources, err
}

func (r *repository) GetResource(ctx context.Context, q db.DBTX, id int64) (*Resource, error) {
	var res Resource
	err := q.GetContext(ctx, &res, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	if db.IsNoRows(err) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// InsertSlots skips slots that already exist or would collide with an
// occupied slot, and returns how many rows were created.
func (r *repository) InsertSlots(ctx context.Context, q db.DBTX, planned []PlannedSlot) (int, error) {
	created := 0
	for _, ps := range planned {
		res, err := q.ExecContext(ctx, `
			INSERT INTO slots (resource_id, slot_date, start_time, end_time, status, block_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING
		`, ps.ResourceID, ps.Date, ps.StartTime, ps.EndTime, ps.Status, ps.BlockID)
		if err != nil {
			return created, fmt.Errorf("insert slot %d %s %s: %w", ps.ResourceID, ps.Date.Format(DateLayout), ps.StartTime, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return created, err
		}
		created += int(n)
	}
	return created, nil
}

func (r *repository) ListSlots(ctx context.Context, resourceID int64, from, to time.Time) ([]Slot, error) {
	slots := []Slot{}
	err := r.db.SelectContext(ctx, &slots, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE resource_id = $1 AND slot_date BETWEEN $2 AND $3
		ORDER BY slot_date, start_time
	`, resourceID, from, to)
	return slots, err
}

func (r *repository) GetSlot(ctx context.Context, id int64) (*Slot, error) {
	var s Slot
	err := r.db.GetContext(ctx, &s, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	if db.IsNoRows(err) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) LockSlot(ctx context.Context, q db.DBTX, id int64) (*Slot, error) {
	var s Slot
	err := q.GetContext(ctx, &s, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
	if db.IsNoRows(err) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// HasOverlap reports whether another occupied slot of the same resource
// overlaps slot.
func (r *repository) HasOverlap(ctx context.Context, q db.DBTX, slot *Slot) (bool, error) {
	return db.Exists(ctx, q, `
		SELECT EXISTS (
			SELECT 1 FROM slots o
			WHERE o.resource_id = $1 AND o.slot_date = $2 AND o.id <> $3
			  AND o.status <> 'available'
			  AND `+overlapCond("o", "$4", "$5")+`
		)`, slot.ResourceID, slot.Date, slot.ID, slot.StartTime, slot.EndTime)
}

// TransitionSlot moves a slot between states. It fails with
// ErrSlotUnavailable when the slot is no longer in from, or when the database
// overlap guard rejects the change.
func (r *repository) TransitionSlot(ctx context.Context, q db.DBTX, slotID int64, from, to SlotStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE slots
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, slotID, from, to)
	return affectedOne(res, err)
}

func (r *repository) HoldSlot(ctx context.Context, q db.DBTX, slotID, transactionID int64, until time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE slots
		SET status = 'hold', hold_until = $3, hold_transaction_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'available'
	`, slotID, transactionID, until)
	return affectedOne(res, err)
}

// ConfirmHold turns the hold owned by transactionID into a booked slot. It
// returns false when the hold was already released or taken over.
func (r *repository) ConfirmHold(ctx context.Context, q db.DBTX, slotID, transactionID int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE slots
		SET status = 'booked', hold_until = NULL, hold_transaction_id = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'hold' AND hold_transaction_id = $2
	`, slotID, transactionID)
	return affected(res, err)
}

func (r *repository) ReleaseHold(ctx context.Context, q db.DBTX, slotID, transactionID int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE slots
		SET status = 'available', hold_until = NULL, hold_transaction_id = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'hold' AND hold_transaction_id = $2
	`, slotID, transactionID)
	return affected(res, err)
}

func (r *repository) ClearExpiredHolds(ctx context.Context, now time.Time) ([]ReleasedHold, error) {
	released := []ReleasedHold{}
	err := r.db.SelectContext(ctx, &released, `
		WITH expired AS (
			SELECT id, hold_transaction_id
			FROM slots
			WHERE status = 'hold' AND hold_until < $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE slots s
		SET status = 'available', hold_until = NULL, hold_transaction_id = NULL, updated_at = NOW()
		FROM expired e
		WHERE s.id = e.id
		RETURNING s.id, e.hold_transaction_id
	`, now)
	return released, err
}

// ReleaseOrphanHolds frees holds whose transaction is no longer pending.
// The reconciler releases holds itself; this repairs rows left behind by
// crashes between the two writes.
func (r *repository) ReleaseOrphanHolds(ctx context.Context) ([]ReleasedHold, error) {
	released := []ReleasedHold{}
	err := r.db.SelectContext(ctx, &released, `
		UPDATE slots s
		SET status = 'available', hold_until = NULL, hold_transaction_id = NULL, updated_at = NOW()
		FROM transactions t
		WHERE s.hold_transaction_id = t.id AND s.status = 'hold' AND t.status <> 'pending'
		RETURNING s.id, t.id AS hold_transaction_id
	`)
	return released, err
}

func (r *repository) ListActiveBlocks(ctx context.Context, q db.DBTX) ([]Block, error) {
	blocks := []Block{}
	err := q.SelectContext(ctx, &blocks, `
		SELECT `+blockColumns+`
		FROM schedule_blocks
		WHERE is_active
		ORDER BY id
	`)
	return blocks, err
}

func (r *repository) InsertBlock(ctx context.Context, q db.DBTX, b Block) (*Block, error) {
	var out Block
	err := q.GetContext(ctx, &out, `
		INSERT INTO schedule_blocks (resource_id, weekday, block_date, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+blockColumns,
		b.ResourceID, b.Weekday, b.BlockDate, b.StartTime, b.EndTime, b.Reason,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyBlock marks the available slots covered by b as blocked. Slots that
// would collide with an occupied neighbour are left alone, and of two covered
// slots that overlap each other only the earlier one is blocked. EXTRACT(DOW)
// numbers weekdays like time.Weekday.
func (r *repository) ApplyBlock(ctx context.Context, q db.DBTX, b Block) (int64, error) {
	candidates := []slotSpan{}
	err := q.SelectContext(ctx, &candidates, `
		SELECT s.id, s.resource_id, s.slot_date, s.start_time, s.end_time
		FROM slots s
		WHERE s.status = 'available'
		  AND ($1::bigint IS NULL OR s.resource_id = $1)
		  AND (($2::int IS NOT NULL AND EXTRACT(DOW FROM s.slot_date)::int = $2)
		    OR ($3::date IS NOT NULL AND s.slot_date = $3::date))
		  AND `+overlapCond("s", "$4", "$5")+`
		  AND NOT EXISTS (
			SELECT 1 FROM slots o
			WHERE o.resource_id = s.resource_id AND o.slot_date = s.slot_date
			  AND o.status <> 'available'
			  AND o.start_time < s.end_time AND o.end_time > s.start_time
		  )
		ORDER BY s.resource_id, s.slot_date, s.start_time, s.id
		FOR UPDATE OF s
	`, b.ResourceID, b.Weekday, b.BlockDate, b.StartTime, b.EndTime)
	if err != nil {
		return 0, fmt.Errorf("select slots for block %d: %w", b.ID, err)
	}

	ids := disjointSpans(candidates)
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE slots
		SET status = 'blocked', block_id = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status = 'available'
	`, b.ID, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) DeactivateBlock(ctx context.Context, q db.DBTX, id int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE schedule_blocks SET is_active = FALSE WHERE id = $1 AND is_active
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBlockNotFound
	}
	return nil
}

// FreeBlockedSlots returns blocked slots to available: those of one block, or
// every blocked slot when blockID is nil.
func (r *repository) FreeBlockedSlots(ctx context.Context, q db.DBTX, blockID *int64) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE slots
		SET status = 'available', block_id = NULL, updated_at = NOW()
		WHERE status = 'blocked' AND ($1::bigint IS NULL OR block_id = $1)
	`, blockID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountOrphanBlockedSlots counts blocked slots that no active block explains.
func (r *repository) CountOrphanBlockedSlots(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM slots s
		LEFT JOIN schedule_blocks b ON b.id = s.block_id AND b.is_active
		WHERE s.status = 'blocked' AND b.id IS NULL
	`)
	return n, err
}

func (r *repository) CreateGroupTraining(ctx context.Context, q db.DBTX, slotID int64, title string, maxParticipants int, priceCents int64) (*GroupTraining, error) {
	var g GroupTraining
	err := q.GetContext(ctx, &g, `
		INSERT INTO group_trainings (slot_id, title, max_participants, price_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING `+groupColumns,
		slotID, title, maxParticipants, priceCents,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repository) LockGroupTraining(ctx context.Context, q db.DBTX, id int64) (*GroupTraining, error) {
	var g GroupTraining
	err := q.GetContext(ctx, &g, `SELECT `+groupColumns+` FROM group_trainings WHERE id = $1 FOR UPDATE`, id)
	if db.IsNoRows(err) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repository) AdjustGroupParticipants(ctx context.Context, q db.DBTX, id int64, delta int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE group_trainings
		SET current_participants = current_participants + $2
		WHERE id = $1 AND current_participants + $2 BETWEEN 0 AND max_participants
	`, id, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrGroupFull
	}
	return nil
}

func (r *repository) ListGroupTrainings(ctx context.Context, from, to time.Time) ([]GroupTrainingWithSlot, error) {
	groups := []GroupTrainingWithSlot{}
	err := r.db.SelectContext(ctx, &groups, `
		SELECT g.id, g.slot_id, g.title, g.max_participants, g.current_participants,
		       g.price_cents, g.status, g.created_at,
		       s.resource_id, s.slot_date, s.start_time, s.end_time
		FROM group_trainings g
		JOIN slots s ON s.id = g.slot_id
		WHERE g.status = 'open' AND s.slot_date BETWEEN $1 AND $2
		ORDER BY s.slot_date, s.start_time
	`, from, to)
	return groups, err
}

func affected(res interface{ RowsAffected() (int64, error) }, err error) (bool, error) {
	if err != nil {
		if db.IsExclusionViolation(err) {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func affectedOne(res interface{ RowsAffected() (int64, error) }, err error) error {
	if err != nil && db.IsExclusionViolation(err) {
		return ErrSlotUnavailable
	}
	ok, err := affected(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlotUnavailable
	}
	return nil
}
