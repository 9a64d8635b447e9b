package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skibook/internal/db"
	"skibook/internal/logger"

	"github.com/jmoiron/sqlx"
)

type Service interface {
	CreateResource(ctx context.Context, req CreateResourceRequest) (*Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	GenerateSlots(ctx context.Context, req GenerateSlotsRequest) (*GenerateSlotsResult, error)
	ListSlots(ctx context.Context, resourceID int64, from, to string) ([]Slot, error)
	CreateBlock(ctx context.Context, req CreateBlockRequest) (*CreateBlockResult, error)
	DeleteBlock(ctx context.Context, id int64) (int64, error)
	CreateGroupTraining(ctx context.Context, req CreateGroupTrainingRequest) (*GroupTraining, error)
	ListGroupTrainings(ctx context.Context, from, to string) ([]GroupTrainingWithSlot, error)
}

type service struct {
	db   *sqlx.DB
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

func NewService(db *sqlx.DB, repo Repository, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		db:   db,
		repo: repo,
		loc:  loc,
		now:  time.Now,
	}
}

func (s *service) CreateResource(ctx context.Context, req CreateResourceRequest) (*Resource, error) {
	kind := ResourceKind(req.Kind)
	if kind != KindSimulator && kind != KindInstructor {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidResource, req.Kind)
	}
	return s.repo.CreateResource(ctx, kind, strings.TrimSpace(req.Name), req.PriceCents)
}

func (s *service) ListResources(ctx context.Context) ([]Resource, error) {
	return s.repo.ListResources(ctx, true)
}

// GenerateSlots creates the slot grid for a date range; from == to generates
// a single day. Existing slots are kept as they are.
func (s *service) GenerateSlots(ctx context.Context, req GenerateSlotsRequest) (*GenerateSlotsResult, error) {
	plan, err := s.parsePlan(req)
	if err != nil {
		return nil, err
	}

	result := &GenerateSlotsResult{}
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, id := range plan.ResourceIDs {
			if _, err := s.repo.GetResource(ctx, tx, id); err != nil {
				return err
			}
		}

		blocks, err := s.repo.ListActiveBlocks(ctx, tx)
		if err != nil {
			return fmt.Errorf("load blocks: %w", err)
		}

		planned := PlanSlots(plan, blocks)
		for _, ps := range planned {
			if ps.Status == StatusBlocked {
				result.Blocked++
			}
		}
		result.Planned = len(planned)

		result.Created, err = s.repo.InsertSlots(ctx, tx, planned)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("slots generated",
		"resources", len(plan.ResourceIDs),
		"from", plan.From.Format(DateLayout),
		"to", plan.To.Format(DateLayout),
		"planned", result.Planned,
		"created", result.Created,
	)
	return result, nil
}

func (s *service) parsePlan(req GenerateSlotsRequest) (SlotPlan, error) {
	from, err := ParseDate(req.From)
	if err != nil {
		return SlotPlan{}, ErrInvalidDateRange
	}
	to := from
	if req.To != "" {
		if to, err = ParseDate(req.To); err != nil {
			return SlotPlan{}, ErrInvalidDateRange
		}
	}
	dayStart, err := ParseClock(req.DayStart)
	if err != nil {
		return SlotPlan{}, ErrInvalidTimeRange
	}
	dayEnd, err := ParseClock(req.DayEnd)
	if err != nil {
		return SlotPlan{}, ErrInvalidTimeRange
	}

	plan := SlotPlan{
		ResourceIDs: req.ResourceIDs,
		From:        from,
		To:          to,
		DayStart:    dayStart,
		DayEnd:      dayEnd,
		Step:        req.StepMinutes,
	}
	if err := plan.Validate(); err != nil {
		return SlotPlan{}, err
	}
	return plan, nil
}

func (s *service) ListSlots(ctx context.Context, resourceID int64, from, to string) ([]Slot, error) {
	start, end, err := s.dateRange(from, to, 14)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetResource(ctx, s.db, resourceID); err != nil {
		return nil, err
	}
	return s.repo.ListSlots(ctx, resourceID, start, end)
}

// dateRange parses an inclusive range; an empty from means today and an
// empty to means from plus defaultDays.
func (s *service) dateRange(from, to string, defaultDays int) (time.Time, time.Time, error) {
	start := civil(s.now().In(s.loc))
	if from != "" {
		parsed, err := ParseDate(from)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDateRange
		}
		start = parsed
	}
	end := start.AddDate(0, 0, defaultDays)
	if to != "" {
		parsed, err := ParseDate(to)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDateRange
		}
		end = parsed
	}
	if end.Before(start) || end.Sub(start) > maxPlanDays*24*time.Hour {
		return time.Time{}, time.Time{}, ErrInvalidDateRange
	}
	return start, end, nil
}

// CreateBlock stores a recurring or one-off block and blocks every available
// slot it covers in the same transaction.
func (s *service) CreateBlock(ctx context.Context, req CreateBlockRequest) (*CreateBlockResult, error) {
	b := Block{
		ResourceID: req.ResourceID,
		Weekday:    req.Weekday,
		Reason:     strings.TrimSpace(req.Reason),
		IsActive:   true,
	}
	if req.Date != "" {
		d, err := ParseDate(req.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date", ErrInvalidBlock)
		}
		b.BlockDate = &d
	}
	var err error
	if b.StartTime, err = ParseClock(req.StartTime); err != nil {
		return nil, ErrInvalidTimeRange
	}
	if b.EndTime, err = ParseClock(req.EndTime); err != nil {
		return nil, ErrInvalidTimeRange
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	result := &CreateBlockResult{}
	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if b.ResourceID != nil {
			if _, err := s.repo.GetResource(ctx, tx, *b.ResourceID); err != nil {
				return err
			}
		}
		stored, err := s.repo.InsertBlock(ctx, tx, b)
		if err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
		result.Block = stored
		result.SlotsBlocked, err = s.repo.ApplyBlock(ctx, tx, *stored)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("schedule block created", "block_id", result.Block.ID, "slots_blocked", result.SlotsBlocked)
	return result, nil
}

// DeleteBlock deactivates a block and frees its slots. Other active blocks
// are re-applied so a slot covered twice stays blocked.
func (s *service) DeleteBlock(ctx context.Context, id int64) (int64, error) {
	var freed int64
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.repo.DeactivateBlock(ctx, tx, id); err != nil {
			return err
		}
		n, err := s.repo.FreeBlockedSlots(ctx, tx, &id)
		if err != nil {
			return err
		}
		freed = n

		blocks, err := s.repo.ListActiveBlocks(ctx, tx)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			reblocked, err := s.repo.ApplyBlock(ctx, tx, b)
			if err != nil {
				return fmt.Errorf("re-apply block %d: %w", b.ID, err)
			}
			freed -= reblocked
		}
		if freed < 0 {
			freed = 0
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("schedule block removed", "block_id", id, "slots_freed", freed)
	return freed, nil
}

// CreateGroupTraining turns an available slot into a group session.
func (s *service) CreateGroupTraining(ctx context.Context, req CreateGroupTrainingRequest) (*GroupTraining, error) {
	var group *GroupTraining
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		slot, err := s.repo.LockSlot(ctx, tx, req.SlotID)
		if err != nil {
			return err
		}
		if slot.StartsAt(s.loc).Before(s.now()) {
			return ErrSlotInPast
		}
		if slot.Status != StatusAvailable {
			return ErrSlotUnavailable
		}
		overlap, err := s.repo.HasOverlap(ctx, tx, slot)
		if err != nil {
			return err
		}
		if overlap {
			return ErrSlotUnavailable
		}
		if err := s.repo.TransitionSlot(ctx, tx, slot.ID, StatusAvailable, StatusGroup); err != nil {
			return err
		}

		price := req.PriceCents
		if price == 0 {
			res, err := s.repo.GetResource(ctx, tx, slot.ResourceID)
			if err != nil {
				return err
			}
			price = res.PriceCents
		}

		group, err = s.repo.CreateGroupTraining(ctx, tx, slot.ID, strings.TrimSpace(req.Title), req.MaxParticipants, price)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			logger.Warn("group training rejected, slot taken", "slot_id", req.SlotID)
		}
		return nil, err
	}
	return group, nil
}

func (s *service) ListGroupTrainings(ctx context.Context, from, to string) ([]GroupTrainingWithSlot, error) {
	start, end, err := s.dateRange(from, to, 30)
	if err != nil {
		return nil, err
	}
	return s.repo.ListGroupTrainings(ctx, start, end)
}
