// Package maintenance holds the idempotent repair operations run from
// cmd/maintenance. Each one can be re-run safely after a partial failure.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"skibook/internal/db"
	"skibook/internal/logger"
	"skibook/internal/metrics"
	"skibook/internal/payment"
	"skibook/internal/schedule"

	"github.com/jmoiron/sqlx"
)

// SlotRepository is the part of the slot store the repairs touch.
type SlotRepository interface {
	CountOrphanBlockedSlots(ctx context.Context) (int, error)
	FreeBlockedSlots(ctx context.Context, q db.DBTX, blockID *int64) (int64, error)
	ListActiveBlocks(ctx context.Context, q db.DBTX) ([]schedule.Block, error)
	ApplyBlock(ctx context.Context, q db.DBTX, b schedule.Block) (int64, error)
	ClearExpiredHolds(ctx context.Context, now time.Time) ([]schedule.ReleasedHold, error)
	ReleaseOrphanHolds(ctx context.Context) ([]schedule.ReleasedHold, error)
}

type Transactions interface {
	GetByOrderID(ctx context.Context, orderID string) (*payment.Transaction, error)
}

type Refresher interface {
	Refresh(ctx context.Context, t payment.Transaction) (payment.Result, error)
}

type SlotGenerator interface {
	GenerateSlots(ctx context.Context, req schedule.GenerateSlotsRequest) (*schedule.GenerateSlotsResult, error)
}

type Service struct {
	db        *sqlx.DB
	slots     SlotRepository
	txs       Transactions
	refresher Refresher
	generator SlotGenerator
	now       func() time.Time
}

func New(db *sqlx.DB, slots SlotRepository, txs Transactions, refresher Refresher, generator SlotGenerator) *Service {
	return &Service{
		db:        db,
		slots:     slots,
		txs:       txs,
		refresher: refresher,
		generator: generator,
		now:       time.Now,
	}
}

type RepairReport struct {
	OrphanedBefore int   `json:"orphaned_before"`
	Freed          int64 `json:"freed"`
	Reblocked      int64 `json:"reblocked"`
	ActiveBlocks   int   `json:"active_blocks"`
}

// RepairBlocks rebuilds the blocked state of the schedule from the active
// blocks: every blocked slot is freed and each active block is applied again
// with the same overlap rule the booking path uses.
func (s *Service) RepairBlocks(ctx context.Context) (*RepairReport, error) {
	report := &RepairReport{}

	orphaned, err := s.slots.CountOrphanBlockedSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orphan blocked slots: %w", err)
	}
	report.OrphanedBefore = orphaned
	if orphaned > 0 {
		logger.Warn("blocked slots without an active block", "count", orphaned)
	}

	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		freed, err := s.slots.FreeBlockedSlots(ctx, tx, nil)
		if err != nil {
			return fmt.Errorf("free blocked slots: %w", err)
		}
		report.Freed = freed

		blocks, err := s.slots.ListActiveBlocks(ctx, tx)
		if err != nil {
			return fmt.Errorf("load blocks: %w", err)
		}
		report.ActiveBlocks = len(blocks)

		for _, b := range blocks {
			n, err := s.slots.ApplyBlock(ctx, tx, b)
			if err != nil {
				return fmt.Errorf("apply block %d: %w", b.ID, err)
			}
			report.Reblocked += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("blocks repaired",
		"orphaned_before", report.OrphanedBefore,
		"freed", report.Freed,
		"reblocked", report.Reblocked,
		"active_blocks", report.ActiveBlocks,
	)
	return report, nil
}

type CleanupReport struct {
	Expired  int `json:"expired"`
	Orphaned int `json:"orphaned"`
}

// CleanupHolds releases holds past their deadline and holds whose payment
// transaction is no longer pending.
func (s *Service) CleanupHolds(ctx context.Context) (*CleanupReport, error) {
	expired, err := s.slots.ClearExpiredHolds(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("clear expired holds: %w", err)
	}
	metrics.RecordHoldsSwept(len(expired))

	orphaned, err := s.slots.ReleaseOrphanHolds(ctx)
	if err != nil {
		return nil, fmt.Errorf("release orphan holds: %w", err)
	}
	for _, h := range orphaned {
		logger.Info("orphan hold released", "slot_id", h.SlotID)
	}

	report := &CleanupReport{Expired: len(expired), Orphaned: len(orphaned)}
	logger.Info("holds cleaned up", "expired", report.Expired, "orphaned", report.Orphaned)
	return report, nil
}

// RecoverTransaction re-reads a transaction's payment from the provider and
// applies it. Running it on a settled transaction changes nothing.
func (s *Service) RecoverTransaction(ctx context.Context, orderID string) (payment.Result, error) {
	t, err := s.txs.GetByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}

	result, err := s.refresher.Refresh(ctx, *t)
	if err != nil {
		return "", fmt.Errorf("recover %s: %w", orderID, err)
	}
	logger.Info("transaction recovered", "order_id", orderID, "status_before", t.Status, "result", result)
	return result, nil
}

func (s *Service) GenerateSlots(ctx context.Context, req schedule.GenerateSlotsRequest) (*schedule.GenerateSlotsResult, error) {
	return s.generator.GenerateSlots(ctx, req)
}
