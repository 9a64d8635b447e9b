package schedule

import (
	"context"
	"time"

	"skibook/internal/logger"
	"skibook/internal/metrics"
)

// Locker grants a single runner across API instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

const sweeperLockKey = "skibook:lock:hold-sweeper"

// Sweeper periodically returns expired holds to available. It does not look
// at the payment behind a hold; a late successful payment for a swept hold is
// handled by the reconciler.
type Sweeper struct {
	repo     Repository
	locker   Locker
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(repo Repository, locker Locker, interval time.Duration) *Sweeper {
	return &Sweeper{
		repo:     repo,
		locker:   locker,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("hold sweeper started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("hold sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info("hold sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce releases expired holds if this instance wins the lock. It returns
// the released holds; nil when another instance holds the lock.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]ReleasedHold, error) {
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, sweeperLockKey, s.interval)
		switch {
		case err != nil:
			// ClearExpiredHolds skips rows another sweeper has locked, so
			// holds still expire while Redis is unreachable
			logger.Warn("sweeper lock unavailable, sweeping without it", "error", err)
		case !ok:
			logger.Debug("hold sweep skipped, lock held elsewhere")
			return nil, nil
		default:
			defer unlock()
		}
	}

	released, err := s.repo.ClearExpiredHolds(ctx, s.now())
	if err != nil {
		return nil, err
	}

	metrics.RecordHoldsSwept(len(released))
	for _, h := range released {
		var txID int64
		if h.TransactionID != nil {
			txID = *h.TransactionID
		}
		logger.Info("expired hold released", "slot_id", h.SlotID, "transaction_id", txID)
	}
	return released, nil
}
