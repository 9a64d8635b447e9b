package payment

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

const (
	pollerLockKey = "skibook:lock:reconcile-poller"
	pollBatch     = 100
)

// Poller reconciles transactions stuck pending longer than the timeout,
// covering webhooks that never arrived.
type Poller struct {
	repo       Repository
	reconciler *Reconciler
	locker     Locker
	interval   time.Duration
	timeout    time.Duration
	now        func() time.Time
}

func NewPoller(repo Repository, reconciler *Reconciler, locker Locker, interval, timeout time.Duration) *Poller {
	return &Poller{
		repo:       repo,
		reconciler: reconciler,
		locker:     locker,
		interval:   interval,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (p *Poller) Run(ctx context.Context) {
	logger.Info("reconcile poller started", "interval", p.interval.String(), "pending_timeout", p.timeout.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconcile poller stopped")
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("reconcile poll failed", "error", err)
			}
		}
	}
}

// PollOnce reconciles one batch of stale pending transactions and returns
// how many ended in each result.
func (p *Poller) PollOnce(ctx context.Context) (map[Result]int, error) {
	if p.locker != nil {
		unlock, ok, err := p.locker.TryLock(ctx, pollerLockKey, p.interval)
		switch {
		case err != nil:
			// each transaction is reconciled under its own row lock
			logger.Warn("poller lock unavailable, polling without it", "error", err)
		case !ok:
			logger.Debug("reconcile poll skipped, lock held elsewhere")
			return nil, nil
		default:
			defer unlock()
		}
	}

	stale, err := p.repo.ListStalePending(ctx, p.now().Add(-p.timeout), pollBatch)
	if err != nil {
		return nil, err
	}

	counts := make(map[Result]int)
	for _, t := range stale {
		res, err := p.reconciler.Refresh(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return counts, ctx.Err()
			}
			metrics.RecordReconcile("error")
			logger.Error("reconcile of pending transaction failed", "order_id", t.OrderID, "error", err)
			continue
		}
		metrics.RecordReconcile(string(res))
		counts[res]++
	}
	if len(stale) > 0 {
		logger.Info("reconcile poll finished", "checked", len(stale))
	}
	return counts, nil
}
