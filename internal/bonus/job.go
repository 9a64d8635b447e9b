package bonus

import (
	"context"
	"time"

	"skibook/internal/logger"
)

const birthdayLockKey = "skibook:lock:birthday-bonus"

// Locker grants a job to a single API instance at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// BirthdayJob periodically runs AwardBirthdays. Repeated runs within a day
// are no-ops thanks to the yearly period key.
type BirthdayJob struct {
	service  Service
	locker   Locker
	interval time.Duration
}

func NewBirthdayJob(service Service, locker Locker, interval time.Duration) *BirthdayJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &BirthdayJob{service: service, locker: locker, interval: interval}
}

func (j *BirthdayJob) Run(ctx context.Context) {
	logger.Info("birthday bonus job started", "interval", j.interval.String())
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("birthday bonus job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *BirthdayJob) runOnce(ctx context.Context) {
	if j.locker != nil {
		unlock, ok, err := j.locker.TryLock(ctx, birthdayLockKey, j.interval)
		if err != nil {
			logger.Warn("birthday job lock failed", "error", err)
			return
		}
		if !ok {
			return
		}
		defer unlock()
	}

	n, err := j.service.AwardBirthdays(ctx)
	if err != nil {
		logger.Error("birthday bonus run failed", "credited", n, "error", err)
		return
	}
	if n > 0 {
		logger.Info("birthday bonuses credited", "count", n)
	}
}
