// Package worker runs background housekeeping jobs.
package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"courier/internal/redis"
	"courier/internal/repository"
)

const sweepLockName = "location-retention-sweep"

// RetentionSweeper periodically trims every driver's location history to the
// cap. Across instances only the holder of the sweep lock runs a pass.
type RetentionSweeper struct {
	locationRepo repository.LocationRepository
	lockStore    redis.LockStoreInterface
	historyCap   int
	interval     time.Duration
	logger       logrus.FieldLogger
}

// NewRetentionSweeper creates a sweeper. lockStore may be nil for a single instance.
func NewRetentionSweeper(
	locationRepo repository.LocationRepository,
	lockStore redis.LockStoreInterface,
	historyCap int,
	interval time.Duration,
) *RetentionSweeper {
	return &RetentionSweeper{
		locationRepo: locationRepo,
		lockStore:    lockStore,
		historyCap:   historyCap,
		interval:     interval,
		logger:       logrus.WithField("worker", "retention"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (w *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.WithField("interval", w.interval).Info("retention sweeper started")
	for {
		select {
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.WithError(err).Warn("retention sweep failed")
			}
		case <-ctx.Done():
			w.logger.Info("retention sweeper stopped")
			return
		}
	}
}

// Sweep runs one pass and returns the number of deleted samples. A pass is
// skipped when another instance holds the lock. Per-driver trim failures are
// logged and do not stop the pass.
func (w *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	if w.lockStore != nil {
		release, ok, err := w.lockStore.Acquire(ctx, sweepLockName, w.lockTTL())
		if err != nil {
			return 0, err
		}
		if !ok {
			w.logger.Debug("retention sweep held by another instance")
			return 0, nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				w.logger.WithError(err).Warn("release retention lock")
			}
		}()
	}

	driverIDs, err := w.locationRepo.DriversOverCap(ctx, w.historyCap)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, id := range driverIDs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		deleted, err := w.locationRepo.Trim(ctx, id, w.historyCap)
		if err != nil {
			w.logger.WithError(err).WithField("driver_id", id).Warn("trim location history")
			continue
		}
		total += deleted
	}

	if total > 0 {
		w.logger.WithFields(logrus.Fields{
			"drivers": len(driverIDs),
			"deleted": total,
		}).Info("retention sweep done")
	}
	return total, nil
}

// lockTTL keeps the lock shorter than the interval so a crashed holder
// does not block the next pass.
func (w *RetentionSweeper) lockTTL() time.Duration {
	ttl := w.interval / 2
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
