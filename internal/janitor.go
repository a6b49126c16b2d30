package internal

import (
	"context"
	"time"

	"github.com/DINO060/mediasink/pkg/logger"
)

type (
	expiredObjectRemover interface {
		CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error)
	}

	// storageJanitor periodically sweeps the object store for
	// artifacts older than the configured retention period. Removal is
	// best-effort; a failed sweep is logged and retried on the next
	// tick.
	storageJanitor struct {
		store     expiredObjectRemover
		interval  time.Duration
		retention time.Duration
	}
)

func newStorageJanitor(store expiredObjectRemover, interval time.Duration, retention time.Duration) *storageJanitor {
	return &storageJanitor{store: store, interval: interval, retention: retention}
}

func (janitor *storageJanitor) Run(ctx context.Context) error {
	if janitor.retention <= 0 {
		log.Emit(logger.WARNING, "Object retention disabled, storage janitor idle\n")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(janitor.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := janitor.store.CleanupExpired(ctx, janitor.retention); err != nil {
				log.Emit(logger.WARNING, "Storage cleanup sweep failed: %v\n", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
