// Package worker runs periodic background loops alongside the HTTP server.
package worker

import (
	"context"
	"log"
	"time"

	"verifyengine/batch"
)

// RetentionWorker periodically purges completed/failed batch jobs past the
// §4.8 retention window; their VerificationLog rows are left in place.
// Adapted from the teacher's
// WarmupWorker ticker/select shape (warmup_worker.go Start) — same
// initial-delay-then-ticker loop, driving GormStore.PurgeOld instead of
// per-sender warmup email sends.
type RetentionWorker struct {
	Store     *batch.GormStore
	Retention time.Duration
	Logger    *log.Logger
}

func NewRetentionWorker(store *batch.GormStore, retention time.Duration, logger *log.Logger) *RetentionWorker {
	return &RetentionWorker{Store: store, Retention: retention, Logger: logger}
}

func (rw *RetentionWorker) Start(ctx context.Context) {
	time.Sleep(10 * time.Second)

	rw.Logger.Println("retention worker started")

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("retention worker shutting down")
			return
		case <-ticker.C:
			if err := rw.Store.PurgeOld(ctx, rw.Retention); err != nil {
				rw.Logger.Printf("retention purge failed: %v", err)
			}
		}
	}
}
