package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"verifyengine/models"
	"verifyengine/notify"
	"verifyengine/telemetry"
	"verifyengine/verifier"
)

// Verifier is the subset of verifier.Verifier the executor depends on,
// narrowed to an interface so tests can substitute a fake.
type Verifier interface {
	Verify(ctx context.Context, email string, opts verifier.Options) verifier.Result
}

// perEmailDelay respects downstream rate governance per §4.8 step 4.
const perEmailDelay = 50 * time.Millisecond

// flushEvery mirrors §4.8 step 3's "flush counters ... every 50 emails".
const flushEvery = 50

// Config sets worker concurrency, defaulting per §4.8: BulkConcurrency is
// the number of workers draining the bulk queue, and SingleConcurrency
// bounds how many emails of one bulk job are verified at once.
type Config struct {
	SingleConcurrency int
	BulkConcurrency   int
}

func (c Config) withDefaults() Config {
	if c.SingleConcurrency <= 0 {
		c.SingleConcurrency = 20
	}
	if c.BulkConcurrency <= 0 {
		c.BulkConcurrency = 5
	}
	return c
}

// Executor is the engine's Batch Executor.
type Executor struct {
	cfg      Config
	store    Store
	verifier Verifier
	notifier notify.Notifier
	log      *telemetry.Logger

	bulkQueue chan string // batch IDs awaiting a worker
	emails    sync.Map    // batchID -> []string, submitted email payload

	mu        sync.Mutex
	cancelled map[string]struct{}

	wg sync.WaitGroup
}

func New(cfg Config, store Store, v Verifier, notifier notify.Notifier, log *telemetry.Logger) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		cfg:       cfg,
		store:     store,
		verifier:  v,
		notifier:  notifier,
		log:       log,
		bulkQueue: make(chan string, 1024),
		cancelled: make(map[string]struct{}),
	}
	return e
}

// Run starts cfg.BulkConcurrency worker goroutines draining the bulk
// queue, stopping when ctx is cancelled. Matches the teacher's
// worker.NewWarmupWorker/NewUniboxWorker lifecycle: long-running
// goroutines owned by main, cancelled via context.
func (e *Executor) Run(ctx context.Context) {
	for i := 0; i < e.cfg.BulkConcurrency; i++ {
		e.wg.Add(1)
		go e.bulkWorkerLoop(ctx)
	}
}

// Wait blocks until all worker goroutines have exited (post-cancellation).
func (e *Executor) Wait() { e.wg.Wait() }

func (e *Executor) bulkWorkerLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case batchID, ok := <-e.bulkQueue:
			if !ok {
				return
			}
			e.processBulkJob(ctx, batchID)
		}
	}
}

// SubmitBulk creates a BatchJob and enqueues it, per §4.8's submit_bulk.
// The enqueue itself retries per the §4.8 retry policy (3 attempts,
// exponential backoff starting at 5s) while the queue is full, so a full
// queue does not silently drop a submission; a CreateJob failure is
// returned without retry.
func (e *Executor) SubmitBulk(ctx context.Context, owner uint, emails []string, callbackURL, notifyEmail string) (string, uint, error) {
	batchID := uuid.NewString()
	job := &models.BatchJob{
		BatchID:     batchID,
		Owner:       owner,
		Total:       len(emails),
		Status:      "queued",
		CallbackURL: callbackURL,
		NotifyEmail: notifyEmail,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return "", 0, fmt.Errorf("batch: create job: %w", err)
	}

	e.emails.Store(batchID, emails)

	if err := retryEnqueue(func() error {
		select {
		case e.bulkQueue <- batchID:
			return nil
		default:
			return fmt.Errorf("batch: queue full")
		}
	}); err != nil {
		_ = e.store.UpdateJob(ctx, batchID, map[string]interface{}{"status": "failed", "error": err.Error()})
		return "", 0, err
	}

	return batchID, job.ID, nil
}

// GetBatch reads the current BatchJob, per §6's get_batch.
func (e *Executor) GetBatch(ctx context.Context, batchID string, owner uint) (*models.BatchJob, error) {
	return e.store.GetJob(ctx, batchID, owner)
}

// Cancel marks batchID for cancellation; workers observe it at the next
// email boundary per §4.8's cancellation invariant.
func (e *Executor) Cancel(batchID string) {
	e.mu.Lock()
	e.cancelled[batchID] = struct{}{}
	e.mu.Unlock()
}

func (e *Executor) isCancelled(batchID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancelled[batchID]
	return ok
}

func (e *Executor) clearCancelled(batchID string) {
	e.mu.Lock()
	delete(e.cancelled, batchID)
	e.mu.Unlock()
}

func (e *Executor) processBulkJob(ctx context.Context, batchID string) {
	rawEmails, ok := e.emails.Load(batchID)
	if !ok {
		e.failJob(ctx, batchID, "missing submitted email list")
		return
	}
	emails := rawEmails.([]string)
	defer e.emails.Delete(batchID)
	defer e.clearCancelled(batchID)

	now := time.Now()
	if err := e.store.UpdateJob(ctx, batchID, map[string]interface{}{"status": "processing", "started_at": now}); err != nil {
		e.log.Error("batch_update_failed", err, map[string]interface{}{"batch_id": batchID})
	}

	var valid, invalid, processed int64
	var logs []models.VerificationLog
	var logsMu sync.Mutex

	sem := make(chan struct{}, e.cfg.SingleConcurrency)
	var wg sync.WaitGroup

	for _, email := range emails {
		if e.isCancelled(batchID) {
			e.finalizeCancelled(ctx, batchID)
			wg.Wait()
			return
		}

		sem <- struct{}{}
		wg.Add(1)
		email := email
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result := e.verifyOne(ctx, email)
			isValid := result.IsValid
			if isValid {
				atomic.AddInt64(&valid, 1)
			} else {
				atomic.AddInt64(&invalid, 1)
			}
			n := atomic.AddInt64(&processed, 1)

			data, _ := json.Marshal(result)
			logsMu.Lock()
			logs = append(logs, models.VerificationLog{BatchID: batchID, Email: email, IsValid: isValid, ResultJSON: string(data)})
			flush := len(logs) >= flushEvery
			var flushBatch []models.VerificationLog
			if flush {
				flushBatch = logs
				logs = nil
			}
			logsMu.Unlock()

			if flush {
				e.flush(ctx, batchID, flushBatch, int(n), int(atomic.LoadInt64(&valid)), int(atomic.LoadInt64(&invalid)))
			}

			time.Sleep(perEmailDelay)
		}()
	}
	wg.Wait()

	logsMu.Lock()
	remaining := logs
	logsMu.Unlock()
	if len(remaining) > 0 {
		e.flush(ctx, batchID, remaining, int(processed), int(valid), int(invalid))
	}

	completedAt := time.Now()
	if err := e.store.UpdateJob(ctx, batchID, map[string]interface{}{
		"status":       "completed",
		"processed":    int(processed),
		"valid":        int(valid),
		"invalid":      int(invalid),
		"completed_at": completedAt,
	}); err != nil {
		e.log.Error("batch_complete_failed", err, map[string]interface{}{"batch_id": batchID})
		return
	}

	e.notifyCompletion(ctx, batchID, int(processed))
}

// verifyOne runs Verify, recovering per-email panics into an invalid
// result so one bad email never aborts the batch (§4.8 step 5).
func (e *Executor) verifyOne(ctx context.Context, email string) (result verifier.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("batch_email_panic", fmt.Errorf("%v", r), map[string]interface{}{"email": email})
			result = verifier.Result{Email: email, Errors: []string{"internal error"}}
		}
	}()
	return e.verifier.Verify(ctx, email, verifier.DefaultOptions())
}

func (e *Executor) flush(ctx context.Context, batchID string, logs []models.VerificationLog, processed, valid, invalid int) {
	if err := e.store.AppendLogs(ctx, logs); err != nil {
		e.log.Error("batch_flush_logs_failed", err, map[string]interface{}{"batch_id": batchID})
	}
	if err := e.store.UpdateJob(ctx, batchID, map[string]interface{}{"processed": processed, "valid": valid, "invalid": invalid}); err != nil {
		e.log.Error("batch_flush_progress_failed", err, map[string]interface{}{"batch_id": batchID})
	}
	e.log.Event("batch_progress", map[string]interface{}{"batch_id": batchID, "tick": progressTick(processed, e.totalFor(batchID))})
}

func (e *Executor) totalFor(batchID string) int {
	if raw, ok := e.emails.Load(batchID); ok {
		return len(raw.([]string))
	}
	return 0
}

func (e *Executor) finalizeCancelled(ctx context.Context, batchID string) {
	_ = e.store.UpdateJob(ctx, batchID, map[string]interface{}{"status": "failed", "error": "cancelled"})
}

func (e *Executor) failJob(ctx context.Context, batchID, reason string) {
	_ = e.store.UpdateJob(ctx, batchID, map[string]interface{}{"status": "failed", "error": reason})
}

func (e *Executor) notifyCompletion(ctx context.Context, batchID string, processed int) {
	job, err := e.store.GetJobByBatchID(ctx, batchID)
	if err != nil || job.NotifyEmail == "" {
		return
	}
	if err := e.notifier.SendBatchComplete(job.NotifyEmail, batchID, processed); err != nil {
		e.log.Error("batch_notify_failed", err, map[string]interface{}{"batch_id": batchID})
	}
}

// retryEnqueue applies §4.8's "3 attempts, exponential backoff starting at
// 5s" retry policy to the enqueue transport.
func retryEnqueue(op func() error) error {
	var err error
	backoff := 5 * time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt < 3 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("batch: enqueue failed after 3 attempts: %w", err)
}

// progressTick computes the 1-100 progress value named in §4.8 step 2.
func progressTick(processed, total int) int {
	if total <= 0 {
		return 100
	}
	tick := processed * 100 / total
	if tick < 1 {
		tick = 1
	}
	if tick > 100 {
		tick = 100
	}
	return tick
}
