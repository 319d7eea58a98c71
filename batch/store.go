// Package batch implements the Batch Executor (§4.8): bulk jobs whose
// records are persisted through a Store, a bounded pool of workers that
// drain a queue of batch IDs, a bounded per-email fan-out inside each job,
// progress tracking, enqueue retries, and best-effort completion
// notification. There is no separate single-email stream. The queue of
// pending batch IDs and the submitted email lists are held in process
// memory, so jobs still queued when the process stops are not resumed. The
// gorm-backed job persistence and batched log inserts are grounded on the
// teacher's controllers/verification_controller.go
// enhancedProcessBulkVerification (worker-pool fan-out over a channel,
// gorm.Transaction wrapping the job-row update + CreateInBatches); the
// dequeue loop's ticker/select shape is grounded on worker/warmup_worker.go
// Start.
package batch

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"verifyengine/models"
)

// ErrNotFound is returned by Store.GetJob when no job matches.
var ErrNotFound = errors.New("batch: job not found")

// Store is the durable Job Store collaborator named in §6.
type Store interface {
	CreateJob(ctx context.Context, job *models.BatchJob) error
	UpdateJob(ctx context.Context, batchID string, updates map[string]interface{}) error
	GetJob(ctx context.Context, batchID string, owner uint) (*models.BatchJob, error)
	// GetJobByBatchID looks a job up without an owner filter, for internal
	// executor use (the worker loop processes jobs by batch ID alone).
	GetJobByBatchID(ctx context.Context, batchID string) (*models.BatchJob, error)
	AppendLogs(ctx context.Context, logs []models.VerificationLog) error
	ListLogs(ctx context.Context, batchID string) ([]models.VerificationLog, error)
}

// GormStore implements Store over gorm+Postgres, matching the teacher's
// persistence layer (config.ConnectDB / gorm.Model-based records).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateJob(ctx context.Context, job *models.BatchJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormStore) UpdateJob(ctx context.Context, batchID string, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.BatchJob{}).
		Where("batch_id = ?", batchID).
		Updates(updates).Error
}

func (s *GormStore) GetJob(ctx context.Context, batchID string, owner uint) (*models.BatchJob, error) {
	var job models.BatchJob
	err := s.db.WithContext(ctx).Where("batch_id = ? AND owner = ?", batchID, owner).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) GetJobByBatchID(ctx context.Context, batchID string) (*models.BatchJob, error) {
	var job models.BatchJob
	err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// AppendLogs mirrors the teacher's tx.CreateInBatches(results, 100) call.
func (s *GormStore) AppendLogs(ctx context.Context, logs []models.VerificationLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

func (s *GormStore) ListLogs(ctx context.Context, batchID string) ([]models.VerificationLog, error) {
	var logs []models.VerificationLog
	err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id asc").Find(&logs).Error
	return logs, err
}

// PurgeOld deletes completed/failed jobs that finished more than olderThan
// ago, per §4.8's retention policy; worker.RetentionWorker calls it with 7
// days. A job without completed_at, such as a failed or cancelled one, is
// aged by its updated_at.
func (s *GormStore) PurgeOld(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return s.db.WithContext(ctx).
		Where("status IN ? AND COALESCE(completed_at, updated_at) < ?", []string{"completed", "failed"}, cutoff).
		Delete(&models.BatchJob{}).Error
}
