package batch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyengine/models"
	"verifyengine/telemetry"
	"verifyengine/verifier"
)

type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*models.BatchJob
	logs map[string][]models.VerificationLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*models.BatchJob), logs: make(map[string][]models.VerificationLog)}
}

func (s *fakeStore) CreateJob(ctx context.Context, job *models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.BatchID] = &cp
	return nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, batchID string, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[batchID]
	if !ok {
		return ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			job.Status = v.(string)
		case "processed":
			job.Processed = v.(int)
		case "valid":
			job.Valid = v.(int)
		case "invalid":
			job.Invalid = v.(int)
		case "error":
			job.Error = v.(string)
		case "started_at":
			t := v.(time.Time)
			job.StartedAt = &t
		case "completed_at":
			t := v.(time.Time)
			job.CompletedAt = &t
		}
	}
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, batchID string, owner uint) (*models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) GetJobByBatchID(ctx context.Context, batchID string) (*models.BatchJob, error) {
	return s.GetJob(ctx, batchID, 0)
}

func (s *fakeStore) AppendLogs(ctx context.Context, logs []models.VerificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(logs) == 0 {
		return nil
	}
	batchID := logs[0].BatchID
	s.logs[batchID] = append(s.logs[batchID], logs...)
	return nil
}

func (s *fakeStore) ListLogs(ctx context.Context, batchID string) ([]models.VerificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[batchID], nil
}

// fakeVerifier marks any address containing "@" and not containing "bad"
// as valid, modelling the "two valid, one malformed" scenario without
// depending on the real DNS/SMTP-backed Verifier.
type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, email string, opts verifier.Options) verifier.Result {
	if !strings.Contains(email, "@") || strings.Contains(email, "bad") {
		return verifier.Result{Email: email, IsValid: false, FormatValid: false}
	}
	return verifier.Result{Email: email, IsValid: true, FormatValid: true, HasMX: true}
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  int
	email string
}

func (f *fakeNotifier) SendBatchComplete(to, batchID string, processed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	f.email = to
	return nil
}

func newTestExecutor() (*Executor, *fakeStore, *fakeNotifier) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	log := telemetry.New(telemetry.Config{Level: "error"})
	exec := New(Config{SingleConcurrency: 4, BulkConcurrency: 2}, store, fakeVerifier{}, notifier, log)
	return exec, store, notifier
}

// TestExecutor_BulkSubmitMixedValidity covers §8 scenario 9: bulk submit 3
// emails, two valid and one malformed, job completes with total=3,
// processed=3, valid=2, invalid=1.
func TestExecutor_BulkSubmitMixedValidity(t *testing.T) {
	exec, store, notifier := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Run(ctx)

	batchID, _, err := exec.SubmitBulk(ctx, 1, []string{"a@example.com", "b@example.com", "not-an-email-bad"}, "", "owner@example.com")
	require.NoError(t, err)

	var job *models.BatchJob
	require.Eventually(t, func() bool {
		job, err = store.GetJob(ctx, batchID, 0)
		return err == nil && job.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 3, job.Processed)
	assert.Equal(t, 2, job.Valid)
	assert.Equal(t, 1, job.Invalid)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return notifier.sent == 1
	}, time.Second, 10*time.Millisecond)
}

func TestExecutor_ProcessedNeverExceedsTotal(t *testing.T) {
	exec, store, _ := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Run(ctx)

	emails := make([]string, 10)
	for i := range emails {
		emails[i] = "user@example.com"
	}
	batchID, _, err := exec.SubmitBulk(ctx, 1, emails, "", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := store.GetJob(ctx, batchID, 0)
		return err == nil && job.Status == "completed"
	}, 3*time.Second, 10*time.Millisecond)

	job, err := store.GetJob(ctx, batchID, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, job.Processed, job.Total)
	assert.Equal(t, job.Valid+job.Invalid, job.Processed)
}

func TestExecutor_CancelStopsBeforeCompletion(t *testing.T) {
	exec, store, _ := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Run(ctx)

	emails := make([]string, 200)
	for i := range emails {
		emails[i] = "user@example.com"
	}
	batchID, _, err := exec.SubmitBulk(ctx, 1, emails, "", "")
	require.NoError(t, err)

	exec.Cancel(batchID)

	require.Eventually(t, func() bool {
		job, err := store.GetJob(ctx, batchID, 0)
		return err == nil && job.Status == "failed"
	}, 3*time.Second, 10*time.Millisecond)

	job, err := store.GetJob(ctx, batchID, 0)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", job.Error)
}
