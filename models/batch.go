package models

import (
	"time"

	"gorm.io/gorm"
)

// BatchJob is the durable job record for the Batch Executor (§3/§4.8),
// replacing the teacher's EmailVerification model with the spec's fixed
// BatchJob shape (batch_id, owner, total, processed, valid, invalid,
// status, timestamps, error, callback_url, notify_email).
type BatchJob struct {
	gorm.Model
	BatchID string `gorm:"uniqueIndex;not null" json:"batch_id"`
	Owner   uint   `gorm:"not null;index" json:"owner"`

	Total     int `gorm:"not null" json:"total"`
	Processed int `gorm:"default:0" json:"processed"`
	Valid     int `gorm:"default:0" json:"valid"`
	Invalid   int `gorm:"default:0" json:"invalid"`

	// Status transitions monotonically queued -> processing -> completed,
	// except failed which is terminal from any non-terminal state.
	Status string `gorm:"default:'queued';index" json:"status"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Error       string     `json:"error,omitempty"`

	CallbackURL string `json:"callback_url,omitempty"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

// VerificationLog is the per-email verification log row bound to a
// BatchJob, replacing the teacher's VerificationResult model. ResultJSON
// carries the full verifier.Result (or enrich.Result) serialised, so the
// schema doesn't need to track every field the pipeline can produce.
type VerificationLog struct {
	gorm.Model
	BatchID string `gorm:"not null;index" json:"batch_id"`
	Email   string `gorm:"not null" json:"email"`
	IsValid bool   `gorm:"index" json:"is_valid"`

	ResultJSON string `gorm:"type:text" json:"-"`
}
