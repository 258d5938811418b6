package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus defines the lifecycle state of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// MaxErrorMessageLen bounds the stored failure cause. Longer messages
// are hard-cut, not summarized.
const MaxErrorMessageLen = 1000

var (
	// ErrJobNotFound is returned when no job exists for the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status update would
	// violate the pending -> processing -> completed|failed machine,
	// including any write against a terminal job.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Job is the durable record of one generation request. The worker that
// moves it to processing is its sole writer until a terminal state.
type Job struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"job_id"`
	Status       JobStatus `gorm:"not null" json:"status"`
	ResultBlogID *int64    `json:"result_blog_id,omitempty"`
	ErrorMessage *string   `gorm:"size:1000" json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Job) TableName() string {
	return "ai_jobs"
}

// JobRepository defines the interface for job persistence. The three
// mark methods are the only legal writers after creation and each is
// called at most once per job.
type JobRepository interface {
	Create(ctx context.Context) (*Job, error)
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, blogID int64) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

// TruncateErrorMessage hard-cuts a failure message to
// MaxErrorMessageLen characters.
func TruncateErrorMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorMessageLen {
		return msg
	}
	return string(runes[:MaxErrorMessageLen])
}
