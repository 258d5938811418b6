package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresJobRepository struct {
	db *gorm.DB
}

func NewPostgresJobRepository(db *gorm.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) Create(ctx context.Context) (*Job, error) {
	job := &Job{
		ID:     uuid.New(),
		Status: JobStatusPending,
	}

	result := r.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		return nil, result.Error
	}

	return job, nil
}

func (r *PostgresJobRepository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	result := r.db.WithContext(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return &job, nil
}

// MarkProcessing claims the job. The guarded update makes the
// pending -> processing transition the single claim point: at most one
// worker ever wins it.
func (r *PostgresJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, JobStatusPending, map[string]interface{}{
		"status": JobStatusProcessing,
	})
}

func (r *PostgresJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, blogID int64) error {
	return r.transition(ctx, id, JobStatusProcessing, map[string]interface{}{
		"status":         JobStatusCompleted,
		"result_blog_id": blogID,
	})
}

func (r *PostgresJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	truncated := TruncateErrorMessage(message)
	return r.transition(ctx, id, JobStatusProcessing, map[string]interface{}{
		"status":        JobStatusFailed,
		"error_message": truncated,
	})
}

// transition performs a status update guarded by the expected current
// status, so illegal transitions and writes to terminal jobs never hit
// the row.
func (r *PostgresJobRepository) transition(ctx context.Context, id uuid.UUID, expected JobStatus, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrJobNotFound
		}
		return fmt.Errorf("%w: job %s is %s, expected %s", ErrInvalidTransition, id, current.Status, expected)
	}

	return nil
}
