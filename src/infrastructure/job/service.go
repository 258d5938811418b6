package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// GenerationTopic is the queue all generation jobs flow through.
const GenerationTopic = "ai-generation-jobs"

// StagedImage is a durable copy of one submitted upload, decoupled from
// the inbound request's I/O lifetime. Data rides the queue as base64.
type StagedImage struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// GenerationMessage is the queue payload for one job.
type GenerationMessage struct {
	JobID  uuid.UUID     `json:"job_id"`
	UserID int64         `json:"user_id"`
	City   string        `json:"city"`
	Images []StagedImage `json:"images"`
}

// PipelineRunner executes the generation pipeline for one claimed job.
type PipelineRunner interface {
	Run(ctx context.Context, jobID uuid.UUID, userID int64, city string, images []StagedImage) error
}

type JobService struct {
	publisher message.Publisher
	repo      JobRepository
	logger    watermill.LoggerAdapter
	pipeline  PipelineRunner
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
	pipeline PipelineRunner,
) *JobService {
	return &JobService{
		publisher: publisher,
		repo:      repo,
		logger:    logger,
		pipeline:  pipeline,
	}
}

// Enqueue creates the job record and schedules the pipeline. The
// message is published only after Create has returned, i.e. after the
// insert is committed, so a worker can never pick up a job whose row is
// not yet visible.
func (s *JobService) Enqueue(ctx context.Context, userID int64, city string, images []StagedImage) (*Job, error) {
	job, err := s.repo.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobMsg := GenerationMessage{
		JobID:  job.ID,
		UserID: userID,
		City:   city,
		Images: images,
	}

	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(GenerationTopic, msg); err != nil {
		// The pending row stays behind; the state machine has no
		// pending -> failed edge, so it is only logged here.
		s.logger.Error("Failed to publish job message", err, watermill.LogFields{
			"job_id": job.ID.String(),
		})
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	return job, nil
}

// GetStatus returns the job record for the client-facing status query.
func (s *JobService) GetStatus(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ProcessMessage handles one queue delivery. Pipeline outcomes (success
// or failure) are recorded in the ledger by the pipeline itself and the
// message is acked either way; only infrastructure problems propagate
// to the router for retry.
func (s *JobService) ProcessMessage(msg *message.Message) error {
	var jobMsg GenerationMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	err := s.pipeline.Run(msg.Context(), jobMsg.JobID, jobMsg.UserID, jobMsg.City, jobMsg.Images)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Duplicate delivery of an already claimed job.
			s.logger.Info("Job already claimed, skipping", watermill.LogFields{
				"job_id": jobMsg.JobID.String(),
			})
			return nil
		}
		return fmt.Errorf("failed to run pipeline for job %s: %w", jobMsg.JobID, err)
	}

	return nil
}
