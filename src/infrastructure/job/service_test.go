package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localpiece/src/infrastructure/job"
)

type fakePublisher struct {
	topics    []string
	messages  []*message.Message
	err       error
	onPublish func()
}

func (p *fakePublisher) Publish(topic string, messages ...*message.Message) error {
	if p.onPublish != nil {
		p.onPublish()
	}
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakePipeline struct {
	err    error
	jobID  uuid.UUID
	userID int64
	city   string
	images []job.StagedImage
	calls  int
}

func (f *fakePipeline) Run(ctx context.Context, jobID uuid.UUID, userID int64, city string, images []job.StagedImage) error {
	f.calls++
	f.jobID = jobID
	f.userID = userID
	f.city = city
	f.images = images
	return f.err
}

func TestEnqueuePublishesAfterJobIsVisible(t *testing.T) {
	db := newTestDB(t)
	repo := job.NewPostgresJobRepository(db)
	publisher := &fakePublisher{}
	svc := job.NewJobService(publisher, repo, watermill.NopLogger{}, nil)

	ctx := context.Background()
	images := []job.StagedImage{{Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte("bytes")}}

	// The job row must already be readable when the message goes out;
	// that ordering is what stops a worker from claiming a job it
	// cannot find.
	var rowsAtPublish int64
	publisher.onPublish = func() {
		require.NoError(t, db.Model(&job.Job{}).Count(&rowsAtPublish).Error)
	}

	created, err := svc.Enqueue(ctx, 7, "Busan", images)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowsAtPublish)

	require.Len(t, publisher.topics, 1)
	assert.Equal(t, job.GenerationTopic, publisher.topics[0])

	var payload job.GenerationMessage
	require.NoError(t, json.Unmarshal(publisher.messages[0].Payload, &payload))
	assert.Equal(t, created.ID, payload.JobID)
	assert.Equal(t, int64(7), payload.UserID)
	assert.Equal(t, "Busan", payload.City)
	require.Len(t, payload.Images, 1)
	assert.Equal(t, "a.jpg", payload.Images[0].Filename)
	assert.Equal(t, []byte("bytes"), payload.Images[0].Data)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobStatusPending, got.Status)
}

func TestEnqueuePublishFailure(t *testing.T) {
	repo := job.NewPostgresJobRepository(newTestDB(t))
	publisher := &fakePublisher{err: errors.New("broker down")}
	svc := job.NewJobService(publisher, repo, watermill.NopLogger{}, nil)

	_, err := svc.Enqueue(context.Background(), 1, "Busan", nil)
	assert.Error(t, err)
}

func TestProcessMessageRunsPipeline(t *testing.T) {
	repo := job.NewPostgresJobRepository(newTestDB(t))
	pipeline := &fakePipeline{}
	svc := job.NewJobService(&fakePublisher{}, repo, watermill.NopLogger{}, pipeline)

	jobID := uuid.New()
	payload, err := json.Marshal(job.GenerationMessage{
		JobID:  jobID,
		UserID: 3,
		City:   "Seoul",
		Images: []job.StagedImage{{Filename: "x.jpg", Data: []byte("d")}},
	})
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), payload)
	require.NoError(t, svc.ProcessMessage(msg))

	assert.Equal(t, 1, pipeline.calls)
	assert.Equal(t, jobID, pipeline.jobID)
	assert.Equal(t, int64(3), pipeline.userID)
	assert.Equal(t, "Seoul", pipeline.city)
	require.Len(t, pipeline.images, 1)
	assert.Equal(t, "x.jpg", pipeline.images[0].Filename)
}

func TestProcessMessageBadPayload(t *testing.T) {
	svc := job.NewJobService(&fakePublisher{}, nil, watermill.NopLogger{}, &fakePipeline{})

	msg := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	assert.Error(t, svc.ProcessMessage(msg))
}

func TestProcessMessageAlreadyClaimedIsAcked(t *testing.T) {
	pipeline := &fakePipeline{err: job.ErrInvalidTransition}
	svc := job.NewJobService(&fakePublisher{}, nil, watermill.NopLogger{}, pipeline)

	payload, err := json.Marshal(job.GenerationMessage{JobID: uuid.New()})
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), payload)
	assert.NoError(t, svc.ProcessMessage(msg))
}

func TestGetStatusUnknownJob(t *testing.T) {
	repo := job.NewPostgresJobRepository(newTestDB(t))
	svc := job.NewJobService(&fakePublisher{}, repo, watermill.NopLogger{}, nil)

	_, err := svc.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}
