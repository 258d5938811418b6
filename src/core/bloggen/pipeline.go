// Package bloggen runs the background generation pipeline: it uploads
// the staged images, orders them into a storyline, calls the model
// server and persists the resulting blog, compensating already written
// objects when a later step fails.
package bloggen

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"localpiece/src/infrastructure/integrations/storyteller"
	"localpiece/src/infrastructure/job"
	"localpiece/src/log"
	"localpiece/src/storage/postgres/blogctrl"
)

const defaultUploadWorkers = 4

// ObjectStore is the subset of the image store the pipeline needs.
type ObjectStore interface {
	UploadImage(ctx context.Context, data []byte, filename, contentType string) (string, error)
	DeleteImageByURL(ctx context.Context, imageURL string) error
}

// Generator performs the single synchronous model call.
type Generator interface {
	Generate(ctx context.Context, req *storyteller.GenerateRequest) (*storyteller.GenerateResponse, error)
}

// BlogStore persists the generated result artifact.
type BlogStore interface {
	CreateWithContents(ctx context.Context, userID int64, title string, contents []blogctrl.BlogContent) (*blogctrl.Blog, error)
}

type Pipeline struct {
	jobs          job.JobRepository
	store         ObjectStore
	generator     Generator
	blogs         BlogStore
	uploadWorkers int
}

func NewPipeline(jobs job.JobRepository, store ObjectStore, generator Generator, blogs BlogStore, uploadWorkers int) *Pipeline {
	if uploadWorkers <= 0 {
		uploadWorkers = defaultUploadWorkers
	}

	return &Pipeline{
		jobs:          jobs,
		store:         store,
		generator:     generator,
		blogs:         blogs,
		uploadWorkers: uploadWorkers,
	}
}

// Run executes the pipeline for one job. Claiming the job can fail and
// is reported to the caller; every later failure is recorded in the
// ledger as the job's terminal outcome and Run returns nil.
func (p *Pipeline) Run(ctx context.Context, jobID uuid.UUID, userID int64, city string, images []job.StagedImage) error {
	if err := p.jobs.MarkProcessing(ctx, jobID); err != nil {
		return err
	}
	log.Info("generation pipeline started", "job_id", jobID.String(), "city", city, "images", len(images))

	ordered, uploaded, err := p.stageImages(ctx, images)
	if err != nil {
		p.fail(ctx, jobID, uploaded, err)
		return nil
	}

	genReq := &storyteller.GenerateRequest{
		ID:     uuid.New().String(),
		City:   city,
		Images: imageRefs(ordered),
	}

	genResp, err := p.generator.Generate(ctx, genReq)
	if err != nil {
		p.fail(ctx, jobID, uploaded, fmt.Errorf("generation call failed: %w", err))
		return nil
	}

	blog, err := p.blogs.CreateWithContents(ctx, userID, blogTitle(city), BuildContents(genResp))
	if err != nil {
		p.fail(ctx, jobID, uploaded, fmt.Errorf("failed to persist blog: %w", err))
		return nil
	}

	if err := p.jobs.MarkCompleted(ctx, jobID, blog.ID); err != nil {
		log.Error(err, "failed to mark job completed", "job_id", jobID.String(), "blog_id", blog.ID)
		return err
	}

	log.Info("generation pipeline completed", "job_id", jobID.String(), "blog_id", blog.ID)
	return nil
}

// stageImages fans the per-image work out over a bounded pool: each
// image is uploaded while its metadata is extracted, then all results
// are joined and sorted into storyline order. Any upload failure is
// fatal; uploaded always reports every object written so far so the
// failure path can compensate.
func (p *Pipeline) stageImages(ctx context.Context, images []job.StagedImage) (ordered []ImageMeta, uploaded []string, err error) {
	metas := make([]ImageMeta, len(images))
	errs := make([]error, len(images))

	sem := make(chan struct{}, p.uploadWorkers)
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img job.StagedImage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metaCh := make(chan ImageMeta, 1)
			go func() {
				metaCh <- ExtractMetadata(img.Data, img.Filename)
			}()

			url, uploadErr := p.store.UploadImage(ctx, img.Data, img.Filename, img.ContentType)
			meta := <-metaCh
			if uploadErr != nil {
				errs[i] = fmt.Errorf("upload of %s failed: %w", img.Filename, uploadErr)
				return
			}

			meta.URL = url
			metas[i] = meta
		}(i, img)
	}
	wg.Wait()

	for _, meta := range metas {
		if meta.URL != "" {
			uploaded = append(uploaded, meta.URL)
		}
	}
	for _, stageErr := range errs {
		if stageErr != nil {
			return nil, uploaded, stageErr
		}
	}

	return SortByCaptureTime(metas), uploaded, nil
}

// SortByCaptureTime orders images into the storyline: ascending by
// capture timestamp, images without a timestamp after all dated ones,
// ties keeping submission order.
func SortByCaptureTime(metas []ImageMeta) []ImageMeta {
	ordered := make([]ImageMeta, len(metas))
	copy(ordered, metas)

	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].Timestamp, ordered[j].Timestamp
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.Before(*tj)
	})

	return ordered
}

// BuildContents maps the model response onto ordered content blocks:
// each response section becomes an IMAGE block followed by a TEXT
// block, and the closing comment becomes the final TEXT block. The
// mapping is a pure function of the response.
func BuildContents(genResp *storyteller.GenerateResponse) []blogctrl.BlogContent {
	contents := make([]blogctrl.BlogContent, 0, len(genResp.Blog)*2+1)

	sequence := 1
	for _, section := range genResp.Blog {
		contents = append(contents, blogctrl.BlogContent{
			Sequence:    sequence,
			ContentType: blogctrl.ContentTypeImage,
			Content:     section.Image,
		})
		sequence++
		contents = append(contents, blogctrl.BlogContent{
			Sequence:    sequence,
			ContentType: blogctrl.ContentTypeText,
			Content:     section.Text,
		})
		sequence++
	}

	contents = append(contents, blogctrl.BlogContent{
		Sequence:    sequence,
		ContentType: blogctrl.ContentTypeText,
		Content:     genResp.Comment,
	})

	return contents
}

// fail runs the compensation path: every object uploaded for this job
// gets a best-effort delete, then the job is terminally failed with the
// triggering cause. A delete failure is logged and never blocks the
// rest of the cleanup or the ledger write.
func (p *Pipeline) fail(ctx context.Context, jobID uuid.UUID, uploaded []string, cause error) {
	log.Error(cause, "generation pipeline failed", "job_id", jobID.String())

	for _, imageURL := range uploaded {
		if err := p.store.DeleteImageByURL(ctx, imageURL); err != nil {
			log.Error(err, "compensating delete failed, object may be orphaned",
				"job_id", jobID.String(), "url", imageURL)
		}
	}

	if err := p.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		log.Error(err, "failed to mark job failed", "job_id", jobID.String())
	}
}

func imageRefs(ordered []ImageMeta) []storyteller.ImageRef {
	refs := make([]storyteller.ImageRef, 0, len(ordered))
	for _, meta := range ordered {
		ref := storyteller.ImageRef{
			URL:       meta.URL,
			Filename:  meta.Filename,
			Latitude:  meta.Latitude,
			Longitude: meta.Longitude,
		}
		if meta.Timestamp != nil {
			ts := meta.Timestamp.Format("2006-01-02T15:04:05")
			ref.Timestamp = &ts
		}
		refs = append(refs, ref)
	}
	return refs
}

func blogTitle(city string) string {
	return fmt.Sprintf("An AI travel story from %s", city)
}
