package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"localpiece/src/infrastructure/job"
	"localpiece/src/storage/postgres/userctrl"
)

// JobIntake accepts a submission and answers status queries.
type JobIntake interface {
	Enqueue(ctx context.Context, userID int64, city string, images []job.StagedImage) (*job.Job, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*job.Job, error)
}

// UserDirectory resolves a caller identity to an active account.
type UserDirectory interface {
	GetActiveByEmail(ctx context.Context, email string) (*userctrl.User, error)
}

type AiBlogHandler struct {
	jobs          JobIntake
	users         UserDirectory
	maxImages     int
	maxTotalBytes int64
}

func NewAiBlogHandler(jobs JobIntake, users UserDirectory, maxImages int, maxTotalBytes int64) *AiBlogHandler {
	return &AiBlogHandler{
		jobs:          jobs,
		users:         users,
		maxImages:     maxImages,
		maxTotalBytes: maxTotalBytes,
	}
}

// RegisterRoutes registers the AI blog generation routes
func (h *AiBlogHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/ai")

	api.POST("/generate-blog", h.GenerateBlog)
	api.GET("/jobs/:jobId", h.GetJobStatus)
}

type generateBlogRequest struct {
	City string `json:"city"`
}

// GenerateBlog accepts a multipart submission (a "request" JSON part
// plus one or more "images" file parts), stages the image bytes and
// returns the job id. All pipeline work happens in the background; this
// call never waits on it.
func (h *AiBlogHandler) GenerateBlog(c *gin.Context) {
	email := c.GetHeader("X-User-Email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing X-User-Email header"})
		return
	}

	user, err := h.users.GetActiveByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req generateBlogRequest
	if err := json.Unmarshal([]byte(c.PostForm("request")), &req); err != nil || req.City == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request part, city is required"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one image is required"})
		return
	}
	if len(files) > h.maxImages {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many images"})
		return
	}

	var totalBytes int64
	for _, fh := range files {
		totalBytes += fh.Size
	}
	if totalBytes > h.maxTotalBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Submission exceeds the size limit"})
		return
	}

	// The multipart file handles die with this request, so every image
	// is copied into memory before the job is accepted. A submission is
	// all-or-nothing: one unreadable file fails the whole call.
	staged := make([]job.StagedImage, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
			return
		}

		staged = append(staged, job.StagedImage{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	newJob, err := h.jobs.Enqueue(c.Request.Context(), user.ID, req.City, staged)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule generation job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": newJob.ID})
}

// GetJobStatus returns the job record for polling clients.
func (h *AiBlogHandler) GetJobStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return
	}

	foundJob, err := h.jobs.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, foundJob)
}
