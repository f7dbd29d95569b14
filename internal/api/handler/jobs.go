package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/internal/api/response"
	"github.com/kiranshivaraju/covergen/internal/cache"
	"github.com/kiranshivaraju/covergen/internal/objectstore"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
)

// detailTTL bounds how long a finished job's rendered detail stays cached.
const detailTTL = 10 * time.Minute

// JobReader loads a job by id.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.CoverJob, error)
}

// DetailCache stores rendered job details.
type DetailCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// StatusReader reads the mirrored job status.
type StatusReader interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

// ImageView is one variation as returned to clients.
type ImageView struct {
	StoragePath  string `json:"storage_path,omitempty"`
	PublicURL    string `json:"public_url,omitempty"`
	SafetyStatus string `json:"safety_status,omitempty"`
	Error        string `json:"error,omitempty"`
	Seed         int64  `json:"seed"`
}

// JobView is the body returned by GET /api/v1/covers/jobs/{jobID}.
type JobView struct {
	ID            string      `json:"id"`
	ManuscriptID  string      `json:"manuscript_id"`
	Status        string      `json:"status"`
	RetryCount    int         `json:"retry_count"`
	RetryAfter    *time.Time  `json:"retry_after,omitempty"`
	ErrorMessage  *string     `json:"error_message,omitempty"`
	WrappedPrompt string      `json:"wrapped_prompt,omitempty"`
	Images        []ImageView `json:"images"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewJobView renders job, resolving storage paths against publicBase.
func NewJobView(job *models.CoverJob, publicBase string) JobView {
	images := make([]ImageView, 0, len(job.Images))
	for _, img := range job.Images {
		images = append(images, ImageView{
			StoragePath:  img.StoragePath,
			PublicURL:    objectstore.PublicURL(publicBase, img.StoragePath),
			SafetyStatus: img.SafetyStatus,
			Error:        img.Error,
			Seed:         img.Seed,
		})
	}
	return JobView{
		ID:            job.ID.String(),
		ManuscriptID:  job.ManuscriptID.String(),
		Status:        job.Status,
		RetryCount:    job.RetryCount,
		RetryAfter:    job.RetryAfter,
		ErrorMessage:  job.ErrorMessage,
		WrappedPrompt: job.WrappedPrompt,
		Images:        images,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/covers/jobs/{jobID}.
// Terminal jobs never change again, so their rendered detail is cached. c may be nil.
func NewGetJobHandler(jobs JobReader, c DetailCache, publicBase string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseJobID(w, r)
		if !ok {
			return
		}

		key := cache.JobDetailKey(jobID)
		if c != nil {
			if cached, found, err := c.Get(r.Context(), key); err == nil && found {
				response.JSON(w, json.RawMessage(cached))
				return
			}
		}

		job, ok := loadJob(w, r, jobs, jobID)
		if !ok {
			return
		}

		view := NewJobView(job, publicBase)
		if c != nil && job.IsTerminal() {
			if b, err := json.Marshal(view); err == nil {
				_ = c.Set(r.Context(), key, b, detailTTL)
			}
		}
		response.JSON(w, view)
	}
}

// StatusView is the body returned by GET /api/v1/covers/jobs/{jobID}/status.
type StatusView struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	RetryAfter   *time.Time `json:"retry_after,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Source       string     `json:"source"`
}

// NewJobStatusHandler returns an http.HandlerFunc for
// GET /api/v1/covers/jobs/{jobID}/status. The Redis mirror is consulted first;
// a miss or cache error falls through to Postgres.
func NewJobStatusHandler(jobs JobReader, mirror StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseJobID(w, r)
		if !ok {
			return
		}

		if mirror != nil {
			if status, found, err := mirror.GetJobStatus(r.Context(), jobID); err == nil && found {
				response.JSON(w, StatusView{JobID: jobID.String(), Status: status, Source: "cache"})
				return
			}
		}

		job, ok := loadJob(w, r, jobs, jobID)
		if !ok {
			return
		}
		response.JSON(w, StatusView{
			JobID:        jobID.String(),
			Status:       job.Status,
			RetryAfter:   job.RetryAfter,
			ErrorMessage: job.ErrorMessage,
			Source:       "database",
		})
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return jobID, true
}

func loadJob(w http.ResponseWriter, r *http.Request, jobs JobReader, id uuid.UUID) (*models.CoverJob, bool) {
	job, err := jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
		return nil, false
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
		return nil, false
	}
	return job, true
}
