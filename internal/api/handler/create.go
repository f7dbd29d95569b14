package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/internal/api/response"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/coverprompt"
	"github.com/kiranshivaraju/covergen/pkg/models"
)

const (
	minDescriptionLen = 10
	maxDescriptionLen = 2000
	maxLabelLen       = 80

	// MessageDispatchFailed is written to a job that could not be queued.
	MessageDispatchFailed = "Cover generation could not be queued."
)

// JobCreator persists new cover jobs.
type JobCreator interface {
	HasActiveJob(ctx context.Context, userID, manuscriptID uuid.UUID) (bool, error)
	CreateJob(ctx context.Context, job *models.CoverJob) error
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...store.JobUpdateOption) error
}

// JobPublisher hands a created job to the worker pool.
type JobPublisher interface {
	PublishJob(ctx context.Context, payload models.GenerateCoverPayload) error
}

type createJobRequest struct {
	AccountID   string `json:"account_id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	AuthorName  string `json:"author_name"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	Mood        string `json:"mood"`
	Style       string `json:"style"`
}

// CreateJobResult is the body returned when a job is accepted.
type CreateJobResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// NewCreateJobHandler returns an http.HandlerFunc for
// POST /api/v1/manuscripts/{manuscriptID}/cover-jobs. pub may be nil when no
// queue is configured; the endpoint then answers 503 without creating a job.
func NewCreateJobHandler(jobs JobCreator, pub JobPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pub == nil {
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Cover generation queue is not configured", nil)
			return
		}

		manuscriptID, err := uuid.Parse(chi.URLParam(r, "manuscriptID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "manuscriptID must be a valid UUID", nil)
			return
		}

		var req createJobRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		req.normalize()

		accountID, userID, details := req.validate()
		if len(details) > 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid cover job request", details)
			return
		}

		active, err := jobs.HasActiveJob(r.Context(), userID, manuscriptID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to verify active jobs", nil)
			return
		}
		if active {
			response.Error(w, http.StatusConflict, "JOB_ACTIVE", "A cover generation job is already active for this manuscript.", nil)
			return
		}

		params := coverprompt.Params{
			Description: req.Description,
			Genre:       req.Genre,
			Mood:        req.Mood,
			Style:       req.Style,
			Title:       req.Title,
			AuthorName:  req.AuthorName,
		}
		jobID := uuid.New()
		base := coverprompt.DeterministicSeed(fmt.Sprintf("%s:%s:%s:%s", jobID, manuscriptID, req.Style, req.Description))
		job := &models.CoverJob{
			ID:             jobID,
			ManuscriptID:   manuscriptID,
			AccountID:      accountID,
			UserID:         userID,
			Description:    req.Description,
			Genre:          req.Genre,
			Mood:           req.Mood,
			Style:          req.Style,
			WrappedPrompt:  coverprompt.Wrap(params),
			NegativePrompt: coverprompt.NegativePrompt,
			AspectRatio:    coverprompt.AspectRatio,
			Seeds:          coverprompt.VariationSeeds(base, models.VariationCount),
			Status:         models.JobStatusPending,
		}
		if err := jobs.CreateJob(r.Context(), job); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create cover job", nil)
			return
		}

		payload := models.GenerateCoverPayload{
			JobID:          job.ID.String(),
			ManuscriptID:   manuscriptID.String(),
			AccountID:      accountID.String(),
			UserID:         userID.String(),
			Title:          req.Title,
			AuthorName:     req.AuthorName,
			Description:    req.Description,
			Genre:          req.Genre,
			Mood:           req.Mood,
			Style:          req.Style,
			WrappedPrompt:  job.WrappedPrompt,
			NegativePrompt: job.NegativePrompt,
			AspectRatio:    job.AspectRatio,
			VariationSeeds: job.Seeds,
		}
		if err := pub.PublishJob(r.Context(), payload); err != nil {
			_ = jobs.UpdateJob(context.WithoutCancel(r.Context()), job.ID,
				store.WithStatus(models.JobStatusFailed),
				store.WithErrorMessage(MessageDispatchFailed),
				store.WithCompletedAt(time.Now().UTC()),
			)
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Cover generation could not be queued", nil)
			return
		}

		response.Accepted(w, CreateJobResult{JobID: job.ID.String(), Status: job.Status})
	}
}

func (req *createJobRequest) normalize() {
	req.Title = strings.TrimSpace(req.Title)
	req.AuthorName = strings.TrimSpace(req.AuthorName)
	req.Description = strings.TrimSpace(req.Description)
	req.Genre = strings.TrimSpace(req.Genre)
	req.Mood = strings.TrimSpace(req.Mood)
	req.Style = strings.TrimSpace(req.Style)
}

func (req *createJobRequest) validate() (accountID, userID uuid.UUID, details map[string]string) {
	details = map[string]string{}

	var err error
	if accountID, err = uuid.Parse(req.AccountID); err != nil {
		details["account_id"] = "account_id must be a valid UUID"
	}
	if userID, err = uuid.Parse(req.UserID); err != nil {
		details["user_id"] = "user_id must be a valid UUID"
	}

	if n := utf8.RuneCountInString(req.Description); n < minDescriptionLen || n > maxDescriptionLen {
		details["description"] = fmt.Sprintf("description must be between %d and %d characters", minDescriptionLen, maxDescriptionLen)
	}
	if n := utf8.RuneCountInString(req.Genre); n == 0 || n > maxLabelLen {
		details["genre"] = fmt.Sprintf("genre is required and at most %d characters", maxLabelLen)
	}
	if n := utf8.RuneCountInString(req.Mood); n == 0 || n > maxLabelLen {
		details["mood"] = fmt.Sprintf("mood is required and at most %d characters", maxLabelLen)
	}
	if !coverprompt.ValidStyle(req.Style) {
		details["style"] = "style must be Cinematic, Illustrated, or Minimalist"
	}
	return accountID, userID, details
}
