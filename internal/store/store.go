package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.CoverJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.CoverJob, error)
	GetJobImages(ctx context.Context, id uuid.UUID) ([]models.ImageResult, error)
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error
	HasActiveJob(ctx context.Context, userID, manuscriptID uuid.UUID) (bool, error)
	FailStaleJobs(ctx context.Context, cutoff time.Time, message string) ([]uuid.UUID, error)
}

// JobUpdate is the resolved set of field changes for one UpdateJob call.
// Nil pointers leave the column untouched.
type JobUpdate struct {
	Status            *string
	RetryCount        *int
	RetryAfter        *time.Time
	ClearRetryAfter   bool
	ErrorMessage      *string
	ClearErrorMessage bool
	StartedAt         *time.Time
	CompletedAt       *time.Time
	WrappedPrompt     *string
	Images            []models.ImageResult
	SetImages         bool
}

// Empty reports whether the update changes nothing.
func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.RetryCount == nil && u.RetryAfter == nil &&
		!u.ClearRetryAfter && u.ErrorMessage == nil && !u.ClearErrorMessage &&
		u.StartedAt == nil && u.CompletedAt == nil && u.WrappedPrompt == nil && !u.SetImages
}

type JobUpdateOption func(*JobUpdate)

// ApplyJobUpdates folds the options into a JobUpdate. Later options win.
func ApplyJobUpdates(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithStatus(status string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.Status = &status
	}
}

// WithRetry records a rate-limited attempt and when the next one is due.
func WithRetry(count int, after time.Time) JobUpdateOption {
	return func(u *JobUpdate) {
		u.RetryCount = &count
		u.RetryAfter = &after
		u.ClearRetryAfter = false
	}
}

func ClearRetryAfter() JobUpdateOption {
	return func(u *JobUpdate) {
		u.RetryAfter = nil
		u.ClearRetryAfter = true
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.ErrorMessage = &msg
		u.ClearErrorMessage = false
	}
}

func ClearErrorMessage() JobUpdateOption {
	return func(u *JobUpdate) {
		u.ErrorMessage = nil
		u.ClearErrorMessage = true
	}
}

func WithStartedAt(t time.Time) JobUpdateOption {
	return func(u *JobUpdate) {
		u.StartedAt = &t
	}
}

func WithCompletedAt(t time.Time) JobUpdateOption {
	return func(u *JobUpdate) {
		u.CompletedAt = &t
	}
}

func WithWrappedPrompt(prompt string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.WrappedPrompt = &prompt
	}
}

// WithImages replaces the images column with the given list.
func WithImages(images []models.ImageResult) JobUpdateOption {
	return func(u *JobUpdate) {
		u.Images = append([]models.ImageResult(nil), images...)
		u.SetImages = true
	}
}

// validTransitions maps a target status to the statuses it may be entered from.
// A re-delivered job may re-enter running, and a queued job stays queued while
// consecutive attempts are rate limited. A pending job fails directly when it
// could not be handed to a worker.
var validTransitions = map[string][]string{
	models.JobStatusRunning:   {models.JobStatusPending, models.JobStatusRunning, models.JobStatusQueued},
	models.JobStatusQueued:    {models.JobStatusRunning, models.JobStatusQueued},
	models.JobStatusCompleted: {models.JobStatusRunning, models.JobStatusQueued},
	models.JobStatusFailed:    {models.JobStatusPending, models.JobStatusRunning, models.JobStatusQueued},
}

// AllowedFrom returns the statuses a job may be in before moving to status.
// Unknown or initial statuses yield nil.
func AllowedFrom(status string) []string {
	return validTransitions[status]
}

// CanTransition reports whether from -> to is a valid status change.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}
