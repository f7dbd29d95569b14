// Package models contains shared data models used across the covergen codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusQueued    = "queued"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// VariationCount is the fixed number of image variations produced per job.
const VariationCount = 4

// CoverJob is one cover generation request and its progress. Rows are created
// by the job API in pending state; the worker moves them to running, possibly
// through queued while the generation service is rate limiting, and finally to
// completed or failed.
type CoverJob struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	ManuscriptID uuid.UUID `db:"manuscript_id" json:"manuscript_id"`
	AccountID    uuid.UUID `db:"account_id"    json:"account_id"`
	UserID       uuid.UUID `db:"user_id"       json:"user_id"`

	Description    string  `db:"description"     json:"description"`
	Genre          string  `db:"genre"           json:"genre"`
	Mood           string  `db:"mood"            json:"mood"`
	Style          string  `db:"style"           json:"style"`
	WrappedPrompt  string  `db:"wrapped_prompt"  json:"wrapped_prompt"`
	NegativePrompt string  `db:"negative_prompt" json:"negative_prompt"`
	AspectRatio    string  `db:"aspect_ratio"    json:"aspect_ratio"`
	Seeds          []int64 `db:"variation_seeds" json:"variation_seeds,omitempty"`

	Status       string        `db:"status"        json:"status"`
	RetryCount   int           `db:"retry_count"   json:"retry_count"`
	RetryAfter   *time.Time    `db:"retry_after"   json:"retry_after,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	Images       []ImageResult `db:"images"        json:"images"`
	StartedAt    *time.Time    `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time    `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"    json:"updated_at"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *CoverJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
