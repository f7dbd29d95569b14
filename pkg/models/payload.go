package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/pkg/coverprompt"
)

// ErrInvalidPayload is returned when a generation payload cannot describe a job.
var ErrInvalidPayload = errors.New("invalid cover job payload")

// GenerateCoverPayload is the body accepted by the worker, either over HTTP
// or as a NATS message.
type GenerateCoverPayload struct {
	JobID          string  `json:"job_id"`
	ManuscriptID   string  `json:"manuscript_id"`
	AccountID      string  `json:"account_id"`
	UserID         string  `json:"user_id"`
	Title          string  `json:"title,omitempty"`
	AuthorName     string  `json:"author_name,omitempty"`
	Description    string  `json:"description"`
	Genre          string  `json:"genre"`
	Mood           string  `json:"mood"`
	Style          string  `json:"style"`
	WrappedPrompt  string  `json:"wrapped_prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	AspectRatio    string  `json:"aspect_ratio"`
	VariationSeeds []int64 `json:"variation_seeds"`
}

// Job validates the payload and converts it into a CoverJob. Missing prompt
// fields are filled from the creative brief; seeds beyond VariationCount are
// ignored.
func (p GenerateCoverPayload) Job() (CoverJob, error) {
	var job CoverJob
	ids := []struct {
		name  string
		value string
		dst   *uuid.UUID
	}{
		{"job_id", p.JobID, &job.ID},
		{"manuscript_id", p.ManuscriptID, &job.ManuscriptID},
		{"account_id", p.AccountID, &job.AccountID},
		{"user_id", p.UserID, &job.UserID},
	}
	for _, id := range ids {
		parsed, err := uuid.Parse(strings.TrimSpace(id.value))
		if err != nil {
			return CoverJob{}, fmt.Errorf("%w: %s must be a UUID", ErrInvalidPayload, id.name)
		}
		*id.dst = parsed
	}

	job.Description = p.Description
	job.Genre = p.Genre
	job.Mood = p.Mood
	job.Style = p.Style

	job.WrappedPrompt = strings.TrimSpace(p.WrappedPrompt)
	if job.WrappedPrompt == "" {
		if strings.TrimSpace(p.Description) == "" {
			return CoverJob{}, fmt.Errorf("%w: wrapped_prompt or description is required", ErrInvalidPayload)
		}
		job.WrappedPrompt = coverprompt.Wrap(coverprompt.Params{
			Description: p.Description,
			Genre:       p.Genre,
			Mood:        p.Mood,
			Style:       p.Style,
			Title:       p.Title,
			AuthorName:  p.AuthorName,
		})
	}

	job.NegativePrompt = strings.TrimSpace(p.NegativePrompt)
	if job.NegativePrompt == "" {
		job.NegativePrompt = coverprompt.NegativePrompt
	}

	job.AspectRatio = strings.TrimSpace(p.AspectRatio)
	if job.AspectRatio == "" {
		job.AspectRatio = coverprompt.AspectRatio
	}

	seeds := p.VariationSeeds
	if len(seeds) > VariationCount {
		seeds = seeds[:VariationCount]
	}
	job.Seeds = append([]int64(nil), seeds...)

	return job, nil
}
