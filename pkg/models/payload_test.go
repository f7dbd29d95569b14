package models_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/pkg/coverprompt"
	"github.com/kiranshivaraju/covergen/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() models.GenerateCoverPayload {
	return models.GenerateCoverPayload{
		JobID:          uuid.NewString(),
		ManuscriptID:   uuid.NewString(),
		AccountID:      uuid.NewString(),
		UserID:         uuid.NewString(),
		Description:    "a lighthouse in a storm",
		Genre:          "Thriller",
		Mood:           "Tense",
		Style:          "Cinematic",
		WrappedPrompt:  "wrapped prompt",
		NegativePrompt: "no text",
		AspectRatio:    "3:4",
		VariationSeeds: []int64{11, 22, 33, 44},
	}
}

func TestPayloadJob_Valid(t *testing.T) {
	p := validPayload()

	job, err := p.Job()
	require.NoError(t, err)
	assert.Equal(t, p.JobID, job.ID.String())
	assert.Equal(t, p.ManuscriptID, job.ManuscriptID.String())
	assert.Equal(t, "wrapped prompt", job.WrappedPrompt)
	assert.Equal(t, "no text", job.NegativePrompt)
	assert.Equal(t, "3:4", job.AspectRatio)
	assert.Equal(t, []int64{11, 22, 33, 44}, job.Seeds)
}

func TestPayloadJob_InvalidIDs(t *testing.T) {
	for _, field := range []string{"job_id", "manuscript_id", "account_id", "user_id"} {
		t.Run(field, func(t *testing.T) {
			p := validPayload()
			switch field {
			case "job_id":
				p.JobID = "not-a-uuid"
			case "manuscript_id":
				p.ManuscriptID = ""
			case "account_id":
				p.AccountID = "123"
			case "user_id":
				p.UserID = "zzz"
			}
			_, err := p.Job()
			require.ErrorIs(t, err, models.ErrInvalidPayload)
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestPayloadJob_Defaults(t *testing.T) {
	p := validPayload()
	p.WrappedPrompt = ""
	p.NegativePrompt = ""
	p.AspectRatio = ""
	p.VariationSeeds = nil

	job, err := p.Job()
	require.NoError(t, err)
	assert.Equal(t, coverprompt.Wrap(coverprompt.Params{
		Description: p.Description, Genre: p.Genre, Mood: p.Mood, Style: p.Style,
	}), job.WrappedPrompt)
	assert.Equal(t, coverprompt.NegativePrompt, job.NegativePrompt)
	assert.Equal(t, "2:3", job.AspectRatio)
	assert.Empty(t, job.Seeds)
}

func TestPayloadJob_MissingPrompt(t *testing.T) {
	p := validPayload()
	p.WrappedPrompt = "  "
	p.Description = ""

	_, err := p.Job()
	require.ErrorIs(t, err, models.ErrInvalidPayload)
}

func TestPayloadJob_ExtraSeedsIgnored(t *testing.T) {
	p := validPayload()
	p.VariationSeeds = []int64{1, 2, 3, 4, 5, 6}

	job, err := p.Job()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, job.Seeds)
}

func TestImageResult_Outcome(t *testing.T) {
	assert.Equal(t, models.OutcomeSucceeded, models.SucceededImage("tmp/covers/a/b/0.webp", 1).Outcome())
	assert.Equal(t, models.OutcomeBlocked, models.BlockedImage(2).Outcome())
	assert.Equal(t, models.OutcomeFailed, models.FailedImage("boom", 3).Outcome())
	assert.Equal(t, models.ErrorGenerationFailed, models.FailedImage("", 4).Error)
	assert.Equal(t, models.ErrorQuotaExhausted, models.FailedImage(models.ErrorQuotaExhausted, 5).Error)
}
