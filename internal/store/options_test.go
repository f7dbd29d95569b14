package store_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyJobUpdates_Empty(t *testing.T) {
	u := store.ApplyJobUpdates()
	assert.True(t, u.Empty())
}

func TestApplyJobUpdates_AllFields(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	images := []models.ImageResult{models.SucceededImage("a.webp", 1)}

	u := store.ApplyJobUpdates(
		store.WithStatus(models.JobStatusQueued),
		store.WithRetry(2, now),
		store.WithErrorMessage("Generation queued due to high demand."),
		store.WithStartedAt(now),
		store.WithCompletedAt(now),
		store.WithWrappedPrompt("prompt"),
		store.WithImages(images),
	)

	require.NotNil(t, u.Status)
	assert.Equal(t, models.JobStatusQueued, *u.Status)
	require.NotNil(t, u.RetryCount)
	assert.Equal(t, 2, *u.RetryCount)
	require.NotNil(t, u.RetryAfter)
	assert.Equal(t, now, *u.RetryAfter)
	require.NotNil(t, u.ErrorMessage)
	assert.Equal(t, "Generation queued due to high demand.", *u.ErrorMessage)
	assert.Equal(t, now, *u.StartedAt)
	assert.Equal(t, now, *u.CompletedAt)
	assert.Equal(t, "prompt", *u.WrappedPrompt)
	assert.True(t, u.SetImages)
	assert.Equal(t, images, u.Images)
	assert.False(t, u.Empty())
}

func TestApplyJobUpdates_ClearWinsWhenLast(t *testing.T) {
	now := time.Now()
	u := store.ApplyJobUpdates(
		store.WithRetry(1, now),
		store.ClearRetryAfter(),
		store.WithErrorMessage("x"),
		store.ClearErrorMessage(),
	)
	assert.Nil(t, u.RetryAfter)
	assert.True(t, u.ClearRetryAfter)
	assert.Nil(t, u.ErrorMessage)
	assert.True(t, u.ClearErrorMessage)
	require.NotNil(t, u.RetryCount)
	assert.Equal(t, 1, *u.RetryCount)
}

func TestApplyJobUpdates_SetWinsWhenLast(t *testing.T) {
	u := store.ApplyJobUpdates(store.ClearErrorMessage(), store.WithErrorMessage("boom"))
	require.NotNil(t, u.ErrorMessage)
	assert.Equal(t, "boom", *u.ErrorMessage)
	assert.False(t, u.ClearErrorMessage)
}

func TestWithImages_CopiesSlice(t *testing.T) {
	images := []models.ImageResult{models.BlockedImage(7)}
	u := store.ApplyJobUpdates(store.WithImages(images))
	images[0] = models.FailedImage("changed", 8)
	assert.Equal(t, models.BlockedImage(7), u.Images[0])
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.JobStatusPending, models.JobStatusRunning, true},
		{models.JobStatusRunning, models.JobStatusQueued, true},
		{models.JobStatusQueued, models.JobStatusRunning, true},
		{models.JobStatusQueued, models.JobStatusQueued, true},
		{models.JobStatusRunning, models.JobStatusCompleted, true},
		{models.JobStatusQueued, models.JobStatusFailed, true},
		{models.JobStatusPending, models.JobStatusFailed, true},
		{models.JobStatusPending, models.JobStatusCompleted, false},
		{models.JobStatusPending, models.JobStatusQueued, false},
		{models.JobStatusCompleted, models.JobStatusRunning, false},
		{models.JobStatusFailed, models.JobStatusRunning, false},
		{models.JobStatusRunning, models.JobStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, store.CanTransition(tt.from, tt.to))
		})
	}
}
