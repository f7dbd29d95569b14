package covers

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
	"github.com/rs/zerolog"
)

// jobRun is the state of a single Run call.
type jobRun struct {
	o      *Orchestrator
	job    models.CoverJob
	seeds  SeedSource
	status string
	log    zerolog.Logger
}

func (r *jobRun) seedFor(index int) int64 {
	if index < len(r.job.Seeds) {
		return r.job.Seeds[index]
	}
	return r.seeds(index)
}

// setStatus records the status locally and mirrors it. Mirror failures are
// logged and otherwise ignored.
func (r *jobRun) setStatus(ctx context.Context, status string) {
	r.status = status
	if r.o.mirror == nil {
		return
	}
	if err := r.o.mirror.SetJobStatus(ctx, r.job.ID, status, r.o.mirrorTTL); err != nil {
		r.log.Warn().Err(err).Str("status", status).Msg("mirror job status")
	}
}

// appendImage is a read-modify-write of the images list.
func (r *jobRun) appendImage(ctx context.Context, img models.ImageResult) error {
	images, err := r.o.store.GetJobImages(ctx, r.job.ID)
	if err != nil {
		return fmt.Errorf("read images: %w", err)
	}
	images = append(images, img)
	if err := r.o.store.UpdateJob(ctx, r.job.ID, store.WithImages(images)); err != nil {
		return fmt.Errorf("append image: %w", err)
	}
	return nil
}

// resume moves a queued job back to running before the next attempt.
func (r *jobRun) resume(ctx context.Context) error {
	if r.status != models.JobStatusQueued {
		return nil
	}
	err := r.o.store.UpdateJob(ctx, r.job.ID,
		store.WithStatus(models.JobStatusRunning),
		store.ClearRetryAfter(),
		store.ClearErrorMessage(),
	)
	if err != nil {
		return fmt.Errorf("resume job: %w", err)
	}
	r.setStatus(ctx, models.JobStatusRunning)
	return nil
}

// finish writes the terminal status. A job with no successful variation fails.
func (r *jobRun) finish(ctx context.Context, completed int) error {
	now := r.o.now()
	opts := []store.JobUpdateOption{
		store.WithCompletedAt(now),
		store.WithWrappedPrompt(r.job.WrappedPrompt),
		store.ClearRetryAfter(),
	}
	final := models.JobStatusCompleted
	if completed == 0 {
		final = models.JobStatusFailed
		opts = append(opts, store.WithErrorMessage(MessageAllFailed))
	} else {
		opts = append(opts, store.ClearErrorMessage())
	}
	opts = append(opts, store.WithStatus(final))

	if err := r.o.store.UpdateJob(ctx, r.job.ID, opts...); err != nil {
		return fmt.Errorf("mark job %s: %w", final, err)
	}
	r.setStatus(ctx, final)
	r.log.Info().Str("status", final).Int("completed", completed).Msg("cover job finished")
	return nil
}
