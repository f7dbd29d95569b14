// Package dispatch sits between job sources (HTTP, NATS) and the cover
// orchestrator. It enforces per-job exclusivity and the invocation deadline.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/internal/cache"
	"github.com/kiranshivaraju/covergen/internal/config"
	"github.com/kiranshivaraju/covergen/internal/covers"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
	"github.com/rs/zerolog"
)

// ErrJobLocked is returned when another invocation holds the job.
var ErrJobLocked = errors.New("job is already being processed")

// lockGrace keeps the lock alive slightly past the invocation deadline so a
// run that is being torn down is never overlapped.
const lockGrace = config.LockGrace

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, job models.CoverJob) (covers.Summary, error)
}

// Locker provides a token-owned mutual exclusion lock.
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// JobUpdater marks a job failed after a panic.
type JobUpdater interface {
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...store.JobUpdateOption) error
}

// JobExecutor is implemented by Executor.
type JobExecutor interface {
	Execute(ctx context.Context, job models.CoverJob) (covers.Summary, error)
}

// Executor runs jobs under a Redis lock and the invocation timeout.
type Executor struct {
	runner  Runner
	locks   Locker
	jobs    JobUpdater
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecutor creates an Executor. timeout bounds every run.
func NewExecutor(runner Runner, locks Locker, jobs JobUpdater, timeout time.Duration, logger zerolog.Logger) *Executor {
	return &Executor{
		runner:  runner,
		locks:   locks,
		jobs:    jobs,
		timeout: timeout,
		logger:  logger,
	}
}

// Execute runs job to completion or until the invocation deadline. A deadline
// that fires mid-run leaves the job non-terminal for the stale job sweeper.
func (e *Executor) Execute(ctx context.Context, job models.CoverJob) (summary covers.Summary, err error) {
	log := e.logger.With().Str("job_id", job.ID.String()).Logger()
	summary = covers.Summary{JobID: job.ID}

	key := cache.JobLockKey(job.ID)
	token := uuid.NewString()
	acquired, err := e.locks.AcquireLock(ctx, key, token, e.timeout+lockGrace)
	if err != nil {
		return summary, fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		log.Warn().Msg("job already locked")
		return summary, ErrJobLocked
	}
	defer func() {
		if rerr := e.locks.ReleaseLock(context.WithoutCancel(ctx), key, token); rerr != nil {
			log.Warn().Err(rerr).Msg("release job lock")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("panic running cover job")
			_ = e.jobs.UpdateJob(context.WithoutCancel(ctx), job.ID,
				store.WithStatus(models.JobStatusFailed),
				store.WithErrorMessage(fmt.Sprintf("panic: %v", r)),
				store.WithCompletedAt(time.Now().UTC()),
			)
			err = fmt.Errorf("panic running job: %v", r)
		}
	}()

	start := time.Now()
	summary, err = e.runner.Run(runCtx, job)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error().Err(err).Dur("timeout", e.timeout).Msg("cover job exceeded invocation timeout")
		} else {
			log.Error().Err(err).Msg("cover job aborted")
		}
		return summary, err
	}

	log.Info().
		Bool("ok", summary.OK).
		Int("completed", summary.Completed).
		Int("blocked", summary.Blocked).
		Dur("duration", time.Since(start)).
		Msg("cover job done")
	return summary, nil
}

var _ JobExecutor = (*Executor)(nil)
