package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/internal/covers"
	"github.com/kiranshivaraju/covergen/pkg/models"
	"github.com/rs/zerolog"
)

// MessageTimedOut is written to jobs failed by the sweeper.
const MessageTimedOut = "Cover generation timed out."

// StaleJobStore fails jobs that stopped making progress.
type StaleJobStore interface {
	FailStaleJobs(ctx context.Context, cutoff time.Time, message string) ([]uuid.UUID, error)
}

// Sweeper periodically fails running or queued jobs whose last update is
// older than the stale timeout.
type Sweeper struct {
	store      StaleJobStore
	mirror     covers.StatusMirror
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewSweeper creates a Sweeper. mirror may be nil.
func NewSweeper(st StaleJobStore, mirror covers.StatusMirror, staleAfter, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:      st,
		mirror:     mirror,
		staleAfter: staleAfter,
		interval:   interval,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Sweep runs one pass and returns the ids of the jobs it failed.
func (s *Sweeper) Sweep(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.store.FailStaleJobs(ctx, s.now().Add(-s.staleAfter), MessageTimedOut)
	if err != nil {
		return nil, fmt.Errorf("sweep stale jobs: %w", err)
	}
	for _, id := range ids {
		s.logger.Warn().Str("job_id", id.String()).Msg("failed stale cover job")
		if s.mirror != nil {
			_ = s.mirror.SetJobStatus(ctx, id, models.JobStatusFailed, 30*time.Minute)
		}
	}
	return ids, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("stale job sweep failed")
			}
		}
	}
}
