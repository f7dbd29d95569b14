// Package covers runs one cover generation job: it produces a fixed number of
// image variations, persists each result as it lands, and settles the job in
// completed or failed.
package covers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/internal/imagen"
	"github.com/kiranshivaraju/covergen/internal/objectstore"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
	"github.com/rs/zerolog"
)

const (
	// MaxAttempts is the per-variation generation budget, shared by every
	// outcome kind including rate limiting.
	MaxAttempts = 3

	DefaultKeyPrefix = "tmp/covers"

	MessageQueued    = "Generation queued due to high demand."
	MessageAllFailed = "All cover variations were blocked or failed."

	defaultMirrorTTL  = 30 * time.Minute
	defaultRetryAfter = 30 * time.Second
	minimumRetryAfter = time.Second
	maximumRetryAfter = 24 * time.Hour
)

// JobStore is the subset of the job store the orchestrator writes through.
type JobStore interface {
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...store.JobUpdateOption) error
	GetJobImages(ctx context.Context, id uuid.UUID) ([]models.ImageResult, error)
}

// ImageCodec turns raw generated bytes into the stored artifact.
type ImageCodec interface {
	Reencode(raw []byte) ([]byte, error)
	ContentType() string
	Extension() string
}

// StatusMirror receives best-effort copies of status changes.
type StatusMirror interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
}

// SeedSource supplies the seed for a variation that has no requested seed.
type SeedSource func(index int) int64

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Summary is the result returned to the caller of Run.
type Summary struct {
	OK        bool      `json:"ok"`
	JobID     uuid.UUID `json:"job_id"`
	Completed int       `json:"completed"`
	Blocked   int       `json:"blocked"`
}

// Orchestrator executes cover jobs. It holds no per-job state and may be
// shared, but a single job must not be run concurrently with itself.
type Orchestrator struct {
	store   JobStore
	gen     imagen.Generator
	codec   ImageCodec
	objects objectstore.Store

	seeds     SeedSource
	wait      WaitFunc
	now       func() time.Time
	mirror    StatusMirror
	mirrorTTL time.Duration
	keyPrefix string
	logger    zerolog.Logger
}

type Option func(*Orchestrator)

// WithSeedSource replaces the clock-derived fallback seeds.
func WithSeedSource(s SeedSource) Option {
	return func(o *Orchestrator) { o.seeds = s }
}

func WithWaitFunc(w WaitFunc) Option {
	return func(o *Orchestrator) { o.wait = w }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStatusMirror copies every status change to m with the given TTL.
func WithStatusMirror(m StatusMirror, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.mirror = m
		if ttl > 0 {
			o.mirrorTTL = ttl
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(o *Orchestrator) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator wires an orchestrator. The default wait sleeps on a timer and
// the default clock is UTC wall time.
func NewOrchestrator(st JobStore, gen imagen.Generator, codec ImageCodec, objects objectstore.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		gen:       gen,
		codec:     codec,
		objects:   objects,
		wait:      sleep,
		now:       func() time.Time { return time.Now().UTC() },
		mirrorTTL: defaultMirrorTTL,
		keyPrefix: DefaultKeyPrefix,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every variation of job in order and writes the final status.
// Generation problems never surface as errors; a non-nil error means the job
// store or object store failed, or ctx ended, and the job may be left in a
// non-terminal status with a partial images list.
func (o *Orchestrator) Run(ctx context.Context, job models.CoverJob) (Summary, error) {
	r := &jobRun{
		o:     o,
		job:   job,
		seeds: o.seedSource(),
		log: o.logger.With().
			Str("job_id", job.ID.String()).
			Str("manuscript_id", job.ManuscriptID.String()).
			Logger(),
	}
	summary := Summary{JobID: job.ID}

	err := o.store.UpdateJob(ctx, job.ID,
		store.WithStatus(models.JobStatusRunning),
		store.WithStartedAt(o.now()),
		store.ClearErrorMessage(),
	)
	if err != nil {
		return summary, fmt.Errorf("mark job running: %w", err)
	}
	r.setStatus(ctx, models.JobStatusRunning)
	r.log.Info().Int("variations", models.VariationCount).Msg("cover job started")

	for i := 0; i < models.VariationCount; i++ {
		outcome, err := r.variation(ctx, i, r.seedFor(i))
		if err != nil {
			return summary, fmt.Errorf("variation %d: %w", i, err)
		}
		switch outcome {
		case models.OutcomeSucceeded:
			summary.Completed++
		case models.OutcomeBlocked:
			summary.Blocked++
		}
	}

	if err := r.finish(ctx, summary.Completed); err != nil {
		return summary, err
	}
	summary.OK = summary.Completed > 0
	return summary, nil
}

// seedSource returns the configured fallback or seeds derived from the clock
// at the start of the run, which are distinct per variation.
func (o *Orchestrator) seedSource() SeedSource {
	if o.seeds != nil {
		return o.seeds
	}
	base := o.now().Unix()
	return func(index int) int64 { return base + int64(index) }
}

// ObjectKey is the storage key of one variation's artifact.
func ObjectKey(prefix string, manuscriptID, jobID uuid.UUID, index int, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%d%s", prefix, manuscriptID, jobID, index, ext)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
