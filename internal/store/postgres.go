package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/covergen/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, manuscript_id, account_id, user_id, description, genre, mood, style,
	wrapped_prompt, negative_prompt, aspect_ratio, variation_seeds, status, retry_count,
	retry_after, error_message, images, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.CoverJob) error {
	images, err := marshalImages(job.Images)
	if err != nil {
		return err
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cover_jobs (id, manuscript_id, account_id, user_id, description, genre, mood, style,
			wrapped_prompt, negative_prompt, aspect_ratio, variation_seeds, status, retry_count, images,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16, $17)`,
		job.ID, job.ManuscriptID, job.AccountID, job.UserID, job.Description, job.Genre, job.Mood, job.Style,
		job.WrappedPrompt, job.NegativePrompt, job.AspectRatio, job.Seeds, job.Status, job.RetryCount, images,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.CoverJob, error) {
	var (
		j      models.CoverJob
		images []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM cover_jobs WHERE id = $1`, id).Scan(
		&j.ID, &j.ManuscriptID, &j.AccountID, &j.UserID, &j.Description, &j.Genre, &j.Mood, &j.Style,
		&j.WrappedPrompt, &j.NegativePrompt, &j.AspectRatio, &j.Seeds, &j.Status, &j.RetryCount,
		&j.RetryAfter, &j.ErrorMessage, &images, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if j.Images, err = unmarshalImages(images); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJobImages reads the current images list. A job with no images yields an
// empty, non-nil slice.
func (s *PostgresStore) GetJobImages(ctx context.Context, id uuid.UUID) ([]models.ImageResult, error) {
	var images []byte
	err := s.pool.QueryRow(ctx, `SELECT images FROM cover_jobs WHERE id = $1`, id).Scan(&images)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job images: %w", err)
	}
	return unmarshalImages(images)
}

// UpdateJob applies the given field changes and bumps updated_at. A status
// change is checked against the current status inside the same statement.
func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error {
	u := ApplyJobUpdates(opts...)

	query := `UPDATE cover_jobs SET updated_at = $2`
	args := []any{id, s.now()}
	argIdx := 3

	set := func(column string, value any) {
		query += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if u.Status != nil {
		if _, ok := validTransitions[*u.Status]; !ok {
			return fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, *u.Status)
		}
		set("status", *u.Status)
	}
	if u.RetryCount != nil {
		set("retry_count", *u.RetryCount)
	}
	if u.RetryAfter != nil {
		set("retry_after", *u.RetryAfter)
	} else if u.ClearRetryAfter {
		query += ", retry_after = NULL"
	}
	if u.ErrorMessage != nil {
		set("error_message", *u.ErrorMessage)
	} else if u.ClearErrorMessage {
		query += ", error_message = NULL"
	}
	if u.StartedAt != nil {
		set("started_at", *u.StartedAt)
	}
	if u.CompletedAt != nil {
		set("completed_at", *u.CompletedAt)
	}
	if u.WrappedPrompt != nil {
		set("wrapped_prompt", *u.WrappedPrompt)
	}
	if u.SetImages {
		images, err := marshalImages(u.Images)
		if err != nil {
			return err
		}
		query += fmt.Sprintf(", images = $%d::jsonb", argIdx)
		args = append(args, images)
		argIdx++
	}

	query += " WHERE id = $1"
	if u.Status != nil {
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, validTransitions[*u.Status])
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if u.Status == nil {
		return ErrNotFound
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM cover_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, *u.Status)
}

// HasActiveJob reports whether the user already has a non-terminal job for the manuscript.
func (s *PostgresStore) HasActiveJob(ctx context.Context, userID, manuscriptID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM cover_jobs
			WHERE user_id = $1 AND manuscript_id = $2 AND status IN ('pending', 'running', 'queued')
		)`, userID, manuscriptID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active job: %w", err)
	}
	return exists, nil
}

// FailStaleJobs marks running or queued jobs not updated since cutoff as failed
// and returns their ids.
func (s *PostgresStore) FailStaleJobs(ctx context.Context, cutoff time.Time, message string) ([]uuid.UUID, error) {
	now := s.now()
	rows, err := s.pool.Query(ctx,
		`UPDATE cover_jobs
		 SET status = 'failed', error_message = $2, completed_at = $3, retry_after = NULL, updated_at = $3
		 WHERE status IN ('running', 'queued') AND updated_at < $1
		 RETURNING id`, cutoff, message, now)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	return ids, nil
}

func marshalImages(images []models.ImageResult) (string, error) {
	if images == nil {
		images = []models.ImageResult{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("marshal images: %w", err)
	}
	return string(b), nil
}

func unmarshalImages(raw []byte) ([]models.ImageResult, error) {
	images := []models.ImageResult{}
	if len(raw) == 0 {
		return images, nil
	}
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, fmt.Errorf("unmarshal images: %w", err)
	}
	if images == nil {
		images = []models.ImageResult{}
	}
	return images, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
