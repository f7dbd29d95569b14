package covers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/covergen/internal/imagen"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
)

type variationState int

const (
	stateAttempting variationState = iota
	stateSucceeded
	stateBlocked
	stateExhausted
	stateQuotaExhausted
)

// variation runs the attempt loop for one variation and appends exactly one
// image result. The returned outcome is the tag of that result.
func (r *jobRun) variation(ctx context.Context, index int, seed int64) (models.Outcome, error) {
	log := r.log.With().Int("variation", index).Int64("seed", seed).Logger()
	req := imagen.Request{
		Prompt:         r.job.WrappedPrompt,
		NegativePrompt: r.job.NegativePrompt,
		AspectRatio:    r.job.AspectRatio,
		Seed:           seed,
	}

	state := stateAttempting
	lastError := ""
	for attempt := 1; state == stateAttempting; attempt++ {
		if err := r.resume(ctx); err != nil {
			return "", err
		}
		last := attempt >= MaxAttempts

		res := r.o.gen.Generate(ctx, req)
		switch {
		case res.OK():
			key, err := r.storeImage(ctx, index, res.ImageBase64)
			var bad *undecodableError
			if errors.As(err, &bad) {
				lastError = bad.Error()
				log.Warn().Err(bad.err).Int("attempt", attempt).Msg("generated image could not be decoded")
				if last {
					state = stateExhausted
				}
				break
			}
			if err != nil {
				return "", err
			}
			if err := r.appendImage(ctx, models.SucceededImage(key, seed)); err != nil {
				return "", err
			}
			log.Info().Int("attempt", attempt).Str("storage_path", key).Msg("variation stored")
			state = stateSucceeded

		case res.Kind == imagen.KindRateLimited:
			wait := RetryAfter(res.RetryAfter)
			err := r.o.store.UpdateJob(ctx, r.job.ID,
				store.WithStatus(models.JobStatusQueued),
				store.WithRetry(attempt, r.o.now().Add(wait)),
				store.WithErrorMessage(MessageQueued),
			)
			if err != nil {
				return "", fmt.Errorf("queue job: %w", err)
			}
			r.setStatus(ctx, models.JobStatusQueued)
			log.Warn().Int("attempt", attempt).Dur("wait", wait).Msg("generation rate limited")

			if err := r.o.wait(ctx, wait); err != nil {
				return "", fmt.Errorf("rate limit wait: %w", err)
			}
			if last {
				state = stateQuotaExhausted
			}

		case res.Kind == imagen.KindSafetyBlocked:
			if err := r.appendImage(ctx, models.BlockedImage(seed)); err != nil {
				return "", err
			}
			log.Info().Int("attempt", attempt).Msg("variation blocked by safety filters")
			state = stateBlocked

		default:
			lastError = res.Message
			log.Warn().Int("attempt", attempt).Int("status_code", res.StatusCode).Str("error", res.Message).Msg("generation failed")
			if last {
				state = stateExhausted
			}
		}
	}

	switch state {
	case stateSucceeded:
		return models.OutcomeSucceeded, nil
	case stateBlocked:
		return models.OutcomeBlocked, nil
	case stateQuotaExhausted:
		if err := r.appendImage(ctx, models.FailedImage(models.ErrorQuotaExhausted, seed)); err != nil {
			return "", err
		}
		return models.OutcomeFailed, nil
	default:
		if err := r.appendImage(ctx, models.FailedImage(lastError, seed)); err != nil {
			return "", err
		}
		return models.OutcomeFailed, nil
	}
}

// undecodableError marks a generated payload that cannot become an artifact.
// It counts as a failed attempt rather than a fatal error.
type undecodableError struct {
	err error
}

func (e *undecodableError) Error() string { return "decode generated image: " + e.err.Error() }

func (e *undecodableError) Unwrap() error { return e.err }

// storeImage decodes the payload, re-encodes it and writes it to the object
// store, returning the storage key.
func (r *jobRun) storeImage(ctx context.Context, index int, payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", &undecodableError{err: err}
	}
	data, err := r.o.codec.Reencode(raw)
	if err != nil {
		return "", &undecodableError{err: err}
	}

	key := ObjectKey(r.o.keyPrefix, r.job.ManuscriptID, r.job.ID, index, r.o.codec.Extension())
	if err := r.o.objects.Put(ctx, key, data, r.o.codec.ContentType()); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return key, nil
}

// RetryAfter converts a rate-limit hint to a wait. Integer hints are clamped
// to [1s, 24h]; a missing or non-integer hint waits 30 seconds.
func RetryAfter(hint string) time.Duration {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.ParseInt(hint, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		if secs > 0 {
			return maximumRetryAfter
		}
		return minimumRetryAfter
	}
	if err != nil {
		return defaultRetryAfter
	}
	if secs < int64(minimumRetryAfter/time.Second) {
		return minimumRetryAfter
	}
	if secs > int64(maximumRetryAfter/time.Second) {
		return maximumRetryAfter
	}
	return time.Duration(secs) * time.Second
}
