package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/covergen/internal/api/response"
	"github.com/kiranshivaraju/covergen/internal/covers"
	"github.com/kiranshivaraju/covergen/internal/dispatch"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
)

const maxBodyBytes = 1 << 20

// CoverExecutor runs one cover job to completion.
type CoverExecutor interface {
	Execute(ctx context.Context, job models.CoverJob) (covers.Summary, error)
}

// GenerateResult is the body returned by POST /api/v1/covers/generate.
type GenerateResult struct {
	OK        bool   `json:"ok"`
	JobID     string `json:"job_id"`
	Completed int    `json:"completed"`
	Blocked   int    `json:"blocked"`
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/covers/generate.
// The job runs synchronously and survives a disconnected caller.
func NewGenerateHandler(exec CoverExecutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.GenerateCoverPayload
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := payload.Job()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		summary, err := exec.Execute(context.WithoutCancel(r.Context()), job)
		if err != nil {
			writeExecuteError(w, err)
			return
		}

		response.JSON(w, GenerateResult{
			OK:        summary.OK,
			JobID:     job.ID.String(),
			Completed: summary.Completed,
			Blocked:   summary.Blocked,
		})
	}
}

func writeExecuteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrJobLocked):
		response.Error(w, http.StatusConflict, "JOB_LOCKED", "Job is already being processed", nil)
	case errors.Is(err, store.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_STATE", "Job is not in a runnable state", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "TIMEOUT", "Cover generation timed out", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Cover generation failed", nil)
	}
}
