package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("cover:job:%s:status", jobID)
}

// JobDetailKey holds the rendered status response of a finished job.
func JobDetailKey(jobID uuid.UUID) string {
	return fmt.Sprintf("cover:job:%s:detail", jobID)
}

func JobLockKey(jobID uuid.UUID) string {
	return fmt.Sprintf("cover:lock:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
