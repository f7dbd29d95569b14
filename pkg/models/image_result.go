package models

const (
	SafetyStatusOK      = "ok"
	SafetyStatusBlocked = "blocked"

	// ErrorQuotaExhausted marks a variation whose attempt budget was spent
	// entirely on rate-limited calls. It is distinct from a generic failure.
	ErrorQuotaExhausted = "quota_exhausted"
	// ErrorGenerationFailed is recorded when a failure carried no message.
	ErrorGenerationFailed = "generation_failed"
)

// Outcome classifies how a single variation ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "success"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
)

// ImageResult is one entry of a job's images array. Exactly one is appended
// per variation; the JSON shape matches the rows stored in cover_jobs.images.
type ImageResult struct {
	StoragePath  string `json:"storage_path,omitempty"`
	SafetyStatus string `json:"safety_status,omitempty"`
	Error        string `json:"error,omitempty"`
	Seed         int64  `json:"seed"`
}

func SucceededImage(storagePath string, seed int64) ImageResult {
	return ImageResult{StoragePath: storagePath, SafetyStatus: SafetyStatusOK, Seed: seed}
}

func BlockedImage(seed int64) ImageResult {
	return ImageResult{Error: SafetyStatusBlocked, SafetyStatus: SafetyStatusBlocked, Seed: seed}
}

func FailedImage(message string, seed int64) ImageResult {
	if message == "" {
		message = ErrorGenerationFailed
	}
	return ImageResult{Error: message, Seed: seed}
}

// Outcome derives the variation outcome from the stored fields.
func (r ImageResult) Outcome() Outcome {
	switch {
	case r.SafetyStatus == SafetyStatusBlocked:
		return OutcomeBlocked
	case r.StoragePath != "" && r.Error == "":
		return OutcomeSucceeded
	default:
		return OutcomeFailed
	}
}
