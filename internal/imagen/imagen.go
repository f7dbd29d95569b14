// Package imagen talks to the image generation service and classifies every
// response into one of four disjoint outcomes.
package imagen

import "context"

// Kind classifies a generation response.
type Kind string

const (
	KindSuccess       Kind = "success"
	KindRateLimited   Kind = "rate_limited"
	KindSafetyBlocked Kind = "safety_blocked"
	KindFailure       Kind = "other_failure"
)

// Request is one generation call for a single variation.
type Request struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	Seed           int64
}

// Result is the classified outcome of a generation call. ImageBase64 is set
// only when Kind is KindSuccess. RetryAfter carries the raw hint sent with a
// rate-limited response.
type Result struct {
	Kind        Kind
	StatusCode  int
	ImageBase64 string
	RetryAfter  string
	Message     string
}

// OK reports whether the call produced an image.
func (r Result) OK() bool {
	return r.Kind == KindSuccess && r.ImageBase64 != ""
}

// Generator produces one image per call. Generation problems are reported
// through Result, never as a Go error.
type Generator interface {
	Generate(ctx context.Context, req Request) Result
}

func Success(status int, imageBase64 string) Result {
	return Result{Kind: KindSuccess, StatusCode: status, ImageBase64: imageBase64}
}

func RateLimited(retryAfter string) Result {
	return Result{Kind: KindRateLimited, StatusCode: 429, RetryAfter: retryAfter, Message: "Vertex quota exceeded"}
}

func SafetyBlocked(status int) Result {
	return Result{Kind: KindSafetyBlocked, StatusCode: status, Message: "Image blocked by safety filters"}
}

func Failure(status int, message string) Result {
	return Result{Kind: KindFailure, StatusCode: status, Message: message}
}
