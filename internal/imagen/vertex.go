package imagen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/covergen/internal/config"
)

// VertexClient calls the Imagen predict endpoint on Vertex AI.
type VertexClient struct {
	cfg    config.VertexConfig
	tokens TokenProvider
	client *http.Client
}

// NewVertexClient creates a Vertex client. cfg.BaseURL overrides the regional
// endpoint host.
func NewVertexClient(cfg config.VertexConfig, tokens TokenProvider) *VertexClient {
	return &VertexClient{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Endpoint returns the predict URL for the configured project, location and model.
func (c *VertexClient) Endpoint() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", c.cfg.Location)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		base, c.cfg.ProjectID, c.cfg.Location, c.cfg.Model)
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount       int    `json:"sampleCount"`
	Seed              int64  `json:"seed"`
	AspectRatio       string `json:"aspectRatio"`
	NegativePrompt    string `json:"negativePrompt"`
	SafetyFilterLevel string `json:"safetyFilterLevel"`
	PersonGeneration  string `json:"personGeneration"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
}

type prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	Image              string `json:"image"`
	B64JSON            string `json:"b64Json"`
	RAIFilteredReason  string `json:"raiFilteredReason"`
	SafetyAttributes   struct {
		Blocked bool `json:"blocked"`
	} `json:"safetyAttributes"`
}

func (p prediction) imageBytes() string {
	switch {
	case p.BytesBase64Encoded != "":
		return p.BytesBase64Encoded
	case p.Image != "":
		return p.Image
	default:
		return p.B64JSON
	}
}

// Generate requests a single image and classifies the response.
func (c *VertexClient) Generate(ctx context.Context, req Request) Result {
	if c.cfg.ProjectID == "" {
		return Failure(http.StatusInternalServerError, "VERTEX_PROJECT_ID is not configured")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Failure(http.StatusInternalServerError, fmt.Sprintf("Credential resolution failed: %v", err))
	}

	body, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParameters{
			SampleCount:       1,
			Seed:              req.Seed,
			AspectRatio:       req.AspectRatio,
			NegativePrompt:    req.NegativePrompt,
			SafetyFilterLevel: c.cfg.SafetyFilterLevel,
			PersonGeneration:  c.cfg.PersonGeneration,
		},
	})
	if err != nil {
		return Failure(0, fmt.Sprintf("Vertex request failed: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return Failure(0, fmt.Sprintf("Vertex request failed: %v", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Failure(0, fmt.Sprintf("Vertex request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return RateLimited(resp.Header.Get("Retry-After"))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failure(resp.StatusCode, fmt.Sprintf("Vertex request failed: %v", err))
	}

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("Vertex returned HTTP %d", resp.StatusCode)
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
			msg = msg + ": " + er.Error.Message
		}
		return Failure(resp.StatusCode, msg)
	}

	return classifyPrediction(resp.StatusCode, raw)
}

func classifyPrediction(status int, raw []byte) Result {
	if !json.Valid(raw) {
		return Failure(status, "Vertex returned a non-JSON response")
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil || len(pr.Predictions) == 0 {
		return Failure(status, "Vertex response did not contain predictions")
	}

	// A malformed first prediction is treated as one with no fields.
	var first prediction
	_ = json.Unmarshal(pr.Predictions[0], &first)

	if img := first.imageBytes(); img != "" {
		return Success(status, img)
	}
	if first.RAIFilteredReason != "" || first.SafetyAttributes.Blocked {
		return SafetyBlocked(status)
	}
	return Failure(status, "Vertex response did not include image bytes")
}

var _ Generator = (*VertexClient)(nil)
