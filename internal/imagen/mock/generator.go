package mock

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/kiranshivaraju/covergen/internal/imagen"
)

// Generator satisfies imagen.Generator for testing. Results are served from
// Script in order; once exhausted, GenerateFunc or Fallback is used.
type Generator struct {
	Script       []imagen.Result
	GenerateFunc func(ctx context.Context, req imagen.Request) imagen.Result
	Fallback     imagen.Result

	mu       sync.Mutex
	requests []imagen.Request
}

func (g *Generator) Generate(ctx context.Context, req imagen.Request) imagen.Result {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	var (
		next   imagen.Result
		script bool
	)
	if len(g.Script) > 0 {
		next, g.Script = g.Script[0], g.Script[1:]
		script = true
	}
	g.mu.Unlock()

	if script {
		return next
	}
	if g.GenerateFunc != nil {
		return g.GenerateFunc(ctx, req)
	}
	return g.Fallback
}

// Requests returns a copy of every request received so far.
func (g *Generator) Requests() []imagen.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]imagen.Request(nil), g.requests...)
}

// Calls returns how many times Generate was called.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// NewScripted returns a Generator that replays results and then fails.
func NewScripted(results ...imagen.Result) *Generator {
	return &Generator{
		Script:   results,
		Fallback: imagen.Failure(500, "mock script exhausted"),
	}
}

// NewSucceeding returns a Generator that always succeeds with the given image bytes.
func NewSucceeding(image []byte) *Generator {
	return &Generator{Fallback: imagen.Success(200, base64.StdEncoding.EncodeToString(image))}
}

// Compile-time check that Generator implements imagen.Generator.
var _ imagen.Generator = (*Generator)(nil)
