package imagen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kiranshivaraju/covergen/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ErrNoCredentials means a provider has nothing configured and the chain
// should try the next one.
var ErrNoCredentials = errors.New("no credentials configured")

// TokenProvider returns a bearer token for the generation service.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is an access token supplied directly through the environment.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoCredentials
	}
	return string(t), nil
}

// sourceProvider lazily builds an oauth2 token source and reuses it, so
// tokens are refreshed only when they expire.
type sourceProvider struct {
	label string
	build func(ctx context.Context) (oauth2.TokenSource, error)

	mu sync.Mutex
	ts oauth2.TokenSource
}

func (p *sourceProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.ts == nil {
		ts, err := p.build(ctx)
		if err != nil {
			p.mu.Unlock()
			if errors.Is(err, ErrNoCredentials) {
				return "", err
			}
			return "", fmt.Errorf("%s: %w", p.label, err)
		}
		p.ts = oauth2.ReuseTokenSource(nil, ts)
	}
	ts := p.ts
	p.mu.Unlock()

	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.label, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%s: empty access token", p.label)
	}
	return tok.AccessToken, nil
}

// ServiceAccountJSON uses service account key material held in an
// environment variable.
func ServiceAccountJSON(data string) TokenProvider {
	return &sourceProvider{
		label: "failed to use VERTEX_SERVICE_ACCOUNT_JSON",
		build: func(context.Context) (oauth2.TokenSource, error) {
			if data == "" {
				return nil, ErrNoCredentials
			}
			cfg, err := google.JWTConfigFromJSON([]byte(data), cloudPlatformScope)
			if err != nil {
				return nil, err
			}
			return cfg.TokenSource(context.Background()), nil
		},
	}
}

// CredentialsFile uses a service account key file. A path that does not exist
// counts as unconfigured.
func CredentialsFile(path string) TokenProvider {
	return &sourceProvider{
		label: fmt.Sprintf("failed to use GOOGLE_APPLICATION_CREDENTIALS file '%s'", path),
		build: func(context.Context) (oauth2.TokenSource, error) {
			if path == "" {
				return nil, ErrNoCredentials
			}
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrNoCredentials
			}
			if err != nil {
				return nil, err
			}
			cfg, err := google.JWTConfigFromJSON(data, cloudPlatformScope)
			if err != nil {
				return nil, err
			}
			return cfg.TokenSource(context.Background()), nil
		},
	}
}

// DefaultCredentials uses Google application default credentials.
func DefaultCredentials() TokenProvider {
	return &sourceProvider{
		label: "failed to resolve Google default credentials",
		build: func(ctx context.Context) (oauth2.TokenSource, error) {
			creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
			if err != nil {
				return nil, err
			}
			return creds.TokenSource, nil
		},
	}
}

// TokenChain tries each provider in order. Providers reporting
// ErrNoCredentials are skipped; any other failure ends the search.
type TokenChain []TokenProvider

func (c TokenChain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		tok, err := p.Token(ctx)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		if err != nil {
			return "", err
		}
		return tok, nil
	}
	return "", fmt.Errorf("unable to resolve a Vertex access token: %w", ErrNoCredentials)
}

// NewTokenChain builds the provider chain from configuration: explicit token,
// service account JSON, credentials file, then application default credentials.
func NewTokenChain(cfg config.VertexConfig) TokenChain {
	return TokenChain{
		StaticToken(cfg.AccessToken),
		ServiceAccountJSON(cfg.ServiceAccountJSON),
		CredentialsFile(cfg.CredentialsFile),
		DefaultCredentials(),
	}
}
