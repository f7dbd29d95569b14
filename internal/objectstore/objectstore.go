// Package objectstore writes generated artifacts to durable storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("objectstore: invalid key")

// Store writes one object per call. Keys are slash-separated relative paths.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// PublicURL joins a public base URL and a storage key.
func PublicURL(base, key string) string {
	if base == "" || key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// DefaultPublicURL is the r2.dev development URL for a bucket.
func DefaultPublicURL(bucket string) string {
	return fmt.Sprintf("https://%s.r2.dev", bucket)
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: key is required", ErrInvalidKey)
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
