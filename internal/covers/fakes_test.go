package covers_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/covergen/internal/store"
	"github.com/kiranshivaraju/covergen/pkg/models"
)

// fakeStore records every update and enforces the status transition rules.
type fakeStore struct {
	mu       sync.Mutex
	status   string
	images   []models.ImageResult
	updates  []store.JobUpdate
	getCalls int

	failUpdate func(u store.JobUpdate) error
	failGet    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{status: models.JobStatusPending}
}

func (s *fakeStore) UpdateJob(_ context.Context, _ uuid.UUID, opts ...store.JobUpdateOption) error {
	u := store.ApplyJobUpdates(opts...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		if err := s.failUpdate(u); err != nil {
			return err
		}
	}
	if u.Status != nil {
		if !store.CanTransition(s.status, *u.Status) {
			return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, s.status, *u.Status)
		}
		s.status = *u.Status
	}
	if u.SetImages {
		s.images = u.Images
	}
	s.updates = append(s.updates, u)
	return nil
}

func (s *fakeStore) GetJobImages(_ context.Context, _ uuid.UUID) ([]models.ImageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.failGet != nil {
		return nil, s.failGet
	}
	return append([]models.ImageResult{}, s.images...), nil
}

// statusUpdates returns the updates that changed status, in order.
func (s *fakeStore) statusUpdates() []store.JobUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.JobUpdate
	for _, u := range s.updates {
		if u.Status != nil {
			out = append(out, u)
		}
	}
	return out
}

func (s *fakeStore) lastUpdate() store.JobUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[len(s.updates)-1]
}

// fakeCodec prefixes the input; inputs equal to "bad" fail to decode.
type fakeCodec struct{}

func (fakeCodec) Reencode(raw []byte) ([]byte, error) {
	if string(raw) == "bad" {
		return nil, errors.New("unknown format")
	}
	return append([]byte("webp:"), raw...), nil
}

func (fakeCodec) ContentType() string { return "image/webp" }
func (fakeCodec) Extension() string   { return ".webp" }

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
	err   error
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits = append(w.waits, d)
	return w.err
}

type fakeMirror struct {
	mu       sync.Mutex
	statuses []string
	err      error
}

func (m *fakeMirror) SetJobStatus(_ context.Context, _ uuid.UUID, status string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return m.err
}
