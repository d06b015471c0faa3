package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"ai-subtitler/internal/app/notify"
	"ai-subtitler/internal/app/storage"
)

// MemoryArtifactStore is an in-memory storage.ArtifactStore.
type MemoryArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	// PutErr, when set, fails every Put.
	PutErr error
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{objects: map[string][]byte{}, types: map[string]string{}}
}

var _ storage.ArtifactStore = (*MemoryArtifactStore)(nil)

// URL returns the location Put hands out for key.
func (s *MemoryArtifactStore) URL(key string) string {
	return storage.ObjectURL("memory://artifacts", key)
}

func (s *MemoryArtifactStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	ref := s.URL(key)
	s.objects[ref] = append([]byte(nil), data...)
	s.types[ref] = contentType
	return ref, nil
}

func (s *MemoryArtifactStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryArtifactStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[ref]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, ref)
	}
	delete(s.objects, ref)
	delete(s.types, ref)
	return nil
}

// ContentType returns the content type stored with ref.
func (s *MemoryArtifactStore) ContentType(ref string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types[ref]
}

// Len returns the number of stored artifacts.
func (s *MemoryArtifactStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// MemorySourceStore is a storage.SourceStore that is not backed by local
// files, forcing callers to read the bytes.
type MemorySourceStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	DeleteErr error
}

func NewMemorySourceStore() *MemorySourceStore {
	return &MemorySourceStore{objects: map[string][]byte{}}
}

var _ storage.SourceStore = (*MemorySourceStore)(nil)

// Add stores data under ref.
func (s *MemorySourceStore) Add(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = append([]byte(nil), data...)
}

func (s *MemorySourceStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemorySourceStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ref)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.objects[ref]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, ref)
	}
	delete(s.objects, ref)
	return nil
}

// Deleted returns every ref passed to Delete.
func (s *MemorySourceStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

var _ notify.Publisher = (*RecordingPublisher)(nil)

func (p *RecordingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Events returns the events published for jobID, in order.
func (p *RecordingPublisher) Events(jobID string) []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Event
	for _, ev := range p.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out
}
