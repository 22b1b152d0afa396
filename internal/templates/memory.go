package templates

import (
	"context"
	"fmt"
	"sync"

	"github.com/ironsheep/card-canvas/internal/design"
)

// MemoryStore keeps templates in a map.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]Template)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(t), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, clone(t))
	}
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = clone(t)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.templates, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(t Template) Template {
	t.Pages = append([]design.Page(nil), t.Pages...)
	return t
}
