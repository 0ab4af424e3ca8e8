// Package storage provides persistence for the sample application the
// interceptor protects. Only an in-memory implementation ships; the interface
// exists so a real backend can be swapped in without touching handlers.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Project is the demo resource served behind the validation layer.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectStore is the persistence contract the application handlers use.
type ProjectStore interface {
	CreateProject(ctx context.Context, name, description string) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	DeleteProject(ctx context.Context, id string) error
	Close() error
}

// MemoryProjectStore is an in-memory implementation of ProjectStore.
type MemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewMemoryProjectStore creates a new MemoryProjectStore.
func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{
		projects: make(map[string]*Project),
	}
}

// CreateProject stores a new project under a fresh ID.
func (s *MemoryProjectStore) CreateProject(_ context.Context, name, description string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	project := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects[project.ID] = project

	copied := *project
	return &copied, nil
}

// GetProject retrieves a project by ID.
func (s *MemoryProjectStore) GetProject(_ context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	copied := *project
	return &copied, nil
}

// ListProjects returns all projects ordered by creation time.
func (s *MemoryProjectStore) ListProjects(_ context.Context) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Project, 0, len(s.projects))
	for _, project := range s.projects {
		copied := *project
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteProject removes a project by ID.
func (s *MemoryProjectStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("project not found: %s", id)
	}
	delete(s.projects, id)
	return nil
}

// Close is a no-op for memory store.
func (s *MemoryProjectStore) Close() error {
	return nil
}
