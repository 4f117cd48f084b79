package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("project not found")
	ErrAlreadyExists = errors.New("project already exists")
	ErrInvalid       = errors.New("invalid project")
)

const maxNameLength = 200

// Project groups test data for one system under test
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the caller supplied fields of a project
func (p *Project) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds maximum of %d characters", ErrInvalid, maxNameLength)
	}
	return nil
}

// Registry persists projects. Names are unique ignoring case.
type Registry interface {
	// Create saves p, assigning an id and timestamps
	Create(ctx context.Context, p *Project) error

	// Get returns a project by id
	Get(ctx context.Context, id string) (*Project, error)

	// List returns all projects ordered by creation time
	List(ctx context.Context) ([]*Project, error)
}

// InMemoryRegistry implements Registry in process memory
type InMemoryRegistry struct {
	projects map[string]*Project
	mu       sync.RWMutex
}

// NewInMemoryRegistry creates an empty registry
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{projects: make(map[string]*Project)}
}

func (r *InMemoryRegistry) Create(_ context.Context, p *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.projects {
		if strings.EqualFold(existing.Name, p.Name) {
			return fmt.Errorf("project %q: %w", p.Name, ErrAlreadyExists)
		}
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.projects[p.ID] = p
	return nil
}

func (r *InMemoryRegistry) Get(_ context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (r *InMemoryRegistry) List(_ context.Context) ([]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
