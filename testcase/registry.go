package testcase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("test case not found")
	ErrAlreadyExists = errors.New("test case already exists")
	ErrInvalid       = errors.New("invalid test case")
	ErrInUse         = errors.New("test case is referenced by test data")
)

const (
	maxTitleLength = 200
	maxIDLength    = 100
)

// Priority ranks how important a test case is
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Status is the outcome of the latest run, or Draft before any run
type Status string

const (
	StatusDraft   Status = "Draft"
	StatusPending Status = "Pending"
	StatusPassed  Status = "Passed"
	StatusFailed  Status = "Failed"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// TestCase is a test case of one project. Test data refers to it by ID.
type TestCase struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the caller supplied fields, filling in the default
// priority and status
func (tc *TestCase) Validate() error {
	tc.Title = strings.TrimSpace(tc.Title)
	if tc.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if len(tc.Title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds maximum of %d characters", ErrInvalid, maxTitleLength)
	}
	if tc.ID != "" {
		if len(tc.ID) > maxIDLength || !idPattern.MatchString(tc.ID) {
			return fmt.Errorf("%w: id %q must be 1-%d letters, digits, '.', '_' or '-'", ErrInvalid, tc.ID, maxIDLength)
		}
	}

	switch tc.Priority {
	case "":
		tc.Priority = PriorityMedium
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, tc.Priority)
	}

	switch tc.Status {
	case "":
		tc.Status = StatusDraft
	case StatusDraft, StatusPending, StatusPassed, StatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, tc.Status)
	}
	return nil
}

// Registry persists test cases. IDs are unique within a project.
type Registry interface {
	// Create saves tc, assigning an id when it has none
	Create(ctx context.Context, tc *TestCase) error

	// Get returns a test case of a project
	Get(ctx context.Context, projectID, id string) (*TestCase, error)

	// List returns a project's test cases ordered by creation time
	List(ctx context.Context, projectID string) ([]*TestCase, error)

	// Update replaces title, description, priority and status
	Update(ctx context.Context, tc *TestCase) error

	// Delete removes a test case
	Delete(ctx context.Context, projectID, id string) error

	// Missing returns the ids, in input order and without repeats, that
	// are not registered in the project
	Missing(ctx context.Context, projectID string, ids []string) ([]string, error)
}

// InMemoryRegistry implements Registry in process memory
type InMemoryRegistry struct {
	cases map[string]map[string]*TestCase // project id -> test case id
	mu    sync.RWMutex
}

// NewInMemoryRegistry creates an empty registry
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{cases: make(map[string]map[string]*TestCase)}
}

func (r *InMemoryRegistry) Create(_ context.Context, tc *TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	project, ok := r.cases[tc.ProjectID]
	if !ok {
		project = make(map[string]*TestCase)
		r.cases[tc.ProjectID] = project
	}
	if _, exists := project[tc.ID]; exists {
		return fmt.Errorf("test case %s: %w", tc.ID, ErrAlreadyExists)
	}

	now := time.Now().UTC()
	tc.CreatedAt = now
	tc.UpdatedAt = now
	stored := *tc
	project[tc.ID] = &stored
	return nil
}

func (r *InMemoryRegistry) Get(_ context.Context, projectID, id string) (*TestCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tc, ok := r.cases[projectID][id]
	if !ok {
		return nil, fmt.Errorf("test case %s: %w", id, ErrNotFound)
	}
	out := *tc
	return &out, nil
}

func (r *InMemoryRegistry) List(_ context.Context, projectID string) ([]*TestCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TestCase, 0, len(r.cases[projectID]))
	for _, tc := range r.cases[projectID] {
		c := *tc
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRegistry) Update(_ context.Context, tc *TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.cases[tc.ProjectID][tc.ID]
	if !ok {
		return fmt.Errorf("test case %s: %w", tc.ID, ErrNotFound)
	}
	tc.CreatedAt = existing.CreatedAt
	tc.UpdatedAt = time.Now().UTC()
	stored := *tc
	r.cases[tc.ProjectID][tc.ID] = &stored
	return nil
}

func (r *InMemoryRegistry) Delete(_ context.Context, projectID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[projectID][id]; !ok {
		return fmt.Errorf("test case %s: %w", id, ErrNotFound)
	}
	delete(r.cases[projectID], id)
	return nil
}

func (r *InMemoryRegistry) Missing(_ context.Context, projectID string, ids []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	known := r.cases[projectID]
	return missing(ids, func(id string) bool {
		_, ok := known[id]
		return ok
	}), nil
}

// missing keeps the ids for which known is false, dropping repeats
func missing(ids []string, known func(string) bool) []string {
	var out []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !known(id) {
			out = append(out, id)
		}
	}
	return out
}
