package project

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/liamcoop/cstt/internal/logger"
	"github.com/liamcoop/cstt/testcase"
	"github.com/liamcoop/cstt/testdata"
)

// StoreFactory creates the test data store of one project
type StoreFactory func(projectID string) testdata.Store

// Manager owns one testdata.Catalog per project and the test cases its
// test data may link to
type Manager struct {
	registry    Registry
	testCases   testcase.Registry
	newStore    StoreFactory
	cacheConfig testdata.CacheConfig
	catalogs    map[string]*testdata.Catalog
	mu          sync.RWMutex
}

// NewManager creates a manager over registry whose catalogs use stores
// made by newStore. Test cases are kept in memory until WithTestCases
// replaces them.
func NewManager(registry Registry, newStore StoreFactory, cacheConfig testdata.CacheConfig) *Manager {
	return &Manager{
		registry:    registry,
		testCases:   testcase.NewInMemoryRegistry(),
		newStore:    newStore,
		cacheConfig: cacheConfig,
		catalogs:    make(map[string]*testdata.Catalog),
	}
}

// NewPostgresManager creates a manager backed by PostgreSQL
func NewPostgresManager(db *sql.DB, cacheConfig testdata.CacheConfig) *Manager {
	return NewManager(NewPostgresRegistry(db), func(projectID string) testdata.Store {
		return testdata.NewPostgresStore(db, projectID)
	}, cacheConfig).WithTestCases(testcase.NewPostgresRegistry(db))
}

// NewInMemoryManager creates a manager that keeps everything in memory
func NewInMemoryManager(cacheConfig testdata.CacheConfig) *Manager {
	return NewManager(NewInMemoryRegistry(), func(projectID string) testdata.Store {
		return testdata.NewInMemoryStore(projectID)
	}, cacheConfig)
}

// WithTestCases sets the test case registry. Call it before the manager
// creates any catalog.
func (m *Manager) WithTestCases(r testcase.Registry) *Manager {
	m.testCases = r
	return m
}

func (m *Manager) newCatalog(projectID string) *testdata.Catalog {
	return testdata.NewCatalog(projectID, m.newStore(projectID), m.cacheConfig).CheckTestCases(m.testCases)
}

// LoadAll creates catalogs for every registered project
func (m *Manager) LoadAll(ctx context.Context) error {
	projects, err := m.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch projects: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range projects {
		if _, ok := m.catalogs[p.ID]; !ok {
			m.catalogs[p.ID] = m.newCatalog(p.ID)
		}
	}

	logger.Info("Projects loaded", "count", len(projects))
	return nil
}

// Create registers a project and prepares its catalog
func (m *Manager) Create(ctx context.Context, name, description string) (*Project, error) {
	p := &Project{Name: strings.TrimSpace(name), Description: description}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := m.registry.Create(ctx, p); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.catalogs[p.ID] = m.newCatalog(p.ID)
	m.mu.Unlock()

	logger.Info("Project created", "project_id", p.ID, "name", p.Name)
	return p, nil
}

// Get returns a project by id
func (m *Manager) Get(ctx context.Context, id string) (*Project, error) {
	return m.registry.Get(ctx, id)
}

// List returns all projects
func (m *Manager) List(ctx context.Context) ([]*Project, error) {
	return m.registry.List(ctx)
}

// Catalog returns the catalog of project id. Projects registered by another
// process since LoadAll are looked up and attached on first use.
func (m *Manager) Catalog(ctx context.Context, id string) (*testdata.Catalog, error) {
	m.mu.RLock()
	cat, ok := m.catalogs[id]
	m.mu.RUnlock()
	if ok {
		return cat, nil
	}

	if _, err := m.registry.Get(ctx, id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cat, ok := m.catalogs[id]; ok {
		return cat, nil
	}
	cat = m.newCatalog(id)
	m.catalogs[id] = cat
	return cat, nil
}

// Loaded returns the ids of projects with an attached catalog
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.catalogs))
	for id := range m.catalogs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget drops the cached catalog of project id. The project itself and its
// test data stay in the registry and store.
func (m *Manager) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.catalogs[id]; !ok {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	delete(m.catalogs, id)
	return nil
}

// CreateTestCase registers a test case in project projectID
func (m *Manager) CreateTestCase(ctx context.Context, projectID string, tc *testcase.TestCase) (*testcase.TestCase, error) {
	if _, err := m.registry.Get(ctx, projectID); err != nil {
		return nil, err
	}
	tc.ProjectID = projectID
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := m.testCases.Create(ctx, tc); err != nil {
		return nil, err
	}

	logger.Debug("Test case created", "project_id", projectID, "test_case_id", tc.ID)
	return tc, nil
}

// TestCases lists the test cases of project projectID
func (m *Manager) TestCases(ctx context.Context, projectID string) ([]*testcase.TestCase, error) {
	if _, err := m.registry.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return m.testCases.List(ctx, projectID)
}

// TestCase returns one test case of project projectID
func (m *Manager) TestCase(ctx context.Context, projectID, id string) (*testcase.TestCase, error) {
	if _, err := m.registry.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return m.testCases.Get(ctx, projectID, id)
}

// UpdateTestCase replaces the editable fields of an existing test case
func (m *Manager) UpdateTestCase(ctx context.Context, projectID string, tc *testcase.TestCase) (*testcase.TestCase, error) {
	if _, err := m.registry.Get(ctx, projectID); err != nil {
		return nil, err
	}
	tc.ProjectID = projectID
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := m.testCases.Update(ctx, tc); err != nil {
		return nil, err
	}
	return tc, nil
}

// DeleteTestCase removes a test case that no test data links to
func (m *Manager) DeleteTestCase(ctx context.Context, projectID, id string) error {
	cat, err := m.Catalog(ctx, projectID)
	if err != nil {
		return err
	}
	if _, err := m.testCases.Get(ctx, projectID, id); err != nil {
		return err
	}

	refs, err := cat.Referencing(ctx, id)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return fmt.Errorf("test case %s used by %s: %w", id, strings.Join(refs, ", "), testcase.ErrInUse)
	}
	return m.testCases.Delete(ctx, projectID, id)
}
