package testdata

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/liamcoop/cstt/dataset"
	"github.com/liamcoop/cstt/internal/logger"
)

// ErrInvalid marks errors caused by caller input rather than storage
var ErrInvalid = errors.New("invalid test data")

// maxCachedFilters bounds the number of compiled filter expressions a
// Catalog keeps
const maxCachedFilters = 64

// TestCaseLookup reports which test case ids are not registered in a
// project
type TestCaseLookup interface {
	Missing(ctx context.Context, projectID string, ids []string) ([]string, error)
}

// Catalog manages the test data of one project: it validates input, keeps
// the list cache coherent with the store and produces exports
type Catalog struct {
	projectID string
	store     Store
	cache     ListCache
	testCases TestCaseLookup

	filters   map[string]*dataset.Filter
	filtersMu sync.Mutex

	seed func() uint64
}

// NewCatalog creates a catalog over store with an in-memory list cache
func NewCatalog(projectID string, store Store, config CacheConfig) *Catalog {
	return NewCatalogWithCache(projectID, store, NewInMemoryListCache(config))
}

// NewCatalogWithCache creates a catalog over store and cache
func NewCatalogWithCache(projectID string, store Store, cache ListCache) *Catalog {
	return &Catalog{
		projectID: projectID,
		store:     store,
		cache:     cache,
		filters:   make(map[string]*dataset.Filter),
		seed:      rand.Uint64,
	}
}

// CheckTestCases makes Create and Update reject test case ids that lookup
// does not know. Without a lookup any ids are accepted.
func (c *Catalog) CheckTestCases(lookup TestCaseLookup) *Catalog {
	c.testCases = lookup
	return c
}

func (c *Catalog) checkTestCases(ctx context.Context, ids []string) error {
	if c.testCases == nil || len(ids) == 0 {
		return nil
	}
	unknown, err := c.testCases.Missing(ctx, c.projectID, ids)
	if err != nil {
		return fmt.Errorf("failed to check test cases: %w", err)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown test case ids: %s", ErrInvalid, strings.Join(unknown, ", "))
	}
	return nil
}

// ProjectID returns the project this catalog belongs to
func (c *Catalog) ProjectID() string {
	return c.projectID
}

// Create validates and saves td, assigning an id when it has none
func (c *Catalog) Create(ctx context.Context, td *TestData) (*TestData, error) {
	if td.ID == "" {
		td.ID = uuid.NewString()
	} else if _, err := uuid.Parse(td.ID); err != nil {
		return nil, fmt.Errorf("%w: id must be a UUID", ErrInvalid)
	}
	if err := ValidateTestData(td); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	td.Name = strings.TrimSpace(td.Name)
	if td.Data == nil {
		td.Data = dataset.Dataset{}
	}
	if td.TestCaseIDs == nil {
		td.TestCaseIDs = []string{}
	}
	if err := c.checkTestCases(ctx, td.TestCaseIDs); err != nil {
		return nil, err
	}

	if err := c.store.Add(ctx, td); err != nil {
		return nil, err
	}
	c.cache.Invalidate()

	logger.Debug("Test data created", "project_id", c.projectID, "test_data_id", td.ID, "records", len(td.Data))
	return td, nil
}

// Get returns test data by id
func (c *Catalog) Get(ctx context.Context, id string) (*TestData, error) {
	return c.store.Get(ctx, id)
}

// List returns the project's test data, optionally only the active entries.
// The full list is served from the cache between mutations.
func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]*TestData, error) {
	items := c.cache.Get()
	if items == nil {
		gen := c.cache.Generation()
		var err error
		items, err = c.store.List(ctx)
		if err != nil {
			return nil, err
		}
		// a mutation during the read leaves the cache empty
		c.cache.Set(items, gen)
	}

	if !activeOnly {
		return items, nil
	}
	active := make([]*TestData, 0, len(items))
	for _, td := range items {
		if td.Active {
			active = append(active, td)
		}
	}
	return active, nil
}

// Referencing returns the ids of test data linked to a test case
func (c *Catalog) Referencing(ctx context.Context, testCaseID string) ([]string, error) {
	items, err := c.List(ctx, false)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, td := range items {
		if slices.Contains(td.TestCaseIDs, testCaseID) {
			ids = append(ids, td.ID)
		}
	}
	return ids, nil
}

// Update validates and replaces existing test data
func (c *Catalog) Update(ctx context.Context, td *TestData) (*TestData, error) {
	if err := ValidateTestData(td); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	td.Name = strings.TrimSpace(td.Name)
	if td.Data == nil {
		td.Data = dataset.Dataset{}
	}
	if td.TestCaseIDs == nil {
		td.TestCaseIDs = []string{}
	}
	if err := c.checkTestCases(ctx, td.TestCaseIDs); err != nil {
		return nil, err
	}

	if err := c.store.Update(ctx, td); err != nil {
		return nil, err
	}
	c.cache.Invalidate()
	return td, nil
}

// Delete removes test data by id
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.cache.Invalidate()
	return nil
}

// GenerateRequest describes a generation run
type GenerateRequest struct {
	Name        string
	Description string
	Template    Template
	Count       int
	Format      dataset.Format
	Active      bool
	TestCaseIDs []string

	// Seed makes the run reproducible; nil picks a random seed
	Seed *uint64

	// Save stores the result in the catalog; otherwise it is only returned
	Save bool
}

// Generate produces records from a template and optionally saves them
func (c *Catalog) Generate(ctx context.Context, req GenerateRequest) (*TestData, error) {
	seed := c.seed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	records, err := NewGenerator(seed).Generate(req.Template, req.Count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.Template.Name)
	}
	td := &TestData{
		Name:        name,
		Description: req.Description,
		Data:        records,
		Template:    req.Template,
		Format:      req.Format,
		Active:      req.Active,
		TestCaseIDs: req.TestCaseIDs,
	}

	if !req.Save {
		td.ProjectID = c.projectID
		if td.TestCaseIDs == nil {
			td.TestCaseIDs = []string{}
		}
		return td, nil
	}
	return c.Create(ctx, td)
}

// ExportOptions select and shape the records of a download
type ExportOptions struct {
	Format dataset.Format

	// Filter is an optional CEL expression over the variable row
	Filter string

	// SortBy is an optional field name; Desc reverses the order
	SortBy string
	Desc   bool

	// TableName overrides the SQL table name derived from the test data name
	TableName string
}

// Export is a rendered download
type Export struct {
	Filename    string
	ContentType string
	Body        string
	Records     int
}

// Export renders the records of test data id
func (c *Catalog) Export(ctx context.Context, id string, opts ExportOptions) (*Export, error) {
	td, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows := td.Data
	if strings.TrimSpace(opts.Filter) != "" {
		filter, err := c.filter(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid filter: %v", ErrInvalid, err)
		}
		var failed int
		rows, failed = filter.Apply(rows)
		if failed > 0 {
			logger.Warn("Filter evaluation failed for some records",
				"project_id", c.projectID, "test_data_id", id, "filter", filter.String(), "failed", failed)
		}
	}
	if opts.SortBy != "" {
		rows = dataset.SortBy(rows, opts.SortBy, opts.Desc)
	}

	return BuildExport(td.Name, rows, opts), nil
}

// BuildExport renders rows as a download named after name
func BuildExport(name string, rows dataset.Dataset, opts ExportOptions) *Export {
	table := opts.TableName
	if strings.TrimSpace(table) == "" {
		table = name
	}
	if rows == nil {
		rows = dataset.Dataset{}
	}
	return &Export{
		Filename:    ExportFilename(name, opts.Format),
		ContentType: opts.Format.MIMEType(),
		Body:        dataset.Render(rows, opts.Format, table),
		Records:     len(rows),
	}
}

// ExportFilename returns "<name>_data.<ext>" with whitespace runs in name
// replaced by underscores
func ExportFilename(name string, f dataset.Format) string {
	base := strings.Join(strings.FieldsFunc(name, unicode.IsSpace), "_")
	if base == "" {
		base = "test"
	}
	return dataset.Filename(base+"_data", f)
}

func (c *Catalog) filter(expression string) (*dataset.Filter, error) {
	c.filtersMu.Lock()
	defer c.filtersMu.Unlock()

	if f, ok := c.filters[expression]; ok {
		return f, nil
	}
	f, err := dataset.CompileFilter(expression)
	if err != nil {
		return nil, err
	}
	if len(c.filters) >= maxCachedFilters {
		clear(c.filters)
	}
	c.filters[expression] = f
	return f, nil
}
