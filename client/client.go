// Package client is a Go client for the test data API.
package client

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/liamcoop/cstt/dataset"
	"github.com/liamcoop/cstt/internal/logger"
	"github.com/liamcoop/cstt/project"
	"github.com/liamcoop/cstt/testcase"
	"github.com/liamcoop/cstt/testdata"
)

const (
	RequestTimeout   = 30 * time.Second
	RetryCount       = 3
	RetryWaitTime    = 100 * time.Millisecond
	RetryWaitTimeMax = 2 * time.Second
)

// ErrUnauthorized is returned when the API rejects the stored token. The
// token has already been cleared when it is returned.
var ErrUnauthorized = errors.New("unauthorized: token is missing, invalid or expired")

// APIError is a non-2xx response carrying the API error body
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// Client calls the test data API
type Client struct {
	http   *resty.Client
	tokens TokenStore
}

// Option customises a Client
type Option func(*resty.Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetries sets how often failed requests are retried and the initial wait
func WithRetries(count int, wait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count)
		c.SetRetryWaitTime(wait)
	}
}

// New creates a client for the API at baseURL
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	if tokens == nil {
		tokens = NewMemoryTokenStore("")
	}

	c := &Client{tokens: tokens}
	c.http = resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "cstt-cli").
		SetHeader("Accept", "application/json").
		SetTimeout(RequestTimeout).
		SetRetryCount(RetryCount).
		SetRetryWaitTime(RetryWaitTime).
		SetRetryMaxWaitTime(RetryWaitTimeMax).
		AddRetryCondition(func(res *resty.Response, err error) bool {
			if res == nil || res.Request == nil || !idempotent(res.Request.Method) {
				return false
			}
			if err != nil {
				return true
			}
			switch res.StatusCode() {
			case http.StatusTooManyRequests,
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout:
				return true
			default:
				return false
			}
		}).
		OnBeforeRequest(c.attachToken)

	for _, opt := range opts {
		opt(c.http)
	}
	return c
}

// idempotent reports whether a request with method can be safely repeated.
// POST creates or generates data and is never retried.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// HTTPClient exposes the underlying *http.Client, for transports and mocks
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

func (c *Client) attachToken(_ *resty.Client, req *resty.Request) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	if token != "" {
		req.SetAuthToken(token)
	}
	return nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&APIError{})
}

// check turns transport failures and error responses into errors, clearing
// the stored token on 401
func (c *Client) check(res *resty.Response, err error) error {
	if err != nil {
		if res == nil || res.Request == nil {
			return err
		}
		return fmt.Errorf("%s %s: %w", res.Request.Method, res.Request.URL, err)
	}
	if !res.IsError() {
		return nil
	}

	if res.StatusCode() == http.StatusUnauthorized {
		logger.Warn("Unauthorized response, clearing stored token", "url", res.Request.URL)
		if clearErr := c.tokens.Clear(); clearErr != nil {
			return errors.Join(ErrUnauthorized, clearErr)
		}
		return ErrUnauthorized
	}

	apiErr, ok := res.Error().(*APIError)
	if !ok || apiErr.Message == "" {
		apiErr = &APIError{Message: http.StatusText(res.StatusCode())}
	}
	apiErr.Status = res.StatusCode()
	return apiErr
}

// Login stores token and verifies it against the API
func (c *Client) Login(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if err := c.tokens.Save(token); err != nil {
		return err
	}
	_, err := c.ListProjects(ctx)
	return err
}

// Logout forgets the stored token
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// Health is the API health report
type Health struct {
	Status         string `json:"status"`
	Storage        string `json:"storage"`
	ProjectsLoaded int    `json:"projectsLoaded"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	res, err := c.request(ctx).SetResult(&out).Get("/api/v1/health")
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download is a rendered file returned by the API
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}

func (c *Client) download(res *resty.Response, err error) (*Download, error) {
	if err := c.check(res, err); err != nil {
		return nil, err
	}

	d := &Download{
		ContentType: res.Header().Get("Content-Type"),
		Body:        res.Body(),
	}
	if _, params, err := mime.ParseMediaType(res.Header().Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	return d, nil
}

// FormatRequest asks the API to render records
type FormatRequest struct {
	Data      dataset.Data `json:"data"`
	Format    string       `json:"format"`
	TableName string       `json:"tableName,omitempty"`
	Filename  string       `json:"filename,omitempty"`
}

// Format renders data remotely
func (c *Client) Format(ctx context.Context, req FormatRequest) (*Download, error) {
	return c.download(c.request(ctx).SetBody(req).Post("/api/v1/format"))
}

func (c *Client) ListProjects(ctx context.Context) ([]*project.Project, error) {
	var out struct {
		Projects []*project.Project `json:"projects"`
	}
	res, err := c.request(ctx).SetResult(&out).Get("/api/v1/projects")
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) CreateProject(ctx context.Context, name, description string) (*project.Project, error) {
	var out project.Project
	res, err := c.request(ctx).
		SetBody(map[string]string{"name": name, "description": description}).
		SetResult(&out).
		Post("/api/v1/projects")
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func testCasesPath(projectID string) string {
	return "/api/v1/projects/" + url.PathEscape(projectID) + "/test-cases"
}

func (c *Client) ListTestCases(ctx context.Context, projectID string) ([]*testcase.TestCase, error) {
	var out struct {
		TestCases []*testcase.TestCase `json:"testCases"`
	}
	res, err := c.request(ctx).SetResult(&out).Get(testCasesPath(projectID))
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return out.TestCases, nil
}

// CreateTestCase registers tc in a project. ID, Title, Description,
// Priority and Status are sent.
func (c *Client) CreateTestCase(ctx context.Context, projectID string, tc testcase.TestCase) (*testcase.TestCase, error) {
	var out testcase.TestCase
	res, err := c.request(ctx).
		SetBody(map[string]string{
			"id":          tc.ID,
			"title":       tc.Title,
			"description": tc.Description,
			"priority":    string(tc.Priority),
			"status":      string(tc.Status),
		}).
		SetResult(&out).
		Post(testCasesPath(projectID))
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func testDataPath(projectID string, rest ...string) string {
	p := "/api/v1/projects/" + url.PathEscape(projectID) + "/test-data"
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

func (c *Client) ListTestData(ctx context.Context, projectID string, activeOnly bool) ([]testdata.Summary, error) {
	var out struct {
		TestData []testdata.Summary `json:"testData"`
	}
	req := c.request(ctx).SetResult(&out)
	if activeOnly {
		req.SetQueryParam("active", "true")
	}
	res, err := req.Get(testDataPath(projectID))
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return out.TestData, nil
}

func (c *Client) GetTestData(ctx context.Context, projectID, id string) (*testdata.TestData, error) {
	var out testdata.TestData
	res, err := c.request(ctx).SetResult(&out).Get(testDataPath(projectID, id))
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveRequest is the body for creating or replacing test data
type SaveRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Data        dataset.Dataset   `json:"data"`
	Template    testdata.Template `json:"template"`
	Format      string            `json:"format,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	TestCaseIDs []string          `json:"testCaseIds,omitempty"`
}

func (c *Client) CreateTestData(ctx context.Context, projectID string, req SaveRequest) (*testdata.TestData, error) {
	var out testdata.TestData
	res, err := c.request(ctx).SetBody(req).SetResult(&out).Post(testDataPath(projectID))
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTestData(ctx context.Context, projectID, id string) error {
	res, err := c.request(ctx).Delete(testDataPath(projectID, id))
	return c.check(res, err)
}

// GenerateRequest is the body for generating records from a template
type GenerateRequest struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Template    testdata.Template `json:"template"`
	Count       int               `json:"count,omitempty"`
	Seed        *uint64           `json:"seed,omitempty"`
	Format      string            `json:"format,omitempty"`
	Save        bool              `json:"save"`
}

func (c *Client) Generate(ctx context.Context, projectID string, req GenerateRequest) (*testdata.TestData, error) {
	var out testdata.TestData
	res, err := c.request(ctx).SetBody(req).SetResult(&out).Post(testDataPath(projectID, "generate"))
	if err := c.check(res, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadOptions select the format and records of a download
type DownloadOptions struct {
	Format    string
	Filter    string
	SortBy    string
	Desc      bool
	TableName string
}

func (c *Client) Download(ctx context.Context, projectID, id string, opts DownloadOptions) (*Download, error) {
	req := c.request(ctx).SetHeader("Accept", "*/*")
	if opts.Format != "" {
		req.SetQueryParam("format", opts.Format)
	}
	if opts.Filter != "" {
		req.SetQueryParam("filter", opts.Filter)
	}
	if opts.SortBy != "" {
		req.SetQueryParam("sort", opts.SortBy)
		req.SetQueryParam("desc", strconv.FormatBool(opts.Desc))
	}
	if opts.TableName != "" {
		req.SetQueryParam("table", opts.TableName)
	}
	return c.download(req.Get(testDataPath(projectID, id, "download")))
}
