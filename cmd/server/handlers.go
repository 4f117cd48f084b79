package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/liamcoop/cstt/dataset"
	"github.com/liamcoop/cstt/internal/logger"
	"github.com/liamcoop/cstt/project"
	"github.com/liamcoop/cstt/testcase"
	"github.com/liamcoop/cstt/testdata"
)

// maxBodyBytes bounds request bodies; 10000 generated records fit well within
const maxBodyBytes = 32 << 20

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		Storage:        "memory",
		ProjectsLoaded: len(s.manager.Loaded()),
	}
	if s.db != nil {
		resp.Storage = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Stateless formatting handler
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var req FormatRequest
	if !s.decode(w, r, &req) {
		return
	}

	data, err := dataset.Decode(req.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid data", err)
		return
	}

	format, _ := dataset.ParseFormat(req.Format)
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = "data"
	}

	body := dataset.Render(data, format, req.TableName)
	s.metrics.exports.WithLabelValues(format.String(), "format").Inc()
	respondFile(w, dataset.Filename(name, format), format.MIMEType(), body)
}

// List projects handler
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.manager.List(r.Context())
	if err != nil {
		respondServiceError(w, "failed to list projects", err)
		return
	}
	if projects == nil {
		projects = []*project.Project{}
	}
	respondJSON(w, http.StatusOK, ProjectsListResponse{Projects: projects})
}

// Create project handler
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !s.decode(w, r, &req) {
		return
	}

	p, err := s.manager.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		respondServiceError(w, "failed to create project", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// List test cases handler
func (s *Server) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.manager.TestCases(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		respondServiceError(w, "failed to list test cases", err)
		return
	}
	respondJSON(w, http.StatusOK, TestCasesListResponse{TestCases: cases})
}

// Create test case handler
func (s *Server) handleCreateTestCase(w http.ResponseWriter, r *http.Request) {
	var req SaveTestCaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	tc, err := s.manager.CreateTestCase(r.Context(), chi.URLParam(r, "projectId"), req.toTestCase())
	if err != nil {
		respondServiceError(w, "failed to create test case", err)
		return
	}
	respondJSON(w, http.StatusCreated, tc)
}

// Get test case handler
func (s *Server) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	tc, err := s.manager.TestCase(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "testCaseId"))
	if err != nil {
		respondServiceError(w, "test case not found", err)
		return
	}
	respondJSON(w, http.StatusOK, tc)
}

// Update test case handler
func (s *Server) handleUpdateTestCase(w http.ResponseWriter, r *http.Request) {
	var req SaveTestCaseRequest
	if !s.decode(w, r, &req) {
		return
	}

	tc := req.toTestCase()
	tc.ID = chi.URLParam(r, "testCaseId")
	updated, err := s.manager.UpdateTestCase(r.Context(), chi.URLParam(r, "projectId"), tc)
	if err != nil {
		respondServiceError(w, "failed to update test case", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// Delete test case handler
func (s *Server) handleDeleteTestCase(w http.ResponseWriter, r *http.Request) {
	err := s.manager.DeleteTestCase(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "testCaseId"))
	if err != nil {
		respondServiceError(w, "failed to delete test case", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req SaveTestCaseRequest) toTestCase() *testcase.TestCase {
	return &testcase.TestCase{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    testcase.Priority(req.Priority),
		Status:      testcase.Status(req.Status),
	}
}

// catalog resolves the {projectId} of the request, writing a 404 when the
// project does not exist
func (s *Server) catalog(w http.ResponseWriter, r *http.Request) (*testdata.Catalog, bool) {
	cat, err := s.manager.Catalog(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		respondServiceError(w, "project not found", err)
		return nil, false
	}
	return cat, true
}

// List test data handler
func (s *Server) handleListTestData(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	items, err := cat.List(r.Context(), activeOnly)
	if err != nil {
		respondServiceError(w, "failed to list test data", err)
		return
	}

	summaries := make([]testdata.Summary, 0, len(items))
	for _, td := range items {
		summaries = append(summaries, td.Summarize())
	}
	respondJSON(w, http.StatusOK, TestDataListResponse{TestData: summaries})
}

// Create test data handler
func (s *Server) handleCreateTestData(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	var req SaveTestDataRequest
	if !s.decode(w, r, &req) {
		return
	}

	td := req.toTestData()
	if req.Active == nil {
		td.Active = true
	}

	created, err := cat.Create(r.Context(), td)
	if err != nil {
		respondServiceError(w, "failed to create test data", err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// Generate handler
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}

	format, _ := dataset.ParseFormat(req.Format)
	active := req.Active == nil || *req.Active
	td, err := cat.Generate(r.Context(), testdata.GenerateRequest{
		Name:        req.Name,
		Description: req.Description,
		Template:    req.Template,
		Count:       req.Count,
		Format:      format,
		Active:      active,
		TestCaseIDs: req.TestCaseIDs,
		Seed:        req.Seed,
		Save:        req.Save,
	})
	if err != nil {
		respondServiceError(w, "failed to generate test data", err)
		return
	}

	s.metrics.records.WithLabelValues(strconv.FormatBool(req.Save)).Add(float64(len(td.Data)))
	status := http.StatusOK
	if req.Save {
		status = http.StatusCreated
	}
	respondJSON(w, status, td)
}

// Get test data handler
func (s *Server) handleGetTestData(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	td, err := cat.Get(r.Context(), chi.URLParam(r, "testDataId"))
	if err != nil {
		respondServiceError(w, "test data not found", err)
		return
	}
	respondJSON(w, http.StatusOK, td)
}

// Update test data handler
func (s *Server) handleUpdateTestData(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "testDataId")
	existing, err := cat.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, "test data not found", err)
		return
	}

	var req SaveTestDataRequest
	if !s.decode(w, r, &req) {
		return
	}

	td := req.toTestData()
	td.ID = id
	if req.Active == nil {
		td.Active = existing.Active
	}

	updated, err := cat.Update(r.Context(), td)
	if err != nil {
		respondServiceError(w, "failed to update test data", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// Delete test data handler
func (s *Server) handleDeleteTestData(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	if err := cat.Delete(r.Context(), chi.URLParam(r, "testDataId")); err != nil {
		respondServiceError(w, "test data not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download handler: ?format=&filter=&sort=&desc=&table=
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.catalog(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "testDataId")
	q := r.URL.Query()

	opts := testdata.ExportOptions{
		Filter:    q.Get("filter"),
		SortBy:    q.Get("sort"),
		TableName: q.Get("table"),
	}
	if raw := q.Get("desc"); raw != "" {
		desc, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "desc must be a boolean", err)
			return
		}
		opts.Desc = desc
	}

	if name := q.Get("format"); name != "" {
		opts.Format, _ = dataset.ParseFormat(name)
	} else {
		td, err := cat.Get(r.Context(), id)
		if err != nil {
			respondServiceError(w, "test data not found", err)
			return
		}
		opts.Format = td.Format
	}

	exp, err := cat.Export(r.Context(), id, opts)
	if err != nil {
		respondServiceError(w, "failed to export test data", err)
		return
	}

	s.metrics.exports.WithLabelValues(opts.Format.String(), "download").Inc()
	respondFile(w, exp.Filename, exp.ContentType, exp.Body)
}

func (req SaveTestDataRequest) toTestData() *testdata.TestData {
	format, _ := dataset.ParseFormat(req.Format)
	td := &testdata.TestData{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Data:        req.Data,
		Template:    req.Template,
		Format:      format,
		TestCaseIDs: req.TestCaseIDs,
	}
	if req.Active != nil {
		td.Active = *req.Active
	}
	return td
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", validationError(err))
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation (%s)", field, e.ActualTag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", field, e.ActualTag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// respondServiceError maps domain errors onto HTTP statuses
func respondServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, testdata.ErrNotFound), errors.Is(err, project.ErrNotFound), errors.Is(err, testcase.ErrNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, testdata.ErrAlreadyExists), errors.Is(err, project.ErrAlreadyExists),
		errors.Is(err, testcase.ErrAlreadyExists), errors.Is(err, testcase.ErrInUse):
		respondError(w, http.StatusConflict, message, err)
	case errors.Is(err, testdata.ErrInvalid), errors.Is(err, project.ErrInvalid), errors.Is(err, testcase.ErrInvalid):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		logger.Error("Request failed", "message", message, "error", err)
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		logger.Error("Failed to encode response", "status", status, "error", err)
		buf.Reset()
		status = http.StatusInternalServerError
		enc.Encode(ErrorResponse{Error: "failed to encode response", Details: err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

func respondFile(w http.ResponseWriter, filename, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}
