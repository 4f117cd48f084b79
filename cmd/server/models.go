package main

import (
	"encoding/json"

	"github.com/liamcoop/cstt/dataset"
	"github.com/liamcoop/cstt/project"
	"github.com/liamcoop/cstt/testcase"
	"github.com/liamcoop/cstt/testdata"
)

// API request and response models

// FormatRequest asks for records to be rendered. Unknown formats render as JSON.
type FormatRequest struct {
	Data      json.RawMessage `json:"data"`
	Format    string          `json:"format" validate:"max=16"`
	TableName string          `json:"tableName" validate:"max=63"`
	Filename  string          `json:"filename" validate:"max=200"`
}

// CreateProjectRequest represents the request body for creating a project
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// ProjectsListResponse represents the response for listing projects
type ProjectsListResponse struct {
	Projects []*project.Project `json:"projects"`
}

// SaveTestCaseRequest represents the body for creating or updating a test
// case. ID is only read on create.
type SaveTestCaseRequest struct {
	ID          string `json:"id" validate:"omitempty,max=100"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=Low Medium High Critical"`
	Status      string `json:"status" validate:"omitempty,oneof=Draft Pending Passed Failed"`
}

// TestCasesListResponse represents the response for listing test cases
type TestCasesListResponse struct {
	TestCases []*testcase.TestCase `json:"testCases"`
}

// SaveTestDataRequest represents the body for creating or replacing test data
type SaveTestDataRequest struct {
	ID          string            `json:"id" validate:"omitempty,uuid"`
	Name        string            `json:"name" validate:"required,max=200"`
	Description string            `json:"description" validate:"max=2000"`
	Data        dataset.Dataset   `json:"data" validate:"max=10000"`
	Template    testdata.Template `json:"template"`
	Format      string            `json:"format" validate:"omitempty,oneof=json csv sql JSON CSV SQL"`
	Active      *bool             `json:"active"`
	TestCaseIDs []string          `json:"testCaseIds" validate:"max=500,dive,required,max=100"`
}

// GenerateRequest represents the body for generating records from a template
type GenerateRequest struct {
	Name        string            `json:"name" validate:"max=200"`
	Description string            `json:"description" validate:"max=2000"`
	Template    testdata.Template `json:"template"`
	Count       int               `json:"count" validate:"gte=0,lte=10000"`
	Seed        *uint64           `json:"seed"`
	Format      string            `json:"format" validate:"omitempty,oneof=json csv sql JSON CSV SQL"`
	Active      *bool             `json:"active"`
	TestCaseIDs []string          `json:"testCaseIds" validate:"max=500,dive,required,max=100"`
	Save        bool              `json:"save"`
}

// TestDataListResponse represents the response for listing test data
type TestDataListResponse struct {
	TestData []testdata.Summary `json:"testData"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string `json:"status"`
	Storage        string `json:"storage"`
	ProjectsLoaded int    `json:"projectsLoaded"`
	Error          string `json:"error,omitempty"`
}
