package testdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iancoleman/orderedmap"
	"github.com/liamcoop/cstt/dataset"
)

var (
	ErrNotFound      = errors.New("test data not found")
	ErrAlreadyExists = errors.New("test data already exists")
)

// FieldType names a kind of generated value
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldText     FieldType = "text"
	FieldInteger  FieldType = "integer"
	FieldDecimal  FieldType = "decimal"
	FieldBoolean  FieldType = "boolean"
	FieldEmail    FieldType = "email"
	FieldUUID     FieldType = "uuid"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
	FieldName     FieldType = "name"
	FieldPhone    FieldType = "phone"
	FieldEnum     FieldType = "enum"
)

// Field describes one column of a template
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Constraints string    `json:"constraints,omitempty"`
}

// Fields keeps template columns in declaration order. It decodes from either
// a list of {name, type, constraints} objects or an object keyed by field
// name with {type, constraints} values, and encodes as the list form.
type Fields []Field

func (f *Fields) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = nil
		return nil
	}

	if trimmed[0] == '[' {
		var list []Field
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*f = list
		return nil
	}

	keyed := orderedmap.New()
	if err := json.Unmarshal(trimmed, keyed); err != nil {
		return fmt.Errorf("fields must be a list or an object: %w", err)
	}
	out := make(Fields, 0, len(keyed.Keys()))
	for _, name := range keyed.Keys() {
		raw, _ := keyed.Get(name)
		entry, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		var field Field
		if err := json.Unmarshal(entry, &field); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		field.Name = name
		out = append(out, field)
	}
	*f = out
	return nil
}

// Template describes how to generate a dataset
type Template struct {
	Name   string `json:"name"`
	Fields Fields `json:"fields"`
}

// TestData is a generated dataset saved against a project
type TestData struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Data        dataset.Dataset `json:"data"`
	Template    Template        `json:"template"`
	Format      dataset.Format  `json:"format"`
	Active      bool            `json:"active"`
	TestCaseIDs []string        `json:"testCaseIds"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Summary is the list view of a TestData, without its records
type Summary struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Format      dataset.Format `json:"format"`
	Active      bool           `json:"active"`
	Records     int            `json:"records"`
	Fields      []string       `json:"fields"`
	TestCaseIDs []string       `json:"testCaseIds"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Summarize builds the list view of td
func (td *TestData) Summarize() Summary {
	return Summary{
		ID:          td.ID,
		Name:        td.Name,
		Description: td.Description,
		Format:      td.Format,
		Active:      td.Active,
		Records:     len(td.Data),
		Fields:      td.Data.Fields(),
		TestCaseIDs: td.TestCaseIDs,
		CreatedAt:   td.CreatedAt,
		UpdatedAt:   td.UpdatedAt,
	}
}
