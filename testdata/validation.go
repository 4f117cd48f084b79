package testdata

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxTemplateFields   = 200
	maxIdentifierLength = 63 // PostgreSQL NAMEDATALEN - 1
	maxNameLength       = 200
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTemplate checks that a template can be generated and that its field
// names are usable as SQL column names in exports
func ValidateTemplate(t Template) error {
	if len(strings.TrimSpace(t.Name)) > maxNameLength {
		return fmt.Errorf("template name exceeds maximum of %d characters", maxNameLength)
	}

	if len(t.Fields) == 0 {
		return fmt.Errorf("template must contain at least one field")
	}
	if len(t.Fields) > maxTemplateFields {
		return fmt.Errorf("template contains %d fields, maximum allowed is %d", len(t.Fields), maxTemplateFields)
	}

	seen := make(map[string]bool, len(t.Fields))
	for _, field := range t.Fields {
		if err := validateIdentifier(field.Name); err != nil {
			return fmt.Errorf("invalid field name %q: %w", field.Name, err)
		}

		lower := strings.ToLower(field.Name)
		if seen[lower] {
			return fmt.Errorf("duplicate field name %q", field.Name)
		}
		seen[lower] = true

		if field.Type == "" {
			return fmt.Errorf("field %q has empty type", field.Name)
		}
		if !isKnownFieldType(field.Type) {
			return fmt.Errorf("field %q has invalid type %q (must be one of: %s)", field.Name, field.Type, strings.Join(fieldTypeNames(), ", "))
		}

		if _, err := ParseConstraints(field.Type, field.Constraints); err != nil {
			return fmt.Errorf("field %q has invalid constraints: %w", field.Name, err)
		}
	}

	return nil
}

// ValidateTestData checks the fields a caller supplies when saving test data
func ValidateTestData(td *TestData) error {
	name := strings.TrimSpace(td.Name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name exceeds maximum of %d characters", maxNameLength)
	}
	if len(td.Template.Fields) > 0 {
		if err := ValidateTemplate(td.Template); err != nil {
			return err
		}
	}
	for i, r := range td.Data {
		if r == nil {
			return fmt.Errorf("record %d is null", i)
		}
	}
	return nil
}

// validateIdentifier enforces ^[a-zA-Z_][a-zA-Z0-9_]*$, a length of 1-63 and
// no SQL reserved words
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

var fieldTypes = []FieldType{
	FieldString, FieldText, FieldInteger, FieldDecimal, FieldBoolean, FieldEmail,
	FieldUUID, FieldDate, FieldDateTime, FieldName, FieldPhone, FieldEnum,
}

func isKnownFieldType(ft FieldType) bool {
	for _, known := range fieldTypes {
		if ft == known {
			return true
		}
	}
	return false
}

func fieldTypeNames() []string {
	names := make([]string, len(fieldTypes))
	for i, ft := range fieldTypes {
		names[i] = string(ft)
	}
	return names
}

// isReservedKeyword reports SQL keywords that cannot appear unquoted as
// column names in the generated CREATE TABLE statement
func isReservedKeyword(name string) bool {
	reserved := map[string]bool{
		"all": true, "and": true, "as": true, "asc": true, "between": true,
		"by": true, "case": true, "check": true, "column": true, "constraint": true,
		"create": true, "default": true, "delete": true, "desc": true, "distinct": true,
		"drop": true, "else": true, "end": true, "exists": true, "false": true,
		"from": true, "grant": true, "group": true, "having": true, "in": true,
		"index": true, "insert": true, "into": true, "is": true, "join": true,
		"key": true, "like": true, "limit": true, "not": true, "null": true,
		"offset": true, "on": true, "or": true, "order": true, "primary": true,
		"references": true, "select": true, "set": true, "table": true, "then": true,
		"to": true, "true": true, "union": true, "unique": true, "update": true,
		"user": true, "values": true, "when": true, "where": true, "with": true,
	}
	return reserved[strings.ToLower(name)]
}
