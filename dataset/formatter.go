package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/iancoleman/orderedmap"
	"github.com/liamcoop/cstt/internal/logger"
)

// maxVarcharLength is the longest string still typed as VARCHAR(255)
const maxVarcharLength = 255

// Render converts data into the requested format. It never fails: when the
// CSV or SQL conversion hits a value it cannot serialise, the failure is
// logged and the pretty-printed JSON of data is returned instead.
//
// tableName is only used by FormatSQL; it is normalised with TableName.
func Render(data Data, format Format, tableName string) string {
	if isNil(data) {
		return ""
	}

	var (
		out string
		err error
	)
	switch format {
	case FormatCSV:
		out, err = renderCSV(data.rows())
	case FormatSQL:
		out, err = renderSQL(data.rows(), TableName(tableName))
	case FormatJSON:
		return prettyJSONOrEmpty(data)
	default:
		return prettyJSONOrEmpty(data)
	}

	if err != nil {
		logger.ErrorConversion(format.String(), err)
		return prettyJSONOrEmpty(data)
	}
	return out
}

// RenderString is Render with a format given by name; unknown names render
// as JSON.
func RenderString(data Data, format string, tableName string) string {
	f, _ := ParseFormat(format)
	return Render(data, f, tableName)
}

// PrettyJSON encodes v with two-space indentation and no HTML escaping
func PrettyJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func prettyJSONOrEmpty(data Data) string {
	out, err := PrettyJSON(data)
	if err != nil {
		logger.Error("Dataset JSON encoding failed", "error", err)
		return ""
	}
	return out
}

func renderCSV(rows Dataset) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}

	headers := rows.Fields()
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(headers, ","))

	cells := make([]string, len(headers))
	for i, row := range rows {
		for j, header := range headers {
			value, _ := row.Get(header)
			cell, err := csvCell(value)
			if err != nil {
				return "", fmt.Errorf("row %d field %q: %w", i, header, err)
			}
			cells[j] = cell
		}
		lines = append(lines, strings.Join(cells, ","))
	}

	return strings.Join(lines, "\n"), nil
}

func csvCell(value any) (string, error) {
	var text string
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		text = v
	case time.Time:
		text = v.Format(time.RFC3339Nano)
	default:
		encoded, err := jsonLiteral(value)
		if err != nil {
			return "", err
		}
		text = encoded
	}
	if strings.ContainsAny(text, `,"`) {
		return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`, nil
	}
	return text, nil
}

func renderSQL(rows Dataset, table string) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}

	fields := rows.Fields()
	first := rows[0]

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(table)
	b.WriteString(" (\n")
	for i, field := range fields {
		value, _ := first.Get(field)
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("    ")
		b.WriteString(field)
		b.WriteByte(' ')
		b.WriteString(InferSQLType(value))
	}
	b.WriteString("\n);\n\n")

	columns := strings.Join(fields, ", ")
	values := make([]string, len(fields))
	for i, row := range rows {
		for j, field := range fields {
			value, _ := row.Get(field)
			literal, err := sqlLiteral(value)
			if err != nil {
				return "", fmt.Errorf("row %d field %q: %w", i, field, err)
			}
			values[j] = literal
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s);", table, columns, strings.Join(values, ", "))
	}

	return b.String(), nil
}

func sqlLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteSQL(v), nil
	case time.Time:
		return quoteSQL(v.Format(time.RFC3339Nano)), nil
	case *time.Time:
		if v == nil {
			return "NULL", nil
		}
		return quoteSQL(v.Format(time.RFC3339Nano)), nil
	}

	encoded, err := jsonLiteral(value)
	if err != nil {
		return "", err
	}
	if _, _, isNumber := numberValue(value); isNumber {
		return encoded, nil
	}
	if _, isBool := value.(bool); isBool {
		return encoded, nil
	}
	// nested objects and arrays go in as JSON text
	return quoteSQL(encoded), nil
}

func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// InferSQLType returns the column type used for a value in CREATE TABLE
func InferSQLType(value any) string {
	if _, isInt, isNumber := numberValue(value); isNumber {
		if isInt {
			return "INTEGER"
		}
		return "DECIMAL(10,2)"
	}

	switch v := value.(type) {
	case bool:
		return "BOOLEAN"
	case string:
		if utf16Length(v) > maxVarcharLength {
			return "TEXT"
		}
		return "VARCHAR(255)"
	default:
		return "TEXT"
	}
}

// numberValue reports whether value is numeric, its float value, and whether
// it holds an integer
func numberValue(value any) (f float64, isInt bool, ok bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true, true
	case int8:
		return float64(v), true, true
	case int16:
		return float64(v), true, true
	case int32:
		return float64(v), true, true
	case int64:
		return float64(v), true, true
	case uint:
		return float64(v), true, true
	case uint8:
		return float64(v), true, true
	case uint16:
		return float64(v), true, true
	case uint32:
		return float64(v), true, true
	case uint64:
		return float64(v), true, true
	case float32:
		return float64(v), isWhole(float64(v)), true
	case float64:
		return v, isWhole(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return float64(i), true, true
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, false, false
		}
		return parsed, isWhole(parsed), true
	default:
		return 0, false, false
	}
}

func isWhole(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && math.Trunc(f) == f
}

// jsonLiteral encodes a single value as compact JSON without HTML escaping
func jsonLiteral(value any) (string, error) {
	if m, ok := value.(orderedmap.OrderedMap); ok {
		m.SetEscapeHTML(false)
		value = m
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// utf16Length counts UTF-16 code units, the unit browsers use for string length
func utf16Length(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
