package dataset

import (
	"strings"
	"unicode"
)

// Format is an output format supported by Render
type Format int

const (
	FormatJSON Format = iota
	FormatCSV
	FormatSQL
)

// DefaultTableName is used by the SQL format when no table name is supplied
const DefaultTableName = "test_data_table"

// Formats lists every supported format
var Formats = []Format{FormatJSON, FormatCSV, FormatSQL}

// ParseFormat maps a format name onto Format, ignoring case and surrounding
// whitespace. Unknown names map to FormatJSON with ok == false.
func ParseFormat(name string) (f Format, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, true
	case "csv":
		return FormatCSV, true
	case "sql":
		return FormatSQL, true
	default:
		return FormatJSON, false
	}
}

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatSQL:
		return "sql"
	default:
		return "json"
	}
}

// Extension is the file extension used for downloads (without the dot)
func (f Format) Extension() string {
	return f.String()
}

// MIMEType is the content type of a rendered download
func (f Format) MIMEType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatSQL:
		return "application/sql"
	default:
		return "application/json"
	}
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts any string; unknown names decode as FormatJSON
func (f *Format) UnmarshalText(b []byte) error {
	*f, _ = ParseFormat(string(b))
	return nil
}

// Filename joins a download name and the format extension
func Filename(name string, f Format) string {
	return name + "." + f.Extension()
}

// TableName derives an SQL table identifier from a display name: lower-cased,
// with every run of whitespace replaced by a single underscore. A blank name
// yields DefaultTableName.
func TableName(name string) string {
	if strings.TrimSpace(name) == "" {
		return DefaultTableName
	}

	var b strings.Builder
	inSpace := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
