package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/iancoleman/orderedmap"
)

// Record is a single flat row of generated test data.
// Field order is the order in which fields were first set (or decoded).
type Record struct {
	fields *orderedmap.OrderedMap
}

// NewRecord creates an empty record
func NewRecord() *Record {
	m := orderedmap.New()
	m.SetEscapeHTML(false)
	return &Record{fields: m}
}

// RecordOf builds a record from alternating key/value arguments.
// It panics on an odd argument count or a non-string key, so it is meant for
// literals in code and tests.
func RecordOf(kv ...any) *Record {
	if len(kv)%2 != 0 {
		panic("dataset.RecordOf: odd number of arguments")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("dataset.RecordOf: key at position %d is %T, not string", i, kv[i]))
		}
		r.Set(key, kv[i+1])
	}
	return r
}

// Set stores a value, appending the key if it is new
func (r *Record) Set(key string, value any) {
	r.ensure()
	r.fields.Set(key, value)
}

// Get returns the value stored under key and whether the key is present
func (r *Record) Get(key string) (any, bool) {
	if r == nil || r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Keys returns the field names in insertion order
func (r *Record) Keys() []string {
	if r == nil || r.fields == nil {
		return nil
	}
	keys := r.fields.Keys()
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// Len returns the number of fields
func (r *Record) Len() int {
	if r == nil || r.fields == nil {
		return 0
	}
	return len(r.fields.Keys())
}

// Map returns the record as a plain map, converting nested ordered objects
// as well. Used where key order does not matter (CEL evaluation).
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.Len())
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		out[k] = plain(v)
	}
	return out
}

func (r *Record) ensure() {
	if r.fields == nil {
		r.fields = orderedmap.New()
		r.fields.SetEscapeHTML(false)
	}
}

func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	r.ensure()
	return r.fields.MarshalJSON()
}

func (r *Record) UnmarshalJSON(b []byte) error {
	m := orderedmap.New()
	m.SetEscapeHTML(false) // inherited by nested objects while decoding
	if err := json.Unmarshal(b, m); err != nil {
		return err
	}
	r.fields = m
	return nil
}

// Dataset is an ordered sequence of records assumed to share the field set
// of the first record.
type Dataset []*Record

// Fields returns the field names of the first record
func (d Dataset) Fields() []string {
	if len(d) == 0 {
		return nil
	}
	return d[0].Keys()
}

func (d Dataset) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := r.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Data is the input accepted by Render: a Dataset, or a single *Record
// which is treated as a one-element Dataset.
type Data interface {
	rows() Dataset
}

func (d Dataset) rows() Dataset { return d }

func (r *Record) rows() Dataset {
	if r == nil {
		return nil
	}
	return Dataset{r}
}

// Rows returns data as a Dataset
func Rows(data Data) Dataset {
	if isNil(data) {
		return nil
	}
	return data.rows()
}

func isNil(data Data) bool {
	if data == nil {
		return true
	}
	if r, ok := data.(*Record); ok && r == nil {
		return true
	}
	return false
}

// plain converts nested ordered maps into map[string]any
func plain(v any) any {
	switch val := v.(type) {
	case orderedmap.OrderedMap:
		return plainMap(&val)
	case *orderedmap.OrderedMap:
		return plainMap(val)
	case *Record:
		return val.Map()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}

func plainMap(m *orderedmap.OrderedMap) map[string]any {
	out := make(map[string]any, len(m.Keys()))
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out[k] = plain(v)
	}
	return out
}
