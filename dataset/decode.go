package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedShape is returned by Decode for JSON that is neither an
// object nor an array of objects
var ErrUnsupportedShape = errors.New("data must be a JSON object or an array of objects")

// Decode parses a JSON payload into Data. An array of objects becomes a
// Dataset, a single object becomes a *Record, and null or an empty payload
// yields nil.
func Decode(payload []byte) (Data, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		r := NewRecord()
		if err := json.Unmarshal(trimmed, r); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		return r, nil
	case '[':
		ds, err := DecodeDataset(trimmed)
		if err != nil {
			return nil, err
		}
		return ds, nil
	default:
		return nil, ErrUnsupportedShape
	}
}

// DecodeDataset parses a JSON array of objects
func DecodeDataset(payload []byte) (Dataset, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}

	ds := make(Dataset, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("record %d: %w", i, ErrUnsupportedShape)
		}
		r := NewRecord()
		if err := json.Unmarshal(item, r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		ds = append(ds, r)
	}
	return ds, nil
}

// UnmarshalJSON lets a Dataset be embedded in request and storage structs
func (d *Dataset) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*d = nil
		return nil
	}
	ds, err := DecodeDataset(b)
	if err != nil {
		return err
	}
	*d = ds
	return nil
}
