package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document is an open structured value stored as JSON text, used for the columns
// whose shape depends on the source (result summaries, metadata, metrics).
// A nil Document is stored as NULL.
type Document map[string]any

func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	buff, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return string(buff), nil
}

func (d *Document) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan document: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}

	var out map[string]any
	err := json.Unmarshal(raw, &out)
	if err != nil {
		return fmt.Errorf("scan document: %w", err)
	}
	*d = out
	return nil
}

// ToDocument converts any json serializable value into a Document.
func ToDocument(v any) (Document, error) {
	if v == nil {
		return nil, nil
	}
	buff, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var out Document
	err = json.Unmarshal(buff, &out)
	if err != nil {
		return nil, fmt.Errorf("document must be a json object: %w", err)
	}
	return out, nil
}
