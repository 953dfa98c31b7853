package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap, JSONSlice, and StringSlice store arbitrary JSON-shaped columns
// (Postgres jsonb) through GORM's Scanner/Valuer hooks, the same pattern the
// teacher's services use for free-form metadata columns.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := asBytes(value)
	if !ok {
		return errors.New("models: JSONMap.Scan: unsupported type")
	}
	return json.Unmarshal(b, m)
}

type JSONSlice []any

func (s JSONSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *JSONSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	b, ok := asBytes(value)
	if !ok {
		return errors.New("models: JSONSlice.Scan: unsupported type")
	}
	return json.Unmarshal(b, s)
}

type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	b, ok := asBytes(value)
	if !ok {
		return errors.New("models: StringSlice.Scan: unsupported type")
	}
	return json.Unmarshal(b, s)
}

func asBytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
