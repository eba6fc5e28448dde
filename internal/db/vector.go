package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Vector stores an embedding as a jsonb array of float64. A nil Vector maps
// to SQL NULL so themes without embeddings stay distinguishable from themes
// with a zero vector.
type Vector []float64

func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float64(v))
	if err != nil {
		return nil, fmt.Errorf("marshal vector: %w", err)
	}
	return data, nil
}

func (v *Vector) Scan(src any) error {
	if v == nil {
		return fmt.Errorf("scan into nil Vector")
	}
	if src == nil {
		*v = nil
		return nil
	}

	var data []byte
	switch value := src.(type) {
	case []byte:
		data = value
	case string:
		data = []byte(value)
	default:
		return fmt.Errorf("unsupported vector source type %T", src)
	}

	var out []float64
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal vector: %w", err)
	}
	*v = out
	return nil
}

// GormDataType keeps gorm's auto-migration on jsonb for this type.
func (Vector) GormDataType() string { return "jsonb" }
