package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB holds a raw jsonb column value. Documents are stored as received
// so the payload survives schema drift between sites.
type JSONB []byte

func (j *JSONB) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
	*j = append((*j)[:0], b...)
	return nil
}

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONB) UnmarshalJSON(b []byte) error {
	*j = append((*j)[:0], b...)
	return nil
}

// Unmarshal decodes the stored value into dest.
func (j JSONB) Unmarshal(dest any) error {
	return json.Unmarshal(j, dest)
}

// NewJSONB encodes v for storage.
func NewJSONB(v any) (JSONB, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONB(b), nil
}
