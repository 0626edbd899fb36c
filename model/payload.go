package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Value implements driver.Valuer so Payload can be written as a sqlite
// TEXT/JSON column.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for reading a Payload column back.
func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = Payload{}
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported payload scan type %T", value)
	}

	if len(b) == 0 {
		*p = Payload{}
		return nil
	}

	m := Payload{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	*p = m
	return nil
}
