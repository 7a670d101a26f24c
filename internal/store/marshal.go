package store

import (
	"encoding/json"
	"fmt"
)

// marshalFlags serializes a per-viewer flag map into a TEXT column.
// Nil and empty maps serialize to "{}" so the column is never NULL.
func marshalFlags[T any](m map[string]T) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal viewer flags: %w", err)
	}
	return string(b), nil
}

// unmarshalFlags deserializes a viewer flag column. An empty object
// comes back as a nil map, matching an entity no viewer has touched.
func unmarshalFlags[T any](s string) (map[string]T, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]T
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshal viewer flags: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
