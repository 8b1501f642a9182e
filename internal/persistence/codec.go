package persistence

import (
	"encoding/json"
	"fmt"
)

// encodeValue serializes v as JSON. A nil value encodes to nil.
func encodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("persistence: encode %T: %w", v, err)
	}
	return data, nil
}

// decodeValue deserializes JSON into a T. Empty input yields the zero T.
func decodeValue[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("persistence: decode %T: %w", v, err)
	}
	return v, nil
}

// clone returns a deep copy of v made through its JSON form, so callers
// never share maps with the store.
func clone[T any](v *T) (*T, error) {
	data, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	out, err := decodeValue[T](data)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
