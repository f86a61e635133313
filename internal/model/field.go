package model

import (
	"bytes"
	"encoding/json"
)

// Field is a three-state optional used by patch types. A field absent
// from the request leaves the stored value untouched, an explicit null
// clears it, and a value replaces it. A plain pointer cannot tell the
// first two apart.
type Field[T any] struct {
	set   bool
	null  bool
	value T
}

// SetField returns a Field carrying a value.
func SetField[T any](v T) Field[T] {
	return Field[T]{set: true, value: v}
}

// NullField returns a Field that explicitly clears the target.
func NullField[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

// IsSet reports whether the field was present in the request at all.
func (f Field[T]) IsSet() bool {
	return f.set
}

// IsNull reports whether the field was present and explicitly null.
func (f Field[T]) IsNull() bool {
	return f.set && f.null
}

// Get returns the value and whether a non-null value is present.
func (f Field[T]) Get() (T, bool) {
	if !f.set || f.null {
		var zero T
		return zero, false
	}
	return f.value, true
}

// Ptr returns the value as a pointer, nil when unset or null.
func (f Field[T]) Ptr() *T {
	if v, ok := f.Get(); ok {
		return &v
	}
	return nil
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.set = true
	if bytes.Equal(data, []byte("null")) {
		f.null = true
		return nil
	}
	return json.Unmarshal(data, &f.value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set || f.null {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}
