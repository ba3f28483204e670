package domain

import (
	"bytes"
	"encoding/json"
)

// Optional is a three-state field for partial updates:
//   - absent (Set == false): keep the stored value
//   - null (Set && !Valid): clear the stored value
//   - value (Set && Valid): overwrite with Value
//
// Use the `omitzero` JSON tag option so absent fields are not encoded.
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Some returns a set, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: v}
}

// Null returns a set Optional holding null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// Ptr returns a pointer to the value, or nil when absent or null.
func (o Optional[T]) Ptr() *T {
	if !o.Set || !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// IsZero reports whether the field was absent. Used by encoding/json omitzero.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked when the key
// is present, which is what distinguishes absent from null.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Valid = false
		var zero T
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
