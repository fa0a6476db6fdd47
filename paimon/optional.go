package paimon

import (
	"bytes"
	"encoding/json"
)

type optionalState uint8

const (
	stateAbsent optionalState = iota
	stateNull
	statePresent
)

// Optional is a snapshot field that is absent, explicitly null, or set. The
// zero value is absent. With the omitzero tag an absent field is left out of
// the document while a null one is written as null.
type Optional[T any] struct {
	state optionalState
	value T
}

func Some[T any](v T) Optional[T] { return Optional[T]{state: statePresent, value: v} }

func Null[T any]() Optional[T] { return Optional[T]{state: stateNull} }

// Get returns the value and whether it is set.
func (o Optional[T]) Get() (T, bool) { return o.value, o.state == statePresent }

// OrElse returns the value, or def when absent or null.
func (o Optional[T]) OrElse(def T) T {
	if o.state == statePresent {
		return o.value
	}
	return def
}

func (o Optional[T]) IsSet() bool    { return o.state == statePresent }
func (o Optional[T]) IsNull() bool   { return o.state == stateNull }
func (o Optional[T]) IsAbsent() bool { return o.state == stateAbsent }

// IsZero lets encoding/json omit absent fields.
func (o Optional[T]) IsZero() bool { return o.state == stateAbsent }

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.state != statePresent {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.state, o.value = stateNull, zero
		return nil
	}
	if err := json.Unmarshal(data, &o.value); err != nil {
		return err
	}
	o.state = statePresent
	return nil
}
