package shape

import (
	"fmt"
	"reflect"
)

type absent struct{}

func (absent) String() string { return "<absent>" }

type null struct{}

func (null) String() string { return "<null>" }

var (
	// Absent marks a value that does not exist at all. A record key holding
	// Absent is treated as missing, and Project returns Absent when there is
	// nothing to return.
	Absent any = absent{}

	// Null is only needed for defaults: Field{Default: Null} falls back to an
	// explicit null, whereas a nil Default means there is no default. Inside
	// raw input a plain nil is the explicit null.
	Null any = null{}
)

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(absent)
	return ok
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(null)
	return ok
}

// State is the tri-state classification of a resolved field.
type State uint8

const (
	StateAbsent State = iota
	StateNull
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateNull:
		return "null"
	case StatePresent:
		return "present"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Resolved is the outcome of looking a field up in a raw record, before
// coercion. Value is nil unless State is StatePresent.
type Resolved struct {
	State State
	Value any
}

func resolvedOf(v any) Resolved {
	switch {
	case v == nil:
		return Resolved{State: StateNull}
	case IsAbsent(v):
		return Resolved{State: StateAbsent}
	case isNull(v):
		return Resolved{State: StateNull}
	default:
		return Resolved{State: StatePresent, Value: v}
	}
}

func (r Resolved) clone() Resolved {
	if r.State == StatePresent {
		r.Value = cloneValue(r.Value)
	}
	return r
}

// cloneValue deep copies the maps and slices that decoding produces.
// Other values are returned as they are.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// Raw returns the resolved value as raw input: nil for null, Absent for absent.
func (r Resolved) Raw() any {
	switch r.State {
	case StatePresent:
		return r.Value
	case StateNull:
		return nil
	default:
		return Absent
	}
}

///////////////////////////////////////////////////////////////////////////////
// Shape helpers
///////////////////////////////////////////////////////////////////////////////

// asRecord returns v as a string keyed map. Other string keyed map types
// are copied through reflection.
func asRecord(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Schema:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	if rv.IsNil() {
		return nil, false
	}

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSequence returns v as []any. Byte slices are text, and fixed size
// arrays (uuid.UUID among them) are scalars, so neither is a sequence. A
// nil slice of any type is an empty sequence.
func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// lookup reports the value stored under key, treating a stored Absent as
// a missing key.
func lookup(record map[string]any, key string) (any, bool) {
	v, ok := record[key]
	if !ok || IsAbsent(v) {
		return nil, false
	}
	return v, true
}
