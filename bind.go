package shape

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

var (
	ErrInvalidBindTarget = errors.New("bind target must be a non nil pointer to a struct or a slice of structs")
	ErrCannotAssign      = errors.New("cannot assign projected value")
)

// Bind projects input through the schema derived from dest's type and
// stores the result in dest. dest is a pointer to a struct, or a pointer
// to a slice of structs for sequence input.
//
// Projection itself never fails on bad values; Bind only fails when a
// projected value does not fit its Go field, such as NaN for an int.
// Absent input zeroes dest.
func (p *Projector) Bind(input any, dest any) error {
	target, elem, err := bindTarget(dest)
	if err != nil {
		return err
	}

	schema, err := SchemaOf(elem)
	if err != nil {
		return err
	}

	out, err := p.Project(schema, input)
	if err != nil {
		return err
	}
	if IsAbsent(out) {
		target.SetZero()
		return nil
	}

	return setValue(target, out, RootPath)
}

// BindFrom decodes source with the registered decoder for its type and
// binds the result into dest.
func (p *Projector) BindFrom(source any, dest any) error {
	decoder, err := p.decoders.getDecoderByName(source, "")
	if err != nil {
		return err
	}
	input, err := decoder.Decode(source)
	if err != nil {
		return fmt.Errorf("failed to decode with %s: %w", decoder.Name(), err)
	}
	return p.Bind(input, dest)
}

// Bind binds input into dest with the default Projector.
func Bind(input any, dest any) error {
	return _gProjector.Bind(input, dest)
}

// BindFrom decodes source and binds it into dest with the default
// Projector.
func BindFrom(source any, dest any) error {
	return _gProjector.BindFrom(source, dest)
}

// bindTarget returns the value behind dest and the struct type it holds.
func bindTarget(dest any) (reflect.Value, reflect.Type, error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("%w, got %T", ErrInvalidBindTarget, dest)
	}

	target := rv.Elem()
	elem := target.Type()
	if elem.Kind() == reflect.Slice {
		elem = elem.Elem()
	}
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("%w, got %T", ErrInvalidBindTarget, dest)
	}
	return target, elem, nil
}

///////////////////////////////////////////////////////////////////////////////
// Helpers
///////////////////////////////////////////////////////////////////////////////

// setValue stores a projected value in field, converting between the
// projection's value types and the field's Go type.
func setValue(field reflect.Value, value any, path string) error {
	if value == nil || IsAbsent(value) {
		field.SetZero()
		return nil
	}

	if field.Kind() == reflect.Pointer {
		ptr := reflect.New(field.Type().Elem())
		if err := setValue(ptr.Elem(), value, path); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(field.Type()) && field.Kind() != reflect.Slice && field.Kind() != reflect.Map {
		field.Set(rv)
		return nil
	}

	switch field.Type() {
	case TimeType:
		t, ok := ToTime(value)
		if !ok {
			return cannotAssign(path, value, field)
		}
		field.Set(reflect.ValueOf(t))
		return nil
	case UUIDType:
		id, ok := ToUUID(value)
		if !ok {
			return cannotAssign(path, value, field)
		}
		field.Set(reflect.ValueOf(id))
		return nil
	case jsonRawMessageType:
		return setRawMessage(field, value, path)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(ToText(value))
		return nil
	case reflect.Bool:
		field.SetBool(ToBoolean(value))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return setIntValue(field, ToNumber(value), path)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return setUintValue(field, ToNumber(value), path)
	case reflect.Float32, reflect.Float64:
		return setFloatValue(field, ToNumber(value), path)
	case reflect.Struct:
		return setStructValue(field, value, path)
	case reflect.Slice, reflect.Array:
		return setSliceValue(field, value, path)
	case reflect.Map, reflect.Interface:
		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
			return nil
		}
	}

	// Check for TextUnmarshaler on the field's address
	if field.CanAddr() {
		if unmarshaler, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := unmarshaler.UnmarshalText([]byte(ToText(value))); err != nil {
				return fmt.Errorf("%w at %s: %w", ErrCannotAssign, path, err)
			}
			return nil
		}
	}

	return cannotAssign(path, value, field)
}

// setIntValue sets integer field values with overflow checking
func setIntValue(field reflect.Value, f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return cannotAssign(path, f, field)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 || field.OverflowInt(int64(f)) {
		return fmt.Errorf("%w at %s: value %v overflows %s", ErrCannotAssign, path, f, field.Type())
	}
	field.SetInt(int64(f))
	return nil
}

// setUintValue sets unsigned integer field values with overflow checking
func setUintValue(field reflect.Value, f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 {
		return cannotAssign(path, f, field)
	}
	if f >= math.MaxUint64 || field.OverflowUint(uint64(f)) {
		return fmt.Errorf("%w at %s: value %v overflows %s", ErrCannotAssign, path, f, field.Type())
	}
	field.SetUint(uint64(f))
	return nil
}

// setFloatValue sets float field values with overflow checking
func setFloatValue(field reflect.Value, f float64, path string) error {
	if !math.IsInf(f, 0) && field.OverflowFloat(f) {
		return fmt.Errorf("%w at %s: value %v overflows %s", ErrCannotAssign, path, f, field.Type())
	}
	field.SetFloat(f)
	return nil
}

func setRawMessage(field reflect.Value, value any, path string) error {
	if text, ok := jsonText(value); ok {
		field.SetBytes([]byte(text))
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w at %s: %w", ErrCannotAssign, path, err)
	}
	field.SetBytes(data)
	return nil
}

// setStructValue fills a struct from a projected record, matching fields
// by the names SchemaOf gives them.
func setStructValue(field reflect.Value, value any, path string) error {
	record, ok := value.(map[string]any)
	if !ok {
		return cannotAssign(path, value, field)
	}

	t := field.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)

		tag, err := DecodeFieldTag(sf.Tag.Get(ShapeTagName))
		if err != nil {
			return err
		}
		if tag.Skip() {
			continue
		}

		if sf.Anonymous && tag.Name == "" && embeddedStruct(sf.Type) {
			embedded := field.Field(i)
			if embedded.Kind() == reflect.Pointer {
				if !embedded.CanSet() {
					continue
				}
				if embedded.IsNil() {
					embedded.Set(reflect.New(sf.Type.Elem()))
				}
				embedded = embedded.Elem()
			}
			if err := setStructValue(embedded, record, path); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		name := fieldName(sf, tag)
		v, ok := record[name]
		if !ok || !field.Field(i).CanSet() {
			continue
		}
		if err := setValue(field.Field(i), v, joinPath(path, name)); err != nil {
			return err
		}
	}
	return nil
}

func setSliceValue(field reflect.Value, value any, path string) error {
	if field.Type() == JSONByteSliceType {
		field.SetBytes([]byte(ToText(value)))
		return nil
	}

	items, ok := asSequence(value)
	if !ok {
		return cannotAssign(path, value, field)
	}

	target := field
	if field.Kind() == reflect.Slice {
		target = reflect.MakeSlice(field.Type(), len(items), len(items))
	}
	n := min(len(items), target.Len())

	for i := 0; i < n; i++ {
		if err := setValue(target.Index(i), items[i], indexPath(path, i)); err != nil {
			return err
		}
	}

	if field.Kind() == reflect.Slice {
		field.Set(target)
	}
	return nil
}

func embeddedStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func cannotAssign(path string, value any, field reflect.Value) error {
	return fmt.Errorf("%w at %s: %T to %s", ErrCannotAssign, path, value, field.Type())
}

