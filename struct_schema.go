package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

var (
	ErrNotAStruct           = errors.New("schema source must be a struct type")
	ErrUnsupportedFieldType = errors.New("unsupported struct field type")
	ErrRecursiveStruct      = errors.New("recursive struct type")
)

var jsonRawMessageType = reflect.TypeOf(json.RawMessage{})

// structSchemas holds one derived Schema per struct type. Returning the
// same map every time keeps SchemaCache hits for derived schemas.
var structSchemas sync.Map // map[reflect.Type]*structSchemaEntry

type structSchemaEntry struct {
	once   sync.Once
	schema Schema
	err    error
}

// SchemaOf derives a Schema from the exported fields of a struct type.
// v is a struct value, a pointer to one, or its reflect.Type.
//
// Each field's shape tag configures it, see DecodeFieldTag. Without a type
// subtag the kind follows the Go type: strings are Text, numbers are
// Number, bools are Boolean, time.Time is Temporal, uuid.UUID is UUID and
// json.RawMessage is JSON. Structs become nested objects and slices become
// arrays. Pointer fields allow null. A default is read as JSON when it is
// valid JSON and kept as text otherwise.
//
// The result is computed once per type and must not be modified.
func SchemaOf(v any) (Schema, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrNotAStruct, t)
	}

	e, _ := structSchemas.LoadOrStore(t, &structSchemaEntry{})
	entry := e.(*structSchemaEntry)
	entry.once.Do(func() {
		entry.schema, entry.err = deriveSchema(t, map[reflect.Type]bool{})
	})
	return entry.schema, entry.err
}

// MustSchemaOf is SchemaOf that panics on error.
func MustSchemaOf(v any) Schema {
	schema, err := SchemaOf(v)
	if err != nil {
		panic(fmt.Sprintf("failed to derive schema: %v", err))
	}
	return schema
}

func deriveSchema(t reflect.Type, visiting map[reflect.Type]bool) (Schema, error) {
	if visiting[t] {
		return nil, fmt.Errorf("%w: %v", ErrRecursiveStruct, t)
	}
	visiting[t] = true
	defer delete(visiting, t)

	schema := make(Schema, t.NumField())
	if err := deriveFields(t, schema, visiting); err != nil {
		return nil, err
	}
	return schema, nil
}

func deriveFields(t reflect.Type, schema Schema, visiting map[reflect.Type]bool) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag, err := DecodeFieldTag(field.Tag.Get(ShapeTagName))
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", t.Name(), field.Name, err)
		}
		if tag.Skip() {
			continue
		}

		// Untagged embedded structs are flattened, as encoding/json does.
		if field.Anonymous && tag.Name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if visiting[ft] {
					return fmt.Errorf("%w: %v", ErrRecursiveStruct, ft)
				}
				visiting[ft] = true
				err := deriveFields(ft, schema, visiting)
				delete(visiting, ft)
				if err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}

		name := fieldName(field, tag)
		entry, err := deriveEntry(field.Type, tag, visiting)
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", t.Name(), field.Name, err)
		}
		schema[name] = entry
	}
	return nil
}

// fieldName picks the tag name, then the json tag name, then the Go name.
func fieldName(field reflect.StructField, tag FieldTag) string {
	if tag.Name != "" {
		return tag.Name
	}
	if name, _, _ := strings.Cut(field.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return field.Name
}

func deriveEntry(t reflect.Type, tag FieldTag, visiting map[reflect.Type]bool) (any, error) {
	allowNull := tag.AllowNull
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
		allowNull = true
	}

	fields := tagAliases(tag)
	def, err := tagDefault(tag)
	if err != nil {
		return nil, err
	}

	if typeName, ok := tag.Lookup(TypeAttribute); ok {
		kind, err := ParseKind(typeName)
		if err != nil {
			return nil, err
		}
		return Field{Type: kind, Fields: fields, Default: def, AllowNull: allowNull, Trim: tag.Trim}, nil
	}

	if kind, ok := kindOf(t); ok {
		return Field{Type: kind, Fields: fields, Default: def, AllowNull: allowNull, Trim: tag.Trim}, nil
	}

	switch t.Kind() {
	case reflect.Struct:
		children, err := deriveSchema(t, visiting)
		if err != nil {
			return nil, err
		}
		return Object{Fields: fields, Default: def, AllowNull: allowNull, Schema: children}, nil
	case reflect.Slice, reflect.Array:
		elem, err := deriveElement(t.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return Array{Elem: elem, Fields: fields, Default: def, AllowNull: allowNull}, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnsupportedFieldType, t)
}

func deriveElement(t reflect.Type, visiting map[reflect.Type]bool) (any, error) {
	allowNull := false
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
		allowNull = true
	}

	if kind, ok := kindOf(t); ok {
		return Field{Type: kind, AllowNull: allowNull}, nil
	}
	if t.Kind() == reflect.Struct {
		return deriveSchema(t, visiting)
	}
	return nil, fmt.Errorf("%w: element %v", ErrUnsupportedFieldType, t)
}

// kindOf maps Go types that project as leaves.
func kindOf(t reflect.Type) (Kind, bool) {
	switch t {
	case TimeType:
		return Temporal, true
	case UUIDType:
		return UUID, true
	case jsonRawMessageType:
		return JSON, true
	case JSONByteSliceType:
		return Text, true
	}

	switch t.Kind() {
	case reflect.String:
		return Text, true
	case reflect.Bool:
		return Boolean, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Number, true
	case reflect.Interface, reflect.Map:
		return Passthrough, true
	}
	return 0, false
}

func tagAliases(tag FieldTag) []string {
	value, ok := tag.Lookup(FieldsAttribute)
	if !ok {
		return nil
	}

	var aliases []string
	for _, alias := range strings.Split(value, ",") {
		if alias = strings.TrimSpace(alias); alias != "" {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

// tagDefault reads JSON defaults as values so default:'0' is a number and
// default:'null' is an explicit null. Anything else stays text.
func tagDefault(tag FieldTag) (any, error) {
	value, ok := tag.Lookup(DefaultAttribute)
	if !ok {
		return nil, nil
	}
	if !gjson.Valid(value) {
		return value, nil
	}

	parsed := parseJSON(value)
	if parsed == nil {
		return Null, nil
	}
	return parsed, nil
}
