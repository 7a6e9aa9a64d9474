package shape

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/davecgh/go-spew/spew"
)

var (
	ErrInvalidSchema      = errors.New("schema must be a string keyed map")
	ErrInvalidSchemaEntry = errors.New("unsupported schema entry")
	ErrInvalidAttribute   = errors.New("invalid schema attribute")
)

///////////////////////////////////////////////////////////////////////////////
// Schema declaration types
///////////////////////////////////////////////////////////////////////////////

// Schema maps output field names to entries. An entry may be:
//   - a Kind or kind name, the shorthand leaf
//   - a Field or *Field, the full leaf
//   - a map with a "type" key, the map form of a Field. "fields" may be a
//     single alias or a list of them.
//   - a Schema or map without a "type" key, a nested object. Its "fields",
//     "default" and "allowNull" keys configure the nested field itself and
//     every other key is a child.
//   - an Object or *Object, the typed nested object
//   - a one element slice, or an Array or *Array. The element is either a
//     scalar leaf (Kind, Field, map with "type") or a nested schema.
//
// Schemas are compiled, never modified. Once a schema has been projected
// through a cache it must not be mutated, see SchemaCache.
type Schema map[string]any

// Field is the full form of a leaf entry.
type Field struct {
	Type Kind
	// Fields are alias keys probed after the field's own name, in order.
	Fields []string
	// Default is used when no key is present, or when the value found is
	// null and AllowNull is false. nil means no default; use Null to
	// default to an explicit null.
	Default   any
	AllowNull bool
	// Trim strips surrounding whitespace from Text values.
	Trim bool
}

// Object is the full form of a nested object entry.
type Object struct {
	Fields    []string
	Default   any
	AllowNull bool
	Schema    Schema
}

// Array is the full form of an array entry. Elem is a scalar leaf or a
// nested schema.
type Array struct {
	Elem      any
	Fields    []string
	Default   any
	AllowNull bool
}

///////////////////////////////////////////////////////////////////////////////
// Compiled form
///////////////////////////////////////////////////////////////////////////////

// NodeKind classifies a compiled schema entry.
type NodeKind uint8

const (
	NodeLeaf NodeKind = iota
	NodeObject
	NodeArrayOfScalar
	NodeArrayOfObject
)

func (k NodeKind) String() string {
	switch k {
	case NodeLeaf:
		return "leaf"
	case NodeObject:
		return "object"
	case NodeArrayOfScalar:
		return "array-of-scalar"
	case NodeArrayOfObject:
		return "array-of-object"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// Descriptor is a normalized field configuration. Aliases always starts
// with the field's own name.
type Descriptor struct {
	Name      string
	Kind      Kind
	Aliases   []string
	Default   Resolved
	AllowNull bool
	Trim      bool
}

// Node is one compiled schema entry.
type Node struct {
	NodeKind NodeKind
	// Descriptor locates the field in the raw record. For object and array
	// nodes only Aliases, Default and AllowNull are meaningful.
	Descriptor Descriptor
	// Element holds the per element coercion of a NodeArrayOfScalar.
	Element *Descriptor
	// Children is the nested schema of NodeObject and NodeArrayOfObject.
	Children *Compiled
}

// Compiled is an immutable, normalized schema.
type Compiled struct {
	Keys  []string
	Nodes []*Node
}

// Len returns the number of top level fields.
func (c *Compiled) Len() int {
	return len(c.Keys)
}

// Node returns the compiled entry for key.
func (c *Compiled) Node(key string) (*Node, bool) {
	i, found := slices.BinarySearch(c.Keys, key)
	if !found {
		return nil, false
	}
	return c.Nodes[i], true
}

// Dump renders the compiled tree for debugging.
func (c *Compiled) Dump() string {
	return spew.Sdump(c)
}

///////////////////////////////////////////////////////////////////////////////
// Compilation
///////////////////////////////////////////////////////////////////////////////

// Compile normalizes a schema into its compiled form. It accepts a Schema,
// any string keyed map, or an already compiled schema.
//
// Compilation is pure: the passed schema is never written to, and compiling
// the same schema twice yields equal trees.
func Compile(schema any) (*Compiled, error) {
	if c, ok := schema.(*Compiled); ok {
		return c, nil
	}

	entries, ok := schemaEntries(schema)
	if !ok {
		return nil, fmt.Errorf("%w, got %T", ErrInvalidSchema, schema)
	}
	return compileEntries(entries, RootPath)
}

func compileEntries(entries map[string]any, path string) (*Compiled, error) {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	compiled := &Compiled{
		Keys:  keys,
		Nodes: make([]*Node, len(keys)),
	}

	for i, key := range keys {
		node, err := compileEntry(key, entries[key], joinPath(path, key))
		if err != nil {
			return nil, err
		}
		compiled.Nodes[i] = node
	}

	return compiled, nil
}

// compileEntry classifies a schema entry and builds its node.
func compileEntry(key string, entry any, path string) (*Node, error) {
	switch e := entry.(type) {
	case Kind:
		d, err := normalizeLeaf(key, Field{Type: e}, path)
		return leafNode(d), err
	case string:
		kind, err := ParseKind(e)
		if err != nil {
			return nil, fmt.Errorf("%w at %s", err, path)
		}
		d, err := normalizeLeaf(key, Field{Type: kind}, path)
		return leafNode(d), err
	case Field:
		d, err := normalizeLeaf(key, e, path)
		return leafNode(d), err
	case *Field:
		if e == nil {
			return nil, invalidEntry(path, entry)
		}
		d, err := normalizeLeaf(key, *e, path)
		return leafNode(d), err
	case Object:
		return compileObject(key, e, path)
	case *Object:
		if e == nil {
			return nil, invalidEntry(path, entry)
		}
		return compileObject(key, *e, path)
	case Array:
		return compileArray(key, e, path)
	case *Array:
		if e == nil {
			return nil, invalidEntry(path, entry)
		}
		return compileArray(key, *e, path)
	}

	if m, ok := schemaEntries(entry); ok {
		if _, isLeaf := m[TypeAttribute]; isLeaf {
			field, err := fieldFromMap(m, path)
			if err != nil {
				return nil, err
			}
			d, err := normalizeLeaf(key, field, path)
			return leafNode(d), err
		}

		object, err := objectFromMap(m, path)
		if err != nil {
			return nil, err
		}
		return compileObject(key, object, path)
	}

	if elem, ok := singleElement(entry); ok {
		return compileArray(key, Array{Elem: elem}, path)
	}

	return nil, invalidEntry(path, entry)
}

func leafNode(d Descriptor) *Node {
	return &Node{NodeKind: NodeLeaf, Descriptor: d}
}

// normalizeLeaf fills in a leaf descriptor: own key first in the alias
// list, nil default as Absent.
func normalizeLeaf(key string, field Field, path string) (Descriptor, error) {
	if !field.Type.Valid() {
		return Descriptor{}, fmt.Errorf("%w at %s: %s", ErrInvalidKind, path, field.Type)
	}

	return Descriptor{
		Name:      key,
		Kind:      field.Type,
		Aliases:   aliases(key, field.Fields),
		Default:   defaultOf(field.Default),
		AllowNull: field.AllowNull,
		Trim:      field.Trim,
	}, nil
}

func compileObject(key string, object Object, path string) (*Node, error) {
	children, err := compileEntries(object.Schema, path)
	if err != nil {
		return nil, err
	}

	return &Node{
		NodeKind:   NodeObject,
		Descriptor: containerDescriptor(key, object.Fields, object.Default, object.AllowNull),
		Children:   children,
	}, nil
}

func compileArray(key string, array Array, path string) (*Node, error) {
	node := &Node{
		Descriptor: containerDescriptor(key, array.Fields, array.Default, array.AllowNull),
	}
	elemPath := path + "[]"

	elem, isScalar, err := scalarElement(array.Elem, elemPath)
	if err != nil {
		return nil, err
	}
	if isScalar {
		node.NodeKind = NodeArrayOfScalar
		node.Element = &elem
		return node, nil
	}

	var entries map[string]any
	switch e := array.Elem.(type) {
	case Object:
		entries = e.Schema
	case *Object:
		if e == nil {
			return nil, invalidEntry(elemPath, array.Elem)
		}
		entries = e.Schema
	default:
		m, ok := schemaEntries(array.Elem)
		if !ok {
			return nil, invalidEntry(elemPath, array.Elem)
		}
		object, err := objectFromMap(m, elemPath)
		if err != nil {
			return nil, err
		}
		entries = object.Schema
	}

	children, err := compileEntries(entries, elemPath)
	if err != nil {
		return nil, err
	}
	node.NodeKind = NodeArrayOfObject
	node.Children = children
	return node, nil
}

// scalarElement reports whether an array element is a scalar leaf, and if
// so returns its descriptor. Aliases and defaults do not apply to elements.
func scalarElement(elem any, path string) (Descriptor, bool, error) {
	var field Field

	switch e := elem.(type) {
	case Kind:
		field = Field{Type: e}
	case string:
		kind, err := ParseKind(e)
		if err != nil {
			return Descriptor{}, false, fmt.Errorf("%w at %s", err, path)
		}
		field = Field{Type: kind}
	case Field:
		field = e
	case *Field:
		if e == nil {
			return Descriptor{}, false, invalidEntry(path, elem)
		}
		field = *e
	default:
		m, ok := schemaEntries(elem)
		if !ok {
			return Descriptor{}, false, nil
		}
		if _, isLeaf := m[TypeAttribute]; !isLeaf {
			return Descriptor{}, false, nil
		}
		var err error
		if field, err = fieldFromMap(m, path); err != nil {
			return Descriptor{}, false, err
		}
	}

	if !field.Type.Valid() {
		return Descriptor{}, false, fmt.Errorf("%w at %s: %s", ErrInvalidKind, path, field.Type)
	}

	return Descriptor{
		Kind:      field.Type,
		Default:   Resolved{State: StateAbsent},
		AllowNull: field.AllowNull,
		Trim:      field.Trim,
	}, true, nil
}

func containerDescriptor(key string, fields []string, def any, allowNull bool) Descriptor {
	return Descriptor{
		Name:      key,
		Kind:      Passthrough,
		Aliases:   aliases(key, fields),
		Default:   defaultOf(def),
		AllowNull: allowNull,
	}
}

// aliases prepends the own key, so it always wins over declared aliases.
func aliases(key string, fields []string) []string {
	out := make([]string, 0, len(fields)+1)
	out = append(out, key)
	return append(out, fields...)
}

func defaultOf(def any) Resolved {
	if def == nil {
		return Resolved{State: StateAbsent}
	}
	return resolvedOf(def)
}

///////////////////////////////////////////////////////////////////////////////
// Map form entries
///////////////////////////////////////////////////////////////////////////////

// fieldFromMap reads the map form of a leaf. A "default" key holding nil is
// an explicit null default.
func fieldFromMap(m map[string]any, path string) (Field, error) {
	var (
		field Field
		err   error
	)

	switch t := m[TypeAttribute].(type) {
	case Kind:
		field.Type = t
	case string:
		if field.Type, err = ParseKind(t); err != nil {
			return Field{}, fmt.Errorf("%w at %s", err, path)
		}
	default:
		return Field{}, fmt.Errorf(
			"%w: %s.%s must be a Kind or kind name, got %T",
			ErrInvalidAttribute, path, TypeAttribute, t,
		)
	}

	if field.Fields, err = fieldsAttribute(m, path); err != nil {
		return Field{}, err
	}
	field.Default = defaultAttribute(m)
	if field.AllowNull, err = boolAttribute(m, AllowNullAttribute, path); err != nil {
		return Field{}, err
	}
	if field.Trim, err = boolAttribute(m, TrimAttribute, path); err != nil {
		return Field{}, err
	}

	return field, nil
}

// objectFromMap splits a nested map schema into its own attributes and its
// children.
func objectFromMap(m map[string]any, path string) (Object, error) {
	var (
		object = Object{Schema: make(Schema, len(m))}
		err    error
	)

	if object.Fields, err = fieldsAttribute(m, path); err != nil {
		return Object{}, err
	}
	object.Default = defaultAttribute(m)
	if object.AllowNull, err = boolAttribute(m, AllowNullAttribute, path); err != nil {
		return Object{}, err
	}

	for key, entry := range m {
		switch key {
		case FieldsAttribute, DefaultAttribute, AllowNullAttribute:
			continue
		}
		object.Schema[key] = entry
	}

	return object, nil
}

func fieldsAttribute(m map[string]any, path string) ([]string, error) {
	raw, ok := m[FieldsAttribute]
	if !ok || raw == nil {
		return nil, nil
	}

	switch f := raw.(type) {
	case string:
		return []string{f}, nil
	case []string:
		return slices.Clone(f), nil
	}

	items, ok := asSequence(raw)
	if !ok {
		return nil, fmt.Errorf(
			"%w: %s.%s must be a string or a list of strings, got %T",
			ErrInvalidAttribute, path, FieldsAttribute, raw,
		)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf(
				"%w: %s.%s contains %T, expected string",
				ErrInvalidAttribute, path, FieldsAttribute, item,
			)
		}
		out = append(out, s)
	}
	return out, nil
}

func defaultAttribute(m map[string]any) any {
	def, ok := m[DefaultAttribute]
	if !ok {
		return nil
	}
	if def == nil {
		return Null
	}
	return def
}

func boolAttribute(m map[string]any, name string, path string) (bool, error) {
	raw, ok := m[name]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s.%s must be a bool, got %T", ErrInvalidAttribute, path, name, raw)
	}
	return b, nil
}

///////////////////////////////////////////////////////////////////////////////
// Helpers
///////////////////////////////////////////////////////////////////////////////

// schemaEntries returns v as schema entries if it is a string keyed map.
func schemaEntries(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Schema:
		return m, m != nil
	case map[string]any:
		return m, m != nil
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	return asRecord(v)
}

// singleElement returns the element of a one element slice.
func singleElement(v any) (any, bool) {
	items, ok := asSequence(v)
	if !ok || len(items) != 1 {
		return nil, false
	}
	return items[0], true
}

func invalidEntry(path string, entry any) error {
	return fmt.Errorf("%w at %s: %T", ErrInvalidSchemaEntry, path, entry)
}

func joinPath(parent, key string) string {
	if parent == "" || parent == RootPath {
		return key
	}
	return parent + PathSeparator + key
}
