package shape

import (
	"fmt"
	"reflect"
	"strconv"
)

// TraceFunc observes every field resolution of a projection. path is the
// dotted output path of the field.
type TraceFunc func(path string, resolved Resolved)

// ProjectorOpts configure a Projector.
type ProjectorOpts struct {
	// Mode applies to every JSON kind field of every projection.
	Mode JSONMode
	// Cache holds compiled schemas. A new cache of CacheSize entries is
	// created when nil.
	Cache *SchemaCache
	// CacheSize bounds the cache created when Cache is nil. Zero means
	// DefaultCacheSize.
	CacheSize int
	// Decoders turn sources into raw input for ProjectFrom. A registry
	// with the built in decoders is created when nil.
	Decoders *DecoderRegistry
	// Trace, when set, is called for each resolved field.
	Trace TraceFunc
}

// Projector projects raw input through schemas.
//
// A Projector is safe for concurrent use. Schemas are compiled once per
// identity and kept in the Projector's SchemaCache.
type Projector struct {
	mode     JSONMode
	cache    *SchemaCache
	decoders *DecoderRegistry
	trace    TraceFunc
}

func NewProjector(opts ProjectorOpts) *Projector {
	p := &Projector{
		mode:     opts.Mode,
		cache:    opts.Cache,
		decoders: opts.Decoders,
		trace:    opts.Trace,
	}

	if p.cache == nil {
		p.cache = NewSchemaCacheSize(opts.CacheSize)
	}
	if p.decoders == nil {
		p.decoders = MustNewDecoderRegistry(DecoderRegistryOpts{})
	}

	return p
}

// WithMode returns a Projector that shares p's cache and decoders but uses
// mode for JSON kind fields.
func (p *Projector) WithMode(mode JSONMode) *Projector {
	cp := *p
	cp.mode = mode
	return &cp
}

// Mode returns the projector's JSON mode.
func (p *Projector) Mode() JSONMode {
	return p.mode
}

// Cache returns the projector's schema cache.
func (p *Projector) Cache() *SchemaCache {
	return p.cache
}

// Decoders returns the projector's decoder registry.
func (p *Projector) Decoders() *DecoderRegistry {
	return p.decoders
}

// Project builds a new record from input according to schema.
//
// A record in gives a map[string]any out and a sequence in gives a []any of
// records out, in the same order. When schema is nil the input is returned
// as is. A nil or Absent input returns Absent.
//
// Fields that resolve to nothing are left out of the result; fields may
// still hold nil when nulls are allowed. The only errors are an invalid
// schema and a MalformedDataError from a JSON kind field.
func (p *Projector) Project(schema any, input any) (any, error) {
	if isNilSchema(schema) || isNull(input) || IsAbsent(input) {
		if isNull(input) {
			return Absent, nil
		}
		return input, nil
	}

	compiled, err := p.cache.Get(schema)
	if err != nil {
		return nil, err
	}

	if items, ok := asSequence(input); ok {
		out := make([]any, len(items))
		for i, item := range items {
			if isNull(item) || IsAbsent(item) {
				continue
			}
			record, err := p.projectRecord(compiled, item, indexPath("", i))
			if err != nil {
				return nil, err
			}
			out[i] = record
		}
		return out, nil
	}

	return p.projectRecord(compiled, input, "")
}

// ProjectRecord projects a single record. A nil or Absent record is read
// as an empty one, so only defaults apply.
func (p *Projector) ProjectRecord(schema any, record any) (map[string]any, error) {
	compiled, err := p.cache.Get(schema)
	if err != nil {
		return nil, err
	}
	if isNull(record) || IsAbsent(record) {
		record = map[string]any{}
	}
	return p.projectRecord(compiled, record, "")
}

// ProjectFrom decodes source with the registered decoder for its type and
// projects the result.
func (p *Projector) ProjectFrom(schema any, source any) (any, error) {
	decoder, err := p.decoders.getDecoderByName(source, "")
	if err != nil {
		return nil, err
	}
	return p.projectDecoded(schema, source, decoder)
}

// WithDecoder returns a context that decodes sources with the named
// decoder. It is needed when several decoders share a source type.
func (p *Projector) WithDecoder(decoderName string) *ProjectorContext {
	return &ProjectorContext{
		projector:   p,
		decoderName: decoderName,
	}
}

// ProjectorContext is a Projector curried with a decoder selection.
type ProjectorContext struct {
	projector   *Projector
	decoderName string
}

// ProjectFrom decodes source with the selected decoder and projects it.
func (pc *ProjectorContext) ProjectFrom(schema any, source any) (any, error) {
	decoder, err := pc.projector.decoders.getDecoderByName(source, pc.decoderName)
	if err != nil {
		return nil, err
	}
	return pc.projector.projectDecoded(schema, source, decoder)
}

func (p *Projector) projectDecoded(schema any, source any, decoder Decoder) (any, error) {
	input, err := decoder.Decode(source)
	if err != nil {
		return nil, fmt.Errorf("failed to decode with %s: %w", decoder.Name(), err)
	}
	return p.Project(schema, input)
}

///////////////////////////////////////////////////////////////////////////////
// Record projection
///////////////////////////////////////////////////////////////////////////////

func (p *Projector) projectRecord(c *Compiled, raw any, path string) (map[string]any, error) {
	out := make(map[string]any, c.Len())

	for i, key := range c.Keys {
		node := c.Nodes[i]
		fieldPath := joinPath(path, key)

		resolved := Resolve(raw, &node.Descriptor)
		if p.trace != nil {
			p.trace(fieldPath, resolved)
		}

		value, ok, err := p.projectNode(node, resolved, fieldPath)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = value
		}
	}

	return out, nil
}

// projectNode turns a resolved field into its output value. ok is false
// when the key must be left out.
func (p *Projector) projectNode(node *Node, resolved Resolved, path string) (any, bool, error) {
	if resolved.State == StateAbsent {
		return nil, false, nil
	}

	d := &node.Descriptor

	if node.NodeKind == NodeLeaf {
		value, err := Coerce(resolved.Raw(), d.Kind, CoerceOpts{
			AllowNull: d.AllowNull,
			Trim:      d.Trim,
			Mode:      p.mode,
			Path:      path,
		})
		if err != nil {
			return nil, false, err
		}
		return value, true, nil
	}

	// Nested objects and arrays keep an allowed null and drop any other.
	if resolved.State == StateNull {
		return nil, d.AllowNull, nil
	}

	switch node.NodeKind {
	case NodeObject:
		record, err := p.projectRecord(node.Children, resolved.Value, path)
		if err != nil {
			return nil, false, err
		}
		return record, true, nil
	case NodeArrayOfScalar, NodeArrayOfObject:
		items, ok := asSequence(resolved.Value)
		if !ok {
			return nil, false, nil
		}
		out, err := p.projectItems(node, items, path)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("%w at %s: node kind %s", ErrInvalidSchemaEntry, path, node.NodeKind)
	}
}

func (p *Projector) projectItems(node *Node, items []any, path string) ([]any, error) {
	out := make([]any, len(items))

	for i, item := range items {
		itemPath := indexPath(path, i)

		if node.NodeKind == NodeArrayOfScalar {
			elem := node.Element
			value, err := Coerce(item, elem.Kind, CoerceOpts{
				AllowNull: elem.AllowNull,
				Trim:      elem.Trim,
				Mode:      p.mode,
				Path:      itemPath,
			})
			if err != nil {
				return nil, err
			}
			out[i] = value
			continue
		}

		if isNull(item) || IsAbsent(item) {
			continue
		}
		record, err := p.projectRecord(node.Children, item, itemPath)
		if err != nil {
			return nil, err
		}
		out[i] = record
	}

	return out, nil
}

///////////////////////////////////////////////////////////////////////////////
// Helpers
///////////////////////////////////////////////////////////////////////////////

func isNilSchema(schema any) bool {
	if schema == nil {
		return true
	}
	if c, ok := schema.(*Compiled); ok {
		return c == nil
	}
	rv := reflect.ValueOf(schema)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

///////////////////////////////////////////////////////////////////////////////
// Global Singleton and Package Functions
///////////////////////////////////////////////////////////////////////////////

var _gProjector = NewProjector(ProjectorOpts{})

// Project projects input through schema with the default Projector,
// leaving JSON kind values as they are.
func Project(schema any, input any) (any, error) {
	return _gProjector.Project(schema, input)
}

// ProjectWithMode projects input through schema with the default
// Projector and the given JSON mode.
func ProjectWithMode(schema any, input any, mode JSONMode) (any, error) {
	return _gProjector.WithMode(mode).Project(schema, input)
}

// ProjectFrom decodes source with the default Projector's decoders and
// projects the result.
func ProjectFrom(schema any, source any) (any, error) {
	return _gProjector.ProjectFrom(schema, source)
}

// WithDecoder curries the default Projector with a decoder selection.
func WithDecoder(decoderName string) *ProjectorContext {
	return _gProjector.WithDecoder(decoderName)
}

// RegisterDecoder adds a decoder to the default Projector.
func RegisterDecoder(decoder Decoder) error {
	return _gProjector.decoders.Register(decoder)
}

// DefaultCache returns the default Projector's schema cache.
func DefaultCache() *SchemaCache {
	return _gProjector.cache
}
