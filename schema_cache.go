package shape

import (
	"reflect"
	"sync"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of compiled schemas a cache keeps when no
// size is given.
const DefaultCacheSize = 1024

// SchemaCache memoizes compiled schemas by schema identity.
//
// Schemas are maps, so identity is the map's address. Each entry keeps a
// reference to its schema, which stops the address from being reused while
// the entry lives. A schema must not be mutated after it has been cached;
// call Forget first if it has to change.
//
// The cache is bounded and evicts the least recently used schema, so
// schemas built per call do not accumulate. An evicted schema is compiled
// again on its next use.
//
// The cache is safe for concurrent use, and a schema is compiled once even
// when first seen by several goroutines at the same time.
type SchemaCache struct {
	cache *lru.Cache[unsafe.Pointer, *schemaCacheEntry]
	size  int
}

type schemaCacheEntry struct {
	once     sync.Once
	schema   any
	compiled *Compiled
	err      error
}

// NewSchemaCache creates an empty cache holding up to DefaultCacheSize
// schemas.
func NewSchemaCache() *SchemaCache {
	return NewSchemaCacheSize(DefaultCacheSize)
}

// NewSchemaCacheSize creates an empty cache holding up to size schemas.
// A size below one uses DefaultCacheSize.
func NewSchemaCacheSize(size int) *SchemaCache {
	if size < 1 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[unsafe.Pointer, *schemaCacheEntry](size)
	if err != nil {
		// Only reachable with a non positive size
		panic(err)
	}
	return &SchemaCache{cache: cache, size: size}
}

// Get returns the compiled form of schema, compiling it on first use.
// Compilation errors are cached as well.
func (sc *SchemaCache) Get(schema any) (*Compiled, error) {
	if c, ok := schema.(*Compiled); ok {
		return c, nil
	}

	key, ok := schemaIdentity(schema)
	if !ok {
		return Compile(schema)
	}

	entry, ok := sc.cache.Get(key)
	if !ok {
		fresh := &schemaCacheEntry{schema: schema}
		if prev, loaded, _ := sc.cache.PeekOrAdd(key, fresh); loaded {
			entry = prev
		} else {
			entry = fresh
		}
	}

	entry.once.Do(func() {
		entry.compiled, entry.err = Compile(entry.schema)
	})
	return entry.compiled, entry.err
}

// Contains reports whether schema has an entry.
func (sc *SchemaCache) Contains(schema any) bool {
	key, ok := schemaIdentity(schema)
	if !ok {
		return false
	}
	return sc.cache.Contains(key)
}

// Forget removes the entry for schema.
func (sc *SchemaCache) Forget(schema any) {
	if key, ok := schemaIdentity(schema); ok {
		sc.cache.Remove(key)
	}
}

// Clear removes all entries.
func (sc *SchemaCache) Clear() {
	sc.cache.Purge()
}

// Len returns the number of cached schemas.
func (sc *SchemaCache) Len() int {
	return sc.cache.Len()
}

// Size returns the maximum number of cached schemas.
func (sc *SchemaCache) Size() int {
	return sc.size
}

// schemaIdentity returns the address of a non nil map.
func schemaIdentity(schema any) (unsafe.Pointer, bool) {
	rv := reflect.ValueOf(schema)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.IsNil() {
		return nil, false
	}
	return rv.UnsafePointer(), true
}
