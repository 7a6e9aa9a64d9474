package shape

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCache(t *testing.T) {
	t.Run("NewSchemaCache", func(t *testing.T) {
		cache := NewSchemaCache()
		assert.NotNil(t, cache)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Get_Compiles_Once", func(t *testing.T) {
		cache := NewSchemaCache()
		schema := sampleSchema()

		first, err := cache.Get(schema)
		require.NoError(t, err)
		second, err := cache.Get(schema)
		require.NoError(t, err)

		// Same identity, same compiled tree
		assert.Same(t, first, second)
		assert.True(t, cache.Contains(schema))
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("Identity_Not_Equality", func(t *testing.T) {
		cache := NewSchemaCache()
		a := Schema{"x": Text}
		b := Schema{"x": Text}

		ca, err := cache.Get(a)
		require.NoError(t, err)
		cb, err := cache.Get(b)
		require.NoError(t, err)

		assert.NotSame(t, ca, cb)
		assert.Equal(t, ca, cb)
		assert.Equal(t, 2, cache.Len())
	})

	t.Run("Compiled_Passthrough", func(t *testing.T) {
		cache := NewSchemaCache()
		compiled, err := Compile(Schema{"x": Text})
		require.NoError(t, err)

		got, err := cache.Get(compiled)
		require.NoError(t, err)
		assert.Same(t, compiled, got)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Errors_Are_Cached", func(t *testing.T) {
		cache := NewSchemaCache()
		schema := Schema{"bad": 1.5}

		_, err := cache.Get(schema)
		require.ErrorIs(t, err, ErrInvalidSchemaEntry)
		assert.True(t, cache.Contains(schema))

		_, err2 := cache.Get(schema)
		assert.Same(t, err, err2)
	})

	t.Run("Non_Map_Is_Not_Cached", func(t *testing.T) {
		cache := NewSchemaCache()

		_, err := cache.Get([]any{Text})
		assert.ErrorIs(t, err, ErrInvalidSchema)
		assert.Equal(t, 0, cache.Len())
		assert.False(t, cache.Contains("text"))
	})

	t.Run("Forget", func(t *testing.T) {
		cache := NewSchemaCache()
		schema := Schema{"x": Text}

		first, err := cache.Get(schema)
		require.NoError(t, err)
		cache.Forget(schema)
		assert.False(t, cache.Contains(schema))

		// A changed schema compiles again after Forget
		schema["y"] = Number
		second, err := cache.Get(schema)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Equal(t, 2, second.Len())
	})

	t.Run("Clear", func(t *testing.T) {
		cache := NewSchemaCache()
		for i := 0; i < 5; i++ {
			_, err := cache.Get(Schema{"x": Text})
			require.NoError(t, err)
		}
		assert.Equal(t, 5, cache.Len())

		cache.Clear()
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("NewSchemaCacheSize", func(t *testing.T) {
		assert.Equal(t, 8, NewSchemaCacheSize(8).Size())
		assert.Equal(t, DefaultCacheSize, NewSchemaCacheSize(0).Size())
		assert.Equal(t, DefaultCacheSize, NewSchemaCache().Size())
	})

	t.Run("Evicts_Least_Recently_Used", func(t *testing.T) {
		cache := NewSchemaCacheSize(2)
		a := Schema{"a": Text}
		b := Schema{"b": Text}
		c := Schema{"c": Text}

		first, err := cache.Get(a)
		require.NoError(t, err)
		_, err = cache.Get(b)
		require.NoError(t, err)

		// Touch a so that b is the oldest
		again, err := cache.Get(a)
		require.NoError(t, err)
		assert.Same(t, first, again)

		_, err = cache.Get(c)
		require.NoError(t, err)

		assert.Equal(t, 2, cache.Len())
		assert.True(t, cache.Contains(a))
		assert.False(t, cache.Contains(b))
		assert.True(t, cache.Contains(c))

		// An evicted schema compiles again
		_, err = cache.Get(b)
		require.NoError(t, err)
		assert.True(t, cache.Contains(b))
	})

	t.Run("Bounded_Across_Fresh_Literals", func(t *testing.T) {
		cache := NewSchemaCacheSize(16)
		for i := 0; i < 1000; i++ {
			_, err := cache.Get(Schema{"a": Text})
			require.NoError(t, err)
		}
		assert.Equal(t, 16, cache.Len())
	})

	t.Run("Concurrent_Get", func(t *testing.T) {
		cache := NewSchemaCache()
		schema := sampleSchema()

		const goroutines = 32
		results := make([]*Compiled, goroutines)

		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				compiled, err := cache.Get(schema)
				assert.NoError(t, err)
				results[i] = compiled
			}(i)
		}
		wg.Wait()

		for _, compiled := range results {
			assert.Same(t, results[0], compiled)
		}
		assert.Equal(t, 1, cache.Len())
	})
}

func BenchmarkSchemaCache_Get(b *testing.B) {
	cache := NewSchemaCache()
	schema := sampleSchema()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cache.Get(schema); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkProject(b *testing.B) {
	p := NewProjector(ProjectorOpts{})
	schema := sampleSchema()
	input := map[string]any{
		"id":   "42",
		"name": "  Ada  ",
		"tags": []any{1, 2, 3},
		"meta": map[string]any{"created": "2020-01-02"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Project(schema, input); err != nil {
			b.Fatal(err)
		}
	}
}
