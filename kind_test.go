package shape

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "passthrough", Passthrough.String())
		assert.Equal(t, "json", JSON.String())
		assert.Equal(t, "Kind(42)", Kind(42).String())
	})

	t.Run("Zero_Value_Is_Passthrough", func(t *testing.T) {
		var k Kind
		assert.Equal(t, Passthrough, k)
		assert.True(t, k.Valid())
	})

	t.Run("ParseKind", func(t *testing.T) {
		tests := map[string]Kind{
			"text":     Text,
			" Number ": Number,
			"BOOLEAN":  Boolean,
			"date":     Temporal,
			"string":   Text,
			"default":  Passthrough,
			"uuid":     UUID,
			"json":     JSON,
			"temporal": Temporal,
			"bool":     Boolean,
		}
		for name, want := range tests {
			got, err := ParseKind(name)
			require.NoError(t, err, name)
			assert.Equal(t, want, got, name)
		}

		_, err := ParseKind("decimal")
		assert.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("Text_Marshaling", func(t *testing.T) {
		data, err := json.Marshal(map[string]Kind{"a": Temporal})
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":"temporal"}`, string(data))

		var decoded map[string]Kind
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, Temporal, decoded["a"])

		_, err = Kind(99).MarshalText()
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestJSONMode(t *testing.T) {
	tests := map[string]JSONMode{
		"":          JSONNone,
		"none":      JSONNone,
		"no-op":     JSONNone,
		"Stringify": JSONStringify,
		"parse":     JSONParse,
	}
	for name, want := range tests {
		got, err := ParseJSONMode(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseJSONMode("yaml")
	assert.ErrorIs(t, err, ErrInvalidJSONMode)

	assert.Equal(t, "stringify", JSONStringify.String())
	assert.Equal(t, "JSONMode(9)", JSONMode(9).String())
}
