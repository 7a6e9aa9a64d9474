package shape

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToText(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"null", nil, "null"},
		{"string", "abc", "abc"},
		{"bytes", []byte("raw"), "raw"},
		{"true", true, "true"},
		{"int", 123456, "123456"},
		{"negative_int", int64(-42), "-42"},
		{"uint", uint8(7), "7"},
		{"float_integral", 1.0, "1"},
		{"float_fraction", 0.1, "0.1"},
		{"float_large", 123456789012.0, "123456789012"},
		{"float_small", 0.000001, "0.000001"},
		{"float_exponent_small", 1.5e-7, "1.5e-7"},
		{"float_exponent_large", 1e21, "1e+21"},
		{"nan", math.NaN(), "NaN"},
		{"infinity", math.Inf(-1), "-Infinity"},
		{"negative_zero", math.Copysign(0, -1), "0"},
		{"json_number", json.Number("12.50"), "12.50"},
		{"sequence", []any{1, nil, "a", true}, "1,,a,true"},
		{"nested_sequence", []any{[]any{1, 2}, 3}, "1,2,3"},
		{"empty_sequence", []any{}, ""},
		{"record", map[string]any{"a": 1}, "[object Object]"},
		{"time", time.Date(2020, 1, 2, 3, 4, 5, 6e6, time.UTC), "2020-01-02T03:04:05.006Z"},
		{"uuid", uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"null_sentinel", Null, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToText(tt.value))
		})
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
	}{
		{"null", nil, 0},
		{"true", true, 1},
		{"false", false, 0},
		{"int", 33, 33},
		{"float", 2.23, 2.23},
		{"text", "33", 33},
		{"text_fraction", "3.5", 3.5},
		{"text_padded", " 12 \n", 12},
		{"text_blank", "   ", 0},
		{"text_empty", "", 0},
		{"text_exponent", "1e3", 1000},
		{"text_leading_dot", ".5", 0.5},
		{"text_trailing_dot", "5.", 5},
		{"text_signed", "-7", -7},
		{"text_hex", "0x1F", 31},
		{"text_octal", "0o17", 15},
		{"text_binary", "0b101", 5},
		{"text_infinity", "Infinity", math.Inf(1)},
		{"text_negative_infinity", "-Infinity", math.Inf(-1)},
		{"bytes", []byte("8"), 8},
		{"json_number", json.Number("4.5"), 4.5},
		{"empty_sequence", []any{}, 0},
		{"single_sequence", []any{"7"}, 7},
		{"time", time.UnixMilli(1500).UTC(), 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToNumber(tt.value))
		})
	}

	nan := []struct {
		name  string
		value any
	}{
		{"text_word", "abc"},
		{"text_mixed", "12px"},
		{"text_signed_hex", "-0x5"},
		{"text_hex_sign_inside", "0x-5"},
		{"text_bad_hex", "0xZZ"},
		{"text_lowercase_inf", "inf"},
		{"text_nan", "NaN"},
		{"text_underscore", "1_000"},
		{"record", map[string]any{}},
		{"two_sequence", []any{1, 2}},
	}

	for _, tt := range nan {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, math.IsNaN(ToNumber(tt.value)), "got %v", ToNumber(tt.value))
		})
	}
}

func TestToBoolean(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"null", nil, false},
		{"absent", Absent, false},
		{"false", false, false},
		{"true", true, true},
		{"zero", 0, false},
		{"zero_float", 0.0, false},
		{"nan", math.NaN(), false},
		{"one", 1, true},
		{"negative", -2.5, true},
		{"empty_text", "", false},
		{"text_false", "false", true},
		{"text_zero", "0", true},
		{"empty_sequence", []any{}, true},
		{"empty_record", map[string]any{}, true},
		{"time", EpochZero, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToBoolean(tt.value))
		})
	}
}

func TestToTime(t *testing.T) {
	utc := func(year int, month time.Month, day, hour, min, sec int) time.Time {
		return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
	}

	tests := []struct {
		name   string
		value  any
		want   time.Time
		wantOk bool
	}{
		{"null", nil, EpochZero, true},
		{"millis_int", 1577836800000, utc(2020, 1, 1, 0, 0, 0), true},
		{"millis_float", 1577836800000.9, utc(2020, 1, 1, 0, 0, 0), true},
		{"millis_negative", -86400000, utc(1969, 12, 31, 0, 0, 0), true},
		{"true_is_one_milli", true, time.UnixMilli(1).UTC(), true},
		{"rfc3339", "2020-01-02T03:04:05Z", utc(2020, 1, 2, 3, 4, 5), true},
		{"rfc3339_offset", "2020-01-02T05:04:05+02:00", utc(2020, 1, 2, 3, 4, 5), true},
		{"date_only", "2020-01-02", utc(2020, 1, 2, 0, 0, 0), true},
		{"date_time_no_zone", "2020-01-02T03:04:05", utc(2020, 1, 2, 3, 4, 5), true},
		{"date_space_time", "2020-01-02 03:04:05", utc(2020, 1, 2, 3, 4, 5), true},
		{"year_month", "2020-01", utc(2020, 1, 1, 0, 0, 0), true},
		{"rfc1123", "Thu, 02 Jan 2020 03:04:05 UTC", utc(2020, 1, 2, 3, 4, 5), true},
		{"date_string", "Thu Jan 02 2020 03:04:05 GMT+0000 (Coordinated Universal Time)", utc(2020, 1, 2, 3, 4, 5), true},
		{"long_month", "January 2, 2020", utc(2020, 1, 2, 0, 0, 0), true},
		{"padded", "  2020-01-02  ", utc(2020, 1, 2, 0, 0, 0), true},
		{"garbage", "not a date", time.Time{}, false},
		{"empty", "", time.Time{}, false},
		{"nan", math.NaN(), time.Time{}, false},
		{"out_of_range", 8.64e15 + 1, time.Time{}, false},
		{"record", map[string]any{}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToTime(tt.value)
			require.Equal(t, tt.wantOk, ok)
			if ok {
				assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestToUUID(t *testing.T) {
	want := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	got, ok := ToUUID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = ToUUID("urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = ToUUID(want)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = ToUUID("nope")
	assert.False(t, ok)

	_, ok = ToUUID(nil)
	assert.False(t, ok)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		value any
		kind  Kind
		opts  CoerceOpts
		want  any
	}{
		{"allowed_null_skips_coercion", nil, Number, CoerceOpts{AllowNull: true}, nil},
		{"allowed_null_sentinel", Null, Text, CoerceOpts{AllowNull: true}, nil},
		{"allowed_null_skips_trim", nil, Text, CoerceOpts{AllowNull: true, Trim: true}, nil},
		{"disallowed_null_text", nil, Text, CoerceOpts{}, "null"},
		{"disallowed_null_number", nil, Number, CoerceOpts{}, float64(0)},
		{"disallowed_null_boolean", nil, Boolean, CoerceOpts{}, false},
		{"disallowed_null_passthrough", nil, Passthrough, CoerceOpts{}, nil},
		{"disallowed_null_temporal", nil, Temporal, CoerceOpts{}, EpochZero},
		{"text_trim", "  hi  ", Text, CoerceOpts{Trim: true}, "hi"},
		{"text_trim_number", 5, Text, CoerceOpts{Trim: true}, "5"},
		{"text_keeps_spaces", "  hi  ", Text, CoerceOpts{}, "  hi  "},
		{"temporal_fallback", "bad", Temporal, CoerceOpts{}, EpochZero},
		{"temporal_fallback_null", "bad", Temporal, CoerceOpts{AllowNull: true}, nil},
		{"uuid_fallback", "bad", UUID, CoerceOpts{}, uuid.Nil},
		{"uuid_fallback_null", "bad", UUID, CoerceOpts{AllowNull: true}, nil},
		{"passthrough", []int{1}, Passthrough, CoerceOpts{}, []int{1}},
		{"json_none_text", "{}", JSON, CoerceOpts{}, "{}"},
		{"json_stringify_text_unchanged", `{ "a" :1}`, JSON, CoerceOpts{Mode: JSONStringify}, `{ "a" :1}`},
		{"json_stringify_bytes", []byte(`[1]`), JSON, CoerceOpts{Mode: JSONStringify}, `[1]`},
		{"json_stringify_number", 5, JSON, CoerceOpts{Mode: JSONStringify}, "5"},
		{"json_stringify_null", nil, JSON, CoerceOpts{Mode: JSONStringify}, "null"},
		{"json_parse_structured_unchanged", []any{"x"}, JSON, CoerceOpts{Mode: JSONParse}, []any{"x"}},
		{"json_parse_number_unchanged", 5, JSON, CoerceOpts{Mode: JSONParse}, 5},
		{"json_parse_text", `{"a":[true]}`, JSON, CoerceOpts{Mode: JSONParse}, map[string]any{"a": []any{true}}},
		{"json_parse_raw_message", json.RawMessage(`"s"`), JSON, CoerceOpts{Mode: JSONParse}, "s"},
		{"json_parse_duplicate_key_last_wins", `{"a":1,"a":2}`, JSON, CoerceOpts{Mode: JSONParse}, map[string]any{"a": float64(2)}},
		{"json_parse_nested_duplicate_key", `[{"k":"x","k":{"z":null,"z":true}}]`, JSON, CoerceOpts{Mode: JSONParse}, []any{map[string]any{"k": map[string]any{"z": true}}}},
		{"json_parse_empty_containers", `{"o":{},"l":[]}`, JSON, CoerceOpts{Mode: JSONParse}, map[string]any{"o": map[string]any{}, "l": []any{}}},
		{"json_parse_escaped_key", `{"a\u0062":1}`, JSON, CoerceOpts{Mode: JSONParse}, map[string]any{"ab": float64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.kind, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Parse_Malformed", func(t *testing.T) {
		for _, text := range []string{"", "{", "{'a':1}", "[1,]", "undefined"} {
			_, err := Coerce(text, JSON, CoerceOpts{Mode: JSONParse, Path: "doc"})

			var malformed *MalformedDataError
			require.ErrorAs(t, err, &malformed, "text %q", text)
			assert.ErrorIs(t, err, ErrMalformedData)
			assert.Equal(t, "doc", malformed.Path)
			assert.Contains(t, err.Error(), "doc")
		}
	})

	t.Run("Invalid_Kind", func(t *testing.T) {
		_, err := Coerce("x", Kind(99), CoerceOpts{})
		assert.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("Stringify_Then_Parse_Is_Equivalent", func(t *testing.T) {
		value := map[string]any{"b": []any{1.5, "x"}, "a": nil}

		text, err := Coerce(value, JSON, CoerceOpts{Mode: JSONStringify})
		require.NoError(t, err)
		parsed, err := Coerce(text, JSON, CoerceOpts{Mode: JSONParse})
		require.NoError(t, err)

		assert.Equal(t, value, parsed)
	})
}

func TestFormatNumber_RoundTrips(t *testing.T) {
	for _, f := range []float64{0.1 + 0.2, 1 / 3.0, 5e-324, math.MaxFloat64, 123e-20, 98765.4321} {
		assert.Equal(t, f, ParseNumber(FormatNumber(f)), FormatNumber(f))
	}
}
