package shape

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedData is matched by every MalformedDataError.
	ErrMalformedData = errors.New("malformed data")

	errInvalidJSONText = errors.New("invalid JSON text")
)

// MalformedDataError reports a JSON kind value that could not be converted
// under the projection's JSONMode. It is the only error a projection of a
// valid schema can return.
type MalformedDataError struct {
	Path string // dotted field path, array indices in brackets
	Mode JSONMode
	Err  error
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("%s at %s (json mode %s): %v", ErrMalformedData, e.Path, e.Mode, e.Err)
}

func (e *MalformedDataError) Unwrap() error {
	return e.Err
}

func (e *MalformedDataError) Is(target error) bool {
	return target == ErrMalformedData
}

// CoerceOpts are the per field flags of a coercion.
type CoerceOpts struct {
	AllowNull bool
	Trim      bool
	Mode      JSONMode
	// Path is only used to label errors.
	Path string
}

// Coerce converts a resolved raw value to kind. nil is the explicit null.
//
// Rules apply in order:
//  1. null with AllowNull is returned as nil, untouched.
//  2. JSON follows the JSONMode.
//  3. Text with Trim is converted then trimmed.
//  4. Temporal values that cannot be read become nil with AllowNull, the
//     Unix epoch otherwise. UUID behaves the same with uuid.Nil.
//  5. Passthrough returns the value unchanged.
//  6. Text, Number and Boolean use the permissive conversions of
//     ToText, ToNumber and ToBoolean.
//
// Only the JSON kind can fail.
func Coerce(value any, kind Kind, opts CoerceOpts) (any, error) {
	if isNull(value) {
		value = nil
	}

	if opts.AllowNull && value == nil {
		return nil, nil
	}

	switch kind {
	case JSON:
		return coerceJSON(value, opts)
	case Text:
		if opts.Trim {
			return strings.TrimSpace(ToText(value)), nil
		}
		return ToText(value), nil
	case Temporal:
		if t, ok := ToTime(value); ok {
			return t, nil
		}
		if opts.AllowNull {
			return nil, nil
		}
		return EpochZero, nil
	case UUID:
		if id, ok := ToUUID(value); ok {
			return id, nil
		}
		if opts.AllowNull {
			return nil, nil
		}
		return uuid.Nil, nil
	case Passthrough:
		return value, nil
	case Number:
		return ToNumber(value), nil
	case Boolean:
		return ToBoolean(value), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
}

///////////////////////////////////////////////////////////////////////////////
// JSON kind
///////////////////////////////////////////////////////////////////////////////

func coerceJSON(value any, opts CoerceOpts) (any, error) {
	switch opts.Mode {
	case JSONStringify:
		if text, ok := jsonText(value); ok {
			return text, nil
		}
		text, err := marshalJSON(value)
		if err != nil {
			return nil, &MalformedDataError{Path: opts.Path, Mode: opts.Mode, Err: err}
		}
		return text, nil
	case JSONParse:
		text, ok := jsonText(value)
		if !ok {
			return value, nil
		}
		if !gjson.Valid(text) {
			return nil, &MalformedDataError{
				Path: opts.Path,
				Mode: opts.Mode,
				Err:  fmt.Errorf("%w: %q", errInvalidJSONText, abbreviate(text, 32)),
			}
		}
		return parseJSON(text), nil
	default:
		return value, nil
	}
}

// parseJSON builds the value of valid JSON text. When an object repeats a
// key the last occurrence wins, as with encoding/json.
func parseJSON(text string) any {
	return jsonValue(gjson.Parse(text))
}

func jsonValue(r gjson.Result) any {
	switch {
	case r.IsObject():
		out := make(map[string]any)
		r.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = jsonValue(value)
			return true
		})
		return out
	case r.IsArray():
		out := make([]any, 0)
		r.ForEach(func(_, value gjson.Result) bool {
			out = append(out, jsonValue(value))
			return true
		})
		return out
	default:
		return r.Value()
	}
}

// jsonText reports whether value is already JSON text.
func jsonText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.RawMessage:
		return string(v), true
	default:
		return "", false
	}
}

// marshalJSON encodes without HTML escaping and without the trailing newline
// json.Encoder adds.
func marshalJSON(value any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

///////////////////////////////////////////////////////////////////////////////
// Text
///////////////////////////////////////////////////////////////////////////////

// ToText renders a raw value as text. null is "null", numbers use their
// shortest form, sequences join their elements with commas (null elements
// are empty) and records render as "[object Object]".
func ToText(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return FormatNumber(v)
	case float32:
		return FormatNumber(float64(v))
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case json.Number:
		return v.String()
	case time.Time:
		return v.UTC().Format(isoLayout)
	case uuid.UUID:
		return v.String()
	case fmt.Stringer:
		if isNull(v) || IsAbsent(v) {
			return "null"
		}
		return v.String()
	}

	if items, ok := asSequence(value); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			if isNull(item) || IsAbsent(item) {
				continue
			}
			parts[i] = ToText(item)
		}
		return strings.Join(parts, ",")
	}

	if _, ok := asRecord(value); ok {
		return "[object Object]"
	}

	return fmt.Sprint(value)
}

// FormatNumber renders f the way ECMAScript Number::toString does: the
// shortest round trip digits, exponent form below 1e-6 and from 1e21.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	if abs := math.Abs(f); abs < 1e-6 || abs >= 1e21 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

///////////////////////////////////////////////////////////////////////////////
// Number
///////////////////////////////////////////////////////////////////////////////

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ToNumber converts a raw value to float64. Text that is not a number
// yields NaN; blank text, null and false yield 0.
func ToNumber(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		return ParseNumber(v.String())
	case string:
		return ParseNumber(v)
	case []byte:
		return ParseNumber(string(v))
	case time.Time:
		return float64(v.UnixMilli())
	}

	if isNull(value) {
		return 0
	}
	if _, ok := asRecord(value); ok {
		return math.NaN()
	}
	return ParseNumber(ToText(value))
}

// ParseNumber reads numeric text: surrounding whitespace is ignored, blank
// text is 0, and decimal, exponent, 0x, 0o, 0b and Infinity forms are
// accepted. Anything else is NaN.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			if s[2] == '+' || s[2] == '-' {
				return math.NaN()
			}
			n, ok := new(big.Int).SetString(s[2:], base)
			if !ok {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f
		}
	}

	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}

	// Out of range values come back as ±Inf or 0 alongside the error,
	// which is the wanted result.
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

///////////////////////////////////////////////////////////////////////////////
// Boolean
///////////////////////////////////////////////////////////////////////////////

// ToBoolean converts by truthiness: false, 0, NaN, empty text and null are
// false, everything else (empty sequences and records included) is true.
func ToBoolean(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []byte:
		return len(v) != 0
	case json.Number:
		f := ParseNumber(v.String())
		return f != 0 && !math.IsNaN(f)
	}

	if isNull(value) || IsAbsent(value) {
		return false
	}

	switch v := value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		f := ToNumber(v)
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

///////////////////////////////////////////////////////////////////////////////
// Temporal
///////////////////////////////////////////////////////////////////////////////

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// maxEpochMillis bounds representable instants to ±100,000,000 days around
// the epoch.
const maxEpochMillis = 8.64e15

// timeLayouts are tried in order when reading temporal text. Layouts
// without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	"2006",
	"2006/01/02 15:04:05",
	"2006/01/02",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.RFC822,
	time.RFC822Z,
	time.ANSIC,
	time.UnixDate,
	time.RubyDate,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 02 2006",
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ToTime reads an instant from a raw value. Numbers are milliseconds since
// the Unix epoch, text is matched against common layouts and null is the
// epoch itself. The result is in UTC.
func ToTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return EpochZero, true
	case time.Time:
		return v.UTC(), true
	case *time.Time:
		if v == nil {
			return EpochZero, true
		}
		return v.UTC(), true
	case string:
		return ParseTime(v)
	case []byte:
		return ParseTime(string(v))
	case bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return timeFromMillis(ToNumber(v))
	}

	if isNull(value) {
		return EpochZero, true
	}
	if _, ok := asRecord(value); ok {
		return time.Time{}, false
	}
	return ParseTime(ToText(value))
}

// ParseTime reads an instant from text.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// Drop a trailing zone name such as " (Coordinated Universal Time)".
	if i := strings.Index(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func timeFromMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

///////////////////////////////////////////////////////////////////////////////
// UUID
///////////////////////////////////////////////////////////////////////////////

// ToUUID reads a UUID from a raw value's text form.
func ToUUID(value any) (uuid.UUID, bool) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, true
	case [16]byte:
		return uuid.UUID(v), true
	case nil:
		return uuid.Nil, false
	}

	id, err := uuid.Parse(strings.TrimSpace(ToText(value)))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
