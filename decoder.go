package shape

import (
	"fmt"
	"net/url"
	"reflect"

	"github.com/tidwall/gjson"
)

// Decoder turns a source value into raw input for a projection: records,
// sequences and scalars made of maps, slices and plain values.
type Decoder interface {
	// Decode converts source, which has SourceType, into raw input.
	Decode(source any) (any, error)
	// SourceType returns the reflect.Type this decoder works with
	SourceType() reflect.Type
	// Name returns a unique identifier for this decoder within its source type
	Name() string
}

// decodeAs asserts the source type before handing it to decode.
func decodeAs[S any](source any, decode func(source S) (any, error)) (any, error) {
	typed, ok := source.(S)
	if !ok {
		return nil, fmt.Errorf("expected source type %T, got %T", *new(S), source)
	}
	return decode(typed)
}

///////////////////////////////////////////////////////////////////////////////
// JSON
///////////////////////////////////////////////////////////////////////////////

// JSONByteSliceDecoder decodes JSON documents held in a []byte.
type JSONByteSliceDecoder struct{}

func NewJSONByteSliceDecoder() *JSONByteSliceDecoder {
	return &JSONByteSliceDecoder{}
}

func (jd *JSONByteSliceDecoder) SourceType() reflect.Type {
	return JSONByteSliceType
}

func (jd *JSONByteSliceDecoder) Name() string {
	return JSONByteSliceDecoderName
}

func (jd *JSONByteSliceDecoder) Decode(source any) (any, error) {
	return decodeAs(source, func(source []byte) (any, error) {
		return decodeJSON(string(source))
	})
}

// JSONStringDecoder decodes JSON documents held in a string.
type JSONStringDecoder struct{}

func NewJSONStringDecoder() *JSONStringDecoder {
	return &JSONStringDecoder{}
}

func (jd *JSONStringDecoder) SourceType() reflect.Type {
	return StringType
}

func (jd *JSONStringDecoder) Name() string {
	return JSONStringDecoderName
}

func (jd *JSONStringDecoder) Decode(source any) (any, error) {
	return decodeAs(source, decodeJSON)
}

// decodeJSON decodes a document into maps, slices, float64, string, bool
// and nil. A blank document decodes to Absent.
func decodeJSON(text string) (any, error) {
	if isBlank(text) {
		return Absent, nil
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("%w: %w: %q", ErrMalformedData, errInvalidJSONText, abbreviate(text, 32))
	}
	return parseJSON(text), nil
}

func isBlank(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

///////////////////////////////////////////////////////////////////////////////
// Value maps
///////////////////////////////////////////////////////////////////////////////

// URLValuesDecoder decodes url.Values. A key with one value becomes a
// string, a key with several becomes a sequence of strings.
type URLValuesDecoder struct{}

func NewURLValuesDecoder() *URLValuesDecoder {
	return &URLValuesDecoder{}
}

func (vd *URLValuesDecoder) SourceType() reflect.Type {
	return URLValuesType
}

func (vd *URLValuesDecoder) Name() string {
	return URLValuesDecoderName
}

func (vd *URLValuesDecoder) Decode(source any) (any, error) {
	return decodeAs(source, func(source url.Values) (any, error) {
		return valuesRecord(source), nil
	})
}

func valuesRecord(values url.Values) map[string]any {
	record := make(map[string]any, len(values))
	for key, vals := range values {
		switch len(vals) {
		case 0:
			continue
		case 1:
			record[key] = vals[0]
		default:
			items := make([]any, len(vals))
			for i, v := range vals {
				items[i] = v
			}
			record[key] = items
		}
	}
	return record
}

// StringMapDecoder decodes map[string]string sources.
type StringMapDecoder struct{}

func NewStringMapDecoder() *StringMapDecoder {
	return &StringMapDecoder{}
}

func (sd *StringMapDecoder) SourceType() reflect.Type {
	return StringMapType
}

func (sd *StringMapDecoder) Name() string {
	return StringMapDecoderName
}

func (sd *StringMapDecoder) Decode(source any) (any, error) {
	return decodeAs(source, func(source map[string]string) (any, error) {
		record, _ := asRecord(source)
		return record, nil
	})
}
