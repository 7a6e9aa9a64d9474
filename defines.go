package shape

import (
	"net/http"
	"net/url"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Attribute keys recognized on map-form schema entries.
const (
	TypeAttribute      = "type"
	FieldsAttribute    = "fields"
	DefaultAttribute   = "default"
	AllowNullAttribute = "allowNull"
	TrimAttribute      = "trim"
)

// Decoder name constants for built in decoders.
const (
	JSONByteSliceDecoderName = "json-[]byte-decoder"
	JSONStringDecoderName    = "json-string-decoder"
	HTTPRequestDecoderName   = "http-request-decoder"
	URLValuesDecoderName     = "url-values-decoder"
	StringMapDecoderName     = "stringmap-decoder"
)

// Mime Type constants for content types and encodings.
const (
	ContentTypeApplicationJSON string = "application/json"
	ContentTypeFormURLEncoded  string = "application/x-www-form-urlencoded"
	ContentTypeMultipartForm   string = "multipart/form-data"
)

// Path rendering for error reporting.
const (
	PathSeparator = "."
	RootPath      = "$"
)

// reflect.TypeOf constants for type checks
var (
	HTTPRequestType   = reflect.TypeOf((*http.Request)(nil))
	JSONByteSliceType = reflect.TypeOf([]byte{})
	StringType        = reflect.TypeOf("")
	StringMapType     = reflect.TypeOf(map[string]string{})
	URLValuesType     = reflect.TypeOf(url.Values{})
	TimeType          = reflect.TypeOf(time.Time{})
	UUIDType          = reflect.TypeOf(uuid.UUID{})
)

// EpochZero is the instant temporal coercion falls back to.
var EpochZero = time.UnixMilli(0).UTC()
