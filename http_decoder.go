package shape

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"reflect"
)

var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrBodyTooLarge           = errors.New("request body too large")
)

const defaultMaxBodyBytes int64 = 10 << 20

// HTTPRequestDecoderOpts configure an HTTPRequestDecoder.
type HTTPRequestDecoderOpts struct {
	// MaxBodyBytes caps the body read. Defaults to 10 MiB.
	MaxBodyBytes int64
	// MergeQuery adds query parameters to a record body for keys the body
	// does not have.
	MergeQuery bool
}

// HTTPRequestDecoder decodes an *http.Request.
//
// JSON bodies decode as JSON and form bodies as their values. A request
// without a body decodes its query string. The body is restored after
// reading so handlers can read it again.
type HTTPRequestDecoder struct {
	opts HTTPRequestDecoderOpts
}

func NewHTTPRequestDecoder(opts HTTPRequestDecoderOpts) *HTTPRequestDecoder {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &HTTPRequestDecoder{opts: opts}
}

func (hd *HTTPRequestDecoder) SourceType() reflect.Type {
	return HTTPRequestType
}

func (hd *HTTPRequestDecoder) Name() string {
	return HTTPRequestDecoderName
}

func (hd *HTTPRequestDecoder) Decode(source any) (any, error) {
	return decodeAs(source, hd.decode)
}

func (hd *HTTPRequestDecoder) decode(request *http.Request) (any, error) {
	if request == nil {
		return Absent, nil
	}

	query := url.Values{}
	if request.URL != nil {
		query = request.URL.Query()
	}

	body, err := hd.readBody(request)
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return valuesRecord(query), nil
	}

	mediaType := ContentTypeApplicationJSON
	if contentType := request.Header.Get("Content-Type"); contentType != "" {
		if mediaType, _, err = mime.ParseMediaType(contentType); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
		}
	}

	var input any
	switch mediaType {
	case ContentTypeApplicationJSON:
		if input, err = decodeJSON(string(body)); err != nil {
			return nil, err
		}
	case ContentTypeFormURLEncoded:
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse form body: %w", err)
		}
		input = valuesRecord(form)
	case ContentTypeMultipartForm:
		err := request.ParseMultipartForm(hd.opts.MaxBodyBytes)
		request.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to parse multipart body: %w", err)
		}
		input = valuesRecord(request.MultipartForm.Value)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}

	if hd.opts.MergeQuery {
		if record, ok := input.(map[string]any); ok {
			for key, value := range valuesRecord(query) {
				if _, exists := record[key]; !exists {
					record[key] = value
				}
			}
		}
	}

	return input, nil
}

// readBody reads the whole body, then puts an equivalent reader back.
func (hd *HTTPRequestDecoder) readBody(request *http.Request) ([]byte, error) {
	if request.Body == nil || request.Body == http.NoBody || request.ContentLength == 0 {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(request.Body, hd.opts.MaxBodyBytes+1))
	request.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > hd.opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, hd.opts.MaxBodyBytes)
	}

	request.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
