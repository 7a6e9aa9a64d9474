package shape

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrDecoderAlreadyRegistered  = errors.New("a decoder with this name for this source-type is already registered")
	ErrNoDecoder                 = errors.New("no built-in or registered decoder found for this type")
	ErrMultipleDecodersAvailable = errors.New("multiple decoders available for this source type, use WithDecoder() to specify which one")
	ErrDecoderNotFound           = errors.New("specified decoder not found for this source type")
	ErrNilDecoder                = errors.New("decoder cannot be nil")
)

// DecoderRegistry holds Decoders keyed by source type and name.
//
// Several decoders can be registered for one source type. If only one is
// registered it is used automatically, otherwise the caller must name one
// through WithDecoder().
//
// The registry is safe for concurrent use.
type DecoderRegistry struct {
	m     map[reflect.Type]map[string]Decoder // source type -> decoder name -> decoder
	mutex sync.RWMutex
}

type DecoderRegistryOpts struct {
	Decoders        []Decoder
	ExcludeDefaults bool
}

// DefaultDecoders returns new instances of the built in decoders.
func DefaultDecoders() []Decoder {
	return []Decoder{
		NewJSONByteSliceDecoder(),
		NewJSONStringDecoder(),
		NewHTTPRequestDecoder(HTTPRequestDecoderOpts{}),
		NewURLValuesDecoder(),
		NewStringMapDecoder(),
	}
}

func NewDecoderRegistry(opts DecoderRegistryOpts) (*DecoderRegistry, error) {
	reg := &DecoderRegistry{
		m: make(map[reflect.Type]map[string]Decoder),
	}

	if !opts.ExcludeDefaults {
		for _, decoder := range DefaultDecoders() {
			if err := reg.Register(decoder); err != nil {
				return nil, err
			}
		}
	}

	for _, decoder := range opts.Decoders {
		if err := reg.Register(decoder); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// MustNewDecoderRegistry is NewDecoderRegistry that panics on error.
func MustNewDecoderRegistry(opts DecoderRegistryOpts) *DecoderRegistry {
	reg, err := NewDecoderRegistry(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize DecoderRegistry: %v", err))
	}
	return reg
}

// Register adds a decoder. Names are unique per source type.
func (reg *DecoderRegistry) Register(decoder Decoder) error {
	if decoder == nil {
		return ErrNilDecoder
	}

	typ := decoder.SourceType()
	name := decoder.Name()

	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	if reg.m[typ] == nil {
		reg.m[typ] = make(map[string]Decoder)
	}
	if _, exists := reg.m[typ][name]; exists {
		return fmt.Errorf("%w: %s for %s", ErrDecoderAlreadyRegistered, name, typ)
	}

	reg.m[typ][name] = decoder
	return nil
}

// Unregister removes the named decoder for a source type.
func (reg *DecoderRegistry) Unregister(typ reflect.Type, name string) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	delete(reg.m[typ], name)
	if len(reg.m[typ]) == 0 {
		delete(reg.m, typ)
	}
}

// Decode converts source with the only decoder registered for its type.
func (reg *DecoderRegistry) Decode(source any) (any, error) {
	decoder, err := reg.getDecoderByName(source, "")
	if err != nil {
		return nil, err
	}
	return decoder.Decode(source)
}

// GetDecoder returns the decoder for source, by name when given.
func (reg *DecoderRegistry) GetDecoder(source any, decoderName string) (Decoder, error) {
	return reg.getDecoderByName(source, decoderName)
}

// getDecoderByName retrieves a specific decoder by name for the given
// source type.
//
// No name provided: If there is only one decoder registered for the type,
// it returns that decoder. If multiple decoders are registered, it returns
// an error
func (reg *DecoderRegistry) getDecoderByName(source any, decoderName string) (Decoder, error) {
	t := reflect.TypeOf(source)

	reg.mutex.RLock()
	defer reg.mutex.RUnlock()

	decodersForType, exists := reg.m[t]
	if !exists || len(decodersForType) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoDecoder, t)
	}

	if decoderName == "" {
		if len(decodersForType) > 1 {
			return nil, fmt.Errorf("%w: %v", ErrMultipleDecodersAvailable, t)
		}
		for _, decoder := range decodersForType {
			return decoder, nil
		}
	}

	if decoder, found := decodersForType[decoderName]; found {
		return decoder, nil
	}

	return nil, fmt.Errorf("%w: %s for %v", ErrDecoderNotFound, decoderName, t)
}
