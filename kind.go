package shape

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKind     = errors.New("unknown coercion kind")
	ErrInvalidJSONMode = errors.New("unknown json mode")
)

// Kind is the coercion applied to a leaf field. The zero value is
// Passthrough, so a Field without a Type keeps its raw value.
type Kind uint8

const (
	Passthrough Kind = iota // value is kept as is
	Text                    // string
	Number                  // float64
	Boolean                 // bool, by truthiness
	Temporal                // time.Time, UTC
	JSON                    // governed by the call's JSONMode
	UUID                    // uuid.UUID
	numKinds
)

var kindNames = [numKinds]string{
	Passthrough: "passthrough",
	Text:        "text",
	Number:      "number",
	Boolean:     "boolean",
	Temporal:    "temporal",
	JSON:        "json",
	UUID:        "uuid",
}

// kindAliases are accepted by ParseKind in addition to the canonical names.
var kindAliases = map[string]Kind{
	"default": Passthrough,
	"any":     Passthrough,
	"string":  Text,
	"float":   Number,
	"bool":    Boolean,
	"date":    Temporal,
	"time":    Temporal,
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k < numKinds
}

// ParseKind looks a kind up by name, case insensitively.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	if k, ok := kindAliases[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, name)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// JSONMode controls what the JSON kind does. One mode applies to a whole
// projection, nested levels included.
type JSONMode uint8

const (
	JSONNone      JSONMode = iota // keep the raw value
	JSONStringify                 // structured values become JSON text
	JSONParse                     // JSON text becomes structured values
)

func (m JSONMode) String() string {
	switch m {
	case JSONNone:
		return "none"
	case JSONStringify:
		return "stringify"
	case JSONParse:
		return "parse"
	default:
		return fmt.Sprintf("JSONMode(%d)", uint8(m))
	}
}

// ParseJSONMode looks a mode up by name. The empty string is JSONNone.
func ParseJSONMode(name string) (JSONMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "noop", "no-op":
		return JSONNone, nil
	case "stringify":
		return JSONStringify, nil
	case "parse":
		return JSONParse, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidJSONMode, name)
	}
}
