package shape

import (
	"errors"
	"fmt"
	"strings"
)

// Base Error types for tag parsing errors
var (
	ErrInvalidTag        = errors.New("invalid shape tag")
	ErrSubTagNotFound    = errors.New("subtag not found")
	ErrUnknownSubTag     = errors.New("unknown subtag")
	ErrUnknownModifier   = errors.New("unknown tag modifier")
	ErrUnterminatedValue = errors.New("unterminated subtag value")
)

// Tag grammar:
//
//	shape:"<head> <subtag_list>"
//
// head, optional and first when present:
//
//	<name>[,<modifier>]^*
//
// name is the output key. Empty uses the json tag name or the Go field
// name, and "-" skips the field.
//
// modifier:
//
//	allownull | trim
//
// subtag_list, space separated:
//
//	type:'<kind>' | fields:'<alias>[,<alias>]^*' | default:'<value>'
//
// Values may be quoted with single quotes, which is needed when they hold
// spaces. A quote inside a quoted value is escaped with a backslash.
//
// Example:
//
//	Age int `shape:"age,allownull fields:'years,user_age' default:'0'"`
const (
	ShapeTagName      = "shape"
	SkipFieldTagName  = "-"
	AllowNullModifier = "allownull"
	TrimModifier      = "trim"

	SubTagScopeDelimiter        = byte('\'')
	SubTagEscape                = byte('\\')
	DefaultKeyValueTagDelimiter = ":"
)

// FieldTag is a decoded shape tag.
type FieldTag struct {
	Name      string
	AllowNull bool
	Trim      bool
	// SubTags holds type, fields and default when present.
	SubTags map[string]string
}

// Skip reports whether the tag excludes its field.
func (ft FieldTag) Skip() bool {
	return ft.Name == SkipFieldTagName
}

// Lookup returns a subtag value.
func (ft FieldTag) Lookup(key string) (string, bool) {
	v, ok := ft.SubTags[key]
	return v, ok
}

// DecodeFieldTag parses the value of a shape struct tag.
func DecodeFieldTag(tag string) (FieldTag, error) {
	ft := FieldTag{SubTags: make(map[string]string)}

	tokens, err := splitTag(tag)
	if err != nil {
		return FieldTag{}, err
	}

	for i, token := range tokens {
		key, value, isSubTag, err := cutSubTag(token)
		if err != nil {
			return FieldTag{}, err
		}

		if !isSubTag {
			if i != 0 {
				return FieldTag{}, fmt.Errorf("%w: name %q must come first", ErrInvalidTag, token)
			}
			if err := ft.decodeHead(token); err != nil {
				return FieldTag{}, err
			}
			continue
		}

		switch key {
		case TypeAttribute, FieldsAttribute, DefaultAttribute:
		default:
			return FieldTag{}, fmt.Errorf("%w: %s", ErrUnknownSubTag, key)
		}
		if _, dup := ft.SubTags[key]; dup {
			return FieldTag{}, fmt.Errorf("%w: duplicate subtag %s", ErrInvalidTag, key)
		}
		ft.SubTags[key] = value
	}

	return ft, nil
}

func (ft *FieldTag) decodeHead(head string) error {
	parts := strings.Split(head, ",")
	ft.Name = parts[0]

	for _, modifier := range parts[1:] {
		switch strings.ToLower(strings.TrimSpace(modifier)) {
		case AllowNullModifier:
			ft.AllowNull = true
		case TrimModifier:
			ft.Trim = true
		case "":
			// trailing comma
		default:
			return fmt.Errorf("%w: %s", ErrUnknownModifier, modifier)
		}
	}
	return nil
}

// SubTags returns every key:value pair of tag. A head token is ignored.
func SubTags(tag string) (map[string]string, error) {
	tokens, err := splitTag(tag)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(tokens))
	for _, token := range tokens {
		key, value, isSubTag, err := cutSubTag(token)
		if err != nil {
			return nil, err
		}
		if isSubTag {
			result[key] = value
		}
	}
	return result, nil
}

// Example: tag = `age fields:'years,user_age' default:'0'`
//
// SubTag(tag, "fields") should return "years,user_age"
//
// SubTag(tag, "type") should return ErrSubTagNotFound
func SubTag(tag string, key string) (string, error) {
	subtags, err := SubTags(tag)
	if err != nil {
		return "", err
	}
	value, ok := subtags[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSubTagNotFound, key)
	}
	return value, nil
}

// splitTag splits on spaces and tabs outside of quoted values.
func splitTag(tag string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
		escaped bool
	)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(tag); i++ {
		c := tag[i]

		switch {
		case escaped:
			escaped = false
		case c == SubTagEscape && quoted:
			escaped = true
		case c == SubTagScopeDelimiter:
			quoted = !quoted
		case (c == ' ' || c == '\t') && !quoted:
			flush()
			continue
		}
		current.WriteByte(c)
	}

	if quoted {
		return nil, fmt.Errorf("%w in %q", ErrUnterminatedValue, tag)
	}
	flush()
	return tokens, nil
}

// cutSubTag splits "key:value" and unquotes the value. isSubTag is false
// for a head token.
func cutSubTag(token string) (key, value string, isSubTag bool, err error) {
	quote := strings.IndexByte(token, SubTagScopeDelimiter)
	colon := strings.Index(token, DefaultKeyValueTagDelimiter)
	if colon < 0 || (quote >= 0 && quote < colon) {
		return "", "", false, nil
	}

	key = token[:colon]
	if key == "" {
		return "", "", false, fmt.Errorf("%w: empty subtag key in %q", ErrInvalidTag, token)
	}

	value = token[colon+1:]
	if len(value) >= 2 && value[0] == SubTagScopeDelimiter && value[len(value)-1] == SubTagScopeDelimiter {
		value = unescape(value[1 : len(value)-1])
	} else if strings.IndexByte(value, SubTagScopeDelimiter) >= 0 {
		return "", "", false, fmt.Errorf("%w: stray quote in %q", ErrInvalidTag, token)
	}

	return key, value, true, nil
}

func unescape(value string) string {
	if strings.IndexByte(value, SubTagEscape) < 0 {
		return value
	}

	var b strings.Builder
	escaped := false
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == SubTagEscape && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteByte(c)
	}
	return b.String()
}
