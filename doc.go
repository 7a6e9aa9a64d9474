// Package shape projects loosely typed input, such as decoded request
// bodies, into well typed records described by a schema.
//
// A schema names the output fields and, for each one, where to look for it
// in the raw record, what to convert it to, and what to do when it is
// missing or null:
//
//	schema := shape.Schema{
//	    "id":   shape.Text,
//	    "age":  shape.Field{Type: shape.Number, Fields: []string{"years"}, Default: 0},
//	    "tags": []any{shape.Text},
//	    "profile": shape.Schema{
//	        "name": shape.Field{Type: shape.Text, Trim: true},
//	    },
//	}
//
//	out, err := shape.Project(schema, rawBody)
//
// Resolution is tri-state. A field is absent when none of its keys are
// present and it has no default, and absent fields are left out of the
// result. A null is kept only when the field allows nulls, otherwise the
// default takes its place. Key presence, not truthiness, decides a match.
//
// The built in coercion kinds are:
//   - Passthrough: the raw value, unchanged
//   - Text, Number, Boolean: permissive conversions, never failing
//   - Temporal: time.Time; unreadable input falls back to the Unix epoch
//   - UUID: uuid.UUID; unreadable input falls back to uuid.Nil
//   - JSON: converted according to the projection's JSONMode
//
// Failures fall back silently to defaults. The one exception is JSON text
// that cannot be parsed under JSONParse, which returns a
// MalformedDataError naming the field path.
//
// Schemas are compiled into an immutable tree on first use and cached by
// identity in a bounded LRU, so a schema must not be mutated once it has
// been used. Declaring a schema once, as a package variable, keeps it
// cached. Map and slice defaults are copied into each result. A
// Projector, and the package level functions that share the default one,
// are safe for concurrent use.
//
// Sources other than Go maps go through a Decoder. The built in decoders
// handle JSON in a []byte or string, *http.Request, url.Values and
// map[string]string:
//
//	out, err := shape.ProjectFrom(schema, request)
//
// A schema can also be derived from a struct's shape tags with SchemaOf,
// and Bind projects straight into such a struct:
//
//	type User struct {
//	    ID   uuid.UUID `shape:"id fields:'user_id'"`
//	    Age  int       `shape:"age default:'0'"`
//	    Nick *string   `shape:"nick,trim"`
//	}
//
//	var u User
//	err := shape.BindFrom(request, &u)
package shape
