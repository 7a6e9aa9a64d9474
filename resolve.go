package shape

// Resolve finds the raw value of a field in a record.
//
// Aliases are probed in order and the first key that is present wins, even
// when it holds null. When none is present the descriptor's default is
// used. A null found while AllowNull is false is replaced by the default;
// a null default stays null. A map or slice default is copied, so the
// caller may modify what it gets back.
//
// An Absent record resolves to Absent. Anything else that is not a record
// behaves like an empty one, so only the default can apply.
func Resolve(record any, d *Descriptor) Resolved {
	if IsAbsent(record) {
		return Resolved{State: StateAbsent}
	}

	fields, _ := asRecord(record)

	resolved, found := d.Default, false
	for _, alias := range d.Aliases {
		if value, ok := lookup(fields, alias); ok {
			resolved, found = resolvedOf(value), true
			break
		}
	}

	if !found || (resolved.State == StateNull && !d.AllowNull) {
		return d.Default.clone()
	}

	return resolved
}
