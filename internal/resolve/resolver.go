package resolve

import "sort"

// Priority is an ordered list of acceptable source tags. Earlier tags win.
type Priority []string

// Resolve returns the first source in p, in order, whose value on the field is
// present and non-empty. A sequence-shaped field resolves from its first
// element. Nothing present yields the zero Value.
func Resolve(b Bag, field string, p Priority) Value {
	rec := b[field].First()
	if rec == nil {
		return Value{}
	}
	for _, src := range p {
		if v, ok := rec[src]; ok && present(v) {
			return Value{Raw: v, Source: src}
		}
	}
	return Value{}
}

// ResolveKey is Resolve for fields whose per-source value is itself a record,
// such as pole_tag.-Imported.company.
func ResolveKey(b Bag, field string, p Priority, key string) Value {
	rec := b[field].First()
	if rec == nil {
		return Value{}
	}
	for _, src := range p {
		nested, ok := Value{Raw: rec[src], Source: src}.Record()
		if !ok {
			continue
		}
		if v, ok := nested[key]; ok && present(v) {
			return Value{Raw: v, Source: src}
		}
	}
	return Value{}
}

// AnyKey scans every source of the field in sorted tag order and returns the
// first nested record carrying key.
func AnyKey(b Bag, field, key string) Value {
	rec := b[field].First()
	if rec == nil {
		return Value{}
	}
	srcs := make([]string, 0, len(rec))
	for src := range rec {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)
	return ResolveKey(b, field, srcs, key)
}

// Matches is the boolean form of Resolve: true when any listed source of any
// element of the field satisfies pred.
func Matches(b Bag, field string, p Priority, pred func(Value) bool) bool {
	for _, rec := range b[field].Records() {
		for _, src := range p {
			v, ok := rec[src]
			if !ok || !present(v) {
				continue
			}
			if pred(Value{Raw: v, Source: src}) {
				return true
			}
		}
	}
	return false
}

// Equals returns a predicate for Matches comparing case-insensitively.
func Equals(s string) func(Value) bool {
	return func(v Value) bool { return v.Is(s) }
}

// Truthy is a predicate for Matches on completion markers.
func Truthy(v Value) bool { return v.Truthy() }

// Utility resolves the owning company: pole_tag under p.Utility, then any
// other pole_tag source, then the company attribute under p.Type.
func Utility(b Bag, p Priorities) Value {
	if v := ResolveKey(b, "pole_tag", p.Utility, "company"); v.Known() {
		return v
	}
	if v := AnyKey(b, "pole_tag", "company"); v.Known() {
		return v
	}
	return Resolve(b, "company", p.Type)
}

// Completion resolves field_completed. Upstream encodes yes as 1 and no as 2.
// The second return is false when no source answered.
func Completion(b Bag, p Priorities) (done, known bool) {
	v := Resolve(b, "field_completed", p.Completion)
	if !v.Known() {
		return false, false
	}
	if n, ok := v.Number(); ok {
		switch n {
		case 1:
			return true, true
		case 2:
			return false, true
		}
		return false, false
	}
	switch x := v.Raw.(type) {
	case bool:
		return x, true
	case string:
		switch {
		case v.Is("yes"), v.Is("true"):
			return true, true
		case v.Is("no"), v.Is("false"):
			return false, true
		}
	}
	return false, false
}

// BackOfficeDone reports whether any done source marks the node complete.
func BackOfficeDone(b Bag, p Priorities) bool {
	return Matches(b, "done", p.BackOffice, Truthy)
}
