// Package resolve extracts canonical values from multi-source attribute bags.
package resolve

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Record maps a source tag (e.g. "-Imported", "button_added") to the value
// recorded under it.
type Record map[string]any

// Shape describes how an attribute arrived from upstream.
type Shape uint8

const (
	Missing Shape = iota
	Single
	Many
	Malformed
)

func (s Shape) String() string {
	switch s {
	case Single:
		return "single"
	case Many:
		return "many"
	case Malformed:
		return "malformed"
	default:
		return "missing"
	}
}

// Field is one attribute normalized to Single(record) or Many(records).
// Anything else decodes as Malformed and resolves to Unknown.
type Field struct {
	shape   Shape
	records []Record
}

// NewSingle wraps one record.
func NewSingle(r Record) Field {
	return Field{shape: Single, records: []Record{r}}
}

// NewMany wraps a sequence of records.
func NewMany(rs ...Record) Field {
	return Field{shape: Many, records: rs}
}

// Shape returns how the field was delivered.
func (f Field) Shape() Shape { return f.shape }

// Records returns the normalized records; nil for Missing and Malformed.
func (f Field) Records() []Record { return f.records }

// First returns the record used for scalar extraction.
func (f Field) First() Record {
	if len(f.records) == 0 {
		return nil
	}
	return f.records[0]
}

// UnmarshalJSON is the only place upstream shape inconsistency is handled.
// It never fails on a valid JSON document; unexpected shapes become Malformed.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = Field{}
		return nil
	}

	switch data[0] {
	case '{':
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			*f = Field{shape: Malformed}
			return nil
		}
		*f = NewSingle(r)
	case '[':
		var rs []Record
		if err := json.Unmarshal(data, &rs); err != nil {
			*f = Field{shape: Malformed}
			return nil
		}
		*f = NewMany(rs...)
	default:
		*f = Field{shape: Malformed}
	}
	return nil
}

// MarshalJSON writes the field back in the shape it arrived in.
func (f Field) MarshalJSON() ([]byte, error) {
	switch f.shape {
	case Single:
		return json.Marshal(f.records[0])
	case Many:
		return json.Marshal(f.records)
	default:
		return []byte("null"), nil
	}
}

// Bag is a node's or connection's raw attribute set.
type Bag map[string]Field

// WholeBag is the name Malformed reports when the attribute set itself was
// not a JSON object.
const WholeBag = "attributes"

// malformedKey marks a bag that arrived as something other than an object.
// No upstream attribute has an empty name.
const malformedKey = ""

// UnmarshalJSON decodes an attribute object. Arrays, scalars and objects that
// fail to decode become an empty bag flagged malformed, so one bad node never
// fails the whole job.
func (b *Bag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	if data[0] == '{' {
		var m map[string]Field
		if err := json.Unmarshal(data, &m); err == nil {
			*b = m
			return nil
		}
	}
	*b = Bag{malformedKey: {shape: Malformed}}
	return nil
}

// IsMalformed reports whether the bag itself could not be decoded.
func (b Bag) IsMalformed() bool {
	f, ok := b[malformedKey]
	return ok && f.shape == Malformed
}

// Has reports whether the attribute key is present at all.
func (b Bag) Has(name string) bool {
	_, ok := b[name]
	return ok
}

// Malformed returns the names of attributes that could not be normalized,
// sorted for stable logging.
func (b Bag) Malformed() []string {
	var out []string
	for name, f := range b {
		if f.shape != Malformed {
			continue
		}
		if name == malformedKey {
			name = WholeBag
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
