package katapult

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Text decodes any JSON scalar as its string form. Objects, arrays and null
// decode as "". Upstream fields like association and proposed flip between
// strings, booleans and numbers across jobs.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '{', '[', 'n':
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

// Is compares case-insensitively after trimming.
func (t Text) Is(s string) bool {
	return strings.EqualFold(strings.TrimSpace(string(t)), s)
}

// True reports an affirmative flag value.
func (t Text) True() bool {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "true", "yes", "1":
		return true
	}
	return false
}

// Number is an optional float that accepts JSON numbers and numeric strings.
// null, blanks and unparseable values decode as invalid rather than failing
// the whole job.
type Number struct {
	Value float64
	Valid bool
}

// Num builds a valid Number.
func Num(v float64) Number { return Number{Value: v, Valid: true} }

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Metadata is the free-form job metadata block. Accessors tolerate missing
// keys and unexpected types.
type Metadata map[string]any

// String returns the value at key as a trimmed string, or "".
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Strings returns a list value, accepting a single string or a comma list.
func (m Metadata) Strings(key string) []string {
	var out []string
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Int returns a numeric value at key, or def.
func (m Metadata) Int(key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// decodeObject decodes a JSON object into a map, dropping entries whose value
// does not decode as V. Anything other than an object yields nil.
func decodeObject[V any](data []byte) map[string]V {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make(map[string]V, len(raw))
	for k, v := range raw {
		var val V
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		out[k] = val
	}
	return out
}
