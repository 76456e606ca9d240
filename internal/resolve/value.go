package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deeplydigital/pole-burndown/internal/model"
)

// Value is a resolved attribute value and the source tag it came from.
// The zero Value is Unknown.
type Value struct {
	Raw    any
	Source string
}

// Known reports whether any source produced the value.
func (v Value) Known() bool { return v.Source != "" }

// String renders the value, or model.Unknown when nothing resolved.
func (v Value) String() string {
	if !v.Known() {
		return model.Unknown
	}
	switch x := v.Raw.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Is reports a case-insensitive match against s.
func (v Value) Is(s string) bool {
	return v.Known() && strings.EqualFold(v.String(), s)
}

// Number returns the value as a float when it is numeric or a numeric string.
func (v Value) Number() (float64, bool) {
	switch x := v.Raw.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// Truthy reports whether the value is an affirmative marker: true, "yes",
// "true", "done" or a non-zero number.
func (v Value) Truthy() bool {
	switch x := v.Raw.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "yes", "true", "done", "1":
			return true
		}
	}
	return false
}

// Record returns the value as a nested record.
func (v Value) Record() (Record, bool) {
	switch x := v.Raw.(type) {
	case Record:
		return x, true
	case map[string]any:
		return Record(x), true
	}
	return nil, false
}

// present treats nil, blank strings and empty containers as absent.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	}
	return true
}
