package repository

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

// reserved attribute names owned by the store itself.
var reserved = map[string]struct{}{"id": {}, "_id": {}, "created_at": {}}

// normalizeAttrs deep-copies attrs into their JSON representation so all
// backends see the same value shapes (float64 numbers, RFC 3339 times).
func normalizeAttrs(attrs domain.Attrs) (domain.Attrs, error) {
	out := domain.Attrs{}
	if len(attrs) == 0 {
		return out, nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, domain.Invalid("", fmt.Sprintf("attributes are not serializable: %v", err))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize attributes: %w", err)
	}
	for k := range reserved {
		delete(out, k)
	}
	return out, nil
}

func normalizeValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func copyAttrs(attrs domain.Attrs) domain.Attrs {
	out, err := normalizeAttrs(attrs)
	if err != nil {
		out = domain.Attrs{}
		for k, v := range attrs {
			out[k] = v
		}
	}
	return out
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func checkRequired(spec domain.KindSpec, attrs domain.Attrs) error {
	for _, field := range spec.RequiredFields() {
		if isEmpty(attrs[field]) {
			return domain.Invalid(field, "is required")
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), n == float64(int64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case nil:
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareValues orders nil first, then numbers, strings and bools.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func lookupSpec(kind domain.Kind) (domain.KindSpec, error) {
	spec, ok := domain.Lookup(kind)
	if !ok {
		return domain.KindSpec{}, domain.Invalid("kind", fmt.Sprintf("unknown kind %q", kind))
	}
	return spec, nil
}

// validField guards attribute names that end up in queries.
func validField(field string) error {
	if field == "" {
		return domain.Invalid("field", "empty field name")
	}
	for _, r := range field {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return domain.Invalid(field, "invalid field name")
		}
	}
	return nil
}
