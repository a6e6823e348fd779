package templating

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// list returns a slice containing all the arguments passed to it.
func list(args ...any) []any {
	return args
}

// dict builds a map from alternating keys and values, e.g.
// {{dict "page" 2 "sort" "date"}}. Keys are converted to strings.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: expected key/value pairs, got %d arguments", len(pairs))
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, err := cast.ToStringE(pairs[i])
		if err != nil {
			return nil, fmt.Errorf("dict: invalid key at position %d: %w", i, err)
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

// defaultValue returns value unless it is nil or its type's zero value, in
// which case fallback is returned. Used as {{default "Untitled" .Title}}.
func defaultValue(fallback, value any) any {
	v := reflect.ValueOf(value)
	if !v.IsValid() || v.IsZero() {
		return fallback
	}
	return value
}
