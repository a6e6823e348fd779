package templating

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"

	"github.com/spf13/cast"
)

// MergeQuery applies edits to a raw query string and returns the result with
// a leading "?". Keys in remove are dropped first, then every key in add
// replaces whatever the query held. A nil value in add removes the key; a
// slice value produces a repeated key. Malformed pairs in raw are skipped.
// The output is encoded with sorted keys.
func MergeQuery(raw string, add map[string]any, remove []string) (string, error) {
	// ParseQuery keeps every pair it could decode alongside the first error.
	values, _ := url.ParseQuery(raw)

	for _, key := range remove {
		values.Del(key)
	}

	keys := make([]string, 0, len(add))
	for key := range add {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := add[key]
		if value == nil {
			values.Del(key)
			continue
		}
		strs, err := toStringList(value)
		if err != nil {
			return "", fmt.Errorf("queryString: value for %q: %w", key, err)
		}
		values[key] = strs
	}

	return "?" + values.Encode(), nil
}

// toStringList converts a scalar into a one-element list and a slice into a
// list of its stringified elements.
func toStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			s, err := cast.ToStringE(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// toStringMap accepts any map with string-convertible keys, as produced by
// dict or passed in from handler data.
func toStringMap(value any) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	if m, ok := value.(map[string]any); ok {
		return m, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("expected a map, got %T", value)
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, err := cast.ToStringE(iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		out[key] = iter.Value().Interface()
	}
	return out, nil
}
