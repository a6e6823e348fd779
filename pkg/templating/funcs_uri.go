package templating

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

var uriPatterns sync.Map // string -> *regexp.Regexp

// uri inspects the request path. The first argument selects the mode:
//
//	uri                      the path itself
//	uri N                    segment N, counting from 1 ("" if absent)
//	uri N match              whether segment N equals match
//	uri N match yes [no]     yes on match, otherwise no (or "")
//	uri pattern              whether the whole path matches the regexp
//	uri pattern yes [no]     yes on match, otherwise no (or "")
func uri(path string, args ...any) (any, error) {
	if len(args) == 0 {
		return path, nil
	}

	if isInteger(args[0]) {
		index, err := cast.ToIntE(args[0])
		if err != nil {
			return nil, err
		}
		segment := pathSegment(path, index)
		if len(args) == 1 {
			return segment, nil
		}
		if len(args) > 4 {
			return nil, fmt.Errorf("uri: too many arguments (%d)", len(args))
		}
		match, err := cast.ToStringE(args[1])
		if err != nil {
			return nil, fmt.Errorf("uri: invalid segment match: %w", err)
		}
		return pick(segment == match, args[2:]), nil
	}

	pattern, err := cast.ToStringE(args[0])
	if err != nil {
		return nil, fmt.Errorf("uri: first argument must be a segment number or a pattern: %w", err)
	}
	if len(args) > 3 {
		return nil, fmt.Errorf("uri: too many arguments (%d)", len(args))
	}
	re, err := compileURIPattern(pattern)
	if err != nil {
		return nil, err
	}
	return pick(re.MatchString(path), args[1:]), nil
}

// pick returns matched itself when no outcomes are given, otherwise the
// first outcome on a match and the second (or "") when there is none.
func pick(matched bool, outcomes []any) any {
	switch {
	case len(outcomes) == 0:
		return matched
	case matched:
		return outcomes[0]
	case len(outcomes) > 1:
		return outcomes[1]
	default:
		return ""
	}
}

func pathSegment(path string, index int) string {
	parts := strings.Split(path, "/")
	if index < 0 || index >= len(parts) {
		return ""
	}
	return parts[index]
}

func compileURIPattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := uriPatterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("uri: invalid pattern %q: %w", pattern, err)
	}
	uriPatterns.Store(pattern, re)
	return re, nil
}

func isInteger(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
