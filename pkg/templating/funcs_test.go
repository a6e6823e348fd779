package templating

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLength int
		suffix    string
		want      string
	}{
		{"strips tags", "<p>Hello <b>world</b></p>", 300, "...", "Hello world"},
		{"short text untouched", "abc def", 7, "...", "abc def"},
		{"cuts at word boundary", "The quick brown fox jumps over the lazy dog", 20, "...", "The quick brown..."},
		{"more marker", "Intro text<!--more-->the rest", 5, "...", "Intro text"},
		{"more marker is case-insensitive", "<p>Intro</p><!--MORE--><p>Rest</p>", 300, "...", "Intro"},
		{"no space falls back to hard cut", "abcdefghijklmnop", 10, "...", "abcdefg..."},
		{"counts characters not bytes", "héllo wörld ünïcode", 12, "…", "héllo…"},
		{"entities are decoded once", "Fish &amp; Chips", 300, "...", "Fish & Chips"},
		{"non-positive length disables cutting", "<i>keep all of this</i>", 0, "...", "keep all of this"},
		{"limit smaller than suffix", "abcdef ghi", 2, "...", "ab"},
		{"custom suffix", "one two three four", 12, " [more]", "one [more]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.text, tt.maxLength, tt.suffix); got != tt.want {
				t.Errorf("Excerpt(%q, %d, %q) = %q, want %q", tt.text, tt.maxLength, tt.suffix, got, tt.want)
			}
		})
	}
}

func TestMergeQuery(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		add    map[string]any
		remove []string
		want   string
	}{
		{"empty query", "", nil, nil, "?"},
		{"passthrough is sorted", "z=1&a=2", nil, nil, "?a=2&z=1"},
		{"replace value", "page=2&q=go", map[string]any{"page": 3}, nil, "?page=3&q=go"},
		{"remove key", "page=2&q=go", nil, []string{"q"}, "?page=2"},
		{"remove missing key", "page=2", nil, []string{"nope"}, "?page=2"},
		{"remove then add", "page=2&q=go", map[string]any{"q": "rust"}, []string{"q"}, "?page=2&q=rust"},
		{"nil value deletes", "page=2&q=go", map[string]any{"q": nil}, nil, "?page=2"},
		{"string slice repeats key", "", map[string]any{"tag": []string{"a", "b"}}, nil, "?tag=a&tag=b"},
		{"any slice repeats key", "", map[string]any{"n": []any{1, 2}}, nil, "?n=1&n=2"},
		{"values are escaped", "", map[string]any{"q": "a b&c"}, nil, "?q=a+b%26c"},
		{"malformed pairs are skipped", "a=1&b=%zz&c=3", nil, nil, "?a=1&c=3"},
		{"repeated keys survive", "t=x&t=y", map[string]any{"page": true}, nil, "?page=true&t=x&t=y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeQuery(tt.raw, tt.add, tt.remove)
			if err != nil {
				t.Fatalf("MergeQuery() returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("MergeQuery() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := MergeQuery("", map[string]any{"bad": struct{}{}}, nil); err == nil {
		t.Error("expected an error for a value that cannot be stringified")
	}
}

func TestURI(t *testing.T) {
	const path = "/blog/2024/hello"

	tests := []struct {
		name string
		args []any
		want any
	}{
		{"whole path", nil, path},
		{"first segment", []any{1}, "blog"},
		{"last segment", []any{3}, "hello"},
		{"missing segment", []any{4}, ""},
		{"negative segment", []any{-1}, ""},
		{"segment matches", []any{1, "blog"}, true},
		{"segment differs", []any{1, "news"}, false},
		{"numeric segment match", []any{2, 2024}, true},
		{"segment outcome on match", []any{1, "blog", "active"}, "active"},
		{"segment outcome without match", []any{1, "news", "active"}, ""},
		{"segment else outcome", []any{1, "news", "active", "idle"}, "idle"},
		{"pattern matches", []any{"/blog/.*"}, true},
		{"pattern is anchored", []any{"/blog"}, false},
		{"alternation is grouped", []any{"/news|/blog/2024/hello"}, true},
		{"pattern outcome", []any{"/blog/.*", "yes", "no"}, "yes"},
		{"pattern else outcome", []any{"/about", "yes", "no"}, "no"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := uri(path, tt.args...)
			if err != nil {
				t.Fatalf("uri(%v) returned error: %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("uri(%v) = %#v, want %#v", tt.args, got, tt.want)
			}
		})
	}

	if _, err := uri(path, "("); err == nil {
		t.Error("expected an error for an invalid pattern")
	}
	if _, err := uri(path, 1, "a", "b", "c", "d"); err == nil {
		t.Error("expected an error for too many segment arguments")
	}
	if _, err := uri(path, "x", "a", "b", "c"); err == nil {
		t.Error("expected an error for too many pattern arguments")
	}
}

func TestLogicFuncs(t *testing.T) {
	t.Run("dict", func(t *testing.T) {
		got, err := dict("page", 2, "q", "go")
		if err != nil {
			t.Fatalf("dict failed: %v", err)
		}
		if diff := cmp.Diff(map[string]any{"page": 2, "q": "go"}, got); diff != "" {
			t.Errorf("dict mismatch (-want +got):\n%s", diff)
		}
		if _, err = dict("odd"); err == nil {
			t.Error("dict should reject an odd number of arguments")
		}
	})

	t.Run("default", func(t *testing.T) {
		if defaultValue("x", "") != "x" {
			t.Error("default should replace an empty string")
		}
		if defaultValue("x", nil) != "x" {
			t.Error("default should replace nil")
		}
		if defaultValue(10, 3) != 3 {
			t.Error("default should keep a non-zero value")
		}
	})

	t.Run("list", func(t *testing.T) {
		if len(list(1, "a", nil)) != 3 {
			t.Error("list failed")
		}
	})

	t.Run("arithmetic", func(t *testing.T) {
		if add(2, 3) != 5 || sub(2, 3) != -1 || inc(1) != 2 || dec(1) != 0 {
			t.Error("arithmetic helpers failed")
		}
		if minInt(2, 3) != 2 || maxInt(2, 3) != 3 {
			t.Error("min/max failed")
		}
	})
}
