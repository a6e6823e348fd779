package templating

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/spf13/cast"
)

// AssetResolver turns an asset path into a public, cache-busted URL.
type AssetResolver interface {
	URL(file string) string
}

// RouteResolver builds URLs for named routes and reports the path of the
// request being served.
type RouteResolver interface {
	URL(name string, args ...string) (string, error)
	RequestPath(r *http.Request) string
}

// TokenIssuer hands out CSRF tokens for the session behind a request.
type TokenIssuer interface {
	Token(r *http.Request, name string) (string, error)
	Field(r *http.Request, name string) (template.HTML, error)
}

// ErrNoRouter is returned by the route helper when no RouteResolver is set.
var ErrNoRouter = errors.New("route: no router configured")

// ViewOptions wires a ViewExtension to the application. Every collaborator is
// optional; helpers whose collaborator is missing fall back to passing their
// input through (asset), returning an empty string (csrf, uri) or failing
// (route).
type ViewOptions struct {
	Assets AssetResolver
	Routes RouteResolver
	CSRF   TokenIssuer
	Logger *slog.Logger
}

// ViewExtension provides the asset, route, excerpt, queryString, csrfToken,
// csrfField and uri helpers.
type ViewExtension struct {
	assets AssetResolver
	routes RouteResolver
	csrf   TokenIssuer
	logger *slog.Logger

	mu     sync.RWMutex
	config *TemplateConfig
}

// NewViewExtension creates a ViewExtension. Excerpt defaults come from the
// TemplateManager's config once the extension is loaded.
func NewViewExtension(opts ViewOptions) *ViewExtension {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ViewExtension{
		assets: opts.Assets,
		routes: opts.Routes,
		csrf:   opts.CSRF,
		logger: logger,
		config: DefaultConfig(),
	}
}

// Name implements Extension.
func (v *ViewExtension) Name() string {
	return "view"
}

// SetConfig implements Configurable.
func (v *ViewExtension) SetConfig(config *TemplateConfig) {
	if config == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.config = config
}

func (v *ViewExtension) excerptDefaults() (int, string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.config.ExcerptLength, v.config.ExcerptSuffix
}

// Funcs implements Extension. The request-aware helpers close over r.
func (v *ViewExtension) Funcs(r *http.Request) template.FuncMap {
	return template.FuncMap{
		"asset":   v.Asset,
		"route":   v.Route,
		"excerpt": v.Excerpt,
		"queryString": func(args ...any) (string, error) {
			return v.QueryString(r, args...)
		},
		"csrfToken": func(name ...string) (string, error) {
			return v.CSRFToken(r, name...)
		},
		"csrfField": func(name ...string) (template.HTML, error) {
			return v.CSRFField(r, name...)
		},
		"uri": func(args ...any) (any, error) {
			return uri(v.requestPath(r), args...)
		},
	}
}

// Asset returns the cache-busted URL for file, or file itself when no
// resolver is configured.
func (v *ViewExtension) Asset(file string) string {
	if v.assets == nil {
		return file
	}
	return v.assets.URL(file)
}

// Route resolves a named route. args are either alternating variable names
// and values, or a single map of variables.
func (v *ViewExtension) Route(name string, args ...any) (string, error) {
	if v.routes == nil {
		return "", ErrNoRouter
	}
	pairs, err := routeArgs(args)
	if err != nil {
		return "", fmt.Errorf("route %q: %w", name, err)
	}
	u, err := v.routes.URL(name, pairs...)
	if err != nil {
		v.logger.Warn("Failed to resolve route in template", "route", name, "error", err)
		return "", err
	}
	return u, nil
}

// routeArgs flattens template arguments into the string pairs the router
// expects. Map keys are sorted so the result is deterministic.
func routeArgs(args []any) ([]string, error) {
	if len(args) == 1 {
		m, err := toStringMap(args[0])
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(m)*2)
		for _, k := range keys {
			value, err := cast.ToStringE(m[k])
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", k, err)
			}
			pairs = append(pairs, k, value)
		}
		return pairs, nil
	}

	pairs := make([]string, 0, len(args))
	for i, arg := range args {
		s, err := cast.ToStringE(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		pairs = append(pairs, s)
	}
	return pairs, nil
}

// Excerpt is the template form of the package-level Excerpt. The optional
// arguments are the maximum length and the suffix; missing ones come from
// the template config. text may be a string or template.HTML.
func (v *ViewExtension) Excerpt(text any, opts ...any) (string, error) {
	body, err := cast.ToStringE(text)
	if err != nil {
		return "", fmt.Errorf("excerpt: %w", err)
	}
	maxLength, suffix := v.excerptDefaults()
	if len(opts) > 2 {
		return "", fmt.Errorf("excerpt: too many arguments (%d)", len(opts)+1)
	}
	if len(opts) > 0 {
		n, err := cast.ToIntE(opts[0])
		if err != nil {
			return "", fmt.Errorf("excerpt: invalid length: %w", err)
		}
		maxLength = n
	}
	if len(opts) > 1 {
		s, err := cast.ToStringE(opts[1])
		if err != nil {
			return "", fmt.Errorf("excerpt: invalid suffix: %w", err)
		}
		suffix = s
	}
	return Excerpt(body, maxLength, suffix), nil
}

// QueryString returns the query string of r with edits applied. The first
// argument is a map of keys to add or replace (nil for none); any further
// arguments name keys to remove, as strings or lists of strings.
func (v *ViewExtension) QueryString(r *http.Request, args ...any) (string, error) {
	raw := ""
	if r != nil && r.URL != nil {
		raw = r.URL.RawQuery
	}

	var add map[string]any
	var remove []string
	if len(args) > 0 {
		m, err := toStringMap(args[0])
		if err != nil {
			return "", fmt.Errorf("queryString: %w", err)
		}
		add = m
		for _, arg := range args[1:] {
			keys, err := toStringList(arg)
			if err != nil {
				return "", fmt.Errorf("queryString: invalid key to remove: %w", err)
			}
			remove = append(remove, keys...)
		}
	}
	return MergeQuery(raw, add, remove)
}

// CSRFToken returns the CSRF token for the optional token name. Outside of a
// request, or without a token issuer, it returns an empty string.
func (v *ViewExtension) CSRFToken(r *http.Request, name ...string) (string, error) {
	if v.csrf == nil || r == nil {
		return "", nil
	}
	return v.csrf.Token(r, firstOrEmpty(name))
}

// CSRFField returns a hidden input carrying the CSRF token for the optional
// token name.
func (v *ViewExtension) CSRFField(r *http.Request, name ...string) (template.HTML, error) {
	if v.csrf == nil || r == nil {
		return "", nil
	}
	return v.csrf.Field(r, firstOrEmpty(name))
}

func (v *ViewExtension) requestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	if v.routes != nil {
		return v.routes.RequestPath(r)
	}
	return r.URL.Path
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
