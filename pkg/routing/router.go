// Package routing is a thin layer over gorilla/mux that keeps track of named
// routes so templates and handlers can build URLs by name instead of by path.
package routing

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// ErrRouteNotFound is returned by URL when no route carries the given name.
var ErrRouteNotFound = errors.New("route not found")

// Router dispatches requests and resolves named routes.
// It is safe for concurrent use once all routes are registered.
type Router struct {
	mux    *mux.Router
	logger *slog.Logger
}

// New creates an empty Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		mux:    mux.NewRouter(),
		logger: logger,
	}
}

// Handle registers handler for path. A non-empty name makes the route
// resolvable through URL. When methods are given the route only matches them.
func (rt *Router) Handle(name, path string, handler http.Handler, methods ...string) *mux.Route {
	route := rt.mux.Handle(path, handler)
	if name != "" {
		route.Name(name)
	}
	if len(methods) > 0 {
		route.Methods(methods...)
	}
	rt.logger.Debug("Registered route", "name", name, "path", path, "methods", methods)
	return route
}

// HandleFunc is Handle for plain handler functions.
func (rt *Router) HandleFunc(name, path string, fn http.HandlerFunc, methods ...string) *mux.Route {
	return rt.Handle(name, path, fn, methods...)
}

// PathPrefix routes every path below prefix to handler.
func (rt *Router) PathPrefix(prefix string, handler http.Handler) *mux.Route {
	return rt.mux.PathPrefix(prefix).Handler(handler)
}

// Subrouter returns a Router whose routes all live under prefix. Names
// registered on the subrouter resolve through the parent as well.
func (rt *Router) Subrouter(prefix string) *Router {
	return &Router{
		mux:    rt.mux.PathPrefix(prefix).Subrouter(),
		logger: rt.logger,
	}
}

// Use appends middleware that runs for every matched route.
func (rt *Router) Use(middleware ...func(http.Handler) http.Handler) {
	for _, mw := range middleware {
		rt.mux.Use(mw)
	}
}

// NotFound sets the handler used when no route matches.
func (rt *Router) NotFound(handler http.Handler) {
	rt.mux.NotFoundHandler = handler
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// URL builds the URL for the route registered under name. args are
// alternating variable names and values, e.g. URL("posts.show", "slug", "hello").
func (rt *Router) URL(name string, args ...string) (string, error) {
	route := rt.mux.Get(name)
	if route == nil {
		return "", fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}
	u, err := route.URL(args...)
	if err != nil {
		return "", fmt.Errorf("failed to build url for route %q: %w", name, err)
	}
	return u.String(), nil
}

// RequestPath returns the path of the request being served, or "/" when the
// request carries none. A nil request yields an empty string.
func (rt *Router) RequestPath(r *http.Request) string {
	return RequestPath(r)
}

// RequestPath is the package-level form of Router.RequestPath.
func RequestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// Vars returns the route variables matched for r.
func Vars(r *http.Request) map[string]string {
	return mux.Vars(r)
}
