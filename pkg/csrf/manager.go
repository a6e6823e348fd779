package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTokenName is the store key used when a caller asks for an unnamed token.
const DefaultTokenName = "_default"

// ErrNoSession is returned when a request did not pass through Middleware.
var ErrNoSession = errors.New("csrf: request has no session")

type contextKey string

const contextKeySession = contextKey("csrf-session")

// Manager issues, renders and validates CSRF tokens.
// All methods are safe for concurrent use.
type Manager struct {
	store  Store
	config *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager backed by store. A nil config uses DefaultConfig.
func NewManager(store Store, config *Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return *m.config
}

// Middleware makes sure every request carries a session id. Browsers without
// a valid session cookie receive a fresh one.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := ""
		if c, err := r.Cookie(m.config.CookieName); err == nil {
			if id, err := uuid.Parse(c.Value); err == nil {
				session = id.String()
			}
		}
		if session == "" {
			session = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     m.config.CookieName,
				Value:    session,
				Path:     "/",
				HttpOnly: true,
				Secure:   m.config.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
			m.logger.Debug("Issued new session", "session", session, "remote_addr", r.RemoteAddr)
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// WithSession returns a copy of ctx carrying session as the CSRF session id.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

// SessionFromContext returns the session id stored by Middleware.
func SessionFromContext(ctx context.Context) (string, bool) {
	session, ok := ctx.Value(contextKeySession).(string)
	return session, ok && session != ""
}

// Token returns the token for name in the request's session, issuing a new
// one when none exists or the stored one has expired. An empty name selects
// the default token.
func (m *Manager) Token(r *http.Request, name string) (string, error) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		return "", ErrNoSession
	}
	name = tokenName(name)

	tok, err := m.store.Get(r.Context(), session, name)
	if err == nil && !tok.Expired(m.now()) {
		return tok.Value, nil
	}
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return "", err
	}

	value, err := generateToken(m.config.TokenBytes)
	if err != nil {
		return "", err
	}
	tok = Token{
		Session:   session,
		Name:      name,
		Value:     value,
		ExpiresAt: m.now().Add(m.config.TTL()),
	}
	if err = m.store.Put(r.Context(), tok); err != nil {
		return "", err
	}
	return value, nil
}

// Field returns hidden form inputs carrying the token for name. Named tokens
// also carry the name so Protect knows which token to check.
func (m *Manager) Field(r *http.Request, name string) (template.HTML, error) {
	value, err := m.Token(r, name)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	writeHiddenInput(&builder, m.config.FieldName, value)
	if name != "" {
		writeHiddenInput(&builder, m.config.NameField, name)
	}
	return template.HTML(builder.String()), nil
}

// Validate reports whether token matches the live token for name in the
// request's session.
func (m *Manager) Validate(r *http.Request, name, token string) bool {
	if token == "" {
		return false
	}
	session, ok := SessionFromContext(r.Context())
	if !ok {
		return false
	}
	tok, err := m.store.Get(r.Context(), session, tokenName(name))
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			m.logger.Error("Failed to load csrf token", "error", err)
		}
		return false
	}
	if tok.Expired(m.now()) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tok.Value), []byte(token)) == 1
}

// Protect rejects state-changing requests that do not present a valid token,
// either in the configured header or in the form body. Safe methods pass
// through untouched. Protect must run inside Middleware.
func (m *Manager) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(m.config.HeaderName)
		if token == "" {
			token = r.PostFormValue(m.config.FieldName)
		}
		name := r.PostFormValue(m.config.NameField)

		if !m.Validate(r, name, token) {
			m.logger.Warn("Rejected request with invalid csrf token", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Prune removes expired tokens from the store.
func (m *Manager) Prune(ctx context.Context) (int64, error) {
	removed, err := m.store.Prune(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.logger.Info("Pruned expired csrf tokens", "count", removed)
	}
	return removed, nil
}

func tokenName(name string) string {
	if name == "" {
		return DefaultTokenName
	}
	return name
}

func writeHiddenInput(b *strings.Builder, name, value string) {
	b.WriteString(`<input type="hidden" name="`)
	b.WriteString(html.EscapeString(name))
	b.WriteString(`" value="`)
	b.WriteString(html.EscapeString(value))
	b.WriteString(`">`)
}

func generateToken(size int) (string, error) {
	if size <= 0 {
		size = DefaultConfig().TokenBytes
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
