package csrf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// setupTestManager returns a manager on a fresh MemoryStore with a clock the
// test can move.
func setupTestManager(t *testing.T) (*Manager, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	m := NewManager(store, nil, nil)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, store, &now
}

func sessionRequest(method, target, session string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	return r.WithContext(WithSession(r.Context(), session))
}

func TestManager_Token(t *testing.T) {
	m, store, _ := setupTestManager(t)
	r := sessionRequest(http.MethodGet, "/", "session-a")

	first, err := m.Token(r, "")
	if err != nil {
		t.Fatalf("Token() returned error: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex characters, got %d (%q)", len(first), first)
	}

	second, _ := m.Token(r, "")
	if first != second {
		t.Error("Token() should be stable within a session")
	}

	named, _ := m.Token(r, "delete-post")
	if named == first {
		t.Error("named tokens should differ from the default token")
	}

	other, _ := m.Token(sessionRequest(http.MethodGet, "/", "session-b"), "")
	if other == first {
		t.Error("tokens should differ between sessions")
	}

	if store.Len() != 3 {
		t.Errorf("expected 3 stored tokens, got %d", store.Len())
	}
}

func TestManager_TokenWithoutSession(t *testing.T) {
	m, _, _ := setupTestManager(t)
	if _, err := m.Token(httptest.NewRequest(http.MethodGet, "/", nil), ""); err != ErrNoSession {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestManager_TokenExpiry(t *testing.T) {
	m, _, now := setupTestManager(t)
	r := sessionRequest(http.MethodGet, "/", "session-a")

	before, _ := m.Token(r, "")
	*now = now.Add(m.config.TTL() + time.Second)
	after, _ := m.Token(r, "")
	if before == after {
		t.Error("expected a fresh token after expiry")
	}
	if m.Validate(r, "", before) {
		t.Error("the replaced token should no longer validate")
	}
	if !m.Validate(r, "", after) {
		t.Error("the fresh token should validate")
	}
}

func TestManager_Field(t *testing.T) {
	m, _, _ := setupTestManager(t)
	r := sessionRequest(http.MethodGet, "/", "session-a")

	token, _ := m.Token(r, "")
	field, err := m.Field(r, "")
	if err != nil {
		t.Fatalf("Field() returned error: %v", err)
	}
	want := `<input type="hidden" name="csrf_token" value="` + token + `">`
	if string(field) != want {
		t.Errorf("Field() = %q, want %q", field, want)
	}

	named, _ := m.Field(r, `edit"post`)
	if !strings.Contains(string(named), `name="csrf_name" value="edit&#34;post"`) {
		t.Errorf("named field should carry the escaped token name, got %q", named)
	}
}

func TestManager_Validate(t *testing.T) {
	m, _, _ := setupTestManager(t)
	r := sessionRequest(http.MethodGet, "/", "session-a")
	token, _ := m.Token(r, "form")

	tests := []struct {
		name      string
		session   string
		tokenName string
		token     string
		want      bool
	}{
		{"matching token", "session-a", "form", token, true},
		{"wrong name", "session-a", "", token, false},
		{"wrong session", "session-b", "form", token, false},
		{"wrong value", "session-a", "form", strings.Repeat("0", 64), false},
		{"empty value", "session-a", "form", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sessionRequest(http.MethodPost, "/", tt.session)
			if got := m.Validate(req, tt.tokenName, tt.token); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}

	if m.Validate(httptest.NewRequest(http.MethodPost, "/", nil), "form", token) {
		t.Error("requests without a session must not validate")
	}
}

func TestManager_Middleware(t *testing.T) {
	m, _, _ := setupTestManager(t)
	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "vellum_session" {
		t.Fatalf("expected a session cookie, got %v", cookies)
	}
	if seen != cookies[0].Value {
		t.Errorf("context session %q does not match cookie %q", seen, cookies[0].Value)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	// A returning browser keeps its session and gets no new cookie.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("expected no new cookie for an existing session")
	}
	if seen != cookies[0].Value {
		t.Errorf("expected session %q to be reused, got %q", cookies[0].Value, seen)
	}

	// A forged, non-UUID cookie is replaced.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "vellum_session", Value: "not-a-uuid"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if len(rec.Result().Cookies()) != 1 {
		t.Error("expected an invalid session cookie to be replaced")
	}
}

func TestManager_Protect(t *testing.T) {
	m, _, _ := setupTestManager(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Protect(ok)

	token, _ := m.Token(sessionRequest(http.MethodGet, "/", "s"), "")
	named, _ := m.Token(sessionRequest(http.MethodGet, "/", "s"), "delete")

	formRequest := func(values url.Values) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(values.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return r.WithContext(WithSession(r.Context(), "s"))
	}

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"safe method passes", sessionRequest(http.MethodGet, "/posts", "s"), http.StatusNoContent},
		{"missing token", formRequest(url.Values{"title": {"x"}}), http.StatusForbidden},
		{"form token", formRequest(url.Values{"csrf_token": {token}}), http.StatusNoContent},
		{"named form token", formRequest(url.Values{"csrf_token": {named}, "csrf_name": {"delete"}}), http.StatusNoContent},
		{"named token without name", formRequest(url.Values{"csrf_token": {named}}), http.StatusForbidden},
		{"bad token", formRequest(url.Values{"csrf_token": {"nope"}}), http.StatusForbidden},
	}

	headerReq := sessionRequest(http.MethodDelete, "/posts/1", "s")
	headerReq.Header.Set("X-CSRF-Token", token)
	tests = append(tests, struct {
		name string
		req  *http.Request
		want int
	}{"header token", headerReq, http.StatusNoContent})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestManager_Prune(t *testing.T) {
	m, store, now := setupTestManager(t)
	_, _ = m.Token(sessionRequest(http.MethodGet, "/", "old"), "")
	*now = now.Add(m.config.TTL() / 2)
	_, _ = m.Token(sessionRequest(http.MethodGet, "/", "new"), "")
	*now = now.Add(m.config.TTL()/2 + time.Second)

	removed, err := m.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() returned error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 pruned token, got %d", removed)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 remaining token, got %d", store.Len())
	}
}
