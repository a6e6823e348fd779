package csrf

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTokenNotFound is returned by a Store when no token exists for a key.
var ErrTokenNotFound = errors.New("csrf token not found")

// Token is a stored CSRF token bound to a session and a token name.
type Token struct {
	Session   string
	Name      string
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer valid at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Store persists tokens. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the token for (session, name) or ErrTokenNotFound.
	Get(ctx context.Context, session, name string) (Token, error)
	// Put inserts or replaces the token for (tok.Session, tok.Name).
	Put(ctx context.Context, tok Token) error
	// Delete removes the token for (session, name). Deleting a missing token is not an error.
	Delete(ctx context.Context, session, name string) error
	// Prune removes every token that expired before the given time and
	// returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type tokenKey struct {
	session string
	name    string
}

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[tokenKey]Token
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[tokenKey]Token)}
}

func (s *MemoryStore) Get(_ context.Context, session, name string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[tokenKey{session, name}]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return tok, nil
}

func (s *MemoryStore) Put(_ context.Context, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenKey{tok.Session, tok.Name}] = tok
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, session, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenKey{session, name})
	return nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, tok := range s.tokens {
		if tok.Expired(before) {
			delete(s.tokens, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tokens held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
