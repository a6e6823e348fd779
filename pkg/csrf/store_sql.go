package csrf

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tokenSchema = `
CREATE TABLE IF NOT EXISTS csrf_tokens (
    session_id   TEXT      NOT NULL,
    token_name   TEXT      NOT NULL,
    token_value  TEXT      NOT NULL,
    expires_at   INTEGER   NOT NULL,
    PRIMARY KEY (session_id, token_name)
);
`

const tokenExpiryIndex = `
CREATE INDEX IF NOT EXISTS idx_csrf_tokens_expires_at ON csrf_tokens (expires_at);
`

// SetupSchema creates the csrf_tokens table. It is idempotent.
func SetupSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(tokenSchema); err != nil {
		return fmt.Errorf("could not create csrf schema: %w", err)
	}
	if _, err = tx.Exec(tokenExpiryIndex); err != nil {
		return fmt.Errorf("could not create csrf expiry index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// SQLStore keeps tokens in the csrf_tokens table. Expiry times are stored as
// Unix milliseconds.
type SQLStore struct {
	db         *sql.DB
	stmtGet    *sql.Stmt
	stmtPut    *sql.Stmt
	stmtDelete *sql.Stmt
	stmtPrune  *sql.Stmt
}

// NewSQLStore prepares the statements used by the store. SetupSchema must
// have been run on db beforehand.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	var err error

	if s.stmtGet, err = db.Prepare(`SELECT token_value, expires_at FROM csrf_tokens WHERE session_id = ? AND token_name = ?;`); err != nil {
		return nil, fmt.Errorf("could not prepare get statement: %w", err)
	}
	if s.stmtPut, err = db.Prepare(`
INSERT INTO csrf_tokens (session_id, token_name, token_value, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT(session_id, token_name) DO UPDATE SET token_value = excluded.token_value, expires_at = excluded.expires_at;`); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not prepare put statement: %w", err)
	}
	if s.stmtDelete, err = db.Prepare(`DELETE FROM csrf_tokens WHERE session_id = ? AND token_name = ?;`); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not prepare delete statement: %w", err)
	}
	if s.stmtPrune, err = db.Prepare(`DELETE FROM csrf_tokens WHERE expires_at <= ?;`); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not prepare prune statement: %w", err)
	}
	return s, nil
}

// Close releases the prepared statements. The database itself is left open.
func (s *SQLStore) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtGet, s.stmtPut, s.stmtDelete, s.stmtPrune} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func (s *SQLStore) Get(ctx context.Context, session, name string) (Token, error) {
	var value string
	var expiresAt int64
	err := s.stmtGet.QueryRowContext(ctx, session, name).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, fmt.Errorf("could not load csrf token: %w", err)
	}
	return Token{
		Session:   session,
		Name:      name,
		Value:     value,
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}

func (s *SQLStore) Put(ctx context.Context, tok Token) error {
	if _, err := s.stmtPut.ExecContext(ctx, tok.Session, tok.Name, tok.Value, tok.ExpiresAt.UnixMilli()); err != nil {
		return fmt.Errorf("could not save csrf token: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, session, name string) error {
	if _, err := s.stmtDelete.ExecContext(ctx, session, name); err != nil {
		return fmt.Errorf("could not delete csrf token: %w", err)
	}
	return nil
}

func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.stmtPrune.ExecContext(ctx, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("could not prune csrf tokens: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}
