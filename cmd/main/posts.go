package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const postsSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id          INTEGER   PRIMARY KEY,
    slug        TEXT      NOT NULL UNIQUE,
    title       TEXT      NOT NULL,
    body        TEXT      NOT NULL,
    created_at  INTEGER   NOT NULL
);
`

const postsCreatedIndex = `
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at);
`

// ErrPostNotFound is returned when no post carries the requested slug.
var ErrPostNotFound = errors.New("post not found")

// Post is a single blog entry. Body holds HTML authored through the site.
type Post struct {
	ID        int64
	Slug      string
	Title     string
	Body      string
	CreatedAt time.Time
}

var (
	bodyPolicyOnce sync.Once
	bodyPolicy     *bluemonday.Policy
)

// HTML returns the post body sanitized for display.
func (p Post) HTML() template.HTML {
	bodyPolicyOnce.Do(func() {
		bodyPolicy = bluemonday.UGCPolicy()
	})
	return template.HTML(bodyPolicy.Sanitize(p.Body))
}

// PostStore reads and writes posts in the SQLite database.
type PostStore struct {
	db *sql.DB
}

func setupPostsSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(postsSchema); err != nil {
		return fmt.Errorf("could not create posts schema: %w", err)
	}
	if _, err = tx.Exec(postsCreatedIndex); err != nil {
		return fmt.Errorf("could not create posts index: %w", err)
	}
	return tx.Commit()
}

// NewPostStore wraps db. setupPostsSchema must have been run beforehand.
func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

// List returns up to limit posts, newest first, skipping offset posts.
func (s *PostStore) List(ctx context.Context, limit, offset int) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, slug, title, body, created_at FROM posts ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Count returns the total number of posts.
func (s *PostStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// Get returns the post with the given slug.
func (s *PostStore) Get(ctx context.Context, slug string) (Post, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, slug, title, body, created_at FROM posts WHERE slug = ?", slug)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrPostNotFound
	}
	return p, err
}

// Create stores a new post and returns it. The slug is derived from the
// title and made unique by appending a counter.
func (s *PostStore) Create(ctx context.Context, title, body string, now time.Time) (Post, error) {
	base := slugify(title)
	if base == "" {
		base = "post"
	}

	slug := base
	for i := 2; ; i++ {
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE slug = ?", slug).Scan(&exists)
		if err != nil {
			return Post{}, fmt.Errorf("failed to check slug: %w", err)
		}
		if exists == 0 {
			break
		}
		slug = base + "-" + strconv.Itoa(i)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO posts (slug, title, body, created_at) VALUES (?, ?, ?, ?)",
		slug, title, body, now.UnixMilli())
	if err != nil {
		return Post{}, fmt.Errorf("failed to insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Post{}, fmt.Errorf("failed to read post id: %w", err)
	}
	return Post{ID: id, Slug: slug, Title: title, Body: body, CreatedAt: time.UnixMilli(now.UnixMilli())}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var p Post
	var created int64
	if err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &created); err != nil {
		return Post{}, err
	}
	p.CreatedAt = time.UnixMilli(created)
	return p, nil
}

// slugify lowercases s and joins its letters and digits with single dashes.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
