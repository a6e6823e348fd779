/*
Package csrf issues and checks per-session CSRF tokens.

A Manager identifies browsers by a session cookie set in its Middleware and
keeps one token per (session, name) pair in a Store. Templates read tokens
through Token and Field; Protect rejects state-changing requests whose form
field or header does not carry a matching token.

Two stores are provided: MemoryStore for single-process use and tests, and
SQLStore for any database/sql driver speaking SQLite-compatible SQL.
*/
package csrf
