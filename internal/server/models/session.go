// Package models defines server-side data models persisted in the database.
package models

import "time"

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// Session is one issued token as recorded in user_session.
type Session struct {
	ID           int64
	JTI          string
	TokenType    TokenType
	UserIdentity string
	Revoked      bool
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
