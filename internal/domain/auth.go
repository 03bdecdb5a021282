package domain

import "time"

// TokenPurpose separates session tokens from single-purpose tokens signed with the same key.
type TokenPurpose string

const (
	TokenPurposeSession       TokenPurpose = "session"
	TokenPurposePasswordReset TokenPurpose = "password_reset"
)

// SessionClaims is the identity carried inside a session token. A new token always gets
// a new claims value.
type SessionClaims struct {
	TokenID   string
	Subject   string
	Name      string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ClaimsForUser builds the claim set for a freshly authenticated user.
func ClaimsForUser(user *User) SessionClaims {
	return SessionClaims{
		Subject: user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Role:    user.Role,
	}
}

// Session is the server-side record of an issued token.
type Session struct {
	TokenHash string
	UserID    string
	UserAgent string
	ClientIP  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
