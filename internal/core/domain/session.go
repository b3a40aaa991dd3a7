package domain

import "time"

// Session represents one logged-in device in the session ledger. The refresh
// token itself is never stored; TokenHash holds its SHA-256. Rows are flipped
// to IsValid=false on logout or revocation, never deleted.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	IsValid   bool
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsActive reports whether the session can still validate a refresh token.
func (s *Session) IsActive(now time.Time) bool {
	return s.IsValid && s.ExpiresAt.After(now)
}
