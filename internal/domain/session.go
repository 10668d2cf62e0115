package domain

import "time"

// Session is one authenticated browser session for a single scope. A
// login-domain session and a tenant-domain session for the same user are
// distinct records with distinct scopes and must never share a storage key
// or cookie name.
type Session struct {
	ID         string
	Scope      string
	UserID     string
	CreatedAt  time.Time
	LastAccess time.Time
}

// Authenticated reports whether a user has been bound to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// HandoffToken is a single-use, short-lived credential transferring
// authentication from the login domain to one tenant domain.
type HandoffToken struct {
	Value     string
	UserID    string
	TenantID  string
	ExpiresAt time.Time
}

// Outcome is the result of an idle-timeout check.
type Outcome int

const (
	// OutcomeActive means the session is still within its idle window.
	OutcomeActive Outcome = iota
	// OutcomeExpired means the session sat idle too long and was destroyed.
	OutcomeExpired
)
