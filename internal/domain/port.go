package domain

import (
	"context"
	"time"
)

// Directory authenticates credentials against the central identity domain.
type Directory interface {
	Authenticate(ctx context.Context, email, password string) (*Principal, error)
	Lookup(ctx context.Context, userID string) (*Principal, error)
}

// TokenBroker issues and consumes single-use handoff tokens.
type TokenBroker interface {
	Issue(ctx context.Context, principal *Principal, tenantID string) (*HandoffToken, error)
	Verify(ctx context.Context, value string, dctx DomainContext) (*HandoffToken, error)
}

// TokenStore is the keyed store backing the token broker. ConsumeIfValid must
// be a single indivisible check-and-delete so that concurrent verifications
// of one token yield at most one success.
type TokenStore interface {
	Put(token HandoffToken)
	ConsumeIfValid(value string, now time.Time) (*HandoffToken, error)
}

// SessionStore maintains one session record per scope.
type SessionStore interface {
	LoadOrCreate(scope string) *Session
	Load(scope, sessionID string) (*Session, bool)
	Bind(scope, sessionID, userID string) (*Session, bool)
	Touch(scope, sessionID string) (*Session, bool)
	ExpireIfIdle(scope, sessionID string, idleTimeout time.Duration) Outcome
	Delete(scope, sessionID string)
}

// APITokenIssuer signs short-lived tokens for downstream service calls made
// on behalf of an established session.
type APITokenIssuer interface {
	Issue(principal *Principal, tenantID, sessionID string) (string, error)
}
