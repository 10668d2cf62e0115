package usecase

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/infrastructure/store"
	"tenant-gate/internal/infrastructure/token"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDirectory implements domain.Directory for testing.
type mockDirectory struct {
	accounts map[string]*domain.Principal // keyed by email
	password string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		accounts: map[string]*domain.Principal{
			"alice@example.com": {ID: "u1", Email: "alice@example.com", Name: "Alice", Tenants: []string{"acme", "globex"}},
			"bob@example.com":   {ID: "u2", Email: "bob@example.com", Name: "Bob"},
		},
		password: "secret",
	}
}

func (m *mockDirectory) Authenticate(_ context.Context, email, password string) (*domain.Principal, error) {
	p, found := m.accounts[email]
	if !found || password != m.password {
		return nil, domain.ErrInvalidCredentials
	}
	return p, nil
}

func (m *mockDirectory) Lookup(_ context.Context, userID string) (*domain.Principal, error) {
	for _, p := range m.accounts {
		if p.ID == userID {
			return p, nil
		}
	}
	return nil, domain.ErrUnauthenticated
}

// mockAPITokens implements domain.APITokenIssuer for testing.
type mockAPITokens struct{}

func (mockAPITokens) Issue(principal *domain.Principal, tenantID, sessionID string) (string, error) {
	return "api-token-" + principal.ID + "-" + tenantID, nil
}

type fixture struct {
	clock    *clockwork.FakeClock
	sessions *store.SessionStore
	broker   *token.Broker
	dir      *mockDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sessions := store.NewSessionStore(clock, 24*time.Hour)
	t.Cleanup(sessions.Stop)
	tokens := store.NewTokenStore(clock)
	t.Cleanup(tokens.Stop)

	return &fixture{
		clock:    clock,
		sessions: sessions,
		broker:   token.NewBroker(tokens, clock, 90*time.Second, slog.Default()),
		dir:      newMockDirectory(),
	}
}

var (
	loginCtx  = domain.DomainContext{Kind: domain.KindLogin}
	acmeCtx   = domain.DomainContext{Kind: domain.KindTenant, TenantID: "acme"}
	globexCtx = domain.DomainContext{Kind: domain.KindTenant, TenantID: "globex"}
)

func TestLogin(t *testing.T) {
	t.Run("valid credentials on login domain", func(t *testing.T) {
		f := newFixture(t)
		uc := NewLogin(f.dir, f.sessions, slog.Default())

		result, err := uc.Execute(context.Background(), "alice@example.com", "secret", loginCtx)
		require.NoError(t, err)
		assert.Equal(t, "u1", result.Principal.ID)
		assert.Equal(t, "login.sid", result.Session.Scope)
		assert.True(t, result.Session.Authenticated())
	})

	t.Run("invalid credentials", func(t *testing.T) {
		f := newFixture(t)
		uc := NewLogin(f.dir, f.sessions, slog.Default())

		_, err := uc.Execute(context.Background(), "alice@example.com", "wrong", loginCtx)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("tenant domain requires membership", func(t *testing.T) {
		f := newFixture(t)
		uc := NewLogin(f.dir, f.sessions, slog.Default())

		result, err := uc.Execute(context.Background(), "alice@example.com", "secret", acmeCtx)
		require.NoError(t, err)
		assert.Equal(t, "tenant_acme.sid", result.Session.Scope)

		_, err = uc.Execute(context.Background(), "bob@example.com", "secret", acmeCtx)
		assert.ErrorIs(t, err, domain.ErrInvalidTenant)
	})

	t.Run("unknown domain is refused before the credential check", func(t *testing.T) {
		f := newFixture(t)
		uc := NewLogin(f.dir, f.sessions, slog.Default())

		_, err := uc.Execute(context.Background(), "alice@example.com", "secret", domain.DomainContext{})
		assert.ErrorIs(t, err, domain.ErrDomainMismatch)
	})
}

func TestInitTenantSession(t *testing.T) {
	t.Run("issues token for member", func(t *testing.T) {
		f := newFixture(t)
		uc := NewInitTenantSession(f.broker, f.dir, slog.Default())

		tok, err := uc.Execute(context.Background(), "u1", "acme", loginCtx)
		require.NoError(t, err)
		assert.Equal(t, "u1", tok.UserID)
		assert.Equal(t, "acme", tok.TenantID)
		assert.NotEmpty(t, tok.Value)
	})

	t.Run("non-member tenant", func(t *testing.T) {
		f := newFixture(t)
		uc := NewInitTenantSession(f.broker, f.dir, slog.Default())

		_, err := uc.Execute(context.Background(), "u2", "acme", loginCtx)
		assert.ErrorIs(t, err, domain.ErrInvalidTenant)
	})

	t.Run("only the login domain may initiate", func(t *testing.T) {
		f := newFixture(t)
		uc := NewInitTenantSession(f.broker, f.dir, slog.Default())

		_, err := uc.Execute(context.Background(), "u1", "acme", acmeCtx)
		assert.ErrorIs(t, err, domain.ErrDomainMismatch)
	})
}

func TestVerifyHandoff(t *testing.T) {
	t.Run("establishes tenant session exactly once", func(t *testing.T) {
		f := newFixture(t)
		issue := NewInitTenantSession(f.broker, f.dir, slog.Default())
		verify := NewVerifyHandoff(f.broker, f.dir, f.sessions, mockAPITokens{}, slog.Default())

		tok, err := issue.Execute(context.Background(), "u1", "acme", loginCtx)
		require.NoError(t, err)

		result, err := verify.Execute(context.Background(), tok.Value, acmeCtx)
		require.NoError(t, err)
		assert.Equal(t, "u1", result.Principal.ID)
		assert.Equal(t, "tenant_acme.sid", result.Session.Scope)
		assert.Equal(t, "u1", result.Session.UserID)
		assert.Equal(t, "api-token-u1-acme", result.APIToken)

		_, err = verify.Execute(context.Background(), tok.Value, acmeCtx)
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})

	t.Run("wrong tenant domain", func(t *testing.T) {
		f := newFixture(t)
		issue := NewInitTenantSession(f.broker, f.dir, slog.Default())
		verify := NewVerifyHandoff(f.broker, f.dir, f.sessions, mockAPITokens{}, slog.Default())

		tok, err := issue.Execute(context.Background(), "u1", "acme", loginCtx)
		require.NoError(t, err)

		_, err = verify.Execute(context.Background(), tok.Value, globexCtx)
		assert.ErrorIs(t, err, domain.ErrTenantMismatch)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t)
		issue := NewInitTenantSession(f.broker, f.dir, slog.Default())
		verify := NewVerifyHandoff(f.broker, f.dir, f.sessions, mockAPITokens{}, slog.Default())

		tok, err := issue.Execute(context.Background(), "u1", "acme", loginCtx)
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		_, err = verify.Execute(context.Background(), tok.Value, acmeCtx)
		assert.ErrorIs(t, err, domain.ErrTokenExpired)
	})
}

func TestValidateSession(t *testing.T) {
	t.Run("live session touches and returns principal", func(t *testing.T) {
		f := newFixture(t)
		login := NewLogin(f.dir, f.sessions, slog.Default())
		validate := NewValidateSession(f.dir, f.sessions, mockAPITokens{}, slog.Default())

		lr, err := login.Execute(context.Background(), "alice@example.com", "secret", acmeCtx)
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		result, err := validate.Execute(context.Background(), acmeCtx, lr.Session.ID)
		require.NoError(t, err)
		assert.Equal(t, "u1", result.Principal.ID)
		assert.True(t, result.Session.LastAccess.After(lr.Session.LastAccess))
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		validate := NewValidateSession(f.dir, f.sessions, mockAPITokens{}, slog.Default())

		_, err := validate.Execute(context.Background(), acmeCtx, "nope")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("unauthenticated session is not valid", func(t *testing.T) {
		f := newFixture(t)
		validate := NewValidateSession(f.dir, f.sessions, mockAPITokens{}, slog.Default())

		anon := f.sessions.LoadOrCreate("tenant_acme.sid")
		_, err := validate.Execute(context.Background(), acmeCtx, anon.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("membership of the visited tenant is required", func(t *testing.T) {
		f := newFixture(t)
		validate := NewValidateSession(f.dir, f.sessions, mockAPITokens{}, slog.Default())

		// A session record for bob under acme's scope should never grant
		// access: bob is not a member of acme.
		anon := f.sessions.LoadOrCreate("tenant_acme.sid")
		_, ok := f.sessions.Bind("tenant_acme.sid", anon.ID, "u2")
		require.True(t, ok)

		_, err := validate.Execute(context.Background(), acmeCtx, anon.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	login := NewLogin(f.dir, f.sessions, slog.Default())
	logout := NewLogout(f.sessions, slog.Default())
	validate := NewValidateSession(f.dir, f.sessions, mockAPITokens{}, slog.Default())

	lr, err := login.Execute(context.Background(), "alice@example.com", "secret", loginCtx)
	require.NoError(t, err)

	require.NoError(t, logout.Execute(context.Background(), loginCtx, lr.Session.ID))
	_, err = validate.Execute(context.Background(), loginCtx, lr.Session.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	// Idempotent.
	assert.NoError(t, logout.Execute(context.Background(), loginCtx, lr.Session.ID))
	assert.NoError(t, logout.Execute(context.Background(), loginCtx, ""))
}
