package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tenant-gate/internal/broadcast"
	"tenant-gate/internal/domain"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managerDomains = domain.Domains{LoginLabel: "login", Suffix: "lvh.me"}

var alice = &domain.Principal{ID: "u1", Email: "alice@example.com", Name: "Alice", Tenants: []string{"acme"}}

type fakeLocation struct {
	mu          sync.Mutex
	current     *url.URL
	navigations []string
}

func newFakeLocation(raw string) *fakeLocation {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return &fakeLocation{current: u}
}

func (l *fakeLocation) Current() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *l.current
	return &copied
}

func (l *fakeLocation) ReplaceQuery(values url.Values) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current.RawQuery = values.Encode()
}

func (l *fakeLocation) Navigate(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.navigations = append(l.navigations, target)
}

func (l *fakeLocation) navigated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.navigations...)
}

type fakeAPI struct {
	mu sync.Mutex

	principal *domain.Principal
	valid     bool
	verifyOK  bool

	verifiedTokens []string
	initToken      string
	loggedOut      atomic.Int32
	validateCalls  atomic.Int32

	// When non-nil, ValidateSession blocks until a value arrives here.
	validateGate chan bool
}

func (f *fakeAPI) Login(_ context.Context, email, password string) (*domain.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.principal == nil {
		return nil, domain.ErrInvalidCredentials
	}
	return f.principal, nil
}

func (f *fakeAPI) Logout(context.Context) error {
	f.loggedOut.Add(1)
	return nil
}

func (f *fakeAPI) ValidateSession(context.Context) (bool, error) {
	f.validateCalls.Add(1)
	f.mu.Lock()
	gate := f.validateGate
	f.mu.Unlock()
	if gate != nil {
		return <-gate, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid, nil
}

func (f *fakeAPI) InitSession(_ context.Context, tenantID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initToken == "" {
		return "", domain.ErrUnauthenticated
	}
	return f.initToken, nil
}

func (f *fakeAPI) VerifyToken(_ context.Context, token string) (*VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifiedTokens = append(f.verifiedTokens, token)
	if !f.verifyOK {
		return nil, domain.ErrTokenNotFound
	}
	return &VerifyResult{Success: true, TenantID: "acme"}, nil
}

func (f *fakeAPI) Me(context.Context, domain.Kind) (*domain.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.principal == nil {
		return nil, domain.ErrUnauthenticated
	}
	return f.principal, nil
}

func (f *fakeAPI) setValid(v bool) {
	f.mu.Lock()
	f.valid = v
	f.mu.Unlock()
}

func (f *fakeAPI) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.verifiedTokens...)
}

type managerFixture struct {
	manager *Manager
	api     *fakeAPI
	loc     *fakeLocation
	bus     *broadcast.Bus
	clock   *clockwork.FakeClock
}

func newManagerFixture(t *testing.T, pageURL string, api *fakeAPI, opts Options) *managerFixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	bus := broadcast.NewBus(slog.Default())
	loc := newFakeLocation(pageURL)
	m := NewManager(api, managerDomains, loc, bus, clock, slog.Default(), opts)
	t.Cleanup(m.Close)
	return &managerFixture{manager: m, api: api, loc: loc, bus: bus, clock: clock}
}

// waitWatchers blocks until the watch goroutine's tickers are registered, so
// a subsequent Advance is guaranteed to reach them.
func (f *managerFixture) waitWatchers(t *testing.T) {
	t.Helper()
	require.NoError(t, f.clock.BlockUntilContext(context.Background(), 2))
}

func TestManager_ConsumesTokenFromURL(t *testing.T) {
	api := &fakeAPI{verifyOK: true, principal: alice, valid: true}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/?token=abc123&view=home", api, Options{})

	require.NoError(t, f.manager.Start(context.Background()))

	assert.Equal(t, []string{"abc123"}, api.tokens())
	require.NotNil(t, f.manager.Principal())
	assert.Equal(t, "u1", f.manager.Principal().ID)

	// The token is gone from the URL, everything else survives.
	current := f.loc.Current()
	assert.Empty(t, current.Query().Get("token"))
	assert.Equal(t, "home", current.Query().Get("view"))
}

func TestManager_StripsTokenEvenWhenRejected(t *testing.T) {
	api := &fakeAPI{verifyOK: false, valid: false}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/?token=stale", api, Options{})

	require.NoError(t, f.manager.Start(context.Background()))

	assert.Empty(t, f.loc.Current().Query().Get("token"))
	assert.Nil(t, f.manager.Principal())
}

func TestManager_TokenIgnoredOutsideTenantDomains(t *testing.T) {
	api := &fakeAPI{verifyOK: true, valid: false}
	f := newManagerFixture(t, "http://login.lvh.me:5173/?token=abc", api, Options{})

	require.NoError(t, f.manager.Start(context.Background()))

	assert.Empty(t, api.tokens(), "token must not be sent for verification")
	assert.Empty(t, f.loc.Current().Query().Get("token"))
}

func TestManager_ResumesExistingSession(t *testing.T) {
	api := &fakeAPI{valid: true, principal: alice}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/", api, Options{})

	require.NoError(t, f.manager.Start(context.Background()))

	require.NotNil(t, f.manager.Principal())
	assert.Equal(t, "u1", f.manager.Principal().ID)
}

func TestManager_IdleTimeoutEndsSession(t *testing.T) {
	api := &fakeAPI{valid: true, principal: alice}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/", api, Options{
		IdleTimeout:   2 * time.Minute,
		ProbeInterval: time.Hour,
		FrontendPort:  "5173",
	})

	require.NoError(t, f.manager.Start(context.Background()))
	require.NotNil(t, f.manager.Principal())

	f.waitWatchers(t)
	f.clock.Advance(2*time.Minute + idlePollInterval)

	require.Eventually(t, func() bool {
		return f.manager.Principal() == nil
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		navs := f.loc.navigated()
		return len(navs) == 1 && navs[0] == "/login?tenant=acme"
	}, time.Second, 5*time.Millisecond)
}

func TestManager_ActivityResetsIdleClock(t *testing.T) {
	api := &fakeAPI{valid: true, principal: alice}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/", api, Options{
		IdleTimeout:   2 * time.Minute,
		ProbeInterval: time.Hour,
	})

	require.NoError(t, f.manager.Start(context.Background()))
	f.waitWatchers(t)

	for range 4 {
		f.clock.Advance(90 * time.Second)
		f.manager.MarkActivity()
	}

	// Six minutes of wall time passed but activity kept arriving.
	assert.NotNil(t, f.manager.Principal())
	assert.Empty(t, f.loc.navigated())
}

func TestManager_ProbeDetectsServerExpiry(t *testing.T) {
	api := &fakeAPI{valid: true, principal: alice}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/", api, Options{
		IdleTimeout:   time.Hour,
		ProbeInterval: 5 * time.Minute,
		FrontendPort:  "5173",
	})

	require.NoError(t, f.manager.Start(context.Background()))
	require.NotNil(t, f.manager.Principal())

	f.waitWatchers(t)
	api.setValid(false)
	f.clock.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		return f.manager.Principal() == nil
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(f.loc.navigated()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestManager_ServerIdleExpiryEndsSession runs the manager over the real
// HTTP client. Once the server starts answering 401, the next probe must end
// the session rather than shrug the response off as a transient failure.
func TestManager_ServerIdleExpiryEndsSession(t *testing.T) {
	var expired atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/validate-session", func(w http.ResponseWriter, r *http.Request) {
		if expired.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "Session expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"valid": true})
	})
	mux.HandleFunc("GET /api/users/tenant/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "u1", "email": "alice@example.com", "tenants": []string{"acme"},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	api, err := NewAuthClient(server.URL, 5*time.Second)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	bus := broadcast.NewBus(slog.Default())
	loc := newFakeLocation("http://acme.lvh.me:5173/")
	m := NewManager(api, managerDomains, loc, bus, clock, slog.Default(), Options{
		IdleTimeout:   time.Hour,
		ProbeInterval: 5 * time.Minute,
		FrontendPort:  "5173",
	})
	t.Cleanup(m.Close)

	require.NoError(t, m.Start(context.Background()))
	require.NotNil(t, m.Principal())

	require.NoError(t, clock.BlockUntilContext(context.Background(), 2))
	expired.Store(true)
	clock.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		return m.Principal() == nil
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		navs := loc.navigated()
		return len(navs) == 1 && navs[0] == "/login?tenant=acme"
	}, time.Second, 5*time.Millisecond)
}

func TestManager_LogoutPropagatesAcrossViews(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := broadcast.NewBus(slog.Default())
	api := &fakeAPI{valid: true, principal: alice}
	opts := Options{IdleTimeout: time.Hour, ProbeInterval: time.Hour}

	locA := newFakeLocation("http://acme.lvh.me:5173/")
	viewA := NewManager(api, managerDomains, locA, bus, clock, slog.Default(), opts)
	t.Cleanup(viewA.Close)
	require.NoError(t, viewA.Start(context.Background()))

	locB := newFakeLocation("http://acme.lvh.me:5173/reports")
	viewB := NewManager(api, managerDomains, locB, bus, clock, slog.Default(), opts)
	t.Cleanup(viewB.Close)
	require.NoError(t, viewB.Start(context.Background()))

	require.NotNil(t, viewA.Principal())
	require.NotNil(t, viewB.Principal())

	require.NoError(t, viewA.Logout(context.Background()))

	assert.Nil(t, viewA.Principal())
	require.Eventually(t, func() bool {
		return viewB.Principal() == nil
	}, time.Second, 5*time.Millisecond)

	// Mirroring a sibling's logout must not call the server again.
	assert.Equal(t, int32(1), api.loggedOut.Load())
}

func TestManager_LateProbeCannotResurrectState(t *testing.T) {
	gate := make(chan bool)
	api := &fakeAPI{valid: true, principal: alice}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/", api, Options{
		IdleTimeout:   time.Hour,
		ProbeInterval: time.Minute,
		FrontendPort:  "5173",
	})

	require.NoError(t, f.manager.Start(context.Background()))
	require.NotNil(t, f.manager.Principal())

	// Block the next probe mid-flight.
	f.waitWatchers(t)
	api.mu.Lock()
	api.validateGate = gate
	api.mu.Unlock()
	f.clock.Advance(time.Minute)

	// The user logs out while the probe is in the air.
	require.NoError(t, f.manager.Logout(context.Background()))
	assert.Nil(t, f.manager.Principal())

	// The stale probe answer arrives: it must not navigate anywhere.
	gate <- false
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.loc.navigated())
}

func TestManager_LoginToTenantNavigatesWithToken(t *testing.T) {
	api := &fakeAPI{valid: true, principal: alice, initToken: "tok42"}
	f := newManagerFixture(t, "http://login.lvh.me:5173/", api, Options{FrontendPort: "5173"})

	require.NoError(t, f.manager.Start(context.Background()))
	require.NoError(t, f.manager.LoginToTenant(context.Background(), "acme"))

	navs := f.loc.navigated()
	require.Len(t, navs, 1)
	assert.Equal(t, "http://acme.lvh.me:5173/?token=tok42", navs[0])
}

func TestManager_LoginToTenantRefusedOnTenantDomain(t *testing.T) {
	api := &fakeAPI{valid: true, principal: alice, initToken: "tok42"}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/", api, Options{})

	require.NoError(t, f.manager.Start(context.Background()))

	err := f.manager.LoginToTenant(context.Background(), "acme")
	assert.ErrorIs(t, err, domain.ErrDomainMismatch)
	assert.Empty(t, f.loc.navigated())
}

func TestManager_Login(t *testing.T) {
	api := &fakeAPI{valid: false}
	f := newManagerFixture(t, "http://login.lvh.me:5173/", api, Options{})
	require.NoError(t, f.manager.Start(context.Background()))
	require.Nil(t, f.manager.Principal())

	api.mu.Lock()
	api.principal = alice
	api.mu.Unlock()

	principal, err := f.manager.Login(context.Background(), "alice@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.ID)
	assert.NotNil(t, f.manager.Principal())
}

func TestManager_DecideUsesCurrentState(t *testing.T) {
	api := &fakeAPI{valid: false}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/reports", api, Options{})
	require.NoError(t, f.manager.Start(context.Background()))

	decision := f.manager.Decide(domain.RouteRequirement{RequiresLogin: true, RequiresTenant: true})
	assert.Equal(t, domain.RedirectToLogin, decision.Kind)
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	api := &fakeAPI{valid: true, principal: alice}
	f := newManagerFixture(t, "http://acme.lvh.me:5173/", api, Options{})
	require.NoError(t, f.manager.Start(context.Background()))

	f.manager.Close()
	f.manager.Close()
}
