package client

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"tenant-gate/internal/broadcast"
	"tenant-gate/internal/domain"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	defaultProbeInterval = 5 * time.Minute
	defaultIdleTimeout   = 2 * time.Minute
	idlePollInterval     = 15 * time.Second

	eventLogin  = "login"
	eventLogout = "logout"
)

// Options tune the manager. Zero values fall back to the defaults above.
type Options struct {
	ProbeInterval time.Duration
	IdleTimeout   time.Duration
	Scheme        string
	FrontendPort  string
}

func (o Options) withDefaults() Options {
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = defaultProbeInterval
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.Scheme == "" {
		o.Scheme = "http"
	}
	return o
}

// Manager owns the auth state of one page. It consumes handoff tokens from
// the URL, keeps the session alive while the user is active, detects idle and
// server-side expiry, and mirrors state changes to sibling views over the
// broadcast bus.
type Manager struct {
	api     API
	domains domain.Domains
	loc     Location
	bus     *broadcast.Bus
	clock   clockwork.Clock
	logger  *slog.Logger
	opts    Options

	// opMu serializes the mutators (Login, Logout, LoginToTenant).
	opMu sync.Mutex

	mu           sync.Mutex
	dctx         domain.DomainContext
	principal    *domain.Principal
	generation   uint64
	lastActivity time.Time

	validate singleflight.Group

	cancel    context.CancelFunc
	unsub     func()
	watching  bool
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewManager(api API, domains domain.Domains, loc Location, bus *broadcast.Bus, clock clockwork.Clock, logger *slog.Logger, opts Options) *Manager {
	return &Manager{
		api:     api,
		domains: domains,
		loc:     loc,
		bus:     bus,
		clock:   clock,
		logger:  logger,
		opts:    opts.withDefaults(),
		stopped: make(chan struct{}),
	}
}

// Start brings the manager up for the current location: token handling
// first, then session validation, then the watchers that keep a tenant
// session honest. Call once per Manager.
func (m *Manager) Start(ctx context.Context) error {
	dctx := m.domains.Classify(m.loc.Current().Host)
	m.mu.Lock()
	m.dctx = dctx
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)

	m.consumeToken(ctx, dctx)

	if m.Principal() == nil {
		if _, err := m.ValidateSession(ctx); err != nil {
			m.logger.Warn("initial session validation failed", "error", err)
		}
	}

	if dctx.IsTenant() {
		events, unsub := m.bus.Subscribe(topicFor(dctx))
		m.unsub = unsub
		m.watching = true
		go m.watch(ctx, dctx, events)
	}
	return nil
}

// consumeToken redeems a ?token= parameter. The token is scrubbed from the
// URL before the verification result is known, so it never survives in the
// address bar, browser history or a copied link.
func (m *Manager) consumeToken(ctx context.Context, dctx domain.DomainContext) {
	query := m.loc.Current().Query()
	token := query.Get("token")
	if token == "" {
		return
	}

	query.Del("token")
	m.loc.ReplaceQuery(query)

	if !dctx.IsTenant() {
		m.logger.Warn("ignoring handoff token outside a tenant domain")
		return
	}

	result, err := m.api.VerifyToken(ctx, token)
	if err != nil || !result.Success {
		m.logger.Warn("handoff token rejected", "error", err)
		return
	}

	principal, err := m.api.Me(ctx, domain.KindTenant)
	if err != nil {
		m.logger.Warn("principal lookup after handoff failed", "error", err)
		return
	}

	m.setPrincipal(principal)
	m.bus.Publish(broadcast.Event{
		Topic:   topicFor(dctx),
		Kind:    eventLogin,
		Payload: map[string]string{"userId": principal.ID},
	})
}

// Login authenticates against the current scope and records the principal.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.Principal, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	principal, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	m.setPrincipal(principal)
	m.bus.Publish(broadcast.Event{
		Topic:   m.topic(),
		Kind:    eventLogin,
		Payload: map[string]string{"userId": principal.ID},
	})
	return principal, nil
}

// Logout ends the current scope's session. Local state is cleared even when
// the server call fails: the user asked to be signed out.
func (m *Manager) Logout(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	err := m.api.Logout(ctx)
	if m.clearPrincipal() {
		m.bus.Publish(broadcast.Event{Topic: m.topic(), Kind: eventLogout})
	}
	return err
}

// LoginToTenant mints a handoff token for tenantID and navigates to the
// tenant frontend carrying it. Login domain only.
func (m *Manager) LoginToTenant(ctx context.Context, tenantID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	dctx := m.dctx
	m.mu.Unlock()
	if !dctx.IsLogin() {
		return domain.ErrDomainMismatch
	}

	token, err := m.api.InitSession(ctx, tenantID)
	if err != nil {
		return err
	}

	target := m.domains.TenantURL(m.opts.Scheme, tenantID, m.opts.FrontendPort, "/") +
		"?token=" + url.QueryEscape(token)
	m.loc.Navigate(target)
	return nil
}

// ValidateSession asks the server whether the current scope's session is
// still live, refreshing the principal on success and clearing it on
// failure. Concurrent calls collapse into one request.
func (m *Manager) ValidateSession(ctx context.Context) (bool, error) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	result, err, _ := m.validate.Do("validate", func() (any, error) {
		return m.api.ValidateSession(ctx)
	})
	if err != nil {
		return false, err
	}

	valid := result.(bool)
	if !valid {
		m.clearPrincipalIfCurrent(gen)
		return false, nil
	}

	if m.Principal() == nil {
		m.mu.Lock()
		kind := m.dctx.Kind
		m.mu.Unlock()
		principal, err := m.api.Me(ctx, kind)
		if err != nil {
			return true, err
		}
		m.setPrincipalIfCurrent(gen, principal)
	}
	return true, nil
}

// MarkActivity resets the idle clock. The host app calls this on user input.
func (m *Manager) MarkActivity() {
	m.mu.Lock()
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()
}

// Principal returns the signed-in principal, or nil.
func (m *Manager) Principal() *domain.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principal
}

// Decide runs the route guard for the current location and auth state.
func (m *Manager) Decide(req domain.RouteRequirement) domain.Decision {
	m.mu.Lock()
	dctx := m.dctx
	principal := m.principal
	m.mu.Unlock()
	return domain.Decide(dctx, principal, req, m.loc.Current().Path)
}

// Close stops the watchers and the bus subscription. Safe to call more than
// once; pending probe results after Close are discarded.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.generation++
		watching := m.watching
		m.mu.Unlock()

		if m.cancel != nil {
			m.cancel()
		}
		if m.unsub != nil {
			m.unsub()
		}
		if watching {
			<-m.stopped
		}
	})
}

func (m *Manager) watch(ctx context.Context, dctx domain.DomainContext, events <-chan broadcast.Event) {
	defer close(m.stopped)

	probe := m.clock.NewTicker(m.opts.ProbeInterval)
	defer probe.Stop()
	idle := m.clock.NewTicker(idlePollInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			// A sibling view signed out: mirror it locally without
			// republishing, or the views would ping-pong forever.
			if ev.Kind == eventLogout {
				m.clearPrincipal()
			}

		case <-probe.Chan():
			gen := m.gen()
			valid, err := m.probeOnce(ctx)
			if err != nil {
				m.logger.Warn("liveness probe failed", "error", err)
				continue
			}
			if !valid {
				m.expire(gen, dctx, "session no longer valid")
			}

		case <-idle.Chan():
			m.mu.Lock()
			idleFor := m.clock.Since(m.lastActivity)
			active := m.principal != nil
			gen := m.generation
			m.mu.Unlock()
			if active && idleFor >= m.opts.IdleTimeout {
				m.expire(gen, dctx, "idle timeout")
			}
		}
	}
}

func (m *Manager) probeOnce(ctx context.Context) (bool, error) {
	result, err, _ := m.validate.Do("validate", func() (any, error) {
		return m.api.ValidateSession(ctx)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// expire clears the principal and sends the user to the local login route,
// which carries the tenant so re-authentication lands back here. The
// generation check makes a result that raced with a logout or Close a no-op.
func (m *Manager) expire(gen uint64, dctx domain.DomainContext, reason string) {
	m.mu.Lock()
	if gen != m.generation || m.principal == nil {
		m.mu.Unlock()
		return
	}
	m.principal = nil
	m.generation++
	m.mu.Unlock()

	m.logger.Info("tenant session ended", "tenant", dctx.TenantID, "reason", reason)
	m.bus.Publish(broadcast.Event{Topic: topicFor(dctx), Kind: eventLogout})
	m.loc.Navigate("/login?tenant=" + url.QueryEscape(dctx.TenantID))
}

func (m *Manager) gen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *Manager) topic() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return topicFor(m.dctx)
}

func (m *Manager) setPrincipal(p *domain.Principal) {
	m.mu.Lock()
	m.principal = p
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()
}

func (m *Manager) setPrincipalIfCurrent(gen uint64, p *domain.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	m.principal = p
	m.lastActivity = m.clock.Now()
}

func (m *Manager) clearPrincipal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.principal == nil {
		return false
	}
	m.principal = nil
	m.generation++
	return true
}

func (m *Manager) clearPrincipalIfCurrent(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.principal == nil {
		return
	}
	m.principal = nil
	m.generation++
}

func topicFor(dctx domain.DomainContext) string {
	if dctx.IsTenant() {
		return "tenant:" + dctx.TenantID
	}
	return "login"
}
