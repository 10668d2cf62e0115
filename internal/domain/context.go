package domain

import (
	"fmt"
	"net"
	"strings"
)

// Kind identifies which class of host a request or page load is served from.
type Kind int

const (
	// KindUnknown covers every host that is neither the login host nor a
	// tenant subdomain. Callers must treat it as "no domain context".
	KindUnknown Kind = iota
	// KindLogin is the single central host where credentials are checked.
	KindLogin
	// KindTenant is one host per tenant under the shared suffix.
	KindTenant
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindTenant:
		return "tenant"
	default:
		return "unknown"
	}
}

// DomainContext is the classification of a single host string. It is derived
// per request or per page load and never cached across navigations.
type DomainContext struct {
	Kind     Kind
	TenantID string
}

// IsLogin reports whether the context is the login domain.
func (d DomainContext) IsLogin() bool { return d.Kind == KindLogin }

// IsTenant reports whether the context is a tenant domain.
func (d DomainContext) IsTenant() bool { return d.Kind == KindTenant }

// Domains holds the host naming convention. One reserved label identifies the
// login host; every other first label under the suffix is a tenant id.
type Domains struct {
	// LoginLabel is the reserved leftmost label of the login host, e.g. "login".
	LoginLabel string
	// Suffix is the shared parent domain, e.g. "lvh.me".
	Suffix string
}

// Classify maps a host string to its DomainContext. It is pure and total:
// malformed hosts, ports and case variations all classify cleanly, never
// panic. Both the request side and the client manager use this exact
// function so the two sides can never disagree on domain semantics.
func (d Domains) Classify(host string) DomainContext {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return DomainContext{Kind: KindUnknown}
	}
	if stripped, _, err := net.SplitHostPort(h); err == nil {
		h = stripped
	}
	h = strings.TrimSuffix(h, ".")

	suffix := strings.ToLower(d.Suffix)
	if h == d.loginHost() {
		return DomainContext{Kind: KindLogin}
	}
	if !strings.HasSuffix(h, "."+suffix) {
		return DomainContext{Kind: KindUnknown}
	}

	label := strings.TrimSuffix(h, "."+suffix)
	// Only single-label subdomains are tenant hosts; anything deeper is not ours.
	if label == "" || strings.Contains(label, ".") || label == strings.ToLower(d.LoginLabel) {
		return DomainContext{Kind: KindUnknown}
	}
	return DomainContext{Kind: KindTenant, TenantID: label}
}

func (d Domains) loginHost() string {
	return strings.ToLower(d.LoginLabel + "." + d.Suffix)
}

// LoginURL builds an absolute URL on the login host.
func (d Domains) LoginURL(scheme, port, path string) string {
	return buildURL(scheme, d.loginHost(), port, path)
}

// TenantURL builds an absolute URL on a tenant host.
func (d Domains) TenantURL(scheme, tenantID, port, path string) string {
	return buildURL(scheme, strings.ToLower(tenantID)+"."+strings.ToLower(d.Suffix), port, path)
}

func buildURL(scheme, host, port, path string) string {
	if scheme == "" {
		scheme = "http"
	}
	if path == "" {
		path = "/"
	}
	if port != "" {
		host = host + ":" + port
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

// ScopeFor derives the session scope name for a domain context. The scope is
// a pure function of the context, never the raw host, so port and case
// variations of the same host share one scope. Scopes for different contexts
// never collide: the login domain has one fixed name and each tenant id has
// its own.
func ScopeFor(dctx DomainContext) (string, error) {
	switch dctx.Kind {
	case KindLogin:
		return "login.sid", nil
	case KindTenant:
		return "tenant_" + dctx.TenantID + ".sid", nil
	default:
		return "", ErrDomainMismatch
	}
}
