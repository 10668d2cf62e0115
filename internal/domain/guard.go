package domain

// RouteRequirement describes what a route demands from the caller.
type RouteRequirement struct {
	RequiresLogin  bool
	RequiresTenant bool
}

// DecisionKind enumerates the possible access-guard outcomes.
type DecisionKind int

const (
	// Allow lets the route proceed.
	Allow DecisionKind = iota
	// RedirectToLogin sends the caller to the login route, preserving the
	// original destination for post-login return.
	RedirectToLogin
	// RedirectToTenantSelection sends an authenticated caller with no tenant
	// memberships to the tenant-selection route.
	RedirectToTenantSelection
	// RenderAsIs is a deliberate no-redirect pass-through: the caller presents
	// a tenant-selection affordance in place instead of bouncing between
	// domains it does not control.
	RenderAsIs
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToTenantSelection:
		return "redirect_to_tenant_selection"
	case RenderAsIs:
		return "render_as_is"
	default:
		return "unknown"
	}
}

// Decision is the access guard's verdict for one route evaluation.
type Decision struct {
	Kind       DecisionKind
	ReturnPath string
}

// Decide is the route-level access decision. It is pure: the same inputs give
// the same decision whether evaluated at route entry or re-evaluated after an
// async principal load completes. It never returns an error; every auth-flow
// divergence becomes one of the defined redirects.
//
// Rules, in order:
//  1. Login required and no principal: redirect to login.
//  2. Tenant required and the principal has no memberships: redirect to
//     tenant selection.
//  3. Tenant required but the current domain is not a tenant domain: render
//     as-is, letting the caller offer tenant selection inline.
//  4. Otherwise: allow.
func Decide(dctx DomainContext, principal *Principal, req RouteRequirement, returnPath string) Decision {
	if req.RequiresLogin && principal == nil {
		return Decision{Kind: RedirectToLogin, ReturnPath: returnPath}
	}
	if req.RequiresTenant && principal != nil && len(principal.Tenants) == 0 {
		return Decision{Kind: RedirectToTenantSelection, ReturnPath: returnPath}
	}
	if req.RequiresTenant && !dctx.IsTenant() {
		return Decision{Kind: RenderAsIs, ReturnPath: returnPath}
	}
	return Decision{Kind: Allow, ReturnPath: returnPath}
}
