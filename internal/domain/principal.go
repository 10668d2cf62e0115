package domain

import "slices"

// Principal is an authenticated user. It is created by the identity directory
// on a successful credential check and treated as immutable for the lifetime
// of a session.
type Principal struct {
	ID      string
	Email   string
	Name    string
	Tenants []string
}

// MemberOf reports whether the principal may access the given tenant.
func (p *Principal) MemberOf(tenantID string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Tenants, tenantID)
}
