package domain

import "errors"

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrSessionExpired     = errors.New("session expired")
)

// Handoff token errors.
var (
	ErrInvalidTenant  = errors.New("user is not a member of tenant")
	ErrTokenNotFound  = errors.New("token not found or already consumed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTenantMismatch = errors.New("token issued for a different tenant")
)

// Domain classification errors.
var (
	ErrDomainMismatch = errors.New("request host has no domain context")
)

// Rate limiting errors.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
)
