package token

import (
	"time"

	"tenant-gate/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// JWTConfig holds API token generation configuration.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// apiClaims represents the JWT claims handed to downstream services.
type apiClaims struct {
	Email    string `json:"email"`
	TenantID string `json:"tid,omitempty"`
	Sid      string `json:"sid"`
	jwt.RegisteredClaims
}

// JWTIssuer signs short-lived API tokens for calls made on behalf of an
// established session. Implements domain.APITokenIssuer.
type JWTIssuer struct {
	cfg   JWTConfig
	clock clockwork.Clock
}

// NewJWTIssuer creates a new JWT issuer.
func NewJWTIssuer(cfg JWTConfig, clock clockwork.Clock) *JWTIssuer {
	return &JWTIssuer{cfg: cfg, clock: clock}
}

// Issue generates a signed JWT bound to the user, tenant and session.
func (j *JWTIssuer) Issue(principal *domain.Principal, tenantID, sessionID string) (string, error) {
	now := j.clock.Now()
	claims := apiClaims{
		Email:    principal.Email,
		TenantID: tenantID,
		Sid:      sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.cfg.Issuer,
			Audience:  jwt.ClaimStrings{j.cfg.Audience},
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.cfg.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.cfg.Secret))
}
