package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"tenant-gate/internal/domain"

	"github.com/jonboulle/clockwork"
)

// handoffValueSize is the raw entropy of a token value before encoding.
// 32 bytes keeps collisions and guessing out of reach.
const handoffValueSize = 32

// Broker issues and consumes single-use handoff tokens binding a user to a
// tenant. Implements domain.TokenBroker.
type Broker struct {
	store  domain.TokenStore
	clock  clockwork.Clock
	ttl    time.Duration
	logger *slog.Logger
}

// NewBroker creates a handoff token broker. ttl should stay short; it only
// needs to cover the redirect round-trip to the tenant domain.
func NewBroker(store domain.TokenStore, clock clockwork.Clock, ttl time.Duration, logger *slog.Logger) *Broker {
	return &Broker{store: store, clock: clock, ttl: ttl, logger: logger}
}

// Issue mints a token for the principal targeting tenantID. The membership
// check happens here, at issue time, so a verified token always carries an
// authorized (user, tenant) pair.
func (b *Broker) Issue(ctx context.Context, principal *domain.Principal, tenantID string) (*domain.HandoffToken, error) {
	if !principal.MemberOf(tenantID) {
		return nil, domain.ErrInvalidTenant
	}

	value, err := randomValue()
	if err != nil {
		return nil, fmt.Errorf("generate handoff token: %w", err)
	}

	token := domain.HandoffToken{
		Value:     value,
		UserID:    principal.ID,
		TenantID:  tenantID,
		ExpiresAt: b.clock.Now().Add(b.ttl),
	}
	b.store.Put(token)

	b.logger.InfoContext(ctx, "handoff token issued",
		"user_id", principal.ID,
		"tenant_id", tenantID,
		"ttl", b.ttl)
	return &token, nil
}

// Verify consumes a token value under the given domain context. The store
// consumes atomically, so concurrent verifications of one value yield exactly
// one success. The tenant check runs after consumption: a token presented on
// the wrong tenant domain is burned, not left around for a second attempt.
func (b *Broker) Verify(ctx context.Context, value string, dctx domain.DomainContext) (*domain.HandoffToken, error) {
	if !dctx.IsTenant() {
		return nil, domain.ErrDomainMismatch
	}

	token, err := b.store.ConsumeIfValid(value, b.clock.Now())
	if err != nil {
		b.logger.WarnContext(ctx, "handoff token rejected",
			"tenant_id", dctx.TenantID,
			"error", err)
		return nil, err
	}

	if token.TenantID != dctx.TenantID {
		b.logger.WarnContext(ctx, "handoff token tenant mismatch",
			"token_tenant", token.TenantID,
			"request_tenant", dctx.TenantID)
		return nil, domain.ErrTenantMismatch
	}

	b.logger.InfoContext(ctx, "handoff token consumed",
		"user_id", token.UserID,
		"tenant_id", token.TenantID)
	return token, nil
}

func randomValue() (string, error) {
	raw := make([]byte, handoffValueSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
