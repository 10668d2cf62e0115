package gateway

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"tenant-gate/internal/domain"
)

// Account is one provisioned user in the identity directory.
type Account struct {
	ID       string
	Email    string
	Name     string
	Password string
	Tenants  []string
}

// Directory is the central identity authority: it checks credentials and
// resolves principals by id. Backed by an in-memory account set; password
// hashing and durable storage are the deployment's concern, not this
// service's. Implements domain.Directory.
type Directory struct {
	byEmail map[string]Account
	byID    map[string]Account
	logger  *slog.Logger
}

// NewDirectory creates a directory from the provisioned accounts.
func NewDirectory(accounts []Account, logger *slog.Logger) *Directory {
	d := &Directory{
		byEmail: make(map[string]Account, len(accounts)),
		byID:    make(map[string]Account, len(accounts)),
		logger:  logger,
	}
	for _, a := range accounts {
		d.byEmail[strings.ToLower(a.Email)] = a
		d.byID[a.ID] = a
	}
	return d
}

// Authenticate checks email and password. Password comparison is constant
// time, and unknown emails take the same path so the response does not leak
// which part of the credential pair failed.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*domain.Principal, error) {
	account, found := d.byEmail[strings.ToLower(email)]

	expected := []byte(account.Password)
	provided := []byte(password)
	match := subtle.ConstantTimeCompare(expected, provided) == 1

	if !found || !match {
		d.logger.WarnContext(ctx, "credential check failed", "email", email)
		return nil, domain.ErrInvalidCredentials
	}

	return principalOf(account), nil
}

// Lookup resolves a principal by user id.
func (d *Directory) Lookup(_ context.Context, userID string) (*domain.Principal, error) {
	account, found := d.byID[userID]
	if !found {
		return nil, domain.ErrUnauthenticated
	}
	return principalOf(account), nil
}

func principalOf(account Account) *domain.Principal {
	tenants := make([]string, len(account.Tenants))
	copy(tenants, account.Tenants)
	return &domain.Principal{
		ID:      account.ID,
		Email:   account.Email,
		Name:    account.Name,
		Tenants: tenants,
	}
}
