// Package token manages per-provider credential lookup and OAuth token
// lifecycles for courier adapters.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// expiryBuffer is subtracted from the token expiry so a token is
// refreshed before it can expire mid-request.
const expiryBuffer = 5 * time.Minute

// Grant is a freshly issued token set.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Issuer performs a provider's token issue and refresh calls.
type Issuer interface {
	// Issue performs a fresh credential-based token issue.
	Issue(ctx context.Context, cred *store.Credential) (*Grant, error)
	// Refresh exchanges the credential's refresh token for a new grant.
	Refresh(ctx context.Context, cred *store.Credential) (*Grant, error)
}

// Manager resolves active credentials and keeps cached OAuth tokens
// fresh. Refreshes for the same credential scope are collapsed into a
// single network call via singleflight, so concurrent callers never
// double-spend a refresh token.
type Manager struct {
	creds   store.CredentialStore
	issuers map[string]Issuer
	group   singleflight.Group
	logger  *otelzap.Logger
	now     func() time.Time
}

// NewManager creates a credential manager over the given store.
func NewManager(creds store.CredentialStore, logger *otelzap.Logger) *Manager {
	return &Manager{
		creds:   creds,
		issuers: make(map[string]Issuer),
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterIssuer wires the token endpoints of an OAuth provider.
// Providers without an issuer are treated as static-key providers.
func (m *Manager) RegisterIssuer(providerSlug string, issuer Issuer) {
	m.issuers[providerSlug] = issuer
}

// ActiveCredential returns the single active credential for the scope.
func (m *Manager) ActiveCredential(ctx context.Context, providerSlug string, env courier.Environment, vendorID *int64) (*store.Credential, error) {
	cred, err := m.creds.ActiveCredential(ctx, providerSlug, string(env), vendorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", courier.ErrCredentialMissing, providerSlug, env)
		}
		return nil, err
	}
	return cred, nil
}

// ValidToken returns a token usable for provider calls right now.
// Static-key providers return their stored key. OAuth providers return
// the cached access token when it is still valid past the expiry
// buffer, otherwise a refresh (or fresh issue, when no refresh token is
// stored) is performed and persisted before returning. Refresh failure
// is a hard error; a stale token is never returned.
func (m *Manager) ValidToken(ctx context.Context, providerSlug string, env courier.Environment) (string, error) {
	cred, err := m.ActiveCredential(ctx, providerSlug, env, nil)
	if err != nil {
		return "", err
	}

	issuer, isOAuth := m.issuers[providerSlug]
	if !isOAuth {
		if cred.APIKey != "" {
			return cred.APIKey, nil
		}
		if cred.AccessToken != "" {
			return cred.AccessToken, nil
		}
		return "", fmt.Errorf("%w: %s/%s has no key material", courier.ErrCredentialMissing, providerSlug, env)
	}

	if m.tokenUsable(cred) {
		return cred.AccessToken, nil
	}
	return m.refresh(ctx, cred, issuer, false)
}

// ForceRefresh discards the cached token of a credential and issues a
// new one. Used by the admin refresh-token operation.
func (m *Manager) ForceRefresh(ctx context.Context, credentialID uint) (*store.Credential, error) {
	cred, err := m.creds.GetCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, courier.ErrCredentialMissing
		}
		return nil, err
	}
	issuer, isOAuth := m.issuers[cred.ProviderSlug]
	if !isOAuth {
		return nil, fmt.Errorf("provider %s does not use refreshable tokens", cred.ProviderSlug)
	}
	if _, err := m.refresh(ctx, cred, issuer, true); err != nil {
		return nil, err
	}
	return m.creds.GetCredential(ctx, credentialID)
}

func (m *Manager) tokenUsable(cred *store.Credential) bool {
	return cred.AccessToken != "" &&
		cred.TokenExpiresAt != nil &&
		cred.TokenExpiresAt.After(m.now().Add(expiryBuffer))
}

// refresh serializes token renewal per credential scope. The winning
// caller performs the network call and persists the grant; coalesced
// callers observe the token it produced.
func (m *Manager) refresh(ctx context.Context, cred *store.Credential, issuer Issuer, force bool) (string, error) {
	result, err, _ := m.group.Do(cred.ScopeKey(), func() (any, error) {
		// Re-read inside the flight: a caller that lost the race may
		// find a token already persisted by the winner.
		fresh, err := m.creds.GetCredential(ctx, cred.ID)
		if err != nil {
			return nil, err
		}
		if !force && m.tokenUsable(fresh) {
			return fresh.AccessToken, nil
		}

		var grant *Grant
		if fresh.RefreshToken != "" {
			grant, err = issuer.Refresh(ctx, fresh)
		} else {
			grant, err = issuer.Issue(ctx, fresh)
		}
		if err != nil {
			m.logger.Error("Token refresh failed",
				zap.String("provider", fresh.ProviderSlug),
				zap.String("environment", fresh.Environment),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %s", courier.ErrTokenRefreshFailed, err)
		}

		if err := m.creds.SaveToken(ctx, fresh.ID, grant.AccessToken, grant.RefreshToken, grant.ExpiresAt); err != nil {
			return nil, fmt.Errorf("persisting token: %w", err)
		}

		m.logger.Info("Token refreshed",
			zap.String("provider", fresh.ProviderSlug),
			zap.String("environment", fresh.Environment),
			zap.Time("expires_at", grant.ExpiresAt),
		)
		return grant.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Source returns a courier.TokenSource bound to one provider and
// environment, for injection into adapters.
func (m *Manager) Source(providerSlug string, env courier.Environment) courier.TokenSource {
	return sourceFunc(func(ctx context.Context) (string, error) {
		return m.ValidToken(ctx, providerSlug, env)
	})
}

type sourceFunc func(ctx context.Context) (string, error)

func (f sourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
