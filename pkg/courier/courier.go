// Package courier provides an abstraction layer for shipping courier providers.
package courier

import (
	"context"
)

// Adapter defines the interface that all courier providers must implement.
type Adapter interface {
	// Name returns the provider slug (e.g., "pathao", "redx").
	Name() string

	// Quote returns a priced delivery estimate for a shipment between two
	// serviceable areas. Returns ErrUnserviceable when the provider cannot
	// deliver on that route.
	Quote(ctx context.Context, req *QuoteRequest) (*Quote, error)

	// CreateOrder places a shipment with the provider and returns the
	// provider's own order and tracking identifiers.
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)

	// TrackOrder fetches the provider's current raw status for a shipment.
	TrackOrder(ctx context.Context, trackingID string) (*TrackingUpdate, error)
}

// CoverageLister is implemented by adapters that can enumerate the
// provider's serviceable areas. Used by the area sync job.
type CoverageLister interface {
	ListCoverage(ctx context.Context) ([]CoverageArea, error)
}

// CredentialChecker is implemented by adapters that support a cheap
// round-trip call for verifying stored credentials.
type CredentialChecker interface {
	CheckCredential(ctx context.Context) error
}

// TokenSource supplies a valid access token for provider calls. The
// credential manager implements it per (provider, environment) scope;
// API-key providers use a static source.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Used for
// API-key and bearer-token providers whose credentials never rotate.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}
