// Package store persists the courier orchestration entities.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a uniqueness constraint would be violated.
var ErrConflict = errors.New("record already exists")

// ProviderStore manages courier provider rows.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *Provider) error
	UpdateProvider(ctx context.Context, p *Provider) error
	// DeleteProvider removes a provider. Refused while the provider has
	// non-terminal orders.
	DeleteProvider(ctx context.Context, slug string) error
	GetProvider(ctx context.Context, slug string) (*Provider, error)
	// ListProviders returns providers ordered for selection: preferred
	// first, then ascending priority.
	ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error)
}

// CredentialStore manages credentials and their cached tokens.
type CredentialStore interface {
	// CreateCredential stores c and deactivates any other active
	// credential in the same (provider, environment, vendor) scope.
	CreateCredential(ctx context.Context, c *Credential) error
	UpdateCredential(ctx context.Context, c *Credential) error
	DeleteCredential(ctx context.Context, id uint) error
	GetCredential(ctx context.Context, id uint) (*Credential, error)
	ListCredentials(ctx context.Context, providerSlug string) ([]Credential, error)
	// ActiveCredential returns the single active credential for the
	// scope. A vendor-scoped lookup falls back to the platform-level
	// credential when the vendor has none of its own.
	ActiveCredential(ctx context.Context, providerSlug, environment string, vendorID *int64) (*Credential, error)
	// SaveToken persists refreshed token material atomically.
	SaveToken(ctx context.Context, credentialID uint, accessToken, refreshToken string, expiresAt time.Time) error
}

// AreaStore manages the serviceable area index.
type AreaStore interface {
	// UpsertAreas inserts or updates rows keyed by (provider,
	// providerAreaId) and returns the number of rows written. Idempotent.
	UpsertAreas(ctx context.Context, providerSlug string, areas []ServiceableArea) (int, error)
	// AreaForLocation resolves a platform location to the provider's
	// area mapping. ErrNotFound means the location is not serviceable.
	AreaForLocation(ctx context.Context, providerSlug string, locationID int64) (*ServiceableArea, error)
	ListAreas(ctx context.Context, providerSlug string, limit, offset int) ([]ServiceableArea, error)
	DeleteArea(ctx context.Context, id uint) error
}

// OrderStore manages courier orders and their tracking history.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *CourierOrder) error
	UpdateOrder(ctx context.Context, o *CourierOrder) error
	OrderByConsignment(ctx context.Context, consignmentID string) (*CourierOrder, error)
	OrderByTrackingID(ctx context.Context, providerSlug, trackingID string) (*CourierOrder, error)
	ListOrdersByVendor(ctx context.Context, vendorID int64, limit, offset int) ([]CourierOrder, error)
	// CountOpenOrders returns the number of non-terminal orders placed
	// with the provider.
	CountOpenOrders(ctx context.Context, providerSlug string) (int64, error)
	// AppendTracking adds one history entry. History is append-only.
	AppendTracking(ctx context.Context, e *TrackingEvent) error
	TrackingForOrder(ctx context.Context, courierOrderID uint) ([]TrackingEvent, error)
}

// Store is the combined persistence surface of the orchestration layer.
type Store interface {
	ProviderStore
	CredentialStore
	AreaStore
	OrderStore
}
