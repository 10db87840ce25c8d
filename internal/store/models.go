package store

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/bazarlink/courier/pkg/courier"
)

// Provider is a registered courier provider and its selection metadata.
type Provider struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	Slug              string `gorm:"size:64;uniqueIndex" json:"slug"`
	Name              string `gorm:"size:128" json:"name"`
	SandboxBaseURL    string `json:"sandboxBaseUrl"`
	ProductionBaseURL string `json:"productionBaseUrl"`
	AuthScheme        string `gorm:"size:16" json:"authScheme"`

	SupportsCOD       bool `json:"supportsCod"`
	SupportsTracking  bool `json:"supportsTracking"`
	SupportsBulkOrder bool `json:"supportsBulkOrder"`
	SupportsWebhook   bool `json:"supportsWebhook"`

	// Priority orders providers during selection; lower is preferred.
	Priority    int  `json:"priority"`
	IsPreferred bool `json:"isPreferred"`
	IsActive    bool `json:"isActive"`

	// StatusMapJSON maps canonical statuses to the provider's raw status
	// strings: {"DELIVERED": ["delivered", "completed"], ...}.
	StatusMapJSON string `gorm:"type:text;column:status_map" json:"statusMap"`

	// WebhookSecret, when set, enables HMAC verification of callbacks.
	WebhookSecret string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BaseURL returns the provider endpoint for the given environment.
func (p *Provider) BaseURL(env courier.Environment) string {
	if env == courier.EnvProduction {
		return p.ProductionBaseURL
	}
	return p.SandboxBaseURL
}

// StatusMap decodes the provider's status vocabulary. An empty or
// malformed map yields an empty vocabulary, so every raw status maps to
// UNKNOWN rather than failing ingestion.
func (p *Provider) StatusMap() courier.StatusMap {
	m := courier.StatusMap{}
	if p.StatusMapJSON == "" {
		return m
	}
	if err := json.Unmarshal([]byte(p.StatusMapJSON), &m); err != nil {
		return courier.StatusMap{}
	}
	return m
}

// Credential holds authentication material for one (provider,
// environment, vendor) scope. VendorID nil means platform-level.
type Credential struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ProviderSlug string `gorm:"size:64;index:idx_cred_scope" json:"providerSlug"`
	Environment  string `gorm:"size:16;index:idx_cred_scope" json:"environment"`
	VendorID     *int64 `gorm:"index:idx_cred_scope" json:"vendorId,omitempty"`

	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"-"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"-"`
	APIKey       string `json:"-"`
	StoreID      string `json:"storeId,omitempty"`

	// Cached OAuth material; unused for API-key providers.
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`

	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScopeKey identifies the credential's (provider, environment, vendor)
// tuple. Used to serialize token refreshes per credential.
func (c *Credential) ScopeKey() string {
	key := c.ProviderSlug + "/" + c.Environment
	if c.VendorID != nil {
		key += "/" + strconv.FormatInt(*c.VendorID, 10)
	}
	return key
}

// ServiceableArea maps one platform location to one provider area.
type ServiceableArea struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ProviderSlug string `gorm:"size:64;uniqueIndex:idx_area_provider_area" json:"providerSlug"`

	// ProviderAreaID is the provider's own area identifier; unique per
	// provider. Providers with a city→zone→area hierarchy also carry the
	// upper two levels.
	ProviderAreaID string `gorm:"size:64;uniqueIndex:idx_area_provider_area" json:"providerAreaId"`
	CityID         string `gorm:"size:64" json:"cityId,omitempty"`
	ZoneID         string `gorm:"size:64" json:"zoneId,omitempty"`
	AreaName       string `gorm:"size:128" json:"areaName"`
	PostCode       string `gorm:"size:16" json:"postCode,omitempty"`

	LocationID int64 `gorm:"index" json:"locationId"`

	HomeDeliveryAvailable bool `json:"homeDeliveryAvailable"`
	PickupAvailable       bool `json:"pickupAvailable"`

	LastSyncedAt time.Time `json:"lastSyncedAt"`
}

// Mapping converts the row into the adapter-facing area mapping.
func (a *ServiceableArea) Mapping() courier.AreaMapping {
	return courier.AreaMapping{
		LocationID:   a.LocationID,
		CityID:       a.CityID,
		ZoneID:       a.ZoneID,
		AreaID:       a.ProviderAreaID,
		AreaName:     a.AreaName,
		HomeDelivery: a.HomeDeliveryAvailable,
		Pickup:       a.PickupAvailable,
	}
}

// CourierOrder is one shipment attempt against one provider.
type CourierOrder struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	ConsignmentID string `gorm:"size:64;uniqueIndex" json:"consignmentId"`
	OrderID       int64  `gorm:"index" json:"orderId"`
	VendorID      int64  `gorm:"index" json:"vendorId"`
	ProviderSlug  string `gorm:"size:64;index" json:"providerSlug"`

	ProviderOrderID string `gorm:"size:128" json:"providerOrderId,omitempty"`
	TrackingID      string `gorm:"size:128;index" json:"trackingId,omitempty"`

	RecipientName       string `json:"recipientName"`
	RecipientPhone      string `json:"recipientPhone"`
	RecipientAddress    string `json:"recipientAddress"`
	RecipientLocationID int64  `json:"recipientLocationId"`

	PickupStoreName  string `json:"pickupStoreName"`
	PickupPhone      string `json:"pickupPhone"`
	PickupAddress    string `json:"pickupAddress"`
	PickupLocationID int64  `json:"pickupLocationId"`

	WeightKG  float64 `json:"weightKg"`
	ItemValue float64 `json:"itemValue"`
	CODAmount float64 `json:"codAmount"`

	DeliveryCharge float64 `json:"deliveryCharge"`
	CODCharge      float64 `json:"codCharge"`
	TotalCharge    float64 `json:"totalCharge"`

	Status         string `gorm:"size:32;index" json:"status"`
	ProviderStatus string `gorm:"size:128" json:"providerStatus,omitempty"`

	// RawResponse holds the provider's create-order response (or the
	// error for FAILED attempts) verbatim, keyed by ProviderSlug.
	RawResponse   string `gorm:"type:text" json:"-"`
	FailureReason string `json:"failureReason,omitempty"`

	LastStatusUpdate time.Time `json:"lastStatusUpdate"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TrackingEvent is one append-only history entry for a courier order.
type TrackingEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CourierOrderID uint      `gorm:"index" json:"-"`
	Status         string    `gorm:"size:32" json:"status"`
	ProviderStatus string    `gorm:"size:128" json:"providerStatus,omitempty"`
	Message        string    `json:"message"`
	MessageBn      string    `json:"messageBn,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}
