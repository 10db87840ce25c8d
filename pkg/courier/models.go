package courier

import (
	"time"
)

// Environment selects which of a provider's API endpoints are used.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// AuthScheme is the authentication mechanism a provider requires.
type AuthScheme string

const (
	AuthOAuth2 AuthScheme = "OAUTH2"
	AuthAPIKey AuthScheme = "API_KEY"
	AuthBearer AuthScheme = "BEARER"
)

// DeliveryType represents the delivery speed class.
type DeliveryType string

const (
	DeliveryRegular DeliveryType = "regular"
	DeliveryExpress DeliveryType = "express"
)

// AreaMapping is a resolved serviceable area for one endpoint of a
// shipment: the platform location plus the provider's own identifiers.
// Providers with a flat area model leave CityID/ZoneID empty.
type AreaMapping struct {
	LocationID   int64
	CityID       string
	ZoneID       string
	AreaID       string
	AreaName     string
	HomeDelivery bool
	Pickup       bool
}

// CoverageArea is one serviceable area as reported by a provider's own
// coverage API, before it is mapped to a platform location.
type CoverageArea struct {
	CityID       string
	CityName     string
	ZoneID       string
	ZoneName     string
	AreaID       string
	AreaName     string
	PostCode     string
	HomeDelivery bool
	Pickup       bool
}

// Recipient is the delivery destination contact snapshot.
type Recipient struct {
	Name       string
	Phone      string
	Address    string
	LocationID int64
}

// PickupPoint is the vendor warehouse the courier collects from.
type PickupPoint struct {
	StoreName   string
	ContactName string
	Phone       string
	Address     string
	LocationID  int64
}

// QuoteRequest asks a provider to price a shipment between two areas
// already resolved through the serviceable area index.
type QuoteRequest struct {
	Pickup       AreaMapping
	Delivery     AreaMapping
	WeightKG     float64
	CODAmount    float64
	DeliveryType DeliveryType
}

// Quote is a normalized price estimate from one provider.
type Quote struct {
	Provider       string
	DeliveryCharge float64
	CODCharge      float64
	TotalCharge    float64
	EstimatedDays  int
}

// OrderRequest is the normalized payload for placing a shipment.
type OrderRequest struct {
	// ConsignmentID is the platform's reference, unique per dispatch
	// attempt. Providers that support idempotency keys receive it.
	ConsignmentID string

	Recipient Recipient
	Pickup    PickupPoint

	// Area mappings resolved for the chosen provider.
	PickupArea   AreaMapping
	DeliveryArea AreaMapping

	ItemDescription string
	ItemCount       int
	WeightKG        float64
	ItemValue       float64
	CODAmount       float64
	DeliveryType    DeliveryType
	Instructions    string
}

// OrderResult is the normalized response from placing a shipment.
type OrderResult struct {
	ProviderOrderID string
	TrackingID      string
	DeliveryCharge  float64
	CODCharge       float64
	TotalCharge     float64

	// RawResponse is the provider's response body, kept verbatim for the
	// audit trail. Consumers key its schema off the provider slug.
	RawResponse string
}

// TrackingUpdate is one status observation for a shipment, either pulled
// via TrackOrder or pushed through a webhook.
type TrackingUpdate struct {
	TrackingID string
	RawStatus  string
	Message    string
	MessageBn  string
	UpdatedAt  time.Time
}
