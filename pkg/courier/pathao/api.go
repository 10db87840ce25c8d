package pathao

import (
	"context"
	"fmt"
)

// APIClient abstracts the Pathao Courier merchant API so the client can
// run against either the real HTTP API or a mock.
type APIClient interface {
	// IssueToken exchanges credentials for an access token. Supports the
	// password grant and the refresh_token grant.
	IssueToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error)

	// PricePlan returns the delivery price for a route.
	PricePlan(ctx context.Context, token string, req *PriceRequest) (*PriceResponse, error)

	// CreateOrder places a consignment. The raw response body is
	// returned alongside the decoded response for the audit trail.
	CreateOrder(ctx context.Context, token string, req *OrderAPIRequest) (*OrderAPIResponse, string, error)

	// TrackOrder fetches the current status of a consignment.
	TrackOrder(ctx context.Context, token string, consignmentID string) (*TrackResponse, error)

	// ListCities, ListZones and ListAreas walk Pathao's three-level
	// coverage hierarchy.
	ListCities(ctx context.Context, token string) ([]City, error)
	ListZones(ctx context.Context, token string, cityID int) ([]Zone, error)
	ListAreas(ctx context.Context, token string, zoneID int) ([]Area, error)
}

// APIError represents an error returned by the Pathao API.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("pathao API error %s: %s", e.Code, e.Message)
}

// ============================================================================
// Wire types (Pathao Courier merchant API, JSON)
// ============================================================================

// TokenRequest is the body for POST /aladdin/api/v1/issue-token.
type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"` // "password" or "refresh_token"
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenResponse is the issue-token response.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// PriceRequest is the body for POST /aladdin/api/v1/merchant/price-plan.
type PriceRequest struct {
	StoreID       int     `json:"store_id"`
	ItemType      int     `json:"item_type"`     // 2 = parcel
	DeliveryType  int     `json:"delivery_type"` // 48 = normal, 12 = on-demand
	ItemWeight    float64 `json:"item_weight"`
	RecipientCity int     `json:"recipient_city"`
	RecipientZone int     `json:"recipient_zone"`
}

// PriceResponse is the price-plan response data.
type PriceResponse struct {
	Price          float64 `json:"price"`
	Discount       float64 `json:"discount"`
	PromoDiscount  float64 `json:"promo_discount"`
	CODPercentage  float64 `json:"cod_percentage"`
	AdditionalCost float64 `json:"additional_charge"`
	FinalPrice     float64 `json:"final_price"`
}

// OrderAPIRequest is the body for POST /aladdin/api/v1/orders.
type OrderAPIRequest struct {
	StoreID            int     `json:"store_id"`
	MerchantOrderID    string  `json:"merchant_order_id"`
	RecipientName      string  `json:"recipient_name"`
	RecipientPhone     string  `json:"recipient_phone"`
	RecipientAddress   string  `json:"recipient_address"`
	RecipientCity      int     `json:"recipient_city"`
	RecipientZone      int     `json:"recipient_zone"`
	RecipientArea      int     `json:"recipient_area"`
	DeliveryType       int     `json:"delivery_type"`
	ItemType           int     `json:"item_type"`
	SpecialInstruction string  `json:"special_instruction,omitempty"`
	ItemQuantity       int     `json:"item_quantity"`
	ItemWeight         float64 `json:"item_weight"`
	AmountToCollect    float64 `json:"amount_to_collect"`
	ItemDescription    string  `json:"item_description,omitempty"`
}

// OrderAPIResponse is the create-order response data.
type OrderAPIResponse struct {
	ConsignmentID   string  `json:"consignment_id"`
	MerchantOrderID string  `json:"merchant_order_id"`
	OrderStatus     string  `json:"order_status"`
	DeliveryFee     float64 `json:"delivery_fee"`
}

// TrackResponse is the order-tracking response data.
type TrackResponse struct {
	ConsignmentID string `json:"consignment_id"`
	OrderStatus   string `json:"order_status"`
	OrderStatusBn string `json:"order_status_slug,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

// City is one entry of the city-list response.
type City struct {
	CityID   int    `json:"city_id"`
	CityName string `json:"city_name"`
}

// Zone is one entry of a city's zone-list response.
type Zone struct {
	ZoneID   int    `json:"zone_id"`
	ZoneName string `json:"zone_name"`
}

// Area is one entry of a zone's area-list response.
type Area struct {
	AreaID                int    `json:"area_id"`
	AreaName              string `json:"area_name"`
	HomeDeliveryAvailable bool   `json:"home_delivery_available"`
	PickupAvailable       bool   `json:"pickup_available"`
}
