// Package pathao provides integration with the Pathao Courier merchant API.
package pathao

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bazarlink/courier/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const providerSlug = "pathao"

// Delivery type codes used by the Pathao API.
const (
	deliveryNormal   = 48 // delivered within 48 hours
	deliveryOnDemand = 12 // delivered within 12 hours
)

const itemTypeParcel = 2

// Config holds Pathao configuration.
type Config struct {
	BaseURL string
	StoreID int  // Merchant store the pickups are requested from
	UseMock bool // When true, uses a mock API client
}

// Client is the Pathao courier client. It implements courier.Adapter and
// delegates API calls to the underlying APIClient (mock or HTTP). Access
// tokens come from the injected TokenSource; the token endpoints
// themselves are exposed for the credential manager.
type Client struct {
	config    Config
	apiClient APIClient
	tokens    courier.TokenSource
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Pathao client.
// If cfg.UseMock is true, it uses a mock API client for testing.
func New(cfg Config, tokens courier.TokenSource, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			Timeout: 30 * time.Second,
		})
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		tokens:    tokens,
		logger:    logger,
		tracer:    tracer,
	}
}

// NewWithAPIClient creates a new Pathao client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, tokens courier.TokenSource, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		tokens:    tokens,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the provider slug.
func (c *Client) Name() string {
	return providerSlug
}

func deliveryTypeCode(t courier.DeliveryType) int {
	if t == courier.DeliveryExpress {
		return deliveryOnDemand
	}
	return deliveryNormal
}

// translateErr converts API failures into the orchestration taxonomy.
func (c *Client) translateErr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return courier.NewProviderError(providerSlug, "AUTH", apiErr.Message).
				WithStatusCode(apiErr.StatusCode).
				WithCause(courier.ErrAuthenticationFailed)
		case 422:
			// Pathao rejects routes outside its coverage with 422.
			return courier.ErrUnserviceable
		}
		return courier.NewProviderError(providerSlug, apiErr.Code, apiErr.Message).
			WithStatusCode(apiErr.StatusCode).
			WithRetryable(apiErr.StatusCode >= 500)
	}
	return courier.NewProviderError(providerSlug, "TRANSPORT", "request failed").
		WithCause(err).WithRetryable(true)
}

// Quote returns a Pathao delivery price for a route resolved to Pathao's
// city/zone hierarchy.
func (c *Client) Quote(ctx context.Context, req *courier.QuoteRequest) (*courier.Quote, error) {
	cityID, err := strconv.Atoi(req.Delivery.CityID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}
	zoneID, err := strconv.Atoi(req.Delivery.ZoneID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Getting Pathao price plan",
		zap.Int("recipient_city", cityID),
		zap.Int("recipient_zone", zoneID),
		zap.Float64("weight_kg", req.WeightKG),
	)

	apiResp, err := c.apiClient.PricePlan(ctx, token, &PriceRequest{
		StoreID:       c.config.StoreID,
		ItemType:      itemTypeParcel,
		DeliveryType:  deliveryTypeCode(req.DeliveryType),
		ItemWeight:    req.WeightKG,
		RecipientCity: cityID,
		RecipientZone: zoneID,
	})
	if err != nil {
		return nil, c.translateErr(err)
	}

	codCharge := req.CODAmount * apiResp.CODPercentage / 100
	estimatedDays := 2
	if req.DeliveryType == courier.DeliveryExpress {
		estimatedDays = 1
	}

	return &courier.Quote{
		Provider:       providerSlug,
		DeliveryCharge: apiResp.FinalPrice,
		CODCharge:      codCharge,
		TotalCharge:    apiResp.FinalPrice + codCharge,
		EstimatedDays:  estimatedDays,
	}, nil
}

// CreateOrder places a consignment with Pathao. Pathao uses the
// consignment id as the public tracking id.
func (c *Client) CreateOrder(ctx context.Context, req *courier.OrderRequest) (*courier.OrderResult, error) {
	cityID, err := strconv.Atoi(req.DeliveryArea.CityID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}
	zoneID, err := strconv.Atoi(req.DeliveryArea.ZoneID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}
	areaID, err := strconv.Atoi(req.DeliveryArea.AreaID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Creating Pathao order",
		zap.String("merchant_order_id", req.ConsignmentID),
		zap.String("recipient", req.Recipient.Name),
	)

	apiResp, raw, err := c.apiClient.CreateOrder(ctx, token, &OrderAPIRequest{
		StoreID:            c.config.StoreID,
		MerchantOrderID:    req.ConsignmentID,
		RecipientName:      req.Recipient.Name,
		RecipientPhone:     req.Recipient.Phone,
		RecipientAddress:   req.Recipient.Address,
		RecipientCity:      cityID,
		RecipientZone:      zoneID,
		RecipientArea:      areaID,
		DeliveryType:       deliveryTypeCode(req.DeliveryType),
		ItemType:           itemTypeParcel,
		SpecialInstruction: req.Instructions,
		ItemQuantity:       req.ItemCount,
		ItemWeight:         req.WeightKG,
		AmountToCollect:    req.CODAmount,
		ItemDescription:    req.ItemDescription,
	})
	if err != nil {
		c.logger.Error("Pathao API error", zap.Error(err))
		return nil, c.translateErr(err)
	}

	return &courier.OrderResult{
		ProviderOrderID: apiResp.ConsignmentID,
		TrackingID:      apiResp.ConsignmentID,
		DeliveryCharge:  apiResp.DeliveryFee,
		RawResponse:     raw,
	}, nil
}

// TrackOrder fetches the provider's current raw status for a consignment.
func (c *Client) TrackOrder(ctx context.Context, trackingID string) (*courier.TrackingUpdate, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	apiResp, err := c.apiClient.TrackOrder(ctx, token, trackingID)
	if err != nil {
		return nil, c.translateErr(err)
	}

	updatedAt, parseErr := time.Parse(time.RFC3339, apiResp.UpdatedAt)
	if parseErr != nil {
		updatedAt = time.Now().UTC()
	}

	return &courier.TrackingUpdate{
		TrackingID: apiResp.ConsignmentID,
		RawStatus:  apiResp.OrderStatus,
		Message:    apiResp.OrderStatus,
		UpdatedAt:  updatedAt,
	}, nil
}

// ListCoverage walks Pathao's city→zone→area hierarchy and returns the
// flattened serviceable areas. Used by the area sync job.
func (c *Client) ListCoverage(ctx context.Context) ([]courier.CoverageArea, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	cities, err := c.apiClient.ListCities(ctx, token)
	if err != nil {
		return nil, c.translateErr(err)
	}

	var coverage []courier.CoverageArea
	for _, city := range cities {
		zones, err := c.apiClient.ListZones(ctx, token, city.CityID)
		if err != nil {
			return nil, c.translateErr(err)
		}
		for _, zone := range zones {
			areas, err := c.apiClient.ListAreas(ctx, token, zone.ZoneID)
			if err != nil {
				return nil, c.translateErr(err)
			}
			for _, area := range areas {
				coverage = append(coverage, courier.CoverageArea{
					CityID:       strconv.Itoa(city.CityID),
					CityName:     city.CityName,
					ZoneID:       strconv.Itoa(zone.ZoneID),
					ZoneName:     zone.ZoneName,
					AreaID:       strconv.Itoa(area.AreaID),
					AreaName:     area.AreaName,
					HomeDelivery: area.HomeDeliveryAvailable,
					Pickup:       area.PickupAvailable,
				})
			}
		}
	}

	c.logger.Info("Fetched Pathao coverage", zap.Int("areas", len(coverage)))
	return coverage, nil
}

// CheckCredential verifies the stored credential with a cheap coverage
// call using a freshly sourced token.
func (c *Client) CheckCredential(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if _, err := c.apiClient.ListCities(ctx, token); err != nil {
		return c.translateErr(err)
	}
	return nil
}

// IssuePasswordGrant performs a fresh password-grant token issue. Called
// by the credential manager when no refresh token is available.
func (c *Client) IssuePasswordGrant(ctx context.Context, clientID, clientSecret, username, password string) (*TokenResponse, error) {
	resp, err := c.apiClient.IssueToken(ctx, &TokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		GrantType:    "password",
		Username:     username,
		Password:     password,
	})
	if err != nil {
		return nil, c.translateErr(err)
	}
	return resp, nil
}

// RefreshGrant exchanges a refresh token for a new access token.
func (c *Client) RefreshGrant(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	resp, err := c.apiClient.IssueToken(ctx, &TokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
	if err != nil {
		return nil, c.translateErr(err)
	}
	return resp, nil
}
