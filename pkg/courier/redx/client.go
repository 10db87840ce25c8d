// Package redx provides integration with the RedX merchant API.
package redx

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

const providerSlug = "redx"

// Config holds RedX configuration.
type Config struct {
	BaseURL string
	UseMock bool // When true, uses a mock API client
}

// Client is the RedX courier client. RedX issues long-lived merchant
// tokens, so the TokenSource is typically a courier.StaticToken backed
// by the stored API key.
type Client struct {
	config    Config
	apiClient APIClient
	tokens    courier.TokenSource
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new RedX client.
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

// NewWithAPIClient creates a new RedX client with a custom API client.
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

func (c *Client) translateErr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return courier.NewProviderError(providerSlug, "AUTH", apiErr.Message).
				WithStatusCode(apiErr.StatusCode).
				WithCause(courier.ErrAuthenticationFailed)
		case 400, 422:
			return courier.ErrUnserviceable
		}
		return courier.NewProviderError(providerSlug, apiErr.Code, apiErr.Message).
			WithStatusCode(apiErr.StatusCode).
			WithRetryable(apiErr.StatusCode >= 500)
	}
	return courier.NewProviderError(providerSlug, "TRANSPORT", "request failed").
		WithCause(err).WithRetryable(true)
}

// kgToGrams converts the platform weight unit to RedX's.
func kgToGrams(kg float64) float64 {
	return kg * 1000
}

// Quote prices a shipment between two flat RedX areas.
func (c *Client) Quote(ctx context.Context, req *courier.QuoteRequest) (*courier.Quote, error) {
	pickupArea, err := strconv.Atoi(req.Pickup.AreaID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}
	deliveryArea, err := strconv.Atoi(req.Delivery.AreaID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Calculating RedX charge",
		zap.Int("pickup_area", pickupArea),
		zap.Int("delivery_area", deliveryArea),
		zap.Float64("weight_kg", req.WeightKG),
	)

	apiResp, err := c.apiClient.CalculateCharge(ctx, token, &ChargeRequest{
		PickupAreaID:         pickupArea,
		DeliveryAreaID:       deliveryArea,
		Weight:               kgToGrams(req.WeightKG),
		CashCollectionAmount: req.CODAmount,
	})
	if err != nil {
		return nil, c.translateErr(err)
	}

	estimatedDays := apiResp.EstimatedDays
	if estimatedDays == 0 {
		estimatedDays = 3
	}

	return &courier.Quote{
		Provider:       providerSlug,
		DeliveryCharge: apiResp.DeliveryCharge,
		CODCharge:      apiResp.CODCharge,
		TotalCharge:    apiResp.TotalCharge,
		EstimatedDays:  estimatedDays,
	}, nil
}

// CreateOrder places a parcel with RedX.
func (c *Client) CreateOrder(ctx context.Context, req *courier.OrderRequest) (*courier.OrderResult, error) {
	deliveryArea, err := strconv.Atoi(req.DeliveryArea.AreaID)
	if err != nil {
		return nil, courier.ErrUnserviceable
	}
	pickupArea, _ := strconv.Atoi(req.PickupArea.AreaID)

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Creating RedX parcel",
		zap.String("merchant_invoice_id", req.ConsignmentID),
		zap.String("recipient", req.Recipient.Name),
	)

	apiResp, raw, err := c.apiClient.CreateParcel(ctx, token, &ParcelRequest{
		CustomerName:         req.Recipient.Name,
		CustomerPhone:        req.Recipient.Phone,
		CustomerAddress:      req.Recipient.Address,
		DeliveryAreaID:       deliveryArea,
		DeliveryArea:         req.DeliveryArea.AreaName,
		MerchantInvoiceID:    req.ConsignmentID,
		CashCollectionAmount: req.CODAmount,
		ParcelWeight:         kgToGrams(req.WeightKG),
		Value:                req.ItemValue,
		Instruction:          req.Instructions,
		PickupStoreName:      req.Pickup.StoreName,
		PickupStorePhone:     req.Pickup.Phone,
		PickupStoreAddress:   req.Pickup.Address,
		PickupAreaID:         pickupArea,
	})
	if err != nil {
		c.logger.Error("RedX API error", zap.Error(err))
		return nil, c.translateErr(err)
	}

	return &courier.OrderResult{
		ProviderOrderID: apiResp.TrackingID,
		TrackingID:      apiResp.TrackingID,
		RawResponse:     raw,
	}, nil
}

// TrackOrder fetches the latest tracking event of a parcel.
func (c *Client) TrackOrder(ctx context.Context, trackingID string) (*courier.TrackingUpdate, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	apiResp, err := c.apiClient.TrackParcel(ctx, token, trackingID)
	if err != nil {
		return nil, c.translateErr(err)
	}
	if len(apiResp.Tracking) == 0 {
		return nil, courier.ErrOrderNotFound
	}

	latest := apiResp.Tracking[len(apiResp.Tracking)-1]
	updatedAt, parseErr := time.Parse(time.RFC3339, latest.Time)
	if parseErr != nil {
		updatedAt = time.Now().UTC()
	}

	return &courier.TrackingUpdate{
		TrackingID: trackingID,
		RawStatus:  latest.Status,
		Message:    latest.MessageEn,
		MessageBn:  latest.MessageBn,
		UpdatedAt:  updatedAt,
	}, nil
}

// ListCoverage returns RedX's flat area list as coverage entries.
func (c *Client) ListCoverage(ctx context.Context) ([]courier.CoverageArea, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	areas, err := c.apiClient.ListAreas(ctx, token)
	if err != nil {
		return nil, c.translateErr(err)
	}

	coverage := make([]courier.CoverageArea, 0, len(areas))
	for _, a := range areas {
		coverage = append(coverage, courier.CoverageArea{
			AreaID:       strconv.Itoa(a.ID),
			AreaName:     a.Name,
			PostCode:     a.PostCode,
			CityName:     a.DistrictName,
			HomeDelivery: true,
			Pickup:       true,
		})
	}

	c.logger.Info("Fetched RedX coverage", zap.Int("areas", len(coverage)))
	return coverage, nil
}

// CheckCredential verifies the stored token with a cheap area-list call.
func (c *Client) CheckCredential(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if _, err := c.apiClient.ListAreas(ctx, token); err != nil {
		return c.translateErr(err)
	}
	return nil
}
