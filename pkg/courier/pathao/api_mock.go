package pathao

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnIssueToken  func(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
	OnPricePlan   func(ctx context.Context, token string, req *PriceRequest) (*PriceResponse, error)
	OnCreateOrder func(ctx context.Context, token string, req *OrderAPIRequest) (*OrderAPIResponse, string, error)
	OnTrackOrder  func(ctx context.Context, token string, consignmentID string) (*TrackResponse, error)
	OnListCities  func(ctx context.Context, token string) ([]City, error)
	OnListZones   func(ctx context.Context, token string, cityID int) ([]Zone, error)
	OnListAreas   func(ctx context.Context, token string, zoneID int) ([]Area, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return &APIError{Code: "MOCK_ERROR", Message: "Simulated API error", StatusCode: 500}
	}
	return nil
}

// IssueToken returns a mock token grant.
func (m *MockAPIClient) IssueToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnIssueToken != nil {
		return m.OnIssueToken(ctx, req)
	}
	return &TokenResponse{
		TokenType:    "Bearer",
		AccessToken:  "mock-access-" + uuid.New().String()[:8],
		RefreshToken: "mock-refresh-" + uuid.New().String()[:8],
		ExpiresIn:    432000,
	}, nil
}

// PricePlan returns a mock price.
func (m *MockAPIClient) PricePlan(ctx context.Context, token string, req *PriceRequest) (*PriceResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnPricePlan != nil {
		return m.OnPricePlan(ctx, token, req)
	}
	base := 60.0
	if req.DeliveryType == 12 {
		base = 100.0
	}
	if req.ItemWeight > 1 {
		base += 20 * (req.ItemWeight - 1)
	}
	return &PriceResponse{
		Price:         base,
		CODPercentage: 1,
		FinalPrice:    base,
	}, nil
}

// CreateOrder returns a mock consignment.
func (m *MockAPIClient) CreateOrder(ctx context.Context, token string, req *OrderAPIRequest) (*OrderAPIResponse, string, error) {
	if err := m.simulate(); err != nil {
		return nil, "", err
	}
	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, token, req)
	}
	resp := &OrderAPIResponse{
		ConsignmentID:   "DL" + uuid.New().String()[:10],
		MerchantOrderID: req.MerchantOrderID,
		OrderStatus:     "Pending",
		DeliveryFee:     80,
	}
	raw, _ := json.Marshal(map[string]any{
		"message": "Order Created Successfully",
		"type":    "success",
		"code":    200,
		"data":    resp,
	})
	return resp, string(raw), nil
}

// TrackOrder returns a mock status.
func (m *MockAPIClient) TrackOrder(ctx context.Context, token string, consignmentID string) (*TrackResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnTrackOrder != nil {
		return m.OnTrackOrder(ctx, token, consignmentID)
	}
	return &TrackResponse{
		ConsignmentID: consignmentID,
		OrderStatus:   "Pending",
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ListCities returns mock coverage cities.
func (m *MockAPIClient) ListCities(ctx context.Context, token string) ([]City, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListCities != nil {
		return m.OnListCities(ctx, token)
	}
	return []City{
		{CityID: 1, CityName: "Dhaka"},
		{CityID: 2, CityName: "Chattogram"},
	}, nil
}

// ListZones returns mock zones for a city.
func (m *MockAPIClient) ListZones(ctx context.Context, token string, cityID int) ([]Zone, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListZones != nil {
		return m.OnListZones(ctx, token, cityID)
	}
	return []Zone{
		{ZoneID: cityID*100 + 1, ZoneName: fmt.Sprintf("Zone %d-1", cityID)},
		{ZoneID: cityID*100 + 2, ZoneName: fmt.Sprintf("Zone %d-2", cityID)},
	}, nil
}

// ListAreas returns mock areas for a zone.
func (m *MockAPIClient) ListAreas(ctx context.Context, token string, zoneID int) ([]Area, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListAreas != nil {
		return m.OnListAreas(ctx, token, zoneID)
	}
	return []Area{
		{AreaID: zoneID*10 + 1, AreaName: fmt.Sprintf("Area %d-1", zoneID), HomeDeliveryAvailable: true, PickupAvailable: true},
		{AreaID: zoneID*10 + 2, AreaName: fmt.Sprintf("Area %d-2", zoneID), HomeDeliveryAvailable: true, PickupAvailable: false},
	}, nil
}
