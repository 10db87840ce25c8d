package redx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnListAreas       func(ctx context.Context, token string) ([]Area, error)
	OnCalculateCharge func(ctx context.Context, token string, req *ChargeRequest) (*ChargeResponse, error)
	OnCreateParcel    func(ctx context.Context, token string, req *ParcelRequest) (*ParcelResponse, string, error)
	OnTrackParcel     func(ctx context.Context, token string, trackingID string) (*TrackingResponse, error)
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

// ListAreas returns mock serviceable areas.
func (m *MockAPIClient) ListAreas(ctx context.Context, token string) ([]Area, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListAreas != nil {
		return m.OnListAreas(ctx, token)
	}
	return []Area{
		{ID: 1, Name: "Uttara", PostCode: "1230", DistrictName: "Dhaka", DivisionName: "Dhaka"},
		{ID: 2, Name: "Mirpur", PostCode: "1216", DistrictName: "Dhaka", DivisionName: "Dhaka"},
		{ID: 3, Name: "Agrabad", PostCode: "4100", DistrictName: "Chattogram", DivisionName: "Chattogram"},
	}, nil
}

// CalculateCharge returns a mock price.
func (m *MockAPIClient) CalculateCharge(ctx context.Context, token string, req *ChargeRequest) (*ChargeResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCalculateCharge != nil {
		return m.OnCalculateCharge(ctx, token, req)
	}
	delivery := 60.0
	if req.Weight > 1000 {
		delivery += 15 * (req.Weight - 1000) / 500
	}
	cod := req.CashCollectionAmount * 0.01
	return &ChargeResponse{
		DeliveryCharge: delivery,
		CODCharge:      cod,
		TotalCharge:    delivery + cod,
		EstimatedDays:  2,
	}, nil
}

// CreateParcel returns a mock tracking id.
func (m *MockAPIClient) CreateParcel(ctx context.Context, token string, req *ParcelRequest) (*ParcelResponse, string, error) {
	if err := m.simulate(); err != nil {
		return nil, "", err
	}
	if m.OnCreateParcel != nil {
		return m.OnCreateParcel(ctx, token, req)
	}
	resp := &ParcelResponse{
		TrackingID: "21A" + uuid.New().String()[:9],
	}
	raw, _ := json.Marshal(resp)
	return resp, string(raw), nil
}

// TrackParcel returns mock tracking events.
func (m *MockAPIClient) TrackParcel(ctx context.Context, token string, trackingID string) (*TrackingResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnTrackParcel != nil {
		return m.OnTrackParcel(ctx, token, trackingID)
	}
	return &TrackingResponse{
		Tracking: []TrackingEvent{
			{
				Status:    "ready-for-delivery",
				MessageEn: "Parcel is ready for delivery",
				MessageBn: "পার্সেলটি ডেলিভারির জন্য প্রস্তুত",
				Time:      time.Now().UTC().Format(time.RFC3339),
			},
		},
	}, nil
}
