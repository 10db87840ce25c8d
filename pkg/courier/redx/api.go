package redx

import (
	"context"
	"fmt"
)

// APIClient abstracts the RedX merchant API so the client can run
// against either the real HTTP API or a mock.
type APIClient interface {
	// ListAreas returns RedX's flat serviceable-area list.
	ListAreas(ctx context.Context, token string) ([]Area, error)

	// CalculateCharge prices a shipment between two areas.
	CalculateCharge(ctx context.Context, token string, req *ChargeRequest) (*ChargeResponse, error)

	// CreateParcel places a shipment. The raw response body is returned
	// alongside the decoded response for the audit trail.
	CreateParcel(ctx context.Context, token string, req *ParcelRequest) (*ParcelResponse, string, error)

	// TrackParcel fetches the tracking events of a shipment.
	TrackParcel(ctx context.Context, token string, trackingID string) (*TrackingResponse, error)
}

// APIError represents an error returned by the RedX API.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("redx API error %s: %s", e.Code, e.Message)
}

// ============================================================================
// Wire types (RedX merchant API, JSON)
// ============================================================================

// Area is one entry of GET /areas.
type Area struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	PostCode     string `json:"post_code"`
	DistrictName string `json:"district_name"`
	DivisionName string `json:"division_name"`
}

// ChargeRequest is the body for POST /charge/calculate.
type ChargeRequest struct {
	PickupAreaID          int     `json:"pickup_area_id"`
	DeliveryAreaID        int     `json:"delivery_area_id"`
	Weight                float64 `json:"weight"` // grams
	CashCollectionAmount  float64 `json:"cash_collection_amount"`
}

// ChargeResponse is the charge calculation result.
type ChargeResponse struct {
	DeliveryCharge float64 `json:"delivery_charge"`
	CODCharge      float64 `json:"cod_charge"`
	TotalCharge    float64 `json:"total_charge"`
	EstimatedDays  int     `json:"estimated_days"`
}

// ParcelRequest is the body for POST /parcel.
type ParcelRequest struct {
	CustomerName         string  `json:"customer_name"`
	CustomerPhone        string  `json:"customer_phone"`
	CustomerAddress      string  `json:"customer_address"`
	DeliveryAreaID       int     `json:"delivery_area_id"`
	DeliveryArea         string  `json:"delivery_area"`
	MerchantInvoiceID    string  `json:"merchant_invoice_id"`
	CashCollectionAmount float64 `json:"cash_collection_amount"`
	ParcelWeight         float64 `json:"parcel_weight"` // grams
	Value                float64 `json:"value"`
	Instruction          string  `json:"instruction,omitempty"`
	PickupStoreName      string  `json:"pickup_store_name,omitempty"`
	PickupStorePhone     string  `json:"pickup_store_phone,omitempty"`
	PickupStoreAddress   string  `json:"pickup_store_address,omitempty"`
	PickupAreaID         int     `json:"pickup_area_id,omitempty"`
}

// ParcelResponse is the create-parcel result.
type ParcelResponse struct {
	TrackingID string `json:"tracking_id"`
}

// TrackingEvent is one entry of the parcel tracking feed.
type TrackingEvent struct {
	Status    string `json:"status"`
	MessageEn string `json:"message_en"`
	MessageBn string `json:"message_bn"`
	Time      string `json:"time"`
}

// TrackingResponse is the parcel tracking result.
type TrackingResponse struct {
	Tracking []TrackingEvent `json:"tracking"`
}
