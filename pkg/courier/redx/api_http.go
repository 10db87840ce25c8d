package redx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// RedX authenticates every call with a static merchant token.
	req.Header.Set("API-ACCESS-TOKEN", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling redx: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Message != "" {
			code := apiErr.Code
			if code == "" {
				code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
			}
			return nil, &APIError{Code: code, Message: apiErr.Message, StatusCode: resp.StatusCode}
		}
		return nil, &APIError{
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    string(raw),
			StatusCode: resp.StatusCode,
		}
	}
	return raw, nil
}

// ListAreas returns RedX's serviceable areas.
func (c *HTTPAPIClient) ListAreas(ctx context.Context, token string) ([]Area, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/areas", token, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Areas []Area `json:"areas"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding area list: %w", err)
	}
	return resp.Areas, nil
}

// CalculateCharge prices a shipment between two areas.
func (c *HTTPAPIClient) CalculateCharge(ctx context.Context, token string, req *ChargeRequest) (*ChargeResponse, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/charge/calculate", token, req)
	if err != nil {
		return nil, err
	}
	var resp ChargeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding charge response: %w", err)
	}
	return &resp, nil
}

// CreateParcel places a shipment.
func (c *HTTPAPIClient) CreateParcel(ctx context.Context, token string, req *ParcelRequest) (*ParcelResponse, string, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/parcel", token, req)
	if err != nil {
		return nil, "", err
	}
	var resp ParcelResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, string(raw), fmt.Errorf("decoding parcel response: %w", err)
	}
	return &resp, string(raw), nil
}

// TrackParcel fetches the tracking events of a shipment.
func (c *HTTPAPIClient) TrackParcel(ctx context.Context, token string, trackingID string) (*TrackingResponse, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/parcel/track/"+trackingID, token, nil)
	if err != nil {
		return nil, err
	}
	var resp TrackingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding tracking response: %w", err)
	}
	return &resp, nil
}
