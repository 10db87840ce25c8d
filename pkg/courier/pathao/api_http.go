package pathao

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

// envelope is the wrapper Pathao puts around every response.
type envelope struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// listPage wraps paginated list data.
type listPage struct {
	Data json.RawMessage `json:"data"`
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
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling pathao: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.Message != "" {
			return nil, &APIError{
				Code:       fmt.Sprintf("%d", env.Code),
				Message:    env.Message,
				StatusCode: resp.StatusCode,
			}
		}
		return nil, &APIError{
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    string(raw),
			StatusCode: resp.StatusCode,
		}
	}
	return raw, nil
}

func decodeData(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	if len(env.Data) == 0 {
		// Token responses are not wrapped in the data envelope.
		return json.Unmarshal(raw, out)
	}
	return json.Unmarshal(env.Data, out)
}

func decodeList(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	var page listPage
	if err := json.Unmarshal(env.Data, &page); err == nil && len(page.Data) > 0 {
		return json.Unmarshal(page.Data, out)
	}
	return json.Unmarshal(env.Data, out)
}

// IssueToken exchanges credentials for an access token.
func (c *HTTPAPIClient) IssueToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/aladdin/api/v1/issue-token", "", req)
	if err != nil {
		return nil, err
	}
	var resp TokenResponse
	if err := decodeData(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	return &resp, nil
}

// PricePlan returns the delivery price for a route.
func (c *HTTPAPIClient) PricePlan(ctx context.Context, token string, req *PriceRequest) (*PriceResponse, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/aladdin/api/v1/merchant/price-plan", token, req)
	if err != nil {
		return nil, err
	}
	var resp PriceResponse
	if err := decodeData(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding price response: %w", err)
	}
	return &resp, nil
}

// CreateOrder places a consignment.
func (c *HTTPAPIClient) CreateOrder(ctx context.Context, token string, req *OrderAPIRequest) (*OrderAPIResponse, string, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/aladdin/api/v1/orders", token, req)
	if err != nil {
		return nil, "", err
	}
	var resp OrderAPIResponse
	if err := decodeData(raw, &resp); err != nil {
		return nil, string(raw), fmt.Errorf("decoding order response: %w", err)
	}
	return &resp, string(raw), nil
}

// TrackOrder fetches the current status of a consignment.
func (c *HTTPAPIClient) TrackOrder(ctx context.Context, token string, consignmentID string) (*TrackResponse, error) {
	path := fmt.Sprintf("/aladdin/api/v1/orders/%s/info", consignmentID)
	raw, err := c.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	var resp TrackResponse
	if err := decodeData(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding track response: %w", err)
	}
	return &resp, nil
}

// ListCities returns the coverage city list.
func (c *HTTPAPIClient) ListCities(ctx context.Context, token string) ([]City, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/aladdin/api/v1/city-list", token, nil)
	if err != nil {
		return nil, err
	}
	var cities []City
	if err := decodeList(raw, &cities); err != nil {
		return nil, fmt.Errorf("decoding city list: %w", err)
	}
	return cities, nil
}

// ListZones returns the zones of a city.
func (c *HTTPAPIClient) ListZones(ctx context.Context, token string, cityID int) ([]Zone, error) {
	path := fmt.Sprintf("/aladdin/api/v1/cities/%d/zone-list", cityID)
	raw, err := c.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	var zones []Zone
	if err := decodeList(raw, &zones); err != nil {
		return nil, fmt.Errorf("decoding zone list: %w", err)
	}
	return zones, nil
}

// ListAreas returns the areas of a zone.
func (c *HTTPAPIClient) ListAreas(ctx context.Context, token string, zoneID int) ([]Area, error) {
	path := fmt.Sprintf("/aladdin/api/v1/zones/%d/area-list", zoneID)
	raw, err := c.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	var areas []Area
	if err := decodeList(raw, &areas); err != nil {
		return nil, fmt.Errorf("decoding area list: %w", err)
	}
	return areas, nil
}
