// Package platform is the client for the marketplace core's internal
// API: locations, vendor warehouses, and order aggregates.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bazarlink/courier/internal/dispatch"
)

const defaultTimeout = 30 * time.Second

// Config holds the platform client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the marketplace core. It implements the dispatch
// collaborator interfaces.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a platform client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding platform response: %w", err)
	}
	return nil
}

// Location implements dispatch.LocationDirectory.
func (c *Client) Location(ctx context.Context, id int64) (*dispatch.Location, error) {
	var loc struct {
		ID       int64  `json:"id"`
		ParentID int64  `json:"parentId"`
		Level    int    `json:"level"`
		Name     string `json:"name"`
	}
	if err := c.get(ctx, fmt.Sprintf("/internal/locations/%d", id), &loc); err != nil {
		return nil, err
	}
	return &dispatch.Location{ID: loc.ID, ParentID: loc.ParentID, Level: loc.Level, Name: loc.Name}, nil
}

// DefaultWarehouse implements dispatch.WarehouseDirectory.
func (c *Client) DefaultWarehouse(ctx context.Context, vendorID int64) (*dispatch.Warehouse, error) {
	var wh struct {
		LocationID  int64  `json:"locationId"`
		IsDefault   bool   `json:"isDefault"`
		StoreName   string `json:"storeName"`
		ContactName string `json:"contactName"`
		Phone       string `json:"phone"`
		Address     string `json:"address"`
	}
	if err := c.get(ctx, fmt.Sprintf("/internal/vendors/%d/warehouse", vendorID), &wh); err != nil {
		return nil, err
	}
	return &dispatch.Warehouse{
		LocationID:  wh.LocationID,
		IsDefault:   wh.IsDefault,
		StoreName:   wh.StoreName,
		ContactName: wh.ContactName,
		Phone:       wh.Phone,
		Address:     wh.Address,
	}, nil
}

// Order implements dispatch.OrderDirectory.
func (c *Client) Order(ctx context.Context, orderID int64) (*dispatch.OrderInfo, error) {
	var o struct {
		OrderID         int64   `json:"orderId"`
		VendorID        int64   `json:"vendorId"`
		RecipientName   string  `json:"recipientName"`
		RecipientPhone  string  `json:"recipientPhone"`
		RecipientAddr   string  `json:"recipientAddress"`
		RecipientLocID  int64   `json:"recipientLocationId"`
		ItemDescription string  `json:"itemDescription"`
		ItemCount       int     `json:"itemCount"`
		WeightKG        float64 `json:"weightKg"`
		ItemValue       float64 `json:"itemValue"`
		CODAmount       float64 `json:"codAmount"`
	}
	if err := c.get(ctx, fmt.Sprintf("/internal/orders/%d", orderID), &o); err != nil {
		return nil, err
	}
	return &dispatch.OrderInfo{
		OrderID:         o.OrderID,
		VendorID:        o.VendorID,
		RecipientName:   o.RecipientName,
		RecipientPhone:  o.RecipientPhone,
		RecipientAddr:   o.RecipientAddr,
		RecipientLocID:  o.RecipientLocID,
		ItemDescription: o.ItemDescription,
		ItemCount:       o.ItemCount,
		WeightKG:        o.WeightKG,
		ItemValue:       o.ItemValue,
		CODAmount:       o.CODAmount,
	}, nil
}
