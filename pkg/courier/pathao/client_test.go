package pathao_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bazarlink/courier/pkg/courier"
	"github.com/bazarlink/courier/pkg/courier/pathao"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestClient(mockClient *pathao.MockAPIClient) *pathao.Client {
	logger := otelzap.New(zap.NewNop())
	return pathao.NewWithAPIClient(
		pathao.Config{StoreID: 42},
		mockClient,
		courier.StaticToken("test-token"),
		logger,
		nil,
	)
}

func quoteRequest() *courier.QuoteRequest {
	return &courier.QuoteRequest{
		Pickup:    courier.AreaMapping{CityID: "1", ZoneID: "101", AreaID: "1011"},
		Delivery:  courier.AreaMapping{CityID: "2", ZoneID: "201", AreaID: "2011"},
		WeightKG:  1,
		CODAmount: 1000,
	}
}

func TestClient_Quote_Success(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	client := newTestClient(mockAPI)

	quote, err := client.Quote(context.Background(), quoteRequest())

	require.NoError(t, err)
	assert.Equal(t, "pathao", quote.Provider)
	assert.Equal(t, 60.0, quote.DeliveryCharge)
	assert.Equal(t, 10.0, quote.CODCharge) // 1% of 1000
	assert.Equal(t, 70.0, quote.TotalCharge)
	assert.Equal(t, 2, quote.EstimatedDays)
}

func TestClient_Quote_Express(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	client := newTestClient(mockAPI)

	req := quoteRequest()
	req.CODAmount = 0
	req.DeliveryType = courier.DeliveryExpress

	quote, err := client.Quote(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 100.0, quote.DeliveryCharge)
	assert.Equal(t, 1, quote.EstimatedDays)
}

func TestClient_Quote_NonNumericArea(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	client := newTestClient(mockAPI)

	req := quoteRequest()
	req.Delivery.CityID = "not-a-city"

	_, err := client.Quote(context.Background(), req)
	assert.True(t, errors.Is(err, courier.ErrUnserviceable))
}

func TestClient_Quote_Unserviceable(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	mockAPI.OnPricePlan = func(ctx context.Context, token string, req *pathao.PriceRequest) (*pathao.PriceResponse, error) {
		return nil, &pathao.APIError{Code: "UNPROCESSABLE", Message: "outside coverage", StatusCode: 422}
	}
	client := newTestClient(mockAPI)

	_, err := client.Quote(context.Background(), quoteRequest())
	assert.True(t, errors.Is(err, courier.ErrUnserviceable))
}

func TestClient_Quote_ServerError(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	_, err := client.Quote(context.Background(), quoteRequest())

	require.Error(t, err)
	assert.True(t, courier.IsRetryable(err))
}

func TestClient_Quote_AuthError(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	mockAPI.OnPricePlan = func(ctx context.Context, token string, req *pathao.PriceRequest) (*pathao.PriceResponse, error) {
		return nil, &pathao.APIError{Code: "UNAUTHORIZED", Message: "token expired", StatusCode: 401}
	}
	client := newTestClient(mockAPI)

	_, err := client.Quote(context.Background(), quoteRequest())
	assert.True(t, errors.Is(err, courier.ErrAuthenticationFailed))
}

func TestClient_CreateOrder_Success(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	var captured *pathao.OrderAPIRequest
	mockAPI.OnCreateOrder = func(ctx context.Context, token string, req *pathao.OrderAPIRequest) (*pathao.OrderAPIResponse, string, error) {
		captured = req
		return &pathao.OrderAPIResponse{
			ConsignmentID:   "DL123456789",
			MerchantOrderID: req.MerchantOrderID,
			OrderStatus:     "Pending",
			DeliveryFee:     80,
		}, `{"type":"success"}`, nil
	}
	client := newTestClient(mockAPI)

	result, err := client.CreateOrder(context.Background(), &courier.OrderRequest{
		ConsignmentID: "BZ-abc",
		Recipient: courier.Recipient{
			Name:    "Rahim Uddin",
			Phone:   "01700000000",
			Address: "House 1, Road 2, Dhanmondi",
		},
		DeliveryArea: courier.AreaMapping{CityID: "1", ZoneID: "101", AreaID: "1011"},
		ItemCount:    2,
		WeightKG:     1.5,
		CODAmount:    500,
	})

	require.NoError(t, err)
	assert.Equal(t, "DL123456789", result.ProviderOrderID)
	assert.Equal(t, "DL123456789", result.TrackingID)
	assert.Equal(t, 80.0, result.DeliveryCharge)
	assert.NotEmpty(t, result.RawResponse)

	require.NotNil(t, captured)
	assert.Equal(t, 42, captured.StoreID)
	assert.Equal(t, "BZ-abc", captured.MerchantOrderID)
	assert.Equal(t, 500.0, captured.AmountToCollect)
}

func TestClient_CreateOrder_Failure(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	_, err := client.CreateOrder(context.Background(), &courier.OrderRequest{
		ConsignmentID: "BZ-abc",
		DeliveryArea:  courier.AreaMapping{CityID: "1", ZoneID: "101", AreaID: "1011"},
	})

	require.Error(t, err)
	var provErr *courier.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "pathao", provErr.Provider)
}

func TestClient_TrackOrder(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	client := newTestClient(mockAPI)

	update, err := client.TrackOrder(context.Background(), "DL123456789")

	require.NoError(t, err)
	assert.Equal(t, "DL123456789", update.TrackingID)
	assert.Equal(t, "Pending", update.RawStatus)
}

func TestClient_ListCoverage(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	client := newTestClient(mockAPI)

	coverage, err := client.ListCoverage(context.Background())

	require.NoError(t, err)
	// 2 cities x 2 zones x 2 areas from the mock defaults.
	assert.Len(t, coverage, 8)
	assert.Equal(t, "1", coverage[0].CityID)
	assert.NotEmpty(t, coverage[0].AreaID)
}

func TestClient_CheckCredential(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	client := newTestClient(mockAPI)
	require.NoError(t, client.CheckCredential(context.Background()))

	mockAPI.SimulateErrors = true
	assert.Error(t, client.CheckCredential(context.Background()))
}

func TestClient_IssuePasswordGrant(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	var captured *pathao.TokenRequest
	mockAPI.OnIssueToken = func(ctx context.Context, req *pathao.TokenRequest) (*pathao.TokenResponse, error) {
		captured = req
		return &pathao.TokenResponse{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600}, nil
	}
	client := newTestClient(mockAPI)

	resp, err := client.IssuePasswordGrant(context.Background(), "cid", "secret", "merchant@example.com", "pw")

	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)
	require.NotNil(t, captured)
	assert.Equal(t, "password", captured.GrantType)
	assert.Equal(t, "merchant@example.com", captured.Username)
}

func TestClient_RefreshGrant(t *testing.T) {
	mockAPI := pathao.NewMockAPIClient()
	var captured *pathao.TokenRequest
	mockAPI.OnIssueToken = func(ctx context.Context, req *pathao.TokenRequest) (*pathao.TokenResponse, error) {
		captured = req
		return &pathao.TokenResponse{AccessToken: "at2", RefreshToken: "rt2", ExpiresIn: 3600}, nil
	}
	client := newTestClient(mockAPI)

	resp, err := client.RefreshGrant(context.Background(), "cid", "secret", "old-refresh")

	require.NoError(t, err)
	assert.Equal(t, "at2", resp.AccessToken)
	require.NotNil(t, captured)
	assert.Equal(t, "refresh_token", captured.GrantType)
	assert.Equal(t, "old-refresh", captured.RefreshToken)
}
