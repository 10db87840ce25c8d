package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bazarlink/courier/internal/dispatch"
	"github.com/bazarlink/courier/internal/jobs"
	"github.com/bazarlink/courier/internal/server"
	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/internal/token"
	"github.com/bazarlink/courier/internal/webhook"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/bazarlink/courier/pkg/courier/pathao"
	"github.com/bazarlink/courier/pkg/courier/redx"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticWarehouses struct{}

func (staticWarehouses) DefaultWarehouse(context.Context, int64) (*dispatch.Warehouse, error) {
	return &dispatch.Warehouse{
		LocationID: 100,
		StoreName:  "Gadget House",
		Phone:      "01900000000",
		Address:    "Uttara, Dhaka",
	}, nil
}

type testEnv struct {
	store  *store.MemoryStore
	router *echo.Echo
}

// newTestEnv builds a server over the in-memory store with both
// adapters running against their mock API clients.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	logger := telemetry.NopLogger()
	metrics := telemetry.NewMetricsWith(prometheus.NewRegistry())

	registry := courier.NewRegistry()
	registry.Register(pathao.New(pathao.Config{StoreID: 42, UseMock: true},
		courier.StaticToken("test-token"), logger, nil))
	registry.Register(redx.New(redx.Config{UseMock: true},
		courier.StaticToken("test-token"), logger, nil))

	selector := dispatch.NewSelector(st, st, registry, nil, logger, metrics)
	dispatcher := dispatch.NewDispatcher(st, registry, selector, staticWarehouses{}, nil, logger, metrics)
	ingestor := webhook.NewIngestor(st, logger, metrics)
	tokens := token.NewManager(st, logger)
	syncJob := jobs.NewAreaSyncJob(st, registry, "0 4 * * *", logger)

	srv := server.New(server.Config{Port: 8080, Environment: courier.EnvSandbox},
		st, registry, selector, dispatcher, ingestor, tokens, syncJob, logger, metrics)

	return &testEnv{store: st, router: srv.Router()}
}

func (e *testEnv) seedProviders(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	statusMap, err := json.Marshal(map[string][]string{
		"PICKED_UP": {"Pickup_Done"},
		"DELIVERED": {"Delivered"},
	})
	require.NoError(t, err)

	require.NoError(t, e.store.CreateProvider(ctx, &store.Provider{
		Slug: "pathao", Name: "Pathao", Priority: 1, SupportsCOD: true,
		IsActive: true, StatusMapJSON: string(statusMap),
	}))
	require.NoError(t, e.store.CreateProvider(ctx, &store.Provider{
		Slug: "redx", Name: "RedX", Priority: 2, SupportsCOD: true, IsActive: true,
	}))

	_, err = e.store.UpsertAreas(ctx, "pathao", []store.ServiceableArea{
		{ProviderAreaID: "1011", CityID: "1", ZoneID: "101", LocationID: 100, PickupAvailable: true, HomeDeliveryAvailable: true},
		{ProviderAreaID: "1021", CityID: "1", ZoneID: "102", LocationID: 200, PickupAvailable: true, HomeDeliveryAvailable: true},
	})
	require.NoError(t, err)
	_, err = e.store.UpsertAreas(ctx, "redx", []store.ServiceableArea{
		{ProviderAreaID: "1", LocationID: 100, PickupAvailable: true, HomeDeliveryAvailable: true},
		{ProviderAreaID: "2", LocationID: 200, PickupAvailable: true, HomeDeliveryAvailable: true},
	})
	require.NoError(t, err)
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Quote(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/quote",
		`{"pickupLocationId":100,"deliveryLocationId":200,"weightKg":1,"codAmount":1000}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Provider    string  `json:"provider"`
		TotalCharge float64 `json:"totalCharge"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// Both mocks price the route at 70; the tie goes to the
	// higher-priority provider.
	assert.Equal(t, "pathao", resp.Provider)
	assert.Equal(t, 70.0, resp.TotalCharge)
}

func TestServer_Quote_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/quote", `{"pickupLocationId":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/quote",
		`{"pickupLocationId":100,"deliveryLocationId":200,"weightKg":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Quote_NoCourier(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/quote",
		`{"pickupLocationId":100,"deliveryLocationId":555,"weightKg":1}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_DispatchAndReadyForPickup(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/orders",
		`{"vendorId":7,"recipientName":"Rahim","recipientPhone":"01700000000","recipientAddress":"Dhanmondi","recipientLocationId":200,"weightKg":1,"codAmount":500}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var order store.CourierOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.True(t, strings.HasPrefix(order.ConsignmentID, "BZ-"))
	assert.Equal(t, "PENDING", order.Status)
	assert.NotEmpty(t, order.TrackingID)

	// Vendor flags the parcel ready.
	rec = env.do(http.MethodPost, "/api/v1/orders/"+order.ConsignmentID+"/ready-for-pickup?vendorId=7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// A second attempt is rejected as a conflict naming the current status.
	rec = env.do(http.MethodPost, "/api/v1/orders/"+order.ConsignmentID+"/ready-for-pickup?vendorId=7", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "READY_FOR_PICKUP")
}

func TestServer_ListOrders(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	env.do(http.MethodPost, "/api/v1/orders",
		`{"vendorId":7,"recipientName":"Rahim","recipientLocationId":200,"weightKg":1}`)

	rec := env.do(http.MethodGet, "/api/v1/orders?vendorId=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []store.CourierOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)

	rec = env.do(http.MethodGet, "/api/v1/orders", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Track(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/orders",
		`{"vendorId":7,"recipientName":"Rahim","recipientLocationId":200,"weightKg":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var order store.CourierOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))

	rec = env.do(http.MethodGet, "/api/v1/track/"+order.ConsignmentID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TrackingID  string `json:"trackingId"`
		CourierName string `json:"courierName"`
		Status      string `json:"status"`
		History     []struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"trackingHistory"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Pathao", resp.CourierName)
	assert.Equal(t, "PENDING", resp.Status)
	require.Len(t, resp.History, 1)
	// The projection never leaks internal fields.
	assert.NotContains(t, rec.Body.String(), "codAmount")
	assert.NotContains(t, rec.Body.String(), "vendorId")

	// Provider tracking ids resolve too.
	rec = env.do(http.MethodGet, "/api/v1/track/"+order.TrackingID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Track_Unknown(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodGet, "/api/v1/track/NOPE123", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Label(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/orders",
		`{"vendorId":7,"recipientName":"Rahim","recipientAddress":"Dhanmondi","recipientLocationId":200,"weightKg":1,"codAmount":500}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var order store.CourierOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))

	rec = env.do(http.MethodGet, "/api/v1/orders/"+order.ConsignmentID+"/label", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var label struct {
		Barcode     string  `json:"barcode"`
		CourierName string  `json:"courierName"`
		CODAmount   float64 `json:"codAmount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &label))
	assert.Equal(t, order.TrackingID, label.Barcode)
	assert.Equal(t, "Pathao", label.CourierName)
	assert.Equal(t, 500.0, label.CODAmount)
}

func TestServer_Webhook_AlwaysAcks(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	// Unknown tracking id: logged, dropped, still acknowledged.
	rec := env.do(http.MethodPost, "/api/v1/webhook/pathao",
		`{"consignment_id":"DL-unknown","order_status":"Delivered"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown provider slug: same.
	rec = env.do(http.MethodPost, "/api/v1/webhook/ghost", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Malformed body: same.
	rec = env.do(http.MethodPost, "/api/v1/webhook/pathao", `{not-json`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Webhook_AppliesStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/orders",
		`{"vendorId":7,"recipientName":"Rahim","recipientLocationId":200,"weightKg":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var order store.CourierOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))

	rec = env.do(http.MethodPost, "/api/v1/webhook/pathao",
		`{"consignment_id":"`+order.TrackingID+`","order_status":"Pickup_Done","message":"picked up"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.store.OrderByConsignment(context.Background(), order.ConsignmentID)
	require.NoError(t, err)
	assert.Equal(t, "PICKED_UP", got.Status)
}

func TestServer_Webhook_SignatureEnforcedWhenConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	ctx := context.Background()
	p, err := env.store.GetProvider(ctx, "pathao")
	require.NoError(t, err)
	p.WebhookSecret = "shared-secret"
	require.NoError(t, env.store.UpdateProvider(ctx, p))

	rec := env.do(http.MethodPost, "/api/v1/orders",
		`{"vendorId":7,"recipientName":"Rahim","recipientLocationId":200,"weightKg":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var order store.CourierOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))

	body := `{"consignment_id":"` + order.TrackingID + `","order_status":"Pickup_Done"}`

	// Unsigned callback: acknowledged but dropped.
	rec = env.do(http.MethodPost, "/api/v1/webhook/pathao", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	got, err := env.store.OrderByConsignment(ctx, order.ConsignmentID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", got.Status)

	// Properly signed callback: applied.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/pathao", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Webhook-Signature", webhook.Sign("shared-secret", []byte(body)))
	sigRec := httptest.NewRecorder()
	env.router.ServeHTTP(sigRec, req)
	assert.Equal(t, http.StatusOK, sigRec.Code)

	got, err = env.store.OrderByConsignment(ctx, order.ConsignmentID)
	require.NoError(t, err)
	assert.Equal(t, "PICKED_UP", got.Status)
}

func TestServer_ProviderAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/providers",
		`{"slug":"pathao","name":"Pathao","priority":1,"supportsCod":true,"isActive":true,"statusMap":{"DELIVERED":["Delivered"]}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate slug conflicts.
	rec = env.do(http.MethodPost, "/api/v1/providers", `{"slug":"pathao","name":"Again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Missing slug is a bad request.
	rec = env.do(http.MethodPost, "/api/v1/providers", `{"name":"Nameless"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/providers/pathao", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p store.Provider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.IsActive)
	assert.Contains(t, p.StatusMapJSON, "Delivered")

	rec = env.do(http.MethodPost, "/api/v1/providers/pathao/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := env.store.GetProvider(context.Background(), "pathao")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	rec = env.do(http.MethodGet, "/api/v1/providers/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CredentialAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/credentials",
		`{"providerSlug":"redx","environment":"sandbox","apiKey":"k-123","isActive":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Secrets never come back in responses.
	assert.NotContains(t, rec.Body.String(), "k-123")

	// Unknown provider rejected.
	rec = env.do(http.MethodPost, "/api/v1/credentials",
		`{"providerSlug":"ghost","environment":"sandbox"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/credentials?provider=redx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var creds []store.Credential
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &creds))
	assert.Len(t, creds, 1)

	// The adapter runs against its mock, so the check passes.
	rec = env.do(http.MethodPost, "/api/v1/credentials/1/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestServer_AreaAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.seedProviders(t)

	rec := env.do(http.MethodPost, "/api/v1/areas/sync",
		`{"providerSlug":"redx","areas":[{"providerAreaId":"3","areaName":"Agrabad","locationId":300,"homeDeliveryAvailable":true,"pickupAvailable":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"upserted":1`)

	rec = env.do(http.MethodGet, "/api/v1/areas?provider=redx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var areas []store.ServiceableArea
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &areas))
	assert.Len(t, areas, 3)

	// Remote sync walks the mock coverage API.
	rec = env.do(http.MethodPost, "/api/v1/areas/sync-remote?provider=redx", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/areas/sync-remote", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
