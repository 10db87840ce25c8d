package webhook_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/internal/webhook"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIngestorEnv(t *testing.T) (*webhook.Ingestor, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	metrics := telemetry.NewMetricsWith(prometheus.NewRegistry())
	return webhook.NewIngestor(st, telemetry.NopLogger(), metrics), st
}

func seedProviderWithMap(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	statusMap, err := json.Marshal(map[string][]string{
		"PICKED_UP":  {"Pickup_Done", "picked"},
		"IN_TRANSIT": {"In_Transit"},
		"DELIVERED":  {"Delivered"},
	})
	require.NoError(t, err)
	require.NoError(t, st.CreateProvider(context.Background(), &store.Provider{
		Slug:          "pathao",
		Name:          "Pathao",
		IsActive:      true,
		StatusMapJSON: string(statusMap),
	}))
}

func seedOrder(t *testing.T, st *store.MemoryStore, status string) *store.CourierOrder {
	t.Helper()
	o := &store.CourierOrder{
		ConsignmentID: "BZ-1",
		ProviderSlug:  "pathao",
		TrackingID:    "DL123",
		Status:        status,
	}
	require.NoError(t, st.CreateOrder(context.Background(), o))
	return o
}

func TestIngestor_AppliesMappedStatus(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)
	order := seedOrder(t, st, string(courier.StatusPending))

	body := []byte(`{"consignment_id":"DL123","order_status":"Pickup_Done","message":"Parcel picked up"}`)
	require.NoError(t, ing.Process(context.Background(), "pathao", body))

	got, err := st.OrderByConsignment(context.Background(), "BZ-1")
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusPickedUp), got.Status)
	assert.Equal(t, "Pickup_Done", got.ProviderStatus)

	events, err := st.TrackingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Parcel picked up", events[0].Message)
}

func TestIngestor_UnknownRawStatusBecomesUnknown(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)
	seedOrder(t, st, string(courier.StatusPending))

	body := []byte(`{"consignment_id":"DL123","order_status":"Brand_New_State"}`)
	require.NoError(t, ing.Process(context.Background(), "pathao", body))

	got, err := st.OrderByConsignment(context.Background(), "BZ-1")
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusUnknown), got.Status)
	// The raw value is preserved for operators.
	assert.Equal(t, "Brand_New_State", got.ProviderStatus)
}

func TestIngestor_UnknownTrackingIDDiscarded(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)

	body := []byte(`{"consignment_id":"DL999","order_status":"Delivered"}`)
	err := ing.Process(context.Background(), "pathao", body)

	// The ingestor reports the miss, and nothing is written.
	assert.Error(t, err)
	orders, listErr := st.ListOrdersByVendor(context.Background(), 0, 10, 0)
	require.NoError(t, listErr)
	assert.Empty(t, orders)
}

func TestIngestor_UnknownProvider(t *testing.T) {
	ing, _ := newIngestorEnv(t)

	err := ing.Process(context.Background(), "ghost", []byte(`{}`))
	assert.Error(t, err)
}

func TestIngestor_MalformedPayload(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)

	err := ing.Process(context.Background(), "pathao", []byte(`{not-json`))
	assert.Error(t, err)

	orders, listErr := st.ListOrdersByVendor(context.Background(), 0, 10, 0)
	require.NoError(t, listErr)
	assert.Empty(t, orders)
}

func TestIngestor_TerminalOrderOnlyFeedsHistory(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)
	order := seedOrder(t, st, string(courier.StatusDelivered))

	body := []byte(`{"consignment_id":"DL123","order_status":"In_Transit","message":"late callback"}`)
	require.NoError(t, ing.Process(context.Background(), "pathao", body))

	got, err := st.OrderByConsignment(context.Background(), "BZ-1")
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusDelivered), got.Status)

	events, err := st.TrackingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestIngestor_OutOfOrderWebhookDoesNotRegress(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)
	order := seedOrder(t, st, string(courier.StatusOutForDelivery))

	// A delayed pickup callback arrives after later states were already
	// applied. It must not move the order backward.
	body := []byte(`{"consignment_id":"DL123","order_status":"Pickup_Done","message":"Parcel picked up"}`)
	require.NoError(t, ing.Process(context.Background(), "pathao", body))

	got, err := st.OrderByConsignment(context.Background(), "BZ-1")
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusOutForDelivery), got.Status)

	// The callback still lands in the history for operators.
	events, err := st.TrackingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Pickup_Done", events[0].ProviderStatus)
}

func TestIngestor_DuplicateCallbackFeedsHistoryOnly(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)
	order := seedOrder(t, st, string(courier.StatusPickedUp))

	body := []byte(`{"consignment_id":"DL123","order_status":"picked"}`)
	require.NoError(t, ing.Process(context.Background(), "pathao", body))

	got, err := st.OrderByConsignment(context.Background(), "BZ-1")
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusPickedUp), got.Status)

	events, err := st.TrackingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestIngestor_ResolvesByPlatformReference(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)
	seedOrder(t, st, string(courier.StatusPickedUp))

	// RedX-style payload identifying the shipment by the merchant
	// invoice rather than the provider tracking id.
	body := []byte(`{"merchant_invoice_id":"BZ-1","status":"In_Transit"}`)
	require.NoError(t, ing.Process(context.Background(), "pathao", body))

	got, err := st.OrderByConsignment(context.Background(), "BZ-1")
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusInTransit), got.Status)
}

func TestIngestor_BengaliMessagePreserved(t *testing.T) {
	ing, st := newIngestorEnv(t)
	seedProviderWithMap(t, st)
	order := seedOrder(t, st, string(courier.StatusPending))

	body := []byte(`{"consignment_id":"DL123","order_status":"In_Transit","message":"On the way","message_bn":"পথে আছে"}`)
	require.NoError(t, ing.Process(context.Background(), "pathao", body))

	events, err := st.TrackingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "পথে আছে", events[0].MessageBn)
}
