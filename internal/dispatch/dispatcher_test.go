package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bazarlink/courier/internal/dispatch"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticWarehouses struct {
	warehouse *dispatch.Warehouse
}

func (s *staticWarehouses) DefaultWarehouse(context.Context, int64) (*dispatch.Warehouse, error) {
	if s.warehouse == nil {
		return nil, errors.New("vendor has no warehouse")
	}
	return s.warehouse, nil
}

type staticOrders struct {
	orders map[int64]*dispatch.OrderInfo
}

func (s *staticOrders) Order(_ context.Context, id int64) (*dispatch.OrderInfo, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	return o, nil
}

type dispatcherEnv struct {
	*selectorEnv
	dispatcher *dispatch.Dispatcher
}

func newDispatcherEnv(t *testing.T, orders dispatch.OrderDirectory) *dispatcherEnv {
	t.Helper()
	base := newSelectorEnv(t, nil)
	warehouses := &staticWarehouses{warehouse: &dispatch.Warehouse{
		LocationID: 100,
		StoreName:  "Gadget House",
		Phone:      "01900000000",
		Address:    "Uttara, Dhaka",
	}}
	metrics := telemetry.NewMetricsWith(prometheus.NewRegistry())
	d := dispatch.NewDispatcher(base.store, base.registry, base.selector,
		warehouses, orders, telemetry.NopLogger(), metrics)
	return &dispatcherEnv{selectorEnv: base, dispatcher: d}
}

func dispatchRequest() dispatch.DispatchRequest {
	return dispatch.DispatchRequest{
		OrderID:           5001,
		VendorID:          7,
		RecipientName:     "Rahim Uddin",
		RecipientPhone:    "01700000000",
		RecipientAddress:  "Dhanmondi, Dhaka",
		RecipientLocation: 200,
		ItemDescription:   "Phone case",
		ItemCount:         1,
		WeightKG:          0.5,
		ItemValue:         450,
		CODAmount:         450,
	}
}

func TestDispatcher_CreateOrder_PicksCheapest(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	// Provider A quotes 120, provider B quotes 100: B must carry the
	// parcel even though A is first in priority order.
	env.seedProvider(t, &fakeAdapter{name: "pathao", quoteFn: fixedQuote("pathao", 120)}, 1, true)
	env.seedProvider(t, &fakeAdapter{name: "redx", quoteFn: fixedQuote("redx", 100)}, 2, true)

	order, err := env.dispatcher.CreateOrderForVendor(context.Background(), dispatchRequest())

	require.NoError(t, err)
	assert.Equal(t, "redx", order.ProviderSlug)
	assert.Equal(t, string(courier.StatusPending), order.Status)
	assert.True(t, strings.HasPrefix(order.ConsignmentID, "BZ-"))
	assert.Equal(t, "redx-track", order.TrackingID)
	assert.Equal(t, "redx-order", order.ProviderOrderID)
	assert.Equal(t, int64(7), order.VendorID)
	assert.Equal(t, "Gadget House", order.PickupStoreName)

	// The initial history entry exists from the moment of creation.
	events, err := env.store.TrackingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(courier.StatusPending), events[0].Status)
}

func TestDispatcher_CreateOrder_ChargeFromProviderResponse(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	env.seedProvider(t, &fakeAdapter{
		name:    "pathao",
		quoteFn: fixedQuote("pathao", 100),
		createFn: func(context.Context, *courier.OrderRequest) (*courier.OrderResult, error) {
			// The provider's actual fee differs from the quote.
			return &courier.OrderResult{
				ProviderOrderID: "DL1",
				TrackingID:      "DL1",
				DeliveryCharge:  110,
				RawResponse:     `{"delivery_fee":110}`,
			}, nil
		},
	}, 1, true)

	order, err := env.dispatcher.CreateOrderForVendor(context.Background(), dispatchRequest())

	require.NoError(t, err)
	assert.Equal(t, 110.0, order.DeliveryCharge)
	assert.Equal(t, `{"delivery_fee":110}`, order.RawResponse)
}

func TestDispatcher_CreateOrder_FailureLeavesAuditRow(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	env.seedProvider(t, &fakeAdapter{
		name:    "pathao",
		quoteFn: fixedQuote("pathao", 100),
		createFn: func(context.Context, *courier.OrderRequest) (*courier.OrderResult, error) {
			return nil, courier.NewProviderError("pathao", "SERVER", "internal error").WithStatusCode(500)
		},
	}, 1, true)

	_, err := env.dispatcher.CreateOrderForVendor(context.Background(), dispatchRequest())
	require.Error(t, err)

	// The failed attempt is recorded, not silently dropped.
	orders, listErr := env.store.ListOrdersByVendor(context.Background(), 7, 10, 0)
	require.NoError(t, listErr)
	require.Len(t, orders, 1)
	assert.Equal(t, string(courier.StatusFailed), orders[0].Status)
	assert.Contains(t, orders[0].FailureReason, "internal error")
	assert.NotEmpty(t, orders[0].RawResponse)
}

func TestDispatcher_CreateOrder_NoCourier(t *testing.T) {
	env := newDispatcherEnv(t, nil)

	_, err := env.dispatcher.CreateOrderForVendor(context.Background(), dispatchRequest())
	assert.True(t, errors.Is(err, courier.ErrNoCourierAvailable))

	// Nothing gets persisted when selection itself fails.
	orders, listErr := env.store.ListOrdersByVendor(context.Background(), 7, 10, 0)
	require.NoError(t, listErr)
	assert.Empty(t, orders)
}

func TestDispatcher_CreateOrder_LoadsOrderAggregate(t *testing.T) {
	orders := &staticOrders{orders: map[int64]*dispatch.OrderInfo{
		5001: {
			OrderID:        5001,
			VendorID:       7,
			RecipientName:  "Karim Mia",
			RecipientPhone: "01800000000",
			RecipientAddr:  "Mirpur, Dhaka",
			RecipientLocID: 200,
			ItemCount:      2,
			WeightKG:       1,
			CODAmount:      900,
		},
	}}
	env := newDispatcherEnv(t, orders)
	env.seedProvider(t, &fakeAdapter{name: "pathao", quoteFn: fixedQuote("pathao", 100)}, 1, true)

	order, err := env.dispatcher.CreateOrderForVendor(context.Background(), dispatch.DispatchRequest{
		OrderID:  5001,
		VendorID: 7,
	})

	require.NoError(t, err)
	assert.Equal(t, "Karim Mia", order.RecipientName)
	assert.Equal(t, 900.0, order.CODAmount)
}

func TestDispatcher_MarkReadyForPickup(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	env.seedProvider(t, &fakeAdapter{name: "pathao", quoteFn: fixedQuote("pathao", 100)}, 1, true)

	order, err := env.dispatcher.CreateOrderForVendor(context.Background(), dispatchRequest())
	require.NoError(t, err)

	updated, err := env.dispatcher.MarkReadyForPickup(context.Background(), order.ConsignmentID, 7)
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusReadyForPickup), updated.Status)

	events, err := env.store.TrackingForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestDispatcher_MarkReadyForPickup_OnlyFromPending(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	env.seedProvider(t, &fakeAdapter{name: "pathao", quoteFn: fixedQuote("pathao", 100)}, 1, true)

	ctx := context.Background()
	order, err := env.dispatcher.CreateOrderForVendor(ctx, dispatchRequest())
	require.NoError(t, err)

	order.Status = string(courier.StatusInTransit)
	require.NoError(t, env.store.UpdateOrder(ctx, order))

	_, err = env.dispatcher.MarkReadyForPickup(ctx, order.ConsignmentID, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, courier.ErrInvalidStatusTransition))
	// The rejection names the current status.
	assert.Contains(t, err.Error(), "IN_TRANSIT")

	// The record is untouched.
	got, err := env.store.OrderByConsignment(ctx, order.ConsignmentID)
	require.NoError(t, err)
	assert.Equal(t, string(courier.StatusInTransit), got.Status)
}

func TestDispatcher_MarkReadyForPickup_VendorScoped(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	env.seedProvider(t, &fakeAdapter{name: "pathao", quoteFn: fixedQuote("pathao", 100)}, 1, true)

	order, err := env.dispatcher.CreateOrderForVendor(context.Background(), dispatchRequest())
	require.NoError(t, err)

	// Another vendor cannot see, let alone transition, this order.
	_, err = env.dispatcher.MarkReadyForPickup(context.Background(), order.ConsignmentID, 99)
	assert.True(t, errors.Is(err, courier.ErrOrderNotFound))
}

func TestDispatcher_MarkReadyForPickup_UnknownConsignment(t *testing.T) {
	env := newDispatcherEnv(t, nil)

	_, err := env.dispatcher.MarkReadyForPickup(context.Background(), "BZ-missing", 7)
	assert.True(t, errors.Is(err, courier.ErrOrderNotFound))
}
