package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrAreaMappingChanged indicates the serviceable-area index changed
// between quoting and dispatch. Distinct from ErrNoCourierAvailable so
// callers can retry instead of giving up on the route.
var ErrAreaMappingChanged = errors.New("serviceable area mapping changed since quoting")

// DispatchRequest carries one shipment to be placed with a courier.
// Recipient and item fields may be left zero, in which case the order
// aggregate is loaded through the OrderDirectory.
type DispatchRequest struct {
	OrderID  int64
	VendorID int64

	RecipientName      string
	RecipientPhone     string
	RecipientAddress   string
	RecipientLocation  int64
	ItemDescription    string
	ItemCount          int
	WeightKG           float64
	ItemValue          float64
	CODAmount          float64
	DeliveryType       courier.DeliveryType
	Instructions       string
}

// Dispatcher drives the full create-order flow: selection, area
// re-resolution, the provider call, persistence, and the first tracking
// history entry.
type Dispatcher struct {
	store      store.Store
	registry   *courier.Registry
	selector   *Selector
	warehouses WarehouseDirectory
	orders     OrderDirectory
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
}

// NewDispatcher creates an order dispatcher.
func NewDispatcher(
	st store.Store,
	registry *courier.Registry,
	selector *Selector,
	warehouses WarehouseDirectory,
	orders OrderDirectory,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
) *Dispatcher {
	return &Dispatcher{
		store:      st,
		registry:   registry,
		selector:   selector,
		warehouses: warehouses,
		orders:     orders,
		logger:     logger,
		metrics:    metrics,
	}
}

// CreateOrderForVendor places a shipment for one vendor's part of an
// order. Every dispatch attempt leaves a CourierOrder row: successful
// attempts as PENDING, provider-call failures as FAILED with the raw
// error. Dispatch is not retried automatically.
func (d *Dispatcher) CreateOrderForVendor(ctx context.Context, req DispatchRequest) (*store.CourierOrder, error) {
	if req.RecipientName == "" && d.orders != nil {
		info, err := d.orders.Order(ctx, req.OrderID)
		if err != nil {
			return nil, fmt.Errorf("loading order %d: %w", req.OrderID, err)
		}
		req.RecipientName = info.RecipientName
		req.RecipientPhone = info.RecipientPhone
		req.RecipientAddress = info.RecipientAddr
		req.RecipientLocation = info.RecipientLocID
		req.ItemDescription = info.ItemDescription
		req.ItemCount = info.ItemCount
		req.WeightKG = info.WeightKG
		req.ItemValue = info.ItemValue
		req.CODAmount = info.CODAmount
	}

	warehouse, err := d.warehouses.DefaultWarehouse(ctx, req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("resolving warehouse for vendor %d: %w", req.VendorID, err)
	}

	// Step 1: selection.
	selection, err := d.selector.SelectBest(ctx, QuoteInput{
		PickupLocationID:   warehouse.LocationID,
		DeliveryLocationID: req.RecipientLocation,
		WeightKG:           req.WeightKG,
		CODAmount:          req.CODAmount,
		DeliveryType:       req.DeliveryType,
	})
	if err != nil {
		return nil, err
	}
	slug := selection.Provider.Slug

	// Step 2: re-resolve both area rows for the chosen provider. A miss
	// here, after a successful quote, means the index changed under us.
	pickupArea, err := d.store.AreaForLocation(ctx, slug, selection.PickupArea.LocationID)
	if err != nil {
		return nil, fmt.Errorf("%w: pickup location %d", ErrAreaMappingChanged, selection.PickupArea.LocationID)
	}
	deliveryArea, err := d.store.AreaForLocation(ctx, slug, selection.DeliveryArea.LocationID)
	if err != nil {
		return nil, fmt.Errorf("%w: delivery location %d", ErrAreaMappingChanged, selection.DeliveryArea.LocationID)
	}

	adapter, err := d.registry.Get(slug)
	if err != nil {
		return nil, err
	}

	consignmentID := "BZ-" + uuid.New().String()
	record := &store.CourierOrder{
		ConsignmentID:       consignmentID,
		OrderID:             req.OrderID,
		VendorID:            req.VendorID,
		ProviderSlug:        slug,
		RecipientName:       req.RecipientName,
		RecipientPhone:      req.RecipientPhone,
		RecipientAddress:    req.RecipientAddress,
		RecipientLocationID: req.RecipientLocation,
		PickupStoreName:     warehouse.StoreName,
		PickupPhone:         warehouse.Phone,
		PickupAddress:       warehouse.Address,
		PickupLocationID:    warehouse.LocationID,
		WeightKG:            req.WeightKG,
		ItemValue:           req.ItemValue,
		CODAmount:           req.CODAmount,
		DeliveryCharge:      selection.Quote.DeliveryCharge,
		CODCharge:           selection.Quote.CODCharge,
		TotalCharge:         selection.Quote.TotalCharge,
		LastStatusUpdate:    time.Now().UTC(),
	}

	// Step 3: provider call.
	start := time.Now()
	result, callErr := adapter.CreateOrder(ctx, &courier.OrderRequest{
		ConsignmentID:   consignmentID,
		Recipient:       courier.Recipient{Name: req.RecipientName, Phone: req.RecipientPhone, Address: req.RecipientAddress, LocationID: req.RecipientLocation},
		Pickup:          courier.PickupPoint{StoreName: warehouse.StoreName, ContactName: warehouse.ContactName, Phone: warehouse.Phone, Address: warehouse.Address, LocationID: warehouse.LocationID},
		PickupArea:      pickupArea.Mapping(),
		DeliveryArea:    deliveryArea.Mapping(),
		ItemDescription: req.ItemDescription,
		ItemCount:       req.ItemCount,
		WeightKG:        req.WeightKG,
		ItemValue:       req.ItemValue,
		CODAmount:       req.CODAmount,
		DeliveryType:    req.DeliveryType,
		Instructions:    req.Instructions,
	})
	duration := time.Since(start).Seconds()

	if callErr != nil {
		// Step 4 (failure path): the attempt is still recorded.
		d.metrics.RecordRequest("create_order", slug, "error", duration)
		d.metrics.RecordError(slug, "create_order")
		d.logger.Error("Courier order failed",
			zap.String("provider", slug),
			zap.String("consignment_id", consignmentID),
			zap.Error(callErr),
		)
		record.Status = string(courier.StatusFailed)
		record.FailureReason = callErr.Error()
		record.RawResponse = callErr.Error()
		if storeErr := d.store.CreateOrder(ctx, record); storeErr != nil {
			d.logger.Error("Recording failed dispatch attempt", zap.Error(storeErr))
		}
		return nil, fmt.Errorf("dispatching via %s: %w", slug, callErr)
	}

	d.metrics.RecordRequest("create_order", slug, "ok", duration)

	// Step 4: persist the normalized order.
	record.Status = string(courier.StatusPending)
	record.ProviderOrderID = result.ProviderOrderID
	record.TrackingID = result.TrackingID
	record.RawResponse = result.RawResponse
	if result.DeliveryCharge > 0 {
		record.DeliveryCharge = result.DeliveryCharge
		record.TotalCharge = result.DeliveryCharge + record.CODCharge
	}
	if err := d.store.CreateOrder(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting courier order: %w", err)
	}

	// Step 5: first tracking history entry.
	event := &store.TrackingEvent{
		CourierOrderID: record.ID,
		Status:         record.Status,
		ProviderStatus: "",
		Message:        fmt.Sprintf("Order placed with %s", selection.Provider.Name),
		CreatedAt:      time.Now().UTC(),
	}
	if err := d.store.AppendTracking(ctx, event); err != nil {
		d.logger.Error("Appending initial tracking entry", zap.Error(err))
	}

	d.logger.Info("Courier order created",
		zap.String("provider", slug),
		zap.String("consignment_id", consignmentID),
		zap.String("tracking_id", record.TrackingID),
		zap.Float64("total_charge", record.TotalCharge),
	)
	return record, nil
}

// MarkReadyForPickup is the only transition a vendor triggers directly.
// Legal only from PENDING; any other current status is rejected with an
// error naming that status, and the record is left unchanged.
func (d *Dispatcher) MarkReadyForPickup(ctx context.Context, consignmentID string, vendorID int64) (*store.CourierOrder, error) {
	order, err := d.store.OrderByConsignment(ctx, consignmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, courier.ErrOrderNotFound
		}
		return nil, err
	}
	if order.VendorID != vendorID {
		return nil, courier.ErrOrderNotFound
	}
	if courier.Status(order.Status) != courier.StatusPending {
		return nil, courier.InvalidTransitionError(courier.Status(order.Status), courier.StatusReadyForPickup)
	}

	order.Status = string(courier.StatusReadyForPickup)
	order.LastStatusUpdate = time.Now().UTC()
	if err := d.store.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}

	if err := d.store.AppendTracking(ctx, &store.TrackingEvent{
		CourierOrderID: order.ID,
		Status:         order.Status,
		Message:        "Vendor marked the parcel ready for pickup",
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		d.logger.Error("Appending tracking entry", zap.Error(err))
	}
	return order, nil
}
