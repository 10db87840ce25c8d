package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bazarlink/courier/internal/dispatch"
	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/labstack/echo/v4"
)

// quoteRequest prices a route without placing an order.
type quoteRequest struct {
	PickupLocationID   int64   `json:"pickupLocationId"`
	DeliveryLocationID int64   `json:"deliveryLocationId"`
	WeightKG           float64 `json:"weightKg"`
	CODAmount          float64 `json:"codAmount"`
	DeliveryType       string  `json:"deliveryType"`
}

type quoteResponse struct {
	Provider       string  `json:"provider"`
	ProviderName   string  `json:"providerName"`
	DeliveryCharge float64 `json:"deliveryCharge"`
	CODCharge      float64 `json:"codCharge"`
	TotalCharge    float64 `json:"totalCharge"`
	EstimatedDays  int     `json:"estimatedDays"`
}

func deliveryType(raw string) courier.DeliveryType {
	if raw == string(courier.DeliveryExpress) {
		return courier.DeliveryExpress
	}
	return courier.DeliveryRegular
}

func (s *Server) handleQuote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid quote payload")
	}
	if req.PickupLocationID == 0 || req.DeliveryLocationID == 0 {
		return badRequest(c, "pickupLocationId and deliveryLocationId are required")
	}
	if req.WeightKG <= 0 {
		return badRequest(c, "weightKg must be positive")
	}

	selection, err := s.selector.SelectBest(c.Request().Context(), dispatch.QuoteInput{
		PickupLocationID:   req.PickupLocationID,
		DeliveryLocationID: req.DeliveryLocationID,
		WeightKG:           req.WeightKG,
		CODAmount:          req.CODAmount,
		DeliveryType:       deliveryType(req.DeliveryType),
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, quoteResponse{
		Provider:       selection.Provider.Slug,
		ProviderName:   selection.Provider.Name,
		DeliveryCharge: selection.Quote.DeliveryCharge,
		CODCharge:      selection.Quote.CODCharge,
		TotalCharge:    selection.Quote.TotalCharge,
		EstimatedDays:  selection.Quote.EstimatedDays,
	})
}

// dispatchRequest places one vendor shipment. Recipient fields may be
// omitted when an order directory is wired; the dispatcher then loads
// them from the order aggregate.
type dispatchRequest struct {
	OrderID  int64 `json:"orderId"`
	VendorID int64 `json:"vendorId"`

	RecipientName     string  `json:"recipientName"`
	RecipientPhone    string  `json:"recipientPhone"`
	RecipientAddress  string  `json:"recipientAddress"`
	RecipientLocation int64   `json:"recipientLocationId"`
	ItemDescription   string  `json:"itemDescription"`
	ItemCount         int     `json:"itemCount"`
	WeightKG          float64 `json:"weightKg"`
	ItemValue         float64 `json:"itemValue"`
	CODAmount         float64 `json:"codAmount"`
	DeliveryType      string  `json:"deliveryType"`
	Instructions      string  `json:"instructions"`
}

func (s *Server) handleDispatch(c echo.Context) error {
	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid dispatch payload")
	}
	if req.VendorID == 0 {
		return badRequest(c, "vendorId is required")
	}

	order, err := s.dispatcher.CreateOrderForVendor(c.Request().Context(), dispatch.DispatchRequest{
		OrderID:           req.OrderID,
		VendorID:          req.VendorID,
		RecipientName:     req.RecipientName,
		RecipientPhone:    req.RecipientPhone,
		RecipientAddress:  req.RecipientAddress,
		RecipientLocation: req.RecipientLocation,
		ItemDescription:   req.ItemDescription,
		ItemCount:         req.ItemCount,
		WeightKG:          req.WeightKG,
		ItemValue:         req.ItemValue,
		CODAmount:         req.CODAmount,
		DeliveryType:      deliveryType(req.DeliveryType),
		Instructions:      req.Instructions,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

func (s *Server) handleListOrders(c echo.Context) error {
	vendorID, err := strconv.ParseInt(c.QueryParam("vendorId"), 10, 64)
	if err != nil || vendorID == 0 {
		return badRequest(c, "vendorId query parameter is required")
	}
	limit := parseIntDefault(c.QueryParam("limit"), 50)
	offset := parseIntDefault(c.QueryParam("offset"), 0)

	orders, err := s.store.ListOrdersByVendor(c.Request().Context(), vendorID, limit, offset)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (s *Server) handleReadyForPickup(c echo.Context) error {
	vendorID, err := strconv.ParseInt(c.QueryParam("vendorId"), 10, 64)
	if err != nil || vendorID == 0 {
		return badRequest(c, "vendorId query parameter is required")
	}
	order, err := s.dispatcher.MarkReadyForPickup(c.Request().Context(), c.Param("consignment"), vendorID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// labelResponse carries everything a vendor needs to print on a parcel.
type labelResponse struct {
	ConsignmentID string  `json:"consignmentId"`
	TrackingID    string  `json:"trackingId"`
	CourierName   string  `json:"courierName"`
	Barcode       string  `json:"barcode"`
	Recipient     string  `json:"recipient"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	PickupStore   string  `json:"pickupStore"`
	PickupAddress string  `json:"pickupAddress"`
	WeightKG      float64 `json:"weightKg"`
	CODAmount     float64 `json:"codAmount"`
}

func (s *Server) handleLabel(c echo.Context) error {
	ctx := c.Request().Context()
	order, err := s.store.OrderByConsignment(ctx, c.Param("consignment"))
	if err != nil {
		return s.fail(c, err)
	}
	if courier.Status(order.Status) == courier.StatusFailed {
		return s.fail(c, courier.ErrOrderNotFound)
	}

	courierName := order.ProviderSlug
	if p, err := s.store.GetProvider(ctx, order.ProviderSlug); err == nil {
		courierName = p.Name
	}

	barcode := order.TrackingID
	if barcode == "" {
		barcode = order.ConsignmentID
	}
	return c.JSON(http.StatusOK, labelResponse{
		ConsignmentID: order.ConsignmentID,
		TrackingID:    order.TrackingID,
		CourierName:   courierName,
		Barcode:       barcode,
		Recipient:     order.RecipientName,
		Phone:         order.RecipientPhone,
		Address:       order.RecipientAddress,
		PickupStore:   order.PickupStoreName,
		PickupAddress: order.PickupAddress,
		WeightKG:      order.WeightKG,
		CODAmount:     order.CODAmount,
	})
}

// trackResponse is the public tracking projection. It exposes the
// courier name and the normalized history, never internal ids, raw
// provider payloads, or charges.
type trackResponse struct {
	TrackingID  string         `json:"trackingId"`
	CourierName string         `json:"courierName"`
	Status      string         `json:"status"`
	History     []trackedEvent `json:"trackingHistory"`
}

type trackedEvent struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	MessageBn string `json:"messageBn,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleTrack(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("trackingId")

	order, err := s.store.OrderByConsignment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// Not one of our consignment ids; try it as a provider tracking
		// number against every registered courier.
		for _, slug := range s.registry.Names() {
			order, err = s.store.OrderByTrackingID(ctx, slug, id)
			if err == nil {
				break
			}
			if !errors.Is(err, store.ErrNotFound) {
				return s.fail(c, err)
			}
		}
	}
	if err != nil {
		return s.fail(c, err)
	}

	courierName := order.ProviderSlug
	if p, pErr := s.store.GetProvider(ctx, order.ProviderSlug); pErr == nil {
		courierName = p.Name
	}

	events, err := s.store.TrackingForOrder(ctx, order.ID)
	if err != nil {
		return s.fail(c, err)
	}
	history := make([]trackedEvent, 0, len(events))
	for _, e := range events {
		history = append(history, trackedEvent{
			Status:    e.Status,
			Message:   e.Message,
			MessageBn: e.MessageBn,
			Timestamp: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	trackingID := order.TrackingID
	if trackingID == "" {
		trackingID = order.ConsignmentID
	}
	return c.JSON(http.StatusOK, trackResponse{
		TrackingID:  trackingID,
		CourierName: courierName,
		Status:      order.Status,
		History:     history,
	})
}
