// Package webhook ingests asynchronous courier status callbacks.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// payload is the superset of identifier and status fields the supported
// couriers put in their callbacks. Unknown fields are ignored.
type payload struct {
	ConsignmentID   string `json:"consignment_id"`
	TrackingID      string `json:"tracking_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	InvoiceID       string `json:"merchant_invoice_id"`

	OrderStatus string `json:"order_status"`
	Status      string `json:"status"`

	Message   string `json:"message"`
	MessageBn string `json:"message_bn"`
	UpdatedAt string `json:"updated_at"`
}

func (p *payload) trackingID() string {
	if p.TrackingID != "" {
		return p.TrackingID
	}
	return p.ConsignmentID
}

func (p *payload) platformReference() string {
	if p.MerchantOrderID != "" {
		return p.MerchantOrderID
	}
	return p.InvoiceID
}

func (p *payload) rawStatus() string {
	if p.OrderStatus != "" {
		return p.OrderStatus
	}
	return p.Status
}

// Ingestor applies provider callbacks to courier orders. Processing
// never blocks the transport-level acknowledgment: handlers ack first
// and discard failures, which the ingestor reports but treats as
// non-fatal.
type Ingestor struct {
	store   store.Store
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
}

// NewIngestor creates a webhook ingestor.
func NewIngestor(st store.Store, logger *otelzap.Logger, metrics *telemetry.Metrics) *Ingestor {
	return &Ingestor{store: st, logger: logger, metrics: metrics}
}

// Process applies one provider callback: resolve the courier order by
// the provider's identifiers, map the raw status through the provider's
// vocabulary, update the order, and append a tracking event. Unknown
// identifiers are logged and discarded; the return value is only used
// for internal logging, never to fail the HTTP acknowledgment.
func (i *Ingestor) Process(ctx context.Context, providerSlug string, body []byte) error {
	provider, err := i.store.GetProvider(ctx, providerSlug)
	if err != nil {
		i.metrics.RecordWebhook(providerSlug, "unknown_provider")
		i.logger.Warn("Webhook for unknown provider", zap.String("provider", providerSlug))
		return err
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		i.metrics.RecordWebhook(providerSlug, "malformed")
		i.logger.Warn("Malformed webhook payload",
			zap.String("provider", providerSlug),
			zap.Error(err),
		)
		return err
	}

	order, err := i.resolveOrder(ctx, providerSlug, &p)
	if err != nil {
		i.metrics.RecordWebhook(providerSlug, "unmatched")
		i.logger.Warn("Webhook references unknown shipment",
			zap.String("provider", providerSlug),
			zap.String("tracking_id", p.trackingID()),
		)
		return err
	}

	raw := p.rawStatus()
	canonical := provider.StatusMap().Canonical(raw)

	outcome := "ok"
	current := courier.Status(order.Status)
	switch {
	case canonical == current:
		// Duplicate callback, history only.
	case current.CanTransitionTo(canonical):
		order.Status = string(canonical)
		order.ProviderStatus = raw
		order.LastStatusUpdate = time.Now().UTC()
		if err := i.store.UpdateOrder(ctx, order); err != nil {
			i.metrics.RecordWebhook(providerSlug, "error")
			i.logger.Error("Updating order from webhook", zap.Error(err))
			return err
		}
	default:
		// Late, duplicate or otherwise out-of-order callbacks only feed
		// the history, never the order status.
		outcome = "stale"
		i.logger.Debug("Webhook status not applied",
			zap.String("consignment_id", order.ConsignmentID),
			zap.String("current", order.Status),
			zap.String("raw_status", raw),
			zap.String("mapped_status", string(canonical)),
		)
	}

	message := p.Message
	if message == "" {
		message = raw
	}
	if err := i.store.AppendTracking(ctx, &store.TrackingEvent{
		CourierOrderID: order.ID,
		Status:         string(canonical),
		ProviderStatus: raw,
		Message:        message,
		MessageBn:      p.MessageBn,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		i.metrics.RecordWebhook(providerSlug, "error")
		i.logger.Error("Appending tracking from webhook", zap.Error(err))
		return err
	}

	i.metrics.RecordWebhook(providerSlug, outcome)
	i.logger.Info("Webhook processed",
		zap.String("provider", providerSlug),
		zap.String("consignment_id", order.ConsignmentID),
		zap.String("raw_status", raw),
		zap.String("status", order.Status),
		zap.String("outcome", outcome),
	)
	return nil
}

func (i *Ingestor) resolveOrder(ctx context.Context, providerSlug string, p *payload) (*store.CourierOrder, error) {
	if id := p.trackingID(); id != "" {
		order, err := i.store.OrderByTrackingID(ctx, providerSlug, id)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if ref := p.platformReference(); ref != "" {
		return i.store.OrderByConsignment(ctx, ref)
	}
	return nil, store.ErrNotFound
}
