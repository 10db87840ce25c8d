// Package dispatch selects couriers and drives the order dispatch flow.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxAncestorHops bounds the parent walk when resolving a location to a
// serviceable area through a mapped ancestor.
const maxAncestorHops = 3

// QuoteInput is a request to price and pick a courier for a route.
type QuoteInput struct {
	PickupLocationID   int64
	DeliveryLocationID int64
	WeightKG           float64
	CODAmount          float64
	DeliveryType       courier.DeliveryType
}

// Selection is the outcome of courier selection: the winning provider,
// its quote, and the resolved area rows the quote was computed from.
type Selection struct {
	Provider     store.Provider
	Quote        courier.Quote
	PickupArea   store.ServiceableArea
	DeliveryArea store.ServiceableArea
}

// Selector implements the quotation and selection engine.
type Selector struct {
	providers store.ProviderStore
	areas     store.AreaStore
	registry  *courier.Registry
	locations LocationDirectory
	logger    *otelzap.Logger
	metrics   *telemetry.Metrics
}

// NewSelector creates a selection engine.
func NewSelector(
	providers store.ProviderStore,
	areas store.AreaStore,
	registry *courier.Registry,
	locations LocationDirectory,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
) *Selector {
	return &Selector{
		providers: providers,
		areas:     areas,
		registry:  registry,
		locations: locations,
		logger:    logger,
		metrics:   metrics,
	}
}

// resolveArea maps a platform location to the provider's serviceable
// area, walking up the location hierarchy when the leaf itself is not
// mapped. store.ErrNotFound means the route is not serviceable.
func (s *Selector) resolveArea(ctx context.Context, providerSlug string, locationID int64) (*store.ServiceableArea, error) {
	current := locationID
	for hop := 0; hop <= maxAncestorHops; hop++ {
		area, err := s.areas.AreaForLocation(ctx, providerSlug, current)
		if err == nil {
			return area, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if s.locations == nil {
			break
		}
		loc, locErr := s.locations.Location(ctx, current)
		if locErr != nil || loc.ParentID == 0 {
			break
		}
		current = loc.ParentID
	}
	return nil, store.ErrNotFound
}

// candidate is one provider's evaluation result.
type candidate struct {
	provider store.Provider
	pickup   *store.ServiceableArea
	delivery *store.ServiceableArea
	quote    *courier.Quote
	skipped  bool
}

// SelectBest enumerates active providers in selection order, quotes the
// serviceable ones, and returns the cheapest quote. Providers are
// evaluated concurrently but the reduction runs over the priority
// ordering, so ties deterministically go to the earlier provider.
// Per-provider failures are logged and skipped; only zero usable quotes
// yields ErrNoCourierAvailable.
func (s *Selector) SelectBest(ctx context.Context, input QuoteInput) (*Selection, error) {
	providers, err := s.providers.ListProviders(ctx, true)
	if err != nil {
		return nil, err
	}

	results := make([]candidate, len(providers))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range providers {
		g.Go(func() error {
			results[i] = s.evaluate(gctx, p, input)
			return nil
		})
	}
	g.Wait()

	var best *candidate
	for i := range results {
		c := &results[i]
		if c.skipped {
			continue
		}
		if best == nil || c.quote.TotalCharge < best.quote.TotalCharge {
			best = c
		}
	}
	if best == nil {
		return nil, courier.ErrNoCourierAvailable
	}

	s.logger.Info("Courier selected",
		zap.String("provider", best.provider.Slug),
		zap.Float64("total_charge", best.quote.TotalCharge),
		zap.Int64("pickup_location", input.PickupLocationID),
		zap.Int64("delivery_location", input.DeliveryLocationID),
	)

	return &Selection{
		Provider:     best.provider,
		Quote:        *best.quote,
		PickupArea:   *best.pickup,
		DeliveryArea: *best.delivery,
	}, nil
}

// evaluate runs one provider through serviceability checks and quoting.
// Every skip reason leaves the remaining providers unaffected.
func (s *Selector) evaluate(ctx context.Context, p store.Provider, input QuoteInput) candidate {
	skip := candidate{provider: p, skipped: true}

	adapter, err := s.registry.Get(p.Slug)
	if err != nil {
		s.logger.Warn("Provider has no registered adapter", zap.String("provider", p.Slug))
		return skip
	}
	if input.CODAmount > 0 && !p.SupportsCOD {
		return skip
	}

	pickup, err := s.resolveArea(ctx, p.Slug, input.PickupLocationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Area lookup failed", zap.String("provider", p.Slug), zap.Error(err))
		}
		return skip
	}
	delivery, err := s.resolveArea(ctx, p.Slug, input.DeliveryLocationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Area lookup failed", zap.String("provider", p.Slug), zap.Error(err))
		}
		return skip
	}
	if !pickup.PickupAvailable || !delivery.HomeDeliveryAvailable {
		return skip
	}

	start := time.Now()
	quote, err := adapter.Quote(ctx, &courier.QuoteRequest{
		Pickup:       pickup.Mapping(),
		Delivery:     delivery.Mapping(),
		WeightKG:     input.WeightKG,
		CODAmount:    input.CODAmount,
		DeliveryType: input.DeliveryType,
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, courier.ErrUnserviceable) {
			// Expected: excluded from quoting, nothing to log.
			s.metrics.RecordRequest("quote", p.Slug, "unserviceable", duration)
			return skip
		}
		s.logger.Warn("Provider quote failed",
			zap.String("provider", p.Slug),
			zap.Error(err),
		)
		s.metrics.RecordRequest("quote", p.Slug, "error", duration)
		s.metrics.RecordError(p.Slug, "quote")
		return skip
	}

	s.metrics.RecordRequest("quote", p.Slug, "ok", duration)
	return candidate{
		provider: p,
		pickup:   pickup,
		delivery: delivery,
		quote:    quote,
	}
}
