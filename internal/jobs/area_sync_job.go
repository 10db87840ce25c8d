// Package jobs provides the scheduled serviceable-area sync.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/robfig/cron/v3"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// syncTimeout bounds one provider's coverage walk.
const syncTimeout = 5 * time.Minute

// AreaSyncJob periodically refreshes the serviceable-area index from
// each active provider's coverage API. Location mappings set by
// administrators are preserved; only provider-side attributes (names,
// availability flags) are overwritten.
type AreaSyncJob struct {
	store    store.Store
	registry *courier.Registry
	cron     *cron.Cron
	spec     string
	logger   *otelzap.Logger
}

// NewAreaSyncJob creates the sync job with a standard 5-field cron spec.
func NewAreaSyncJob(st store.Store, registry *courier.Registry, spec string, logger *otelzap.Logger) *AreaSyncJob {
	return &AreaSyncJob{
		store:    st,
		registry: registry,
		cron:     cron.New(),
		spec:     spec,
		logger:   logger,
	}
}

// Start schedules the job.
func (j *AreaSyncJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, j.runOnce)
	if err != nil {
		return fmt.Errorf("scheduling area sync: %w", err)
	}
	j.cron.Start()
	j.logger.Info("Area sync job started", zap.String("spec", j.spec))
	return nil
}

// Stop stops the job.
func (j *AreaSyncJob) Stop() {
	j.cron.Stop()
	j.logger.Info("Area sync job stopped")
}

func (j *AreaSyncJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	providers, err := j.store.ListProviders(ctx, true)
	if err != nil {
		j.logger.Error("Area sync: listing providers", zap.Error(err))
		return
	}
	for _, p := range providers {
		n, err := j.SyncProvider(ctx, p.Slug)
		if err != nil {
			j.logger.Error("Area sync failed",
				zap.String("provider", p.Slug),
				zap.Error(err),
			)
			continue
		}
		j.logger.Info("Area sync completed",
			zap.String("provider", p.Slug),
			zap.Int("areas", n),
		)
	}
}

// SyncProvider pulls one provider's coverage and upserts it into the
// index, keyed by (provider, providerAreaId). Safe to re-run; existing
// platform location mappings survive.
func (j *AreaSyncJob) SyncProvider(ctx context.Context, slug string) (int, error) {
	adapter, err := j.registry.Get(slug)
	if err != nil {
		return 0, err
	}
	lister, ok := adapter.(courier.CoverageLister)
	if !ok {
		return 0, fmt.Errorf("provider %s does not expose a coverage API", slug)
	}

	coverage, err := lister.ListCoverage(ctx)
	if err != nil {
		return 0, err
	}

	// Existing location mappings are administrator data, keep them.
	existing := make(map[string]int64)
	for offset := 0; ; offset += 500 {
		page, err := j.store.ListAreas(ctx, slug, 500, offset)
		if err != nil {
			return 0, err
		}
		for _, a := range page {
			existing[a.ProviderAreaID] = a.LocationID
		}
		if len(page) < 500 {
			break
		}
	}

	rows := make([]store.ServiceableArea, 0, len(coverage))
	for _, c := range coverage {
		rows = append(rows, store.ServiceableArea{
			ProviderSlug:          slug,
			ProviderAreaID:        c.AreaID,
			CityID:                c.CityID,
			ZoneID:                c.ZoneID,
			AreaName:              c.AreaName,
			PostCode:              c.PostCode,
			LocationID:            existing[c.AreaID],
			HomeDeliveryAvailable: c.HomeDelivery,
			PickupAvailable:       c.Pickup,
		})
	}
	return j.store.UpsertAreas(ctx, slug, rows)
}
