package jobs_test

import (
	"context"
	"testing"

	"github.com/bazarlink/courier/internal/jobs"
	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coverageAdapter is a fake adapter whose coverage list is scripted.
type coverageAdapter struct {
	name     string
	coverage []courier.CoverageArea
}

func (c *coverageAdapter) Name() string { return c.name }

func (c *coverageAdapter) Quote(context.Context, *courier.QuoteRequest) (*courier.Quote, error) {
	return nil, courier.ErrUnserviceable
}

func (c *coverageAdapter) CreateOrder(context.Context, *courier.OrderRequest) (*courier.OrderResult, error) {
	return nil, courier.ErrUnserviceable
}

func (c *coverageAdapter) TrackOrder(context.Context, string) (*courier.TrackingUpdate, error) {
	return nil, courier.ErrOrderNotFound
}

func (c *coverageAdapter) ListCoverage(context.Context) ([]courier.CoverageArea, error) {
	return c.coverage, nil
}

// newPlainAdapter wraps an adapter so the CoverageLister method is not
// part of its public surface.
func newPlainAdapter(name string) courier.Adapter {
	a := &coverageAdapter{name: name}
	return &struct{ courier.Adapter }{a}
}

func TestAreaSyncJob_SyncProvider(t *testing.T) {
	st := store.NewMemoryStore()
	registry := courier.NewRegistry()
	registry.Register(&coverageAdapter{
		name: "redx",
		coverage: []courier.CoverageArea{
			{AreaID: "1", AreaName: "Uttara", PostCode: "1230", HomeDelivery: true, Pickup: true},
			{AreaID: "2", AreaName: "Mirpur", PostCode: "1216", HomeDelivery: true, Pickup: true},
		},
	})

	job := jobs.NewAreaSyncJob(st, registry, "0 4 * * *", telemetry.NopLogger())

	n, err := job.SyncProvider(context.Background(), "redx")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	areas, err := st.ListAreas(context.Background(), "redx", 0, 0)
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "Uttara", areas[0].AreaName)
	// Freshly synced areas start unmapped; an administrator assigns the
	// platform location afterwards.
	assert.Zero(t, areas[0].LocationID)
}

func TestAreaSyncJob_PreservesLocationMappings(t *testing.T) {
	st := store.NewMemoryStore()
	registry := courier.NewRegistry()
	adapter := &coverageAdapter{
		name: "redx",
		coverage: []courier.CoverageArea{
			{AreaID: "1", AreaName: "Uttara", HomeDelivery: true, Pickup: true},
		},
	}
	registry.Register(adapter)
	job := jobs.NewAreaSyncJob(st, registry, "0 4 * * *", telemetry.NopLogger())

	ctx := context.Background()
	_, err := job.SyncProvider(ctx, "redx")
	require.NoError(t, err)

	// An administrator maps the area to a platform location.
	areas, err := st.ListAreas(ctx, "redx", 0, 0)
	require.NoError(t, err)
	areas[0].LocationID = 77
	_, err = st.UpsertAreas(ctx, "redx", areas)
	require.NoError(t, err)

	// The provider renames the area upstream; re-syncing keeps the
	// mapping while taking the new name.
	adapter.coverage[0].AreaName = "Uttara Sector 4"
	_, err = job.SyncProvider(ctx, "redx")
	require.NoError(t, err)

	areas, err = st.ListAreas(ctx, "redx", 0, 0)
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, "Uttara Sector 4", areas[0].AreaName)
	assert.Equal(t, int64(77), areas[0].LocationID)
}

func TestAreaSyncJob_UnknownProvider(t *testing.T) {
	job := jobs.NewAreaSyncJob(store.NewMemoryStore(), courier.NewRegistry(), "0 4 * * *", telemetry.NopLogger())

	_, err := job.SyncProvider(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestAreaSyncJob_AdapterWithoutCoverage(t *testing.T) {
	registry := courier.NewRegistry()
	registry.Register(newPlainAdapter("legacy"))
	job := jobs.NewAreaSyncJob(store.NewMemoryStore(), registry, "0 4 * * *", telemetry.NopLogger())

	_, err := job.SyncProvider(context.Background(), "legacy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coverage")
}
