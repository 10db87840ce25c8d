package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bazarlink/courier/internal/config"
	"github.com/bazarlink/courier/internal/dispatch"
	"github.com/bazarlink/courier/internal/jobs"
	"github.com/bazarlink/courier/internal/platform"
	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/internal/token"
	"github.com/bazarlink/courier/internal/webhook"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/bazarlink/courier/pkg/courier/pathao"
	"github.com/bazarlink/courier/pkg/courier/redx"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

// app bundles the wired components shared by the serve and sync-areas
// commands.
type app struct {
	env        courier.Environment
	store      store.Store
	registry   *courier.Registry
	selector   *dispatch.Selector
	dispatcher *dispatch.Dispatcher
	ingestor   *webhook.Ingestor
	tokens     *token.Manager
	syncJob    *jobs.AreaSyncJob
	metrics    *telemetry.Metrics
}

func buildApp(cfg *config.Config, logger *otelzap.Logger) (*app, error) {
	env := courier.EnvSandbox
	if cfg.Environment == "production" {
		env = courier.EnvProduction
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics()
	tracer := otel.GetTracerProvider().Tracer(cfg.ServiceName)

	tokens := token.NewManager(st, logger)
	registry := initAdapterRegistry(cfg, env, tokens, logger, tracer)

	core := platform.NewClient(platform.Config{BaseURL: cfg.PlatformBaseURL})

	selector := dispatch.NewSelector(st, st, registry, core, logger, metrics)
	dispatcher := dispatch.NewDispatcher(st, registry, selector, core, core, logger, metrics)
	ingestor := webhook.NewIngestor(st, logger, metrics)
	syncJob := jobs.NewAreaSyncJob(st, registry, cfg.AreaSyncSpec, logger)

	return &app{
		env:        env,
		store:      st,
		registry:   registry,
		selector:   selector,
		dispatcher: dispatcher,
		ingestor:   ingestor,
		tokens:     tokens,
		syncJob:    syncJob,
		metrics:    metrics,
	}, nil
}

func initStore(cfg *config.Config) (store.Store, error) {
	if cfg.UseMemoryStore {
		return store.NewMemoryStore(), nil
	}
	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

func initAdapterRegistry(
	cfg *config.Config,
	env courier.Environment,
	tokens *token.Manager,
	logger *otelzap.Logger,
	tracer trace.Tracer,
) *courier.Registry {
	registry := courier.NewRegistry()

	if cfg.PathaoEnabled {
		client := pathao.New(pathao.Config{
			BaseURL: cfg.PathaoURL(),
			StoreID: cfg.PathaoStoreID,
			UseMock: cfg.PathaoUseMock,
		}, tokens.Source("pathao", env), logger, tracer)
		tokens.RegisterIssuer("pathao", &pathaoIssuer{client: client})
		registry.Register(client)
	}

	if cfg.RedXEnabled {
		// RedX merchant tokens are long-lived; the manager hands out the
		// stored key without a refresh cycle.
		client := redx.New(redx.Config{
			BaseURL: cfg.RedXURL(),
			UseMock: cfg.RedXUseMock,
		}, tokens.Source("redx", env), logger, tracer)
		registry.Register(client)
	}

	return registry
}

// pathaoIssuer adapts the Pathao token endpoints to the credential
// manager's Issuer interface.
type pathaoIssuer struct {
	client *pathao.Client
}

func (p *pathaoIssuer) Issue(ctx context.Context, cred *store.Credential) (*token.Grant, error) {
	resp, err := p.client.IssuePasswordGrant(ctx, cred.ClientID, cred.ClientSecret, cred.Username, cred.Password)
	if err != nil {
		return nil, err
	}
	return grantFromResponse(resp), nil
}

func (p *pathaoIssuer) Refresh(ctx context.Context, cred *store.Credential) (*token.Grant, error) {
	resp, err := p.client.RefreshGrant(ctx, cred.ClientID, cred.ClientSecret, cred.RefreshToken)
	if err != nil {
		return nil, err
	}
	return grantFromResponse(resp), nil
}

func grantFromResponse(resp *pathao.TokenResponse) *token.Grant {
	return &token.Grant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
}
