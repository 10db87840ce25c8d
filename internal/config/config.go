package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Persistence
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"host=localhost user=courier password=courier dbname=courier port=5432 sslmode=disable"`
	// UseMemoryStore swaps Postgres for the in-memory store. Local
	// development only.
	UseMemoryStore bool `envconfig:"USE_MEMORY_STORE" default:"false"`

	// Marketplace core internal API.
	PlatformBaseURL string `envconfig:"PLATFORM_BASE_URL" default:"http://localhost:9000"`

	// Environment selects which provider endpoints and credentials are
	// used: "sandbox" or "production".
	Environment string `envconfig:"COURIER_ENVIRONMENT" default:"sandbox"`

	// Pathao
	PathaoBaseURL        string `envconfig:"PATHAO_BASE_URL" default:"https://api-hermes.pathao.com"`
	PathaoSandboxBaseURL string `envconfig:"PATHAO_SANDBOX_BASE_URL" default:"https://courier-api-sandbox.pathao.com"`
	PathaoStoreID        int    `envconfig:"PATHAO_STORE_ID"`
	PathaoEnabled        bool   `envconfig:"PATHAO_ENABLED" default:"true"`
	PathaoUseMock        bool   `envconfig:"PATHAO_USE_MOCK" default:"false"`

	// RedX
	RedXBaseURL        string `envconfig:"REDX_BASE_URL" default:"https://openapi.redx.com.bd/v1.0.0"`
	RedXSandboxBaseURL string `envconfig:"REDX_SANDBOX_BASE_URL" default:"https://sandbox.redx.com.bd/v1.0.0"`
	RedXEnabled        bool   `envconfig:"REDX_ENABLED" default:"true"`
	RedXUseMock        bool   `envconfig:"REDX_USE_MOCK" default:"false"`

	// Serviceable-area sync
	AreaSyncSpec    string `envconfig:"AREA_SYNC_CRON" default:"0 4 * * *"`
	AreaSyncEnabled bool   `envconfig:"AREA_SYNC_ENABLED" default:"true"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"bazarlink-courier"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// PathaoURL returns the Pathao endpoint for the configured environment.
func (c *Config) PathaoURL() string {
	if c.Environment == "production" {
		return c.PathaoBaseURL
	}
	return c.PathaoSandboxBaseURL
}

// RedXURL returns the RedX endpoint for the configured environment.
func (c *Config) RedXURL() string {
	if c.Environment == "production" {
		return c.RedXBaseURL
	}
	return c.RedXSandboxBaseURL
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("courier.environment", c.Environment),
		attribute.Bool("pathao.enabled", c.PathaoEnabled),
		attribute.Bool("redx.enabled", c.RedXEnabled),
	}
}
