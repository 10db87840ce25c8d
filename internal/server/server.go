// Package server exposes the courier orchestration REST API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bazarlink/courier/internal/dispatch"
	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/internal/telemetry"
	"github.com/bazarlink/courier/internal/token"
	"github.com/bazarlink/courier/internal/webhook"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// AreaSyncer triggers a remote coverage sync for one provider.
type AreaSyncer interface {
	SyncProvider(ctx context.Context, slug string) (int, error)
}

// Config holds server configuration.
type Config struct {
	Port        int
	Environment courier.Environment
}

// Server is the HTTP server for the courier service.
type Server struct {
	cfg        Config
	store      store.Store
	registry   *courier.Registry
	selector   *dispatch.Selector
	dispatcher *dispatch.Dispatcher
	ingestor   *webhook.Ingestor
	tokens     *token.Manager
	syncer     AreaSyncer
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
}

// New creates a new server instance.
func New(
	cfg Config,
	st store.Store,
	registry *courier.Registry,
	selector *dispatch.Selector,
	dispatcher *dispatch.Dispatcher,
	ingestor *webhook.Ingestor,
	tokens *token.Manager,
	syncer AreaSyncer,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		selector:   selector,
		dispatcher: dispatcher,
		ingestor:   ingestor,
		tokens:     tokens,
		syncer:     syncer,
		logger:     logger,
		metrics:    metrics,
	}
}

// Router builds the Echo instance with all routes registered.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")

	// Provider admin
	api.POST("/providers", s.handleCreateProvider)
	api.GET("/providers", s.handleListProviders)
	api.GET("/providers/:slug", s.handleGetProvider)
	api.PUT("/providers/:slug", s.handleUpdateProvider)
	api.DELETE("/providers/:slug", s.handleDeleteProvider)
	api.POST("/providers/:slug/toggle", s.handleToggleProvider)

	// Credential admin
	api.POST("/credentials", s.handleCreateCredential)
	api.GET("/credentials", s.handleListCredentials)
	api.PUT("/credentials/:id", s.handleUpdateCredential)
	api.DELETE("/credentials/:id", s.handleDeleteCredential)
	api.POST("/credentials/:id/refresh-token", s.handleRefreshToken)
	api.POST("/credentials/:id/test", s.handleTestCredential)

	// Serviceable-area admin
	api.POST("/areas/sync", s.handleSyncAreas)
	api.POST("/areas/sync-remote", s.handleSyncAreasRemote)
	api.GET("/areas", s.handleListAreas)
	api.DELETE("/areas/:id", s.handleDeleteArea)

	// Quoting and dispatch
	api.POST("/quote", s.handleQuote)
	api.POST("/orders", s.handleDispatch)
	api.GET("/orders", s.handleListOrders)
	api.POST("/orders/:consignment/ready-for-pickup", s.handleReadyForPickup)
	api.GET("/orders/:consignment/label", s.handleLabel)

	// Public tracking
	api.GET("/track/:trackingId", s.handleTrack)

	// Provider callbacks
	api.POST("/webhook/:provider", s.handleWebhook)

	return e
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	e := s.Router()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      e,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// errorResponse is the structured error body for all non-webhook routes.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// fail maps orchestration errors onto HTTP statuses with enough context
// for the caller to self-correct.
func (s *Server) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, courier.ErrOrderNotFound),
		errors.Is(err, courier.ErrProviderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, courier.ErrInvalidStatusTransition):
		status = http.StatusConflict
	case errors.Is(err, courier.ErrNoCourierAvailable),
		errors.Is(err, courier.ErrCODNotSupported):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrAreaMappingChanged):
		status = http.StatusConflict
	case errors.Is(err, courier.ErrCredentialMissing),
		errors.Is(err, courier.ErrTokenRefreshFailed),
		errors.Is(err, courier.ErrAuthenticationFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	return c.JSON(status, errorResponse{Code: status, Message: err.Error()})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}
