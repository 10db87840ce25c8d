package server

import (
	"io"
	"net/http"

	"github.com/bazarlink/courier/internal/webhook"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// signatureHeader carries the provider's HMAC over the raw body.
const signatureHeader = "X-Webhook-Signature"

// handleWebhook acknowledges every provider callback with 200 so the
// courier never retries into a failure loop. Verification and
// processing problems are logged and the payload dropped; the provider
// still sees success.
func (s *Server) handleWebhook(c echo.Context) error {
	slug := c.Param("provider")
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		s.logger.Warn("Reading webhook body", zap.String("provider", slug), zap.Error(err))
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	// Signature enforcement is opt-in per provider. An unknown slug falls
	// through; the ingestor logs and counts it.
	if provider, provErr := s.store.GetProvider(ctx, slug); provErr == nil && provider.WebhookSecret != "" {
		sig := c.Request().Header.Get(signatureHeader)
		if !webhook.VerifySignature(provider.WebhookSecret, body, sig) {
			s.metrics.RecordWebhook(slug, "bad_signature")
			s.logger.Warn("Webhook signature mismatch", zap.String("provider", slug))
			return c.JSON(http.StatusOK, echo.Map{"received": true})
		}
	}

	if err := s.ingestor.Process(ctx, slug, body); err != nil {
		s.logger.Debug("Webhook discarded", zap.String("provider", slug), zap.Error(err))
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
