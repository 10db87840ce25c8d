package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bazarlink/courier/internal/store"
	"github.com/bazarlink/courier/pkg/courier"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// providerRequest is the admin payload for creating or updating a
// provider. The status map travels as structured JSON and is stored
// serialized.
type providerRequest struct {
	Slug              string              `json:"slug"`
	Name              string              `json:"name"`
	SandboxBaseURL    string              `json:"sandboxBaseUrl"`
	ProductionBaseURL string              `json:"productionBaseUrl"`
	AuthScheme        string              `json:"authScheme"`
	SupportsCOD       bool                `json:"supportsCod"`
	SupportsTracking  bool                `json:"supportsTracking"`
	SupportsBulkOrder bool                `json:"supportsBulkOrder"`
	SupportsWebhook   bool                `json:"supportsWebhook"`
	Priority          int                 `json:"priority"`
	IsPreferred       bool                `json:"isPreferred"`
	IsActive          bool                `json:"isActive"`
	StatusMap         map[string][]string `json:"statusMap"`
	WebhookSecret     string              `json:"webhookSecret"`
}

func (r *providerRequest) apply(p *store.Provider) error {
	p.Name = r.Name
	p.SandboxBaseURL = r.SandboxBaseURL
	p.ProductionBaseURL = r.ProductionBaseURL
	p.AuthScheme = r.AuthScheme
	p.SupportsCOD = r.SupportsCOD
	p.SupportsTracking = r.SupportsTracking
	p.SupportsBulkOrder = r.SupportsBulkOrder
	p.SupportsWebhook = r.SupportsWebhook
	p.Priority = r.Priority
	p.IsPreferred = r.IsPreferred
	p.IsActive = r.IsActive
	if r.WebhookSecret != "" {
		p.WebhookSecret = r.WebhookSecret
	}
	if r.StatusMap != nil {
		raw, err := json.Marshal(r.StatusMap)
		if err != nil {
			return err
		}
		p.StatusMapJSON = string(raw)
	}
	return nil
}

func (s *Server) handleCreateProvider(c echo.Context) error {
	var req providerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid provider payload")
	}
	if req.Slug == "" || req.Name == "" {
		return badRequest(c, "slug and name are required")
	}

	p := &store.Provider{Slug: req.Slug}
	if err := req.apply(p); err != nil {
		return badRequest(c, "invalid status map")
	}
	if err := s.store.CreateProvider(c.Request().Context(), p); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) handleListProviders(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	providers, err := s.store.ListProviders(c.Request().Context(), activeOnly)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, providers)
}

func (s *Server) handleGetProvider(c echo.Context) error {
	p, err := s.store.GetProvider(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleUpdateProvider(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := s.store.GetProvider(ctx, c.Param("slug"))
	if err != nil {
		return s.fail(c, err)
	}

	var req providerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid provider payload")
	}
	if err := req.apply(p); err != nil {
		return badRequest(c, "invalid status map")
	}
	if err := s.store.UpdateProvider(ctx, p); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(c echo.Context) error {
	if err := s.store.DeleteProvider(c.Request().Context(), c.Param("slug")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleToggleProvider flips the active flag. Deactivation takes the
// provider out of selection immediately; existing shipments keep
// tracking.
func (s *Server) handleToggleProvider(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := s.store.GetProvider(ctx, c.Param("slug"))
	if err != nil {
		return s.fail(c, err)
	}
	p.IsActive = !p.IsActive
	if err := s.store.UpdateProvider(ctx, p); err != nil {
		return s.fail(c, err)
	}
	s.logger.Info("Provider toggled",
		zap.String("provider", p.Slug),
		zap.Bool("active", p.IsActive),
	)
	return c.JSON(http.StatusOK, p)
}

// credentialRequest is the admin payload for credential writes. Secret
// fields are write-only; reads never echo them back.
type credentialRequest struct {
	ProviderSlug string `json:"providerSlug"`
	Environment  string `json:"environment"`
	VendorID     *int64 `json:"vendorId"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	APIKey       string `json:"apiKey"`
	StoreID      string `json:"storeId"`
	IsActive     bool   `json:"isActive"`
}

func (s *Server) handleCreateCredential(c echo.Context) error {
	var req credentialRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid credential payload")
	}
	if req.ProviderSlug == "" || req.Environment == "" {
		return badRequest(c, "providerSlug and environment are required")
	}
	if _, err := s.store.GetProvider(c.Request().Context(), req.ProviderSlug); err != nil {
		return s.fail(c, err)
	}

	cred := &store.Credential{
		ProviderSlug: req.ProviderSlug,
		Environment:  req.Environment,
		VendorID:     req.VendorID,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Username:     req.Username,
		Password:     req.Password,
		APIKey:       req.APIKey,
		StoreID:      req.StoreID,
		IsActive:     req.IsActive,
	}
	if err := s.store.CreateCredential(c.Request().Context(), cred); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, cred)
}

func (s *Server) handleListCredentials(c echo.Context) error {
	creds, err := s.store.ListCredentials(c.Request().Context(), c.QueryParam("provider"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, creds)
}

func (s *Server) handleUpdateCredential(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid credential id")
	}
	ctx := c.Request().Context()
	cred, err := s.store.GetCredential(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}

	var req credentialRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid credential payload")
	}
	// Blank secret fields keep the stored value.
	if req.ClientID != "" {
		cred.ClientID = req.ClientID
	}
	if req.ClientSecret != "" {
		cred.ClientSecret = req.ClientSecret
	}
	if req.Username != "" {
		cred.Username = req.Username
	}
	if req.Password != "" {
		cred.Password = req.Password
	}
	if req.APIKey != "" {
		cred.APIKey = req.APIKey
	}
	if req.StoreID != "" {
		cred.StoreID = req.StoreID
	}
	cred.IsActive = req.IsActive

	if err := s.store.UpdateCredential(ctx, cred); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, cred)
}

func (s *Server) handleDeleteCredential(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid credential id")
	}
	if err := s.store.DeleteCredential(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleRefreshToken forces a fresh token issue for one credential,
// replacing whatever was cached.
func (s *Server) handleRefreshToken(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid credential id")
	}
	cred, err := s.tokens.ForceRefresh(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, cred)
}

// handleTestCredential performs the provider's cheapest authenticated
// call to verify the credential works end to end.
func (s *Server) handleTestCredential(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid credential id")
	}
	ctx := c.Request().Context()
	cred, err := s.store.GetCredential(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}

	adapter, err := s.registry.Get(cred.ProviderSlug)
	if err != nil {
		return s.fail(c, err)
	}
	checker, ok := adapter.(courier.CredentialChecker)
	if !ok {
		return badRequest(c, "provider does not support credential checks")
	}
	if err := checker.CheckCredential(ctx); err != nil {
		return c.JSON(http.StatusOK, echo.Map{"ok": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// areaUpsertRequest seeds or corrects serviceable-area rows by hand,
// typically to map provider areas onto platform locations.
type areaUpsertRequest struct {
	ProviderSlug string `json:"providerSlug"`
	Areas        []struct {
		ProviderAreaID        string `json:"providerAreaId"`
		CityID                string `json:"cityId"`
		ZoneID                string `json:"zoneId"`
		AreaName              string `json:"areaName"`
		PostCode              string `json:"postCode"`
		LocationID            int64  `json:"locationId"`
		HomeDeliveryAvailable bool   `json:"homeDeliveryAvailable"`
		PickupAvailable       bool   `json:"pickupAvailable"`
	} `json:"areas"`
}

func (s *Server) handleSyncAreas(c echo.Context) error {
	var req areaUpsertRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid area payload")
	}
	if req.ProviderSlug == "" || len(req.Areas) == 0 {
		return badRequest(c, "providerSlug and areas are required")
	}
	if _, err := s.store.GetProvider(c.Request().Context(), req.ProviderSlug); err != nil {
		return s.fail(c, err)
	}

	rows := make([]store.ServiceableArea, 0, len(req.Areas))
	for _, a := range req.Areas {
		rows = append(rows, store.ServiceableArea{
			ProviderSlug:          req.ProviderSlug,
			ProviderAreaID:        a.ProviderAreaID,
			CityID:                a.CityID,
			ZoneID:                a.ZoneID,
			AreaName:              a.AreaName,
			PostCode:              a.PostCode,
			LocationID:            a.LocationID,
			HomeDeliveryAvailable: a.HomeDeliveryAvailable,
			PickupAvailable:       a.PickupAvailable,
			LastSyncedAt:          time.Now().UTC(),
		})
	}
	n, err := s.store.UpsertAreas(c.Request().Context(), req.ProviderSlug, rows)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"upserted": n})
}

// handleSyncAreasRemote pulls the provider's live coverage list through
// its API, the same walk the nightly job performs.
func (s *Server) handleSyncAreasRemote(c echo.Context) error {
	slug := c.QueryParam("provider")
	if slug == "" {
		return badRequest(c, "provider query parameter is required")
	}
	n, err := s.syncer.SyncProvider(c.Request().Context(), slug)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"provider": slug, "synced": n})
}

func (s *Server) handleListAreas(c echo.Context) error {
	limit := parseIntDefault(c.QueryParam("limit"), 100)
	offset := parseIntDefault(c.QueryParam("offset"), 0)
	areas, err := s.store.ListAreas(c.Request().Context(), c.QueryParam("provider"), limit, offset)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, areas)
}

func (s *Server) handleDeleteArea(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid area id")
	}
	if err := s.store.DeleteArea(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	return uint(id), err
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
