package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation used in tests and
// local development without Postgres.
type MemoryStore struct {
	mu sync.RWMutex

	providers   map[string]*Provider
	credentials map[uint]*Credential
	areas       map[string]*ServiceableArea // key: slug + "/" + providerAreaID
	orders      map[uint]*CourierOrder
	tracking    map[uint][]TrackingEvent

	nextProviderID   uint
	nextCredentialID uint
	nextAreaID       uint
	nextOrderID      uint
	nextEventID      uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers:   make(map[string]*Provider),
		credentials: make(map[uint]*Credential),
		areas:       make(map[string]*ServiceableArea),
		orders:      make(map[uint]*CourierOrder),
		tracking:    make(map[uint][]TrackingEvent),
	}
}

func sameVendor(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ---------------------------------------------------------------------------
// Providers
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateProvider(_ context.Context, p *Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.Slug]; ok {
		return ErrConflict
	}
	s.nextProviderID++
	p.ID = s.nextProviderID
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	s.providers[p.Slug] = &cp
	return nil
}

func (s *MemoryStore) UpdateProvider(_ context.Context, p *Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.providers[p.Slug]
	if !ok {
		return ErrNotFound
	}
	cp := *p
	cp.ID = existing.ID
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.providers[p.Slug] = &cp
	return nil
}

func (s *MemoryStore) DeleteProvider(ctx context.Context, slug string) error {
	open, err := s.CountOpenOrders(ctx, slug)
	if err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("provider %s has %d open orders", slug, open)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[slug]; !ok {
		return ErrNotFound
	}
	delete(s.providers, slug)
	return nil
}

func (s *MemoryStore) GetProvider(_ context.Context, slug string) (*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[slug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProviders(_ context.Context, activeOnly bool) ([]Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IsPreferred != result[j].IsPreferred {
			return result[i].IsPreferred
		}
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].Slug < result[j].Slug
	})
	return result, nil
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateCredential(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.IsActive {
		s.deactivateScopeLocked(c.ProviderSlug, c.Environment, c.VendorID)
	}
	s.nextCredentialID++
	c.ID = s.nextCredentialID
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	s.credentials[c.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateCredential(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.credentials[c.ID]
	if !ok {
		return ErrNotFound
	}
	if c.IsActive {
		s.deactivateScopeLocked(c.ProviderSlug, c.Environment, c.VendorID)
	}
	cp := *c
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.credentials[c.ID] = &cp
	return nil
}

func (s *MemoryStore) deactivateScopeLocked(slug, env string, vendorID *int64) {
	for _, other := range s.credentials {
		if other.ProviderSlug == slug && other.Environment == env &&
			sameVendor(other.VendorID, vendorID) && other.IsActive {
			other.IsActive = false
		}
	}
}

func (s *MemoryStore) DeleteCredential(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[id]; !ok {
		return ErrNotFound
	}
	delete(s.credentials, id)
	return nil
}

func (s *MemoryStore) GetCredential(_ context.Context, id uint) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCredentials(_ context.Context, providerSlug string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Credential, 0)
	for _, c := range s.credentials {
		if providerSlug != "" && c.ProviderSlug != providerSlug {
			continue
		}
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) ActiveCredential(_ context.Context, providerSlug, environment string, vendorID *int64) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if vendorID != nil {
		if c := s.findActiveLocked(providerSlug, environment, vendorID); c != nil {
			cp := *c
			return &cp, nil
		}
	}
	if c := s.findActiveLocked(providerSlug, environment, nil); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) findActiveLocked(slug, env string, vendorID *int64) *Credential {
	for _, c := range s.credentials {
		if c.ProviderSlug == slug && c.Environment == env &&
			sameVendor(c.VendorID, vendorID) && c.IsActive {
			return c
		}
	}
	return nil
}

func (s *MemoryStore) SaveToken(_ context.Context, credentialID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return ErrNotFound
	}
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	exp := expiresAt
	c.TokenExpiresAt = &exp
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ---------------------------------------------------------------------------
// Serviceable areas
// ---------------------------------------------------------------------------

func areaKey(slug, providerAreaID string) string {
	return slug + "/" + providerAreaID
}

func (s *MemoryStore) UpsertAreas(_ context.Context, providerSlug string, areas []ServiceableArea) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, a := range areas {
		a.ProviderSlug = providerSlug
		a.LastSyncedAt = now
		key := areaKey(providerSlug, a.ProviderAreaID)
		if existing, ok := s.areas[key]; ok {
			a.ID = existing.ID
		} else {
			s.nextAreaID++
			a.ID = s.nextAreaID
		}
		cp := a
		s.areas[key] = &cp
	}
	return len(areas), nil
}

func (s *MemoryStore) AreaForLocation(_ context.Context, providerSlug string, locationID int64) (*ServiceableArea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *ServiceableArea
	for _, a := range s.areas {
		if a.ProviderSlug == providerSlug && a.LocationID == locationID {
			if best == nil || a.ID < best.ID {
				best = a
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) ListAreas(_ context.Context, providerSlug string, limit, offset int) ([]ServiceableArea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]ServiceableArea, 0)
	for _, a := range s.areas {
		if providerSlug != "" && a.ProviderSlug != providerSlug {
			continue
		}
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if offset >= len(result) {
		return []ServiceableArea{}, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) DeleteArea(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, a := range s.areas {
		if a.ID == id {
			delete(s.areas, key)
			return nil
		}
	}
	return ErrNotFound
}

// ---------------------------------------------------------------------------
// Orders and tracking history
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateOrder(_ context.Context, o *CourierOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.ConsignmentID == o.ConsignmentID {
			return ErrConflict
		}
	}
	s.nextOrderID++
	o.ID = s.nextOrderID
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *CourierOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *o
	cp.ConsignmentID = existing.ConsignmentID
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) OrderByConsignment(_ context.Context, consignmentID string) (*CourierOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ConsignmentID == consignmentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) OrderByTrackingID(_ context.Context, providerSlug, trackingID string) (*CourierOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.ProviderSlug == providerSlug && o.TrackingID == trackingID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListOrdersByVendor(_ context.Context, vendorID int64, limit, offset int) ([]CourierOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]CourierOrder, 0)
	for _, o := range s.orders {
		if o.VendorID == vendorID {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if offset >= len(result) {
		return []CourierOrder{}, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) CountOpenOrders(_ context.Context, providerSlug string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, o := range s.orders {
		if o.ProviderSlug != providerSlug {
			continue
		}
		terminal := false
		for _, t := range terminalStatuses {
			if strings.EqualFold(o.Status, t) {
				terminal = true
				break
			}
		}
		if !terminal {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AppendTracking(_ context.Context, e *TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	e.ID = s.nextEventID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.tracking[e.CourierOrderID] = append(s.tracking[e.CourierOrderID], *e)
	return nil
}

func (s *MemoryStore) TrackingForOrder(_ context.Context, courierOrderID uint) ([]TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.tracking[courierOrderID]
	result := make([]TrackingEvent, len(events))
	copy(result, events)
	return result, nil
}
