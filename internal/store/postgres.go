package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

// Open connects to Postgres and runs schema migration.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm connection and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&Provider{},
		&Credential{},
		&ServiceableArea{},
		&CourierOrder{},
		&TrackingEvent{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// ---------------------------------------------------------------------------
// Providers
// ---------------------------------------------------------------------------

func (s *GormStore) CreateProvider(ctx context.Context, p *Provider) error {
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) UpdateProvider(ctx context.Context, p *Provider) error {
	res := s.db.WithContext(ctx).Model(&Provider{}).
		Where("slug = ?", p.Slug).
		Select("*").Omit("id", "slug", "created_at").
		Updates(p)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteProvider(ctx context.Context, slug string) error {
	open, err := s.CountOpenOrders(ctx, slug)
	if err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("provider %s has %d open orders", slug, open)
	}
	res := s.db.WithContext(ctx).Where("slug = ?", slug).Delete(&Provider{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetProvider(ctx context.Context, slug string) (*Provider, error) {
	var p Provider
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error) {
	q := s.db.WithContext(ctx).Order("is_preferred DESC, priority ASC, slug ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var providers []Provider
	if err := q.Find(&providers).Error; err != nil {
		return nil, translate(err)
	}
	return providers, nil
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

func (s *GormStore) CreateCredential(ctx context.Context, c *Credential) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.IsActive {
			if err := deactivateScope(tx, c.ProviderSlug, c.Environment, c.VendorID); err != nil {
				return err
			}
		}
		return translate(tx.Create(c).Error)
	})
}

func (s *GormStore) UpdateCredential(ctx context.Context, c *Credential) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.IsActive {
			if err := deactivateScope(tx, c.ProviderSlug, c.Environment, c.VendorID); err != nil {
				return err
			}
		}
		res := tx.Model(&Credential{}).Where("id = ?", c.ID).
			Select("*").Omit("id", "created_at").Updates(c)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// deactivateScope enforces the at-most-one-active-credential invariant.
func deactivateScope(tx *gorm.DB, slug, env string, vendorID *int64) error {
	q := tx.Model(&Credential{}).
		Where("provider_slug = ? AND environment = ? AND is_active = ?", slug, env, true)
	if vendorID == nil {
		q = q.Where("vendor_id IS NULL")
	} else {
		q = q.Where("vendor_id = ?", *vendorID)
	}
	return translate(q.Update("is_active", false).Error)
}

func (s *GormStore) DeleteCredential(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Credential{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetCredential(ctx context.Context, id uint) (*Credential, error) {
	var c Credential
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) ListCredentials(ctx context.Context, providerSlug string) ([]Credential, error) {
	q := s.db.WithContext(ctx).Order("id ASC")
	if providerSlug != "" {
		q = q.Where("provider_slug = ?", providerSlug)
	}
	var creds []Credential
	if err := q.Find(&creds).Error; err != nil {
		return nil, translate(err)
	}
	return creds, nil
}

func (s *GormStore) ActiveCredential(ctx context.Context, providerSlug, environment string, vendorID *int64) (*Credential, error) {
	var c Credential
	if vendorID != nil {
		err := s.db.WithContext(ctx).
			Where("provider_slug = ? AND environment = ? AND vendor_id = ? AND is_active = ?",
				providerSlug, environment, *vendorID, true).
			First(&c).Error
		if err == nil {
			return &c, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, translate(err)
		}
		// Fall back to the platform-level credential.
	}
	err := s.db.WithContext(ctx).
		Where("provider_slug = ? AND environment = ? AND vendor_id IS NULL AND is_active = ?",
			providerSlug, environment, true).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) SaveToken(ctx context.Context, credentialID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&Credential{}).
		Where("id = ?", credentialID).
		Updates(map[string]any{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Serviceable areas
// ---------------------------------------------------------------------------

func (s *GormStore) UpsertAreas(ctx context.Context, providerSlug string, areas []ServiceableArea) (int, error) {
	if len(areas) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range areas {
		areas[i].ID = 0
		areas[i].ProviderSlug = providerSlug
		areas[i].LastSyncedAt = now
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_slug"}, {Name: "provider_area_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"city_id", "zone_id", "area_name", "post_code", "location_id",
			"home_delivery_available", "pickup_available", "last_synced_at",
		}),
	}).Create(&areas)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return len(areas), nil
}

func (s *GormStore) AreaForLocation(ctx context.Context, providerSlug string, locationID int64) (*ServiceableArea, error) {
	var a ServiceableArea
	err := s.db.WithContext(ctx).
		Where("provider_slug = ? AND location_id = ?", providerSlug, locationID).
		Order("id ASC").
		First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) ListAreas(ctx context.Context, providerSlug string, limit, offset int) ([]ServiceableArea, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset)
	if providerSlug != "" {
		q = q.Where("provider_slug = ?", providerSlug)
	}
	var areas []ServiceableArea
	if err := q.Find(&areas).Error; err != nil {
		return nil, translate(err)
	}
	return areas, nil
}

func (s *GormStore) DeleteArea(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&ServiceableArea{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Orders and tracking history
// ---------------------------------------------------------------------------

var terminalStatuses = []string{"DELIVERED", "RETURNED", "CANCELLED", "FAILED"}

func (s *GormStore) CreateOrder(ctx context.Context, o *CourierOrder) error {
	return translate(s.db.WithContext(ctx).Create(o).Error)
}

func (s *GormStore) UpdateOrder(ctx context.Context, o *CourierOrder) error {
	res := s.db.WithContext(ctx).Model(&CourierOrder{}).
		Where("id = ?", o.ID).
		Select("*").Omit("id", "consignment_id", "created_at").
		Updates(o)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) OrderByConsignment(ctx context.Context, consignmentID string) (*CourierOrder, error) {
	var o CourierOrder
	err := s.db.WithContext(ctx).Where("consignment_id = ?", consignmentID).First(&o).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *GormStore) OrderByTrackingID(ctx context.Context, providerSlug, trackingID string) (*CourierOrder, error) {
	var o CourierOrder
	err := s.db.WithContext(ctx).
		Where("provider_slug = ? AND tracking_id = ?", providerSlug, trackingID).
		First(&o).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *GormStore) ListOrdersByVendor(ctx context.Context, vendorID int64, limit, offset int) ([]CourierOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var orders []CourierOrder
	err := s.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, translate(err)
	}
	return orders, nil
}

func (s *GormStore) CountOpenOrders(ctx context.Context, providerSlug string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&CourierOrder{}).
		Where("provider_slug = ? AND status NOT IN ?", providerSlug, terminalStatuses).
		Count(&n).Error
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (s *GormStore) AppendTracking(ctx context.Context, e *TrackingEvent) error {
	return translate(s.db.WithContext(ctx).Create(e).Error)
}

func (s *GormStore) TrackingForOrder(ctx context.Context, courierOrderID uint) ([]TrackingEvent, error) {
	var events []TrackingEvent
	err := s.db.WithContext(ctx).
		Where("courier_order_id = ?", courierOrderID).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, translate(err)
	}
	return events, nil
}
