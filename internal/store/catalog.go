package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
)

// Upsert policy: match by primary key (tenant_id, id); overwrite every
// mutable field from the remote snapshot and stamp last_synced_at. The
// remote snapshot is authoritative for everything it carries, including
// is_active.

var catalogConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
	UpdateAll: true,
}

// UpsertCategoriesPage writes one page of categories in a single
// transaction. A mid-page crash leaves either the whole page or none of it.
func (s *Store) UpsertCategoriesPage(ctx context.Context, items []domain.Category) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(catalogConflict).Create(&items).Error
	})
}

func (s *Store) UpsertBrandsPage(ctx context.Context, items []domain.Brand) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(catalogConflict).Create(&items).Error
	})
}

// UpsertProductsPage writes one page of products plus their embedded price
// list entries in a single transaction.
func (s *Store) UpsertProductsPage(ctx context.Context, products []domain.Product, entries []domain.PriceListEntry) error {
	if len(products) == 0 && len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(products) > 0 {
			if err := tx.Clauses(catalogConflict).Create(&products).Error; err != nil {
				return err
			}
		}
		if len(entries) > 0 {
			if err := tx.Clauses(catalogConflict).Create(&entries).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpsertCustomersPage(ctx context.Context, items []domain.Customer) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(catalogConflict).Create(&items).Error
	})
}

// UpsertProduct writes a single product, used by the barcode fallback path
// to opportunistically cache a remote point-query result.
func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) error {
	return s.db.WithContext(ctx).Clauses(catalogConflict).Create(&product).Error
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	var items []domain.Category
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name").
		Find(&items).Error
	return items, err
}

func (s *Store) ListBrands(ctx context.Context, tenantID string) ([]domain.Brand, error) {
	var items []domain.Brand
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name").
		Find(&items).Error
	return items, err
}

func (s *Store) ListProducts(ctx context.Context, tenantID string, limit int) ([]domain.Product, error) {
	var items []domain.Product
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&items).Error
	return items, err
}

// SearchProducts matches name or code against a free-text query.
func (s *Store) SearchProducts(ctx context.Context, tenantID string, query string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	var items []domain.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ? AND (name LIKE ? OR code LIKE ?)", tenantID, true, pattern, pattern).
		Order("name").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s *Store) GetProduct(ctx context.Context, tenantID string, id string) (*domain.Product, error) {
	var item domain.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) GetProductByCode(ctx context.Context, tenantID string, code string) (*domain.Product, error) {
	var item domain.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ? AND is_active = ?", tenantID, code, true).
		First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// ListVariants returns the child variant rows of a parent product.
func (s *Store) ListVariants(ctx context.Context, tenantID string, parentID string) ([]domain.Product, error) {
	var items []domain.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND parent_product_id = ? AND is_active = ?", tenantID, parentID, true).
		Order("size, color").
		Find(&items).Error
	return items, err
}

func (s *Store) ListCustomers(ctx context.Context, tenantID string, limit int) ([]domain.Customer, error) {
	var items []domain.Customer
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&items).Error
	return items, err
}

func (s *Store) GetCustomer(ctx context.Context, tenantID string, id string) (*domain.Customer, error) {
	var item domain.Customer
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// GetPriceListPrice resolves a product's price on a specific price list.
func (s *Store) GetPriceListPrice(ctx context.Context, tenantID string, priceListID string, productID string) (*domain.PriceListEntry, error) {
	var entry domain.PriceListEntry
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND price_list_id = ? AND product_id = ? AND is_active = ?", tenantID, priceListID, productID, true).
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

// OrphanVariantIDs reports variants whose parent_product_id does not match
// any product in the same tenant. Pages arrive in arbitrary order, so the
// sync engine checks this after product sync instead of declaring a DB
// foreign key.
func (s *Store) OrphanVariantIDs(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("tenant_id = ? AND parent_product_id IS NOT NULL", tenantID).
		Where("parent_product_id NOT IN (?)",
			s.db.Model(&domain.Product{}).Select("id").Where("tenant_id = ?", tenantID),
		).
		Pluck("id", &ids).Error
	return ids, err
}

// GetSyncState returns the last successful sync time for an entity type, or
// the zero time when that type has never been synced.
func (s *Store) GetSyncState(ctx context.Context, tenantID string, entityType string) (time.Time, error) {
	var state domain.SyncState
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ?", tenantID, entityType).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return state.LastSyncedAt, nil
}

func (s *Store) SetSyncState(ctx context.Context, tenantID string, entityType string, at time.Time) error {
	state := domain.SyncState{TenantID: tenantID, EntityType: entityType, LastSyncedAt: at}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "entity_type"}},
		UpdateAll: true,
	}).Create(&state).Error
	if err != nil {
		return fmt.Errorf("set sync state %s: %w", entityType, err)
	}
	return nil
}
