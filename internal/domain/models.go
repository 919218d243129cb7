package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Catalog entities are mirrored from the remote system and written only by
// the synchronization engine. The remote snapshot is authoritative for every
// field it carries, including is_active.

type Category struct {
	TenantID     string    `gorm:"primaryKey;size:64;uniqueIndex:uq_categories_tenant_remote" json:"tenant_id"`
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RemoteID     *string   `gorm:"size:64;uniqueIndex:uq_categories_tenant_remote" json:"remote_id,omitempty"`
	Name         string    `gorm:"index;not null" json:"name"`
	Code         string    `gorm:"size:64" json:"code"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Brand struct {
	TenantID     string    `gorm:"primaryKey;size:64;uniqueIndex:uq_brands_tenant_remote" json:"tenant_id"`
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RemoteID     *string   `gorm:"size:64;uniqueIndex:uq_brands_tenant_remote" json:"remote_id,omitempty"`
	Name         string    `gorm:"index;not null" json:"name"`
	Code         string    `gorm:"size:64" json:"code"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Product models both simple products and parent/variant participants.
// IsParent=true means the row is a template grouping variant rows that
// reference it via ParentProductID and carry their own code and stock.
type Product struct {
	TenantID        string          `gorm:"primaryKey;size:64;uniqueIndex:uq_products_tenant_remote" json:"tenant_id"`
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	RemoteID        *string         `gorm:"size:64;uniqueIndex:uq_products_tenant_remote" json:"remote_id,omitempty"`
	Code            string          `gorm:"index;size:64" json:"code"`
	Name            string          `gorm:"index;not null" json:"name"`
	Description     string          `json:"description"`
	CategoryID      *string         `gorm:"size:64;index" json:"category_id,omitempty"`
	BrandID         *string         `gorm:"size:64;index" json:"brand_id,omitempty"`
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Cost            decimal.Decimal `gorm:"type:decimal(12,2)" json:"cost"`
	Stock           decimal.Decimal `gorm:"type:decimal(12,3)" json:"stock"`
	IsParent        bool            `gorm:"not null;default:false" json:"is_parent"`
	ParentProductID *string         `gorm:"size:64;index" json:"parent_product_id,omitempty"`
	Size            string          `gorm:"size:32" json:"size"`
	Color           string          `gorm:"size:32" json:"color"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	LastSyncedAt    time.Time       `json:"last_synced_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Customer struct {
	TenantID     string    `gorm:"primaryKey;size:64;uniqueIndex:uq_customers_tenant_remote" json:"tenant_id"`
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RemoteID     *string   `gorm:"size:64;uniqueIndex:uq_customers_tenant_remote" json:"remote_id,omitempty"`
	Name         string    `gorm:"index;not null" json:"name"`
	DocNumber    string    `gorm:"size:32;index" json:"doc_number"`
	Email        string    `gorm:"size:128" json:"email"`
	Phone        string    `gorm:"size:32" json:"phone"`
	PriceListID  *string   `gorm:"size:64" json:"price_list_id,omitempty"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriceListEntry rows arrive embedded in product payloads and are upserted
// in the same page transaction as their product. They carry no remote id of
// their own; the primary key is the deterministic priceListID/productID pair.
type PriceListEntry struct {
	TenantID     string          `gorm:"primaryKey;size:64;uniqueIndex:uq_price_entries_tenant_remote" json:"tenant_id"`
	ID           string          `gorm:"primaryKey;size:130" json:"id"`
	RemoteID     *string         `gorm:"size:64;uniqueIndex:uq_price_entries_tenant_remote" json:"remote_id,omitempty"`
	PriceListID  string          `gorm:"size:64;index:idx_price_entries_lookup" json:"price_list_id"`
	ProductID    string          `gorm:"size:64;index:idx_price_entries_lookup" json:"product_id"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	IsActive     bool            `gorm:"not null;default:true" json:"is_active"`
	LastSyncedAt time.Time       `json:"last_synced_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SyncState keeps one last-successful-sync stamp per entity type plus the
// SyncStateAll row updated only when a full sync_all run succeeds.
type SyncState struct {
	TenantID     string    `gorm:"primaryKey;size:64" json:"tenant_id"`
	EntityType   string    `gorm:"primaryKey;size:32" json:"entity_type"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SyncResult struct {
	Status       string         `json:"status"`
	Synced       map[string]int `json:"synced"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	Elapsed      time.Duration  `json:"elapsed"`
}

// TotalSynced sums the per-entity upsert counts of a run.
func (r SyncResult) TotalSynced() int {
	total := 0
	for _, n := range r.Synced {
		total += n
	}
	return total
}

const (
	SyncStatusSuccess = "SUCCESS"
	SyncStatusOffline = "OFFLINE"
	SyncStatusError   = "ERROR"
)

const (
	EntityCategories = "categories"
	EntityBrands     = "brands"
	EntityProducts   = "products"
	EntityPromotions = "promotions"
	EntityCustomers  = "customers"
	SyncStateAll     = "all"
)
