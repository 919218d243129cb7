package catalog

import (
	"fmt"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
)

// Mapping from wire payloads to domain entities happens here, at the
// boundary. A record that fails mapping is skipped by the caller; it must
// never abort its page.

func (e *Engine) mapCategory(item remote.Category) (domain.Category, error) {
	if item.ID == "" {
		return domain.Category{}, fmt.Errorf("category without id")
	}
	remoteID := item.ID
	return domain.Category{
		TenantID:     e.tenantID,
		ID:           item.ID,
		RemoteID:     &remoteID,
		Name:         item.Name,
		Code:         item.Code,
		IsActive:     item.Active,
		LastSyncedAt: time.Now().UTC(),
	}, nil
}

func (e *Engine) mapBrand(item remote.Brand) (domain.Brand, error) {
	if item.ID == "" {
		return domain.Brand{}, fmt.Errorf("brand without id")
	}
	remoteID := item.ID
	return domain.Brand{
		TenantID:     e.tenantID,
		ID:           item.ID,
		RemoteID:     &remoteID,
		Name:         item.Name,
		Code:         item.Code,
		IsActive:     item.Active,
		LastSyncedAt: time.Now().UTC(),
	}, nil
}

func (e *Engine) mapProduct(item remote.Product) (domain.Product, []domain.PriceListEntry, error) {
	if item.ID == "" {
		return domain.Product{}, nil, fmt.Errorf("product without id")
	}
	if item.ParentProductID != nil && *item.ParentProductID == item.ID {
		return domain.Product{}, nil, fmt.Errorf("product %s references itself as parent", item.ID)
	}
	if item.Price.IsNegative() {
		return domain.Product{}, nil, fmt.Errorf("product %s has negative price", item.ID)
	}

	now := time.Now().UTC()
	remoteID := item.ID
	product := domain.Product{
		TenantID:        e.tenantID,
		ID:              item.ID,
		RemoteID:        &remoteID,
		Code:            item.Code,
		Name:            item.Name,
		Description:     item.Description,
		CategoryID:      item.CategoryID,
		BrandID:         item.BrandID,
		Price:           item.Price,
		Cost:            item.Cost,
		Stock:           item.Stock,
		IsParent:        item.IsParent,
		ParentProductID: item.ParentProductID,
		Size:            item.Size,
		Color:           item.Color,
		IsActive:        item.Active,
		LastSyncedAt:    now,
	}

	entries := make([]domain.PriceListEntry, 0, len(item.PriceEntries))
	for _, entry := range item.PriceEntries {
		if entry.PriceListID == "" {
			continue
		}
		entries = append(entries, domain.PriceListEntry{
			TenantID:     e.tenantID,
			ID:           entry.PriceListID + "/" + item.ID,
			PriceListID:  entry.PriceListID,
			ProductID:    item.ID,
			Price:        entry.Price,
			IsActive:     true,
			LastSyncedAt: now,
		})
	}
	return product, entries, nil
}

func (e *Engine) mapCustomer(item remote.Customer) (domain.Customer, error) {
	if item.ID == "" {
		return domain.Customer{}, fmt.Errorf("customer without id")
	}
	remoteID := item.ID
	return domain.Customer{
		TenantID:     e.tenantID,
		ID:           item.ID,
		RemoteID:     &remoteID,
		Name:         item.Name,
		DocNumber:    item.DocNumber,
		Email:        item.Email,
		Phone:        item.Phone,
		PriceListID:  item.PriceListID,
		IsActive:     item.Active,
		LastSyncedAt: time.Now().UTC(),
	}, nil
}

func mapPromotion(item remote.Promotion) (domain.Promotion, error) {
	if item.ID == "" {
		return domain.Promotion{}, fmt.Errorf("promotion without id")
	}
	return domain.Promotion{
		ID:          item.ID,
		Name:        item.Name,
		Type:        item.Type,
		Scope:       item.Scope,
		ProductIDs:  item.ProductIDs,
		CategoryIDs: item.CategoryIDs,
		BrandIDs:    item.BrandIDs,
		Value:       item.Value,
		BuyQty:      item.BuyQty,
		GetQty:      item.GetQty,
		StartsAt:    item.StartsAt,
		EndsAt:      item.EndsAt,
	}, nil
}
