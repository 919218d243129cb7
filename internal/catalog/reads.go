package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/store"
)

// Read helpers serve the interaction thread straight from the Local Store.
// They prefer best-effort cached data over raising; only the barcode lookup
// falls through to a remote point query.

func (e *Engine) LocalProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return e.store.ListProducts(ctx, e.tenantID, limit)
}

func (e *Engine) LocalCategories(ctx context.Context) ([]domain.Category, error) {
	return e.store.ListCategories(ctx, e.tenantID)
}

func (e *Engine) LocalBrands(ctx context.Context) ([]domain.Brand, error) {
	return e.store.ListBrands(ctx, e.tenantID)
}

func (e *Engine) LocalCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return e.store.ListCustomers(ctx, e.tenantID, limit)
}

func (e *Engine) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	return e.store.SearchProducts(ctx, e.tenantID, query, limit)
}

func (e *Engine) ProductVariants(ctx context.Context, parentID string) ([]domain.Product, error) {
	return e.store.ListVariants(ctx, e.tenantID, parentID)
}

// ProductByBarcode looks the code up locally first and falls back to one
// remote point query on a miss, opportunistically caching the result. When
// the remote is unreachable the local miss stands.
func (e *Engine) ProductByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	product, err := e.store.GetProductByCode(ctx, e.tenantID, code)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	item, err := e.client.GetProductByCode(ctx, code)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) || remote.IsOffline(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	mapped, entries, err := e.mapProduct(*item)
	if err != nil {
		return nil, store.ErrNotFound
	}
	if err := e.store.UpsertProductsPage(ctx, []domain.Product{mapped}, entries); err != nil {
		e.log.Warn("opportunistic product upsert failed", zap.String("code", code), zap.Error(err))
	}
	return &mapped, nil
}
