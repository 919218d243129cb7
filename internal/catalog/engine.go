package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/metrics"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/store"
)

// ErrSyncRunning is returned when SyncAll is called while another run is in
// flight. The caller gets an immediate ERROR result instead of queueing.
var ErrSyncRunning = errors.New("catalog sync already running")

// ProgressFunc receives sync progress for the presentation layer.
type ProgressFunc func(message string, current int, total int)

// CompleteFunc receives the final result of a sync run.
type CompleteFunc func(domain.SyncResult)

// Engine brings the Local Store to eventual parity with the remote catalog.
// Partial failure is tolerated per page and per entity type; previously
// synced data is never corrupted by a failed run.
type Engine struct {
	store    *store.Store
	client   *remote.Client
	tenantID string
	pageSize int
	promoTTL time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics

	syncMu sync.Mutex

	promoMu         sync.RWMutex
	promos          []domain.Promotion
	promosFetchedAt time.Time
	refetch         singleflight.Group

	onProgress ProgressFunc
	onComplete CompleteFunc
}

type Options struct {
	TenantID   string
	PageSize   int
	PromoTTL   time.Duration
	OnProgress ProgressFunc
	OnComplete CompleteFunc
}

func NewEngine(st *store.Store, client *remote.Client, opts Options, log *zap.Logger, m *metrics.Metrics) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.PromoTTL <= 0 {
		opts.PromoTTL = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Engine{
		store:      st,
		client:     client,
		tenantID:   opts.TenantID,
		pageSize:   opts.PageSize,
		promoTTL:   opts.PromoTTL,
		log:        log,
		metrics:    m,
		onProgress: opts.OnProgress,
		onComplete: opts.OnComplete,
	}
}

type syncStep struct {
	entity string
	run    func(ctx context.Context) (int, error)
}

// SyncAll refreshes every entity collection in fixed order. Steps are
// independent: a failure in one is recorded and the rest still run. At most
// one SyncAll executes at a time; a concurrent call returns an ERROR result
// immediately.
func (e *Engine) SyncAll(ctx context.Context) domain.SyncResult {
	startedAt := time.Now().UTC()

	if !e.syncMu.TryLock() {
		result := domain.SyncResult{
			Status:       domain.SyncStatusError,
			Synced:       map[string]int{},
			ErrorMessage: ErrSyncRunning.Error(),
			StartedAt:    startedAt,
		}
		e.metrics.SyncRuns.WithLabelValues(result.Status).Inc()
		return result
	}
	defer e.syncMu.Unlock()

	steps := []syncStep{
		{domain.EntityCategories, e.syncCategories},
		{domain.EntityBrands, e.syncBrands},
		{domain.EntityProducts, e.syncProducts},
		{domain.EntityPromotions, e.syncPromotions},
		{domain.EntityCustomers, e.syncCustomers},
	}

	result := domain.SyncResult{
		Status:    domain.SyncStatusSuccess,
		Synced:    make(map[string]int, len(steps)),
		StartedAt: startedAt,
	}
	allFailuresOffline := true
	failed := 0

	for i, step := range steps {
		e.progress(fmt.Sprintf("syncing %s", step.entity), i+1, len(steps))

		count, err := step.run(ctx)
		result.Synced[step.entity] = count
		if err != nil {
			failed++
			if !remote.IsOffline(err) {
				allFailuresOffline = false
			}
			result.ErrorMessage = fmt.Sprintf("%s: %v", step.entity, err)
			e.log.Warn("sync step failed",
				zap.String("entity", step.entity),
				zap.Int("synced", count),
				zap.Error(err))
			continue
		}

		e.metrics.SyncedEntities.WithLabelValues(step.entity).Add(float64(count))
		if err := e.store.SetSyncState(ctx, e.tenantID, step.entity, time.Now().UTC()); err != nil {
			e.log.Warn("record sync state failed", zap.String("entity", step.entity), zap.Error(err))
		}
	}

	if failed > 0 {
		if allFailuresOffline {
			result.Status = domain.SyncStatusOffline
		} else {
			result.Status = domain.SyncStatusError
		}
	}

	result.Elapsed = time.Since(startedAt)
	if result.Status == domain.SyncStatusSuccess {
		now := time.Now().UTC()
		if err := e.store.SetSyncState(ctx, e.tenantID, domain.SyncStateAll, now); err != nil {
			e.log.Warn("record full sync state failed", zap.Error(err))
		}
		e.metrics.SyncLastSuccess.Set(float64(now.Unix()))
	}

	e.metrics.SyncRuns.WithLabelValues(result.Status).Inc()
	e.metrics.SyncDuration.Observe(result.Elapsed.Seconds())
	e.log.Info("sync finished",
		zap.String("status", result.Status),
		zap.Any("synced", result.Synced),
		zap.Duration("elapsed", result.Elapsed))

	if e.onComplete != nil {
		e.onComplete(result)
	}
	return result
}

func (e *Engine) progress(message string, current int, total int) {
	if e.onProgress != nil {
		e.onProgress(message, current, total)
	}
}

func (e *Engine) syncCategories(ctx context.Context) (int, error) {
	count := 0
	for page := 1; ; page++ {
		items, pg, err := e.client.ListCategories(ctx, page, e.pageSize)
		if err != nil {
			return count, err
		}

		mapped := make([]domain.Category, 0, len(items))
		for _, item := range items {
			cat, err := e.mapCategory(item)
			if err != nil {
				e.log.Warn("skipping malformed category", zap.String("id", item.ID), zap.Error(err))
				continue
			}
			mapped = append(mapped, cat)
		}
		if err := e.store.UpsertCategoriesPage(ctx, mapped); err != nil {
			return count, fmt.Errorf("upsert categories page %d: %w", page, err)
		}
		count += len(mapped)

		if !pg.HasMore() {
			return count, nil
		}
	}
}

func (e *Engine) syncBrands(ctx context.Context) (int, error) {
	count := 0
	for page := 1; ; page++ {
		items, pg, err := e.client.ListBrands(ctx, page, e.pageSize)
		if err != nil {
			return count, err
		}

		mapped := make([]domain.Brand, 0, len(items))
		for _, item := range items {
			brand, err := e.mapBrand(item)
			if err != nil {
				e.log.Warn("skipping malformed brand", zap.String("id", item.ID), zap.Error(err))
				continue
			}
			mapped = append(mapped, brand)
		}
		if err := e.store.UpsertBrandsPage(ctx, mapped); err != nil {
			return count, fmt.Errorf("upsert brands page %d: %w", page, err)
		}
		count += len(mapped)

		if !pg.HasMore() {
			return count, nil
		}
	}
}

func (e *Engine) syncProducts(ctx context.Context) (int, error) {
	count := 0
	for page := 1; ; page++ {
		items, pg, err := e.client.ListProducts(ctx, page, e.pageSize)
		if err != nil {
			return count, err
		}

		products := make([]domain.Product, 0, len(items))
		entries := make([]domain.PriceListEntry, 0)
		for _, item := range items {
			product, itemEntries, err := e.mapProduct(item)
			if err != nil {
				e.log.Warn("skipping malformed product", zap.String("id", item.ID), zap.Error(err))
				continue
			}
			products = append(products, product)
			entries = append(entries, itemEntries...)
		}
		if err := e.store.UpsertProductsPage(ctx, products, entries); err != nil {
			return count, fmt.Errorf("upsert products page %d: %w", page, err)
		}
		count += len(products)

		if !pg.HasMore() {
			break
		}
	}

	// Pages arrive in arbitrary order, so parent integrity is checked after
	// the whole collection is in.
	if orphans, err := e.store.OrphanVariantIDs(ctx, e.tenantID); err == nil && len(orphans) > 0 {
		e.log.Warn("variants reference missing parents", zap.Strings("variant_ids", orphans))
	}
	return count, nil
}

func (e *Engine) syncCustomers(ctx context.Context) (int, error) {
	count := 0
	for page := 1; ; page++ {
		items, pg, err := e.client.ListCustomers(ctx, page, e.pageSize)
		if err != nil {
			return count, err
		}

		mapped := make([]domain.Customer, 0, len(items))
		for _, item := range items {
			customer, err := e.mapCustomer(item)
			if err != nil {
				e.log.Warn("skipping malformed customer", zap.String("id", item.ID), zap.Error(err))
				continue
			}
			mapped = append(mapped, customer)
		}
		if err := e.store.UpsertCustomersPage(ctx, mapped); err != nil {
			return count, fmt.Errorf("upsert customers page %d: %w", page, err)
		}
		count += len(mapped)

		if !pg.HasMore() {
			return count, nil
		}
	}
}

// IsCacheValid reports whether the last fully successful sync is younger
// than maxAge. Callers use it to decide whether to force a resync before a
// critical path.
func (e *Engine) IsCacheValid(ctx context.Context, maxAge time.Duration) bool {
	last, err := e.store.GetSyncState(ctx, e.tenantID, domain.SyncStateAll)
	if err != nil || last.IsZero() {
		return false
	}
	return time.Since(last) <= maxAge
}

// LastFullSync returns the time of the last fully successful sync, zero when
// the store has never been synced. The zero value lets callers distinguish
// "no data, never synced" from "stale but available".
func (e *Engine) LastFullSync(ctx context.Context) time.Time {
	last, err := e.store.GetSyncState(ctx, e.tenantID, domain.SyncStateAll)
	if err != nil {
		return time.Time{}
	}
	return last
}
