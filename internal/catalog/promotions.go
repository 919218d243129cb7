package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
)

// Promotion definitions live only in memory. Each successful fetch replaces
// the whole slice atomically; partial updates never happen.

func (e *Engine) syncPromotions(ctx context.Context) (int, error) {
	items, err := e.client.ListPromotions(ctx)
	if err != nil {
		return 0, err
	}

	mapped := make([]domain.Promotion, 0, len(items))
	for _, item := range items {
		promo, err := mapPromotion(item)
		if err != nil {
			e.log.Warn("skipping malformed promotion", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		mapped = append(mapped, promo)
	}

	e.promoMu.Lock()
	e.promos = mapped
	e.promosFetchedAt = time.Now().UTC()
	e.promoMu.Unlock()

	return len(mapped), nil
}

// ActivePromotions returns the promotions valid right now from the cache,
// possibly stale, without blocking. When the cache is empty or older than
// the TTL a background refetch is started; concurrent reads share one
// in-flight fetch.
func (e *Engine) ActivePromotions(ctx context.Context) []domain.Promotion {
	e.promoMu.RLock()
	cached := e.promos
	fetchedAt := e.promosFetchedAt
	e.promoMu.RUnlock()

	if fetchedAt.IsZero() || time.Since(fetchedAt) > e.promoTTL {
		go func() {
			_, _, _ = e.refetch.Do("promotions", func() (any, error) {
				refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				count, err := e.syncPromotions(refreshCtx)
				if err != nil {
					e.log.Debug("background promotion refetch failed", zap.Error(err))
				}
				return count, err
			})
		}()
	}

	now := time.Now().UTC()
	active := make([]domain.Promotion, 0, len(cached))
	for _, promo := range cached {
		if promo.ActiveAt(now) {
			active = append(active, promo)
		}
	}
	return active
}

// PromotionsFetchedAt reports when the definition cache was last replaced.
func (e *Engine) PromotionsFetchedAt() time.Time {
	e.promoMu.RLock()
	defer e.promoMu.RUnlock()
	return e.promosFetchedAt
}
