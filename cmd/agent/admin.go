package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/catalog"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/opqueue"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/till"
)

// adminDeps is what the local admin listener exposes. The listener is
// operational plumbing for the terminal itself, not the presentation layer.
type adminDeps struct {
	catalog  *catalog.Engine
	queue    *opqueue.Queue
	gate     *till.Gate
	registry *prometheus.Registry
}

type statusResponse struct {
	LastFullSync     *time.Time `json:"last_full_sync,omitempty"`
	CacheValid       bool       `json:"cache_valid"`
	QueueDepth       int64      `json:"queue_depth"`
	Session          string     `json:"session"`
	PromosFetchedAt  *time.Time `json:"promos_fetched_at,omitempty"`
	PromotionsCached int        `json:"promotions_cached"`
}

func newAdminHandler(deps adminDeps, cacheMaxAge time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := statusResponse{
			CacheValid: deps.catalog.IsCacheValid(ctx, cacheMaxAge),
			Session:    deps.gate.DisplayText(),
		}
		if last := deps.catalog.LastFullSync(ctx); !last.IsZero() {
			resp.LastFullSync = &last
		}
		if fetched := deps.catalog.PromotionsFetchedAt(); !fetched.IsZero() {
			resp.PromosFetchedAt = &fetched
		}
		resp.PromotionsCached = len(deps.catalog.ActivePromotions(ctx))
		if depth, err := deps.queue.Depth(ctx); err == nil {
			resp.QueueDepth = depth
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	return mux
}
