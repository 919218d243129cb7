package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/cart"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/catalog"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/config"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/logger"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/metrics"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/opqueue"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/promo"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/session"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/store"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/till"
)

const replayInterval = time.Minute

func main() {
	cfg := config.Load()
	if err := logger.Init(cfg.AppEnv, cfg.LogLevel); err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	log := logger.L()
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	tenantID := "local"
	sess, err := session.FromToken(cfg.APIToken)
	switch {
	case err == nil:
		tenantID = sess.TenantID
		if sess.Expired(time.Now()) {
			log.Warn("API token is expired, remote calls will be rejected",
				zap.Time("expired_at", sess.ExpiresAt))
		}
	case errors.Is(err, session.ErrNoToken):
		log.Warn("no API token configured, local records use tenant \"local\"")
	default:
		log.Fatal("invalid API token", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]func() error, 0, 2)

	st, err := store.Open(cfg.StoreDriver, storeDSN(cfg))
	if err != nil {
		log.Fatal("open local store", zap.Error(err))
	}
	closers = append(closers, st.Close)
	log.Info("local store ready", zap.String("driver", cfg.StoreDriver))

	client := remote.NewClient(cfg.APIBaseURL, cfg.APIToken,
		time.Duration(cfg.HTTPTimeoutSeconds)*time.Second, log.Named("remote"))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var calcCache promo.CalcCache = promo.NewMemoryCalcCache()
	if cfg.RedisAddr != "" {
		redisCache := promo.NewRedisCalcCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, using in-process calculation cache", zap.Error(err))
		} else {
			calcCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("calculation cache: redis")
		}
	}

	cartEngine := cart.NewEngine(cart.Limits{
		MaxItems:           cfg.CartMaxItems,
		MaxItemQty:         cfg.CartMaxItemQty,
		MaxDiscountPercent: cfg.CartMaxDiscountPercent,
	}, log.Named("cart"))

	catalogEngine := catalog.NewEngine(st, client, catalog.Options{
		TenantID: tenantID,
		PageSize: cfg.SyncPageSize,
		PromoTTL: time.Duration(cfg.PromoTTLMinutes) * time.Minute,
		OnComplete: func(result domain.SyncResult) {
			log.Info("sync finished",
				zap.String("status", result.Status),
				zap.Int("synced", result.TotalSynced()),
				zap.Duration("elapsed", result.Elapsed))
		},
	}, log.Named("catalog"), m)

	queue, err := opqueue.New(st, client, opqueue.Options{
		TenantID:   tenantID,
		MaxRetries: cfg.QueueMaxRetries,
		SealKey:    cfg.SealKey(),
	}, log.Named("queue"), m)
	if err != nil {
		log.Fatal("offline queue", zap.Error(err))
	}
	if _, err := queue.Recover(ctx); err != nil {
		log.Error("queue recovery", zap.Error(err))
	}

	gate := till.NewGate(client, till.Options{
		PosID:    cfg.PosID,
		Required: cfg.SessionRequired,
	}, log.Named("till"), m)

	reconciler := promo.NewReconciler(cartEngine, client, calcCache, promo.Options{
		Debounce: time.Duration(cfg.PromoDebounceMS) * time.Millisecond,
		CacheTTL: time.Duration(cfg.PromoTTLMinutes) * time.Minute,
		Timeout:  time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		OnComplete: func(result promo.Result) {
			if result.Err != nil {
				log.Debug("promotion reconciliation degraded", zap.Error(result.Err))
			}
		},
	}, log.Named("promo"), m)

	go runSyncLoop(ctx, catalogEngine, time.Duration(cfg.SyncIntervalMinutes)*time.Minute, log)
	go runReplayLoop(ctx, queue, log)
	go runSessionLoop(ctx, gate, time.Duration(cfg.SessionPollMinutes)*time.Minute, log)

	server := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: newAdminHandler(adminDeps{
			catalog:  catalogEngine,
			queue:    queue,
			gate:     gate,
			registry: registry,
		}, time.Duration(cfg.SyncIntervalMinutes)*time.Minute),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("admin listener ready", zap.String("addr", cfg.AdminAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("admin listener", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin shutdown", zap.Error(err))
	}
	reconciler.Stop()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}
	log.Info("stopped")
}

// storeDSN picks the data source for the configured driver: a file path for
// sqlite, a connection string for postgres.
func storeDSN(cfg config.Config) string {
	if cfg.StoreDriver == "postgres" {
		return cfg.StoreDSN
	}
	return cfg.StorePath
}

// runSyncLoop performs the startup catalog sync and repeats it on the
// configured interval. A startup with a still-fresh cache skips the
// immediate run so restarts do not hammer the remote.
func runSyncLoop(ctx context.Context, engine *catalog.Engine, interval time.Duration, log *zap.Logger) {
	if !engine.IsCacheValid(ctx, interval) {
		engine.SyncAll(ctx)
	} else {
		log.Info("catalog cache still fresh, skipping startup sync")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.SyncAll(ctx)
		}
	}
}

// runReplayLoop drains the offline queue periodically. Each pass gives every
// eligible operation a single attempt.
func runReplayLoop(ctx context.Context, queue *opqueue.Queue, log *zap.Logger) {
	ticker := time.NewTicker(replayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			completed, failed, err := queue.ReplayPending(ctx)
			if err != nil {
				log.Error("queue replay pass", zap.Error(err))
			}
			if completed > 0 || failed > 0 {
				log.Info("queue replay pass",
					zap.Int("completed", completed),
					zap.Int("failed", failed))
			}
		}
	}
}

// runSessionLoop keeps the cash-session mirror current.
func runSessionLoop(ctx context.Context, gate *till.Gate, interval time.Duration, log *zap.Logger) {
	if err := gate.Refresh(ctx); err != nil && !remote.IsOffline(err) {
		log.Warn("initial session refresh", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := gate.Refresh(ctx); err != nil && !remote.IsOffline(err) {
				log.Warn("session refresh", zap.Error(err))
			}
		}
	}
}
