package promo

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/cart"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/metrics"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
)

// Result is delivered to the completion callback after each reconciliation
// attempt that was not superseded.
type Result struct {
	Key           string
	Applied       bool
	FromCache     bool
	TotalDiscount decimal.Decimal
	Err           error
}

// CompleteFunc receives reconciliation results for the presentation layer.
type CompleteFunc func(Result)

// Reconciler keeps cart-level promotional discounts consistent with the
// remote pricing authority. Cart changes are debounced; each change bumps a
// generation counter, and a finished calculation is applied only when both
// its generation and its content key are still current. Stale results are
// dropped silently. The reconciler never fabricates a discount: on failure
// it keeps the last confirmed state if still current, otherwise resets the
// promotional components to zero.
type Reconciler struct {
	cart    *cart.Engine
	client  *remote.Client
	cache   CalcCache
	log     *zap.Logger
	metrics *metrics.Metrics

	debounce time.Duration
	cacheTTL time.Duration
	timeout  time.Duration

	onComplete CompleteFunc

	mu             sync.Mutex
	generation     uint64
	timer          *time.Timer
	lastKey        string
	lastAppliedKey string
}

type Options struct {
	Debounce   time.Duration
	CacheTTL   time.Duration
	Timeout    time.Duration
	OnComplete CompleteFunc
}

func NewReconciler(cartEngine *cart.Engine, client *remote.Client, cache CalcCache, opts Options, log *zap.Logger, m *metrics.Metrics) *Reconciler {
	if cache == nil {
		cache = NoopCalcCache{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Reconciler{
		cart:       cartEngine,
		client:     client,
		cache:      cache,
		log:        log,
		metrics:    m,
		debounce:   opts.Debounce,
		cacheTTL:   opts.CacheTTL,
		timeout:    opts.Timeout,
		onComplete: opts.OnComplete,
	}
}

// NoteCartChanged is called after every cart mutation. When the content key
// is unchanged nothing happens; otherwise the debounce timer is rearmed so
// only the most recent change within the window triggers a calculation.
// The call never blocks on the network.
func (r *Reconciler) NoteCartChanged() {
	key := r.cart.ContentKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	if key == r.lastKey {
		return
	}
	r.lastKey = key
	r.generation++
	gen := r.generation

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}

	if key == "" {
		// Empty cart: nothing to reconcile.
		r.lastAppliedKey = ""
		return
	}

	r.timer = time.AfterFunc(r.debounce, func() {
		r.calculate(gen, key)
	})
}

// Stop cancels any armed debounce timer.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconciler) superseded(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen != r.generation
}

func (r *Reconciler) calculate(gen uint64, key string) {
	if r.superseded(gen) {
		return
	}

	items := r.cart.DiscountItems()
	customerID := r.cart.CustomerID()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if cached, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		r.apply(gen, key, cached, true)
		return
	}

	reqItems := make([]remote.DiscountRequestItem, 0, len(items))
	for _, item := range items {
		reqItems = append(reqItems, remote.DiscountRequestItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	result, err := r.client.CalculateDiscounts(ctx, reqItems, customerID)
	if err != nil {
		r.degrade(gen, key, err)
		return
	}

	calc := &Calculation{
		Key:           key,
		Items:         mapResults(result.Items),
		TotalDiscount: result.TotalDiscount,
	}
	if err := r.cache.Set(ctx, key, calc, r.cacheTTL); err != nil {
		r.log.Debug("calc cache write failed", zap.Error(err))
	}
	r.apply(gen, key, calc, false)
}

// apply writes a confirmed calculation onto the cart, unless the
// calculation was superseded while in flight.
func (r *Reconciler) apply(gen uint64, key string, calc *Calculation, fromCache bool) {
	if r.superseded(gen) {
		r.metrics.PromoCalcs.WithLabelValues("stale_dropped").Inc()
		return
	}

	applied := r.cart.ApplyPromotionsIfCurrent(key, calc.Items)
	if !applied {
		// The key check at apply-time caught a racing mutation.
		r.metrics.PromoCalcs.WithLabelValues("stale_dropped").Inc()
		return
	}

	r.mu.Lock()
	r.lastAppliedKey = key
	r.mu.Unlock()

	outcome := "applied"
	if fromCache {
		outcome = "cache_hit"
	}
	r.metrics.PromoCalcs.WithLabelValues(outcome).Inc()
	r.complete(Result{Key: key, Applied: true, FromCache: fromCache, TotalDiscount: calc.TotalDiscount})
}

// degrade handles a failed calculation. Prior discount state is preserved
// when it was computed for this same content; otherwise the promotional
// components are reset to zero.
func (r *Reconciler) degrade(gen uint64, key string, err error) {
	if r.superseded(gen) {
		r.metrics.PromoCalcs.WithLabelValues("stale_dropped").Inc()
		return
	}

	r.mu.Lock()
	keepPrior := r.lastAppliedKey == key
	r.mu.Unlock()

	outcome := "error"
	if remote.IsOffline(err) {
		outcome = "offline"
	}
	r.metrics.PromoCalcs.WithLabelValues(outcome).Inc()

	if keepPrior {
		r.log.Debug("discount calculation failed, keeping prior state",
			zap.String("key", key), zap.Error(err))
	} else {
		r.cart.ResetPromotionsIfCurrent(key)
		r.log.Debug("discount calculation failed, promotional discounts reset",
			zap.String("key", key), zap.Error(err))
	}
	r.complete(Result{Key: key, Err: err})
}

func (r *Reconciler) complete(result Result) {
	if r.onComplete != nil {
		r.onComplete(result)
	}
}

func mapResults(items []remote.DiscountResultItem) []domain.LineDiscountResult {
	out := make([]domain.LineDiscountResult, 0, len(items))
	for _, item := range items {
		promos := make([]domain.AppliedPromotion, 0, len(item.Promotions))
		for _, promo := range item.Promotions {
			promos = append(promos, domain.AppliedPromotion{
				PromotionID: promo.ID,
				Name:        promo.Name,
				Type:        promo.Type,
				Discount:    promo.Discount,
			})
		}
		out = append(out, domain.LineDiscountResult{
			ProductID:  item.ProductID,
			Discount:   item.Discount,
			Promotions: promos,
		})
	}
	return out
}
