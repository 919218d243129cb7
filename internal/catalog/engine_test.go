package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/store"
)

// fakeCatalog serves a canned remote catalog. Handlers can be overridden
// per path to simulate failures.
type fakeCatalog struct {
	mu        sync.Mutex
	overrides map[string]http.HandlerFunc
	server    *httptest.Server
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{overrides: make(map[string]http.HandlerFunc)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCatalog) override(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[path] = h
}

func (f *fakeCatalog) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	h, ok := f.overrides[r.URL.Path]
	f.mu.Unlock()
	if ok {
		h(w, r)
		return
	}

	switch r.URL.Path {
	case "/api/categories":
		fmt.Fprint(w, `{"success":true,"data":[{"id":"c1","name":"Drinks","code":"DR","active":true}],"pagination":{"page":1,"pageSize":100,"total":1,"totalPages":1}}`)
	case "/api/brands":
		fmt.Fprint(w, `{"success":true,"data":[{"id":"b1","name":"Acme","code":"AC","active":true}],"pagination":{"page":1,"pageSize":100,"total":1,"totalPages":1}}`)
	case "/api/products":
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page <= 1 {
			fmt.Fprint(w, `{"success":true,"data":[{"id":"p1","code":"100","name":"Soda","price":"10.50","active":true},{"id":"p2","code":"200","name":"Water","price":"5.00","active":true}],"pagination":{"page":1,"pageSize":100,"total":3,"totalPages":2}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[{"id":"p3","code":"300","name":"Juice","price":"7.25","active":true}],"pagination":{"page":2,"pageSize":100,"total":3,"totalPages":2}}`)
	case "/api/promotions/active":
		fmt.Fprint(w, `{"success":true,"data":[{"id":"promo1","name":"Flash","type":"percentage","scope":"all","value":"10"}]}`)
	case "/api/customers":
		fmt.Fprint(w, `{"success":true,"data":[{"id":"cu1","name":"Ana","active":true}],"pagination":{"page":1,"pageSize":100,"total":1,"totalPages":1}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestEngine(t *testing.T, f *fakeCatalog) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	client := remote.NewClient(f.server.URL, "", 2*time.Second, zap.NewNop())
	engine := NewEngine(st, client, Options{TenantID: "t1", PageSize: 100}, zap.NewNop(), nil)
	return engine, st
}

func TestSyncAllSuccess(t *testing.T) {
	f := newFakeCatalog(t)
	engine, st := newTestEngine(t, f)
	ctx := context.Background()

	result := engine.SyncAll(ctx)
	if result.Status != domain.SyncStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.Synced[domain.EntityProducts] != 3 {
		t.Fatalf("expected 3 products synced across pages, got %d", result.Synced[domain.EntityProducts])
	}
	if result.Synced[domain.EntityCategories] != 1 || result.Synced[domain.EntityCustomers] != 1 {
		t.Fatalf("unexpected counts: %v", result.Synced)
	}

	products, err := st.ListProducts(ctx, "t1", 0)
	if err != nil || len(products) != 3 {
		t.Fatalf("expected 3 products locally, got %d (%v)", len(products), err)
	}
	if !engine.IsCacheValid(ctx, time.Minute) {
		t.Fatalf("cache should be valid right after a successful sync")
	}
}

func TestSyncAllIsIdempotent(t *testing.T) {
	f := newFakeCatalog(t)
	engine, st := newTestEngine(t, f)
	ctx := context.Background()

	engine.SyncAll(ctx)
	engine.SyncAll(ctx)

	products, _ := st.ListProducts(ctx, "t1", 0)
	if len(products) != 3 {
		t.Fatalf("double sync must not duplicate rows, got %d", len(products))
	}
}

func TestSyncProductsPage2NetworkErrorReportsOffline(t *testing.T) {
	f := newFakeCatalog(t)
	f.override("/api/products", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"success":true,"data":[{"id":"p1","code":"100","name":"Soda","price":"10.50","active":true},{"id":"p2","code":"200","name":"Water","price":"5.00","active":true}],"pagination":{"page":1,"pageSize":100,"total":3,"totalPages":2}}`)
			return
		}
		// Simulate the network dropping mid-sync.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatalf("hijack unsupported")
		}
		conn, _, _ := hj.Hijack()
		conn.Close()
	})

	engine, st := newTestEngine(t, f)
	ctx := context.Background()

	result := engine.SyncAll(ctx)
	if result.Status != domain.SyncStatusOffline {
		t.Fatalf("expected OFFLINE, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.Synced[domain.EntityProducts] != 2 {
		t.Fatalf("count must reflect only page 1, got %d", result.Synced[domain.EntityProducts])
	}

	// Page-1 entities remain present and queryable.
	if _, err := st.GetProduct(ctx, "t1", "p1"); err != nil {
		t.Fatalf("page-1 product must survive the failure: %v", err)
	}
	if _, err := st.GetProduct(ctx, "t1", "p3"); err == nil {
		t.Fatalf("page-2 product must not exist")
	}

	// No overall success stamp on a non-SUCCESS run.
	if engine.IsCacheValid(ctx, time.Minute) {
		t.Fatalf("cache must not be stamped valid after an OFFLINE run")
	}
}

func TestSyncStepFailureDoesNotAbortLaterSteps(t *testing.T) {
	f := newFakeCatalog(t)
	f.override("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"error":{"code":"validation","message":"bad request"}}`)
	})

	engine, st := newTestEngine(t, f)
	ctx := context.Background()

	result := engine.SyncAll(ctx)
	if result.Status != domain.SyncStatusError {
		t.Fatalf("expected ERROR for a non-network failure, got %s", result.Status)
	}
	if !strings.Contains(result.ErrorMessage, "categories") {
		t.Fatalf("expected failing step in message, got %q", result.ErrorMessage)
	}

	// Later steps ran anyway.
	products, _ := st.ListProducts(ctx, "t1", 0)
	if len(products) != 3 {
		t.Fatalf("products should still have synced, got %d", len(products))
	}
}

func TestMalformedRecordIsSkippedNotFatal(t *testing.T) {
	f := newFakeCatalog(t)
	f.override("/api/products", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[{"id":"p1","code":"100","name":"Soda","price":"10.50","active":true},{"id":"bad","parentProductId":"bad","name":"SelfRef","price":"1.00","active":true},{"id":"","name":"NoID","price":"1.00"}],"pagination":{"page":1,"pageSize":100,"total":3,"totalPages":1}}`)
	})

	engine, st := newTestEngine(t, f)
	ctx := context.Background()

	result := engine.SyncAll(ctx)
	if result.Status != domain.SyncStatusSuccess {
		t.Fatalf("corrupt records must not fail the page: %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.Synced[domain.EntityProducts] != 1 {
		t.Fatalf("expected 1 valid product, got %d", result.Synced[domain.EntityProducts])
	}

	products, _ := st.ListProducts(ctx, "t1", 0)
	if len(products) != 1 || products[0].ID != "p1" {
		t.Fatalf("unexpected products after skip: %+v", products)
	}
}

func TestConcurrentSyncAllRejected(t *testing.T) {
	f := newFakeCatalog(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.override("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		fmt.Fprint(w, `{"success":true,"data":[],"pagination":{"page":1,"pageSize":100,"total":0,"totalPages":1}}`)
	})

	engine, _ := newTestEngine(t, f)

	var firstResult domain.SyncResult
	done := make(chan struct{})
	go func() {
		firstResult = engine.SyncAll(context.Background())
		close(done)
	}()

	// The first run is now inside its first step and holds the lock.
	<-entered
	second := engine.SyncAll(context.Background())
	if second.Status != domain.SyncStatusError || !strings.Contains(second.ErrorMessage, "already running") {
		t.Fatalf("expected already-running rejection, got %s (%s)", second.Status, second.ErrorMessage)
	}

	close(release)
	<-done
	if firstResult.Status != domain.SyncStatusSuccess {
		t.Fatalf("first run should finish normally, got %s", firstResult.Status)
	}
}

func TestActivePromotionsRefetchesInBackground(t *testing.T) {
	f := newFakeCatalog(t)
	engine, _ := newTestEngine(t, f)

	// Cold cache: the read returns immediately (empty) and arms a refetch.
	if promos := engine.ActivePromotions(context.Background()); len(promos) != 0 {
		t.Fatalf("cold cache must return what is cached (nothing), got %d", len(promos))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if promos := engine.ActivePromotions(context.Background()); len(promos) == 1 {
			if promos[0].ID != "promo1" {
				t.Fatalf("unexpected promotion: %+v", promos[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("background refetch never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProductByBarcodeRemoteFallback(t *testing.T) {
	f := newFakeCatalog(t)
	f.override("/api/products/by-code", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") != "779" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"id":"p9","code":"779","name":"Imported","price":"3.50","active":true}}`)
	})

	engine, st := newTestEngine(t, f)
	ctx := context.Background()

	product, err := engine.ProductByBarcode(ctx, "779")
	if err != nil {
		t.Fatalf("barcode fallback failed: %v", err)
	}
	if product.ID != "p9" {
		t.Fatalf("expected p9, got %s", product.ID)
	}

	// The result was cached opportunistically.
	cached, err := st.GetProductByCode(ctx, "t1", "779")
	if err != nil || cached.ID != "p9" {
		t.Fatalf("expected opportunistic upsert, got %v (%v)", cached, err)
	}

	if _, err := engine.ProductByBarcode(ctx, "no-such"); err == nil {
		t.Fatalf("unknown code must stay not found")
	}
}
