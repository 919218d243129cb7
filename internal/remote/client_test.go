package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL, "test-token", 2*time.Second, zap.NewNop())
	c.backoff = time.Millisecond
	return c
}

func TestListProductsDecodesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "1" {
			t.Errorf("expected page=1, got %q", got)
		}
		fmt.Fprint(w, `{"success":true,"data":[{"id":"p1","code":"779","name":"Soda","price":"10.50","active":true}],"pagination":{"page":1,"pageSize":100,"total":1,"totalPages":1}}`)
	}))
	defer server.Close()

	items, pg, err := newTestClient(server.URL).ListProducts(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "p1" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].Price.StringFixed(2) != "10.50" {
		t.Fatalf("expected price 10.50, got %s", items[0].Price)
	}
	if pg.HasMore() {
		t.Fatalf("expected single page")
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"success":false,"error":{"code":"internal","message":"boom"}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	defer server.Close()

	_, _, err := newTestClient(server.URL).ListCategories(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"error":{"code":"validation","message":"bad page"}}`)
	}))
	defer server.Close()

	_, _, err := newTestClient(server.URL).ListCategories(context.Background(), 1, 100)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Retryable() {
		t.Fatalf("400 must not be retryable")
	}
	if apiErr.Code != "validation" {
		t.Fatalf("expected structured error code, got %q", apiErr.Code)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestNotFoundLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetProductByCode(context.Background(), "no-such")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnreachableHostIsOffline(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, _, err := client.ListBrands(context.Background(), 1, 100)
	if !IsOffline(err) {
		t.Fatalf("expected offline classification, got %v", err)
	}
}

func TestAuthFailureFlagged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"success":false,"error":{"code":"unauthorized","message":"token expired"}}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListPromotions(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.AuthExpired() {
		t.Fatalf("expected auth-expired flag for 401")
	}
}
