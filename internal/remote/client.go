package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client is the typed HTTP client for the remote catalog and pricing
// authority. Transient failures (network, 5xx) are retried with linear
// backoff; 4xx responses are returned as-is and never retried.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger

	maxAttempts int
	backoff     time.Duration
}

func NewClient(baseURL string, token string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL:     baseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) ListCategories(ctx context.Context, page int, pageSize int) ([]Category, Pagination, error) {
	var items []Category
	pg, err := c.list(ctx, "/api/categories", page, pageSize, &items)
	return items, pg, err
}

func (c *Client) ListBrands(ctx context.Context, page int, pageSize int) ([]Brand, Pagination, error) {
	var items []Brand
	pg, err := c.list(ctx, "/api/brands", page, pageSize, &items)
	return items, pg, err
}

func (c *Client) ListProducts(ctx context.Context, page int, pageSize int) ([]Product, Pagination, error) {
	var items []Product
	pg, err := c.list(ctx, "/api/products", page, pageSize, &items)
	return items, pg, err
}

func (c *Client) ListCustomers(ctx context.Context, page int, pageSize int) ([]Customer, Pagination, error) {
	var items []Customer
	pg, err := c.list(ctx, "/api/customers", page, pageSize, &items)
	return items, pg, err
}

// ListPromotions returns the full active promotion list; the endpoint is
// not paginated.
func (c *Client) ListPromotions(ctx context.Context) ([]Promotion, error) {
	data, _, err := c.do(ctx, http.MethodGet, "/api/promotions/active", nil, nil)
	if err != nil {
		return nil, err
	}
	var items []Promotion
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode promotions: %w", err)
	}
	return items, nil
}

// GetProductByCode is the point lookup backing the barcode fallback path.
func (c *Client) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	query := url.Values{}
	query.Set("code", code)
	data, _, err := c.do(ctx, http.MethodGet, "/api/products/by-code", query, nil)
	if err != nil {
		return nil, err
	}
	var item Product
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &item, nil
}

// CalculateDiscounts asks the pricing authority for the promotional
// discounts applicable to the given item list.
func (c *Client) CalculateDiscounts(ctx context.Context, items []DiscountRequestItem, customerID string) (*DiscountResult, error) {
	body := struct {
		Items      []DiscountRequestItem `json:"items"`
		CustomerID string                `json:"customerId,omitempty"`
	}{Items: items, CustomerID: customerID}

	data, _, err := c.do(ctx, http.MethodPost, "/api/promotions/calculate", nil, body)
	if err != nil {
		return nil, err
	}
	var result DiscountResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode discount result: %w", err)
	}
	return &result, nil
}

// CurrentSession fetches the authoritative cash session for a terminal.
// A terminal with no session at all yields ErrNotFound.
func (c *Client) CurrentSession(ctx context.Context, posID string) (*CashSession, error) {
	query := url.Values{}
	query.Set("posId", posID)
	data, _, err := c.do(ctx, http.MethodGet, "/api/cash-sessions/current", query, nil)
	if err != nil {
		return nil, err
	}
	var session CashSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode cash session: %w", err)
	}
	return &session, nil
}

// SessionAction executes one of the remote cash-session mutations
// (open/close/suspend/resume/movement). The payload is endpoint-specific
// and already assembled by the caller.
func (c *Client) SessionAction(ctx context.Context, path string, body any) (*CashSession, error) {
	data, _, err := c.do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	var session CashSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode cash session: %w", err)
	}
	return &session, nil
}

// Do executes an arbitrary stored operation (method + endpoint + raw JSON
// payload) and returns the raw response data. The offline queue replays
// through this.
func (c *Client) Do(ctx context.Context, method string, endpoint string, payload []byte) ([]byte, error) {
	var body any
	if len(payload) > 0 {
		body = json.RawMessage(payload)
	}
	data, _, err := c.do(ctx, method, endpoint, nil, body)
	return data, err
}

func (c *Client) list(ctx context.Context, path string, page int, pageSize int, out any) (Pagination, error) {
	query := url.Values{}
	query.Set("page", fmt.Sprintf("%d", page))
	query.Set("pageSize", fmt.Sprintf("%d", pageSize))

	data, pg, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return Pagination{}, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Pagination{}, fmt.Errorf("decode %s page %d: %w", path, page, err)
	}
	if pg == nil {
		pg = &Pagination{Page: page, PageSize: pageSize, Total: 0, TotalPages: page}
	}
	return *pg, nil
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body any) (json.RawMessage, *Pagination, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff between attempts, abandoned when the context ends.
			select {
			case <-ctx.Done():
				return nil, nil, fmt.Errorf("%w: %v", ErrOffline, ctx.Err())
			case <-time.After(time.Duration(attempt-1) * c.backoff):
			}
			c.log.Debug("retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt))
		}

		data, pg, err := c.doOnce(ctx, method, path, query, payload)
		if err == nil {
			return data, pg, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, nil, err
		}
	}
	return nil, nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method string, path string, query url.Values, payload []byte) (json.RawMessage, *Pagination, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if len(payload) > 0 {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %v", ErrOffline, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrNotFound
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
		}
		return nil, nil, fmt.Errorf("decode response envelope: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if apiErr.StatusCode < 400 {
			// Success=false with a 2xx status still counts as a server fault.
			apiErr.StatusCode = http.StatusInternalServerError
		}
		return nil, nil, apiErr
	}

	return env.Data, env.Pagination, nil
}
