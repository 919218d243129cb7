package promo

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
)

// Calculation is one confirmed discount computation, keyed by cart content.
type Calculation struct {
	Key           string                      `json:"key"`
	Items         []domain.LineDiscountResult `json:"items"`
	TotalDiscount decimal.Decimal             `json:"total_discount"`
}

// CalcCache stores recent discount calculations so an unchanged cart does
// not hit the network again within the TTL.
type CalcCache interface {
	Get(ctx context.Context, key string) (*Calculation, bool, error)
	Set(ctx context.Context, key string, value *Calculation, ttl time.Duration) error
}

type NoopCalcCache struct{}

func (NoopCalcCache) Get(_ context.Context, _ string) (*Calculation, bool, error) {
	return nil, false, nil
}

func (NoopCalcCache) Set(_ context.Context, _ string, _ *Calculation, _ time.Duration) error {
	return nil
}

// MemoryCalcCache is the default single-terminal backend.
type MemoryCalcCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     Calculation
	expiresAt time.Time
}

func NewMemoryCalcCache() *MemoryCalcCache {
	return &MemoryCalcCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCalcCache) Get(_ context.Context, key string) (*Calculation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemoryCalcCache) Set(_ context.Context, key string, value *Calculation, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic eviction keeps the map from growing unbounded across a
	// long shift.
	now := time.Now()
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{value: *value, expiresAt: now.Add(ttl)}
	return nil
}

// RedisCalcCache shares calculations across terminals of one location.
type RedisCalcCache struct {
	client *redis.Client
}

func NewRedisCalcCache(addr string, password string, db int) *RedisCalcCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCalcCache{client: client}
}

func (c *RedisCalcCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCalcCache) Close() error {
	return c.client.Close()
}

func (c *RedisCalcCache) Get(ctx context.Context, key string) (*Calculation, bool, error) {
	val, err := c.client.Get(ctx, "pos:promo-calc:"+key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var calc Calculation
	if err := json.Unmarshal([]byte(val), &calc); err != nil {
		return nil, false, err
	}
	return &calc, true, nil
}

func (c *RedisCalcCache) Set(ctx context.Context, key string, value *Calculation, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "pos:promo-calc:"+key, payload, ttl).Err()
}
