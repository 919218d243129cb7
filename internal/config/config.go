package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL string
	APIToken   string
	PosID      string

	StoreDriver string
	StorePath   string
	StoreDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SyncIntervalMinutes int
	SyncPageSize        int
	PromoTTLMinutes     int
	PromoDebounceMS     int
	SessionPollMinutes  int
	SessionRequired     bool

	QueueMaxRetries int
	QueueSealKey    string

	CartMaxItems           int
	CartMaxItemQty         int
	CartMaxDiscountPercent int

	HTTPTimeoutSeconds int
	AdminAddr          string

	AppEnv   string
	LogLevel string
}

// Load reads configuration from the environment, after loading a .env file
// if one is present next to the binary. Missing or invalid numeric values
// fall back to their defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		APIBaseURL: strings.TrimRight(getEnv("API_BASE_URL", "http://127.0.0.1:8000"), "/"),
		APIToken:   strings.TrimSpace(os.Getenv("API_TOKEN")),
		PosID:      getEnv("POS_ID", "pos-1"),

		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		StorePath:   getEnv("STORE_PATH", "pos-local.db"),
		StoreDSN:    os.Getenv("STORE_DSN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SyncIntervalMinutes: getEnvInt("SYNC_INTERVAL_MINUTES", 15),
		SyncPageSize:        getEnvInt("SYNC_PAGE_SIZE", 100),
		PromoTTLMinutes:     getEnvInt("PROMO_TTL_MINUTES", 5),
		PromoDebounceMS:     getEnvInt("PROMO_DEBOUNCE_MS", 300),
		SessionPollMinutes:  getEnvInt("SESSION_POLL_MINUTES", 5),
		SessionRequired:     getEnvBool("SESSION_REQUIRED", true),

		QueueMaxRetries: getEnvInt("QUEUE_MAX_RETRIES", 5),
		QueueSealKey:    strings.TrimSpace(os.Getenv("QUEUE_SEAL_KEY")),

		CartMaxItems:           getEnvInt("CART_MAX_ITEMS", 100),
		CartMaxItemQty:         getEnvInt("CART_MAX_ITEM_QTY", 999),
		CartMaxDiscountPercent: getEnvInt("CART_MAX_DISCOUNT_PERCENT", 100),

		HTTPTimeoutSeconds: getEnvInt("HTTP_TIMEOUT_SECONDS", 15),
		AdminAddr:          getEnv("ADMIN_ADDR", "127.0.0.1:9110"),

		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate rejects configurations the agent cannot start with.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL must be set")
	}
	if c.StoreDriver != "sqlite" && c.StoreDriver != "postgres" {
		return fmt.Errorf("STORE_DRIVER must be sqlite or postgres, got %q", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && c.StoreDSN == "" {
		return fmt.Errorf("STORE_DSN must be set when STORE_DRIVER is postgres")
	}
	if c.QueueSealKey != "" {
		key, err := hex.DecodeString(c.QueueSealKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("QUEUE_SEAL_KEY must be 64 hex characters (32 bytes)")
		}
	}
	return nil
}

// SealKey returns the decoded queue sealing key, or nil when sealing is off.
func (c Config) SealKey() []byte {
	if c.QueueSealKey == "" {
		return nil
	}
	key, err := hex.DecodeString(c.QueueSealKey)
	if err != nil || len(key) != 32 {
		return nil
	}
	return key
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
