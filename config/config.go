// Package config loads the explicit configuration surface described in
// spec.md §6, replacing the source's dynamic kwargs/duck-typed config
// objects (spec.md §9) with an enumerated struct. Unknown env keys are
// simply not read — there is no implicit pass-through.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full, explicit configuration surface. Every field here
// corresponds to a documented env var; there is no catch-all map.
type Config struct {
	HTTPListenAddr    string
	MetricsListenAddr string
	SQLiteDSN         string
	LogLevel          string

	MarketOrderDelay        time.Duration
	MarketOrderRetryDelays  []time.Duration
	MaxMarketOrderRetries   int
	BatchAccountTimeout     time.Duration
	CapitalAutoRefresh      time.Duration

	// AccountCipherKey is the 32-byte chacha20poly1305 key used to seal
	// Account.EncryptedPublicKey / EncryptedSecretKey (domain/credentials.go).
	AccountCipherKey []byte
}

var defaultRetryDelaysMS = []int{125, 250, 500, 1000, 2000}

// Load reads a .env file if present (never an error if it's absent — the
// teacher's godotenv.Load call follows the same convention) and then
// populates Config from the environment, applying documented defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPListenAddr:    getEnvOr("HTTP_LISTEN_ADDR", ":8080"),
		MetricsListenAddr: getEnvOr("METRICS_LISTEN_ADDR", ":9090"),
		SQLiteDSN:         getEnvOr("SQLITE_DSN", "file:synapsetrade.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"),
		LogLevel:          getEnvOr("LOG_LEVEL", "info"),
	}

	cfg.MarketOrderDelay = time.Duration(getEnvIntOr("MARKET_ORDER_DELAY_MS", 0)) * time.Millisecond
	cfg.MaxMarketOrderRetries = getEnvIntOr("MAX_MARKET_ORDER_RETRIES", 5)
	cfg.BatchAccountTimeout = time.Duration(getEnvIntOr("BATCH_ACCOUNT_TIMEOUT_SEC", 30)) * time.Second
	cfg.CapitalAutoRefresh = time.Duration(getEnvIntOr("CAPITAL_AUTO_REFRESH_SECONDS", 300)) * time.Second

	delays, err := parseRetryDelays(os.Getenv("MARKET_ORDER_RETRY_DELAYS_MS"))
	if err != nil {
		return nil, err
	}
	cfg.MarketOrderRetryDelays = delays

	key := os.Getenv("ACCOUNT_CIPHER_KEY")
	if key != "" {
		if len(key) != 32 {
			return nil, fmt.Errorf("ACCOUNT_CIPHER_KEY must be exactly 32 bytes, got %d", len(key))
		}
		cfg.AccountCipherKey = []byte(key)
	}

	return cfg, nil
}

// parseRetryDelays implements spec.md §6's fallback rule: an empty value
// or any invalid entry falls back to the documented default; a value with
// no usable entries (e.g. ",") still guarantees at least one attempt (a
// single zero-delay retry).
func parseRetryDelays(raw string) ([]time.Duration, error) {
	if raw == "" {
		return msToDurations(defaultRetryDelaysMS), nil
	}

	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ms, err := strconv.Atoi(p)
		if err != nil || ms < 0 {
			return msToDurations(defaultRetryDelaysMS), nil
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	if len(out) == 0 {
		return []time.Duration{0}, nil
	}
	return out, nil
}

func msToDurations(ms []int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
