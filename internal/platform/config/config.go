// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production deploys
// override via env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server process needs at startup.
type Config struct {
	Addr string

	// PostgresDSN is empty in development; stores fall back to memory.
	PostgresDSN string

	// RedisURL enables the ban-check cache when set.
	RedisURL string
	Redis    RedisConfig

	// KafkaBrokers enables the Kafka notifier when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	JWTSigningKey string

	// QRSigningKey keys the token derivation; rotating it invalidates all
	// outstanding codes.
	QRSigningKey string
	QRCodeTTL    time.Duration

	// ExpiryGrace is how long past expected_start a never-entered visit
	// survives before the sweep marks it expired.
	ExpiryGrace   time.Duration
	SweepInterval time.Duration

	// ScanRetries bounds optimistic-concurrency retries per scan.
	ScanRetries int
}

// RedisConfig tunes the shared Redis client.
type RedisConfig struct {
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:          getenv("PASSAGE_ADDR", ":8080"),
		PostgresDSN:   os.Getenv("PASSAGE_POSTGRES_DSN"),
		RedisURL:      os.Getenv("PASSAGE_REDIS_URL"),
		KafkaTopic:    getenv("PASSAGE_KAFKA_TOPIC", "passage.visit-events"),
		JWTSigningKey: getenv("PASSAGE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		QRSigningKey:  getenv("PASSAGE_QR_SIGNING_KEY", "dev-qr-key-change-in-production"),
		QRCodeTTL:     getenvDuration("PASSAGE_QR_TTL", 24*time.Hour),
		ExpiryGrace:   getenvDuration("PASSAGE_EXPIRY_GRACE", 4*time.Hour),
		SweepInterval: getenvDuration("PASSAGE_SWEEP_INTERVAL", 5*time.Minute),
		ScanRetries:   getenvInt("PASSAGE_SCAN_RETRIES", 3),
		Redis: RedisConfig{
			PoolSize:     getenvInt("PASSAGE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("PASSAGE_REDIS_MIN_IDLE", 2),
			DialTimeout:  getenvDuration("PASSAGE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("PASSAGE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("PASSAGE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
	if brokers := os.Getenv("PASSAGE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
