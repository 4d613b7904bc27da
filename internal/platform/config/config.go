// Package config builds the process configuration from environment variables
// once, in main. Nothing else reads the environment; every component receives
// its settings explicitly.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Addr     string
	Algod    AlgodConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Registry RegistryConfig
}

// AlgodConfig locates the ledger node and the signing account used for paid
// writes. The mnemonic stays empty in read-only deployments.
type AlgodConfig struct {
	Server         string
	Port           string
	Token          string
	AppID          uint64
	SignerMnemonic string
}

// URL joins server and optional port the way algod clients expect.
func (c AlgodConfig) URL() string {
	if c.Port == "" {
		return c.Server
	}
	return c.Server + ":" + c.Port
}

// Configured reports whether the ledger contract has been deployed and bound.
func (c AlgodConfig) Configured() bool { return c.AppID != 0 }

// RedisConfig configures the optional Redis-backed local mirror.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional audit trail store.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig configures the optional audit event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RegistryConfig tunes the registration orchestrator.
type RegistryConfig struct {
	// Timeout retry policy for ledger writes. Logical rejections are never
	// retried; only timeouts are, re-checking existence before each attempt.
	RetryAttempts int
	RetryDelay    time.Duration

	// LedgerCallTimeout caps each individual ledger call.
	LedgerCallTimeout time.Duration

	// Hamming distance thresholds. ReencodeThreshold classifies a re-encoded
	// copy of the same image; EditThreshold classifies an edited one.
	ReencodeThreshold int
	EditThreshold     int

	// MirrorTTL bounds staleness of the advisory local mirror.
	MirrorTTL time.Duration
}

// FromEnv builds the configuration with development-friendly defaults so main
// stays lean.
func FromEnv() Config {
	return Config{
		Addr: envOr("GENMARK_ADDR", ":8080"),
		Algod: AlgodConfig{
			Server:         envOr("ALGORAND_ALGOD_SERVER", "https://testnet-api.algonode.cloud"),
			Port:           os.Getenv("ALGORAND_ALGOD_PORT"),
			Token:          envOr("ALGORAND_ALGOD_TOKEN", strings.Repeat("a", 64)),
			AppID:          envUint("ALGORAND_APP_ID", 0),
			SignerMnemonic: os.Getenv("DEPLOYER_MNEMONIC"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("GENMARK_REDIS_URL"),
			PoolSize:     envInt("GENMARK_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("GENMARK_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("GENMARK_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("GENMARK_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("GENMARK_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("GENMARK_POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("GENMARK_KAFKA_BROKERS")),
			Topic:   envOr("GENMARK_KAFKA_AUDIT_TOPIC", "genmark.audit"),
		},
		Registry: RegistryConfig{
			RetryAttempts:     envInt("GENMARK_LEDGER_RETRY_ATTEMPTS", 3),
			RetryDelay:        envDuration("GENMARK_LEDGER_RETRY_DELAY", 2*time.Second),
			LedgerCallTimeout: envDuration("GENMARK_LEDGER_CALL_TIMEOUT", 15*time.Second),
			ReencodeThreshold: envInt("GENMARK_REENCODE_THRESHOLD", 4),
			EditThreshold:     envInt("GENMARK_EDIT_THRESHOLD", 10),
			MirrorTTL:         envDuration("GENMARK_MIRROR_TTL", 5*time.Minute),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envUint(key string, fallback uint64) uint64 {
	v, err := strconv.ParseUint(os.Getenv(key), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
