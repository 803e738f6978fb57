// Package config loads node configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds marketplace node configuration.
type Config struct {
	Port     string
	LogLevel string

	// SQLitePath is the DSN for the contract, bid, delivery, and
	// performance stores. ":memory:" runs fully in-process.
	SQLitePath string

	// PostgresURL backs the agent registry when set. Empty disables the
	// registry gate on bidding.
	PostgresURL string

	// RedisAddr backs the replay cache and event broadcaster when set.
	// Empty falls back to in-memory equivalents.
	RedisAddr string

	// BlobBackend selects the delivery payload store: "file", "s3", "gcs".
	BlobBackend string
	BlobDir     string
	BlobBucket  string

	// WeightProfileDir holds auction weight profile YAML files.
	WeightProfileDir string

	// DefaultBiddingWindow applies when a contract omits one.
	DefaultBiddingWindow time.Duration

	// SweepInterval paces the lifecycle sweeper.
	SweepInterval time.Duration

	OTLPEndpoint string
	OTLPEnabled  bool
	SampleRate   float64
	Environment  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	sqlitePath := os.Getenv("AGORA_SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "agora.db"
	}

	blobBackend := os.Getenv("AGORA_BLOB_BACKEND")
	if blobBackend == "" {
		blobBackend = "file"
	}
	blobDir := os.Getenv("AGORA_BLOB_DIR")
	if blobDir == "" {
		blobDir = "blobs"
	}

	profileDir := os.Getenv("AGORA_WEIGHT_PROFILE_DIR")
	if profileDir == "" {
		profileDir = "profiles"
	}

	environment := os.Getenv("AGORA_ENV")
	if environment == "" {
		environment = "development"
	}

	return &Config{
		Port:                 port,
		LogLevel:             logLevel,
		SQLitePath:           sqlitePath,
		PostgresURL:          os.Getenv("AGORA_POSTGRES_URL"),
		RedisAddr:            os.Getenv("AGORA_REDIS_ADDR"),
		BlobBackend:          blobBackend,
		BlobDir:              blobDir,
		BlobBucket:           os.Getenv("AGORA_BLOB_BUCKET"),
		WeightProfileDir:     profileDir,
		DefaultBiddingWindow: durationEnv("AGORA_BIDDING_WINDOW", 30*time.Second),
		SweepInterval:        durationEnv("AGORA_SWEEP_INTERVAL", time.Second),
		OTLPEndpoint:         otlpEndpoint(),
		OTLPEnabled:          os.Getenv("AGORA_OTLP_ENABLED") == "true",
		SampleRate:           floatEnv("AGORA_TRACE_SAMPLE_RATE", 1.0),
		Environment:          environment,
	}
}

func otlpEndpoint() string {
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		return v
	}
	return "localhost:4317"
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
