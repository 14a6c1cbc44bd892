// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all tunables. Every field has an environment variable
// and a default; credentials default to empty and are only required
// when the SmartAPI feed is enabled.
type Config struct {
	// HTTP surfaces.
	Host        string
	Port        int
	MetricsAddr string
	CORSOrigins []string

	// Upstream tick feed. When FeedURL is empty the service runs
	// without live ingestion (historical endpoints still work).
	FeedURL string

	// Angel One credentials for the SmartAPI feed and historical data.
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Aggregation.
	DefaultTimeframes []string
	TickBufferSize    int
	AggregatorGrace   time.Duration
	FillGaps          bool
	Tolerance         time.Duration

	// Subscriber sessions.
	MaxSessions      int
	QueueDepth       int
	DropThreshold    int
	DropWindow       time.Duration
	Heartbeat        time.Duration
	WindowCap        int
	ShutdownDeadline time.Duration

	// Historical source.
	HistoricalTimeout time.Duration

	LogLevel string
}

// Load reads the environment (after merging an optional .env file).
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("dotenv load failed", "err", err)
	}
	return &Config{
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getInt("PORT", 8080),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		CORSOrigins: getList("CORS_ORIGINS", "*"),

		FeedURL: getEnv("FEED_URL", ""),

		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),

		DefaultTimeframes: getList("DEFAULT_TIMEFRAMES", "1m,5m,15m"),
		TickBufferSize:    getInt("TICK_BUFFER_SIZE", 4096),
		AggregatorGrace:   getSeconds("AGGREGATOR_GRACE_SECONDS", 60),
		FillGaps:          getBool("FILL_GAPS", false),
		Tolerance:         getMillis("OUT_OF_ORDER_TOLERANCE_MS", 0),

		MaxSessions:      getInt("MAX_SESSIONS", 100),
		QueueDepth:       getInt("QUEUE_DEPTH", 256),
		DropThreshold:    getInt("DROP_THRESHOLD", 64),
		DropWindow:       getSeconds("DROP_WINDOW_SECONDS", 10),
		Heartbeat:        getSeconds("HEARTBEAT_SECONDS", 30),
		WindowCap:        getInt("WINDOW_CAP", 512),
		ShutdownDeadline: getSeconds("SHUTDOWN_DEADLINE_SECONDS", 10),

		HistoricalTimeout: getMillis("HISTORICAL_TIMEOUT_MS", 10000),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Addr returns the host:port bind address for the API server.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var", "key", key, "value", v)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean env var", "key", key, "value", v)
		return fallback
	}
	return b
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}

func getMillis(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Millisecond
}

func getList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
