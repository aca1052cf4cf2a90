// Package config loads the environment-variable configuration described
// by §6, following the same getEnvWithDefault style its main binaries
// use rather than a struct-tag config library.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Harvey-AU/url-content-fetcher/internal/render"
	"github.com/Harvey-AU/url-content-fetcher/internal/worker"
)

// Config holds every environment-driven setting from §6's table plus the
// ambient settings (port, log level, Sentry, OTLP) every binary needs.
type Config struct {
	// Ambient
	Port           string
	Env            string
	LogLevel       string
	SentryDSN      string
	OTLPEndpoint   string
	MetricsAddress string

	// Domain (§6)
	MongoURL            string
	RabbitMQURL         string
	ScrapeInterval      time.Duration
	MaxRetries          int
	ConcurrentScrapers  int
	PuppeteerTimeout    time.Duration
	WaitStrategy        render.WaitStrategy
	DisableImages       bool
	DisableCSS          bool
	DynamicWait         time.Duration
	StaleRequestTimeout time.Duration
}

// Load reads .env (if present) then the process environment, applying
// the §6 defaults for anything unset.
func Load() *Config {
	godotenv.Load()

	return &Config{
		Port:           getEnvWithDefault("PORT", "8080"),
		Env:            getEnvWithDefault("APP_ENV", "development"),
		LogLevel:       getEnvWithDefault("LOG_LEVEL", "info"),
		SentryDSN:      os.Getenv("SENTRY_DSN"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MetricsAddress: getEnvWithDefault("METRICS_ADDRESS", ":9090"),

		MongoURL:    os.Getenv("MONGODB_URL"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),

		ScrapeInterval:      getEnvAsMinutes("SCRAPE_INTERVAL_MINUTES", 60),
		MaxRetries:          getEnvAsInt("MAX_RETRIES", 3),
		ConcurrentScrapers:  getEnvAsInt("CONCURRENT_SCRAPERS", 3),
		PuppeteerTimeout:    getEnvAsMillis("PUPPETEER_TIMEOUT", 15000),
		WaitStrategy:        render.WaitStrategy(getEnvWithDefault("WAIT_STRATEGY", string(render.WaitFast))),
		DisableImages:       getEnvAsBool("DISABLE_IMAGES", true),
		DisableCSS:          getEnvAsBool("DISABLE_CSS", false),
		DynamicWait:         getEnvAsMillis("DYNAMIC_WAIT_MS", 0),
		StaleRequestTimeout: getEnvAsMinutes("STALE_REQUEST_TIMEOUT_MINUTES", 120),
	}
}

// WorkerConfig projects the navigation-relevant fields into a
// worker.Config, the shape Attempt actually consumes.
func (c *Config) WorkerConfig() worker.Config {
	return worker.Config{
		WaitStrategy:  c.WaitStrategy,
		NavTimeout:    c.PuppeteerTimeout,
		DisableImages: c.DisableImages,
		DisableCSS:    c.DisableCSS,
		DynamicWait:   c.DynamicWait,
		UserAgent:     render.DefaultUserAgent,
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvAsBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvAsMinutes(key string, defaultMinutes int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMinutes)) * time.Minute
}

func getEnvAsMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}
