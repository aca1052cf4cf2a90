package config

import (
	"testing"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/render"
	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 60*time.Minute, cfg.ScrapeInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 3, cfg.ConcurrentScrapers)
	assert.Equal(t, 15000*time.Millisecond, cfg.PuppeteerTimeout)
	assert.Equal(t, render.WaitFast, cfg.WaitStrategy)
	assert.True(t, cfg.DisableImages)
	assert.False(t, cfg.DisableCSS)
	assert.Equal(t, time.Duration(0), cfg.DynamicWait)
	assert.Equal(t, 120*time.Minute, cfg.StaleRequestTimeout)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("SCRAPE_INTERVAL_MINUTES", "30")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("CONCURRENT_SCRAPERS", "8")
	t.Setenv("WAIT_STRATEGY", "comprehensive")
	t.Setenv("DISABLE_IMAGES", "false")
	t.Setenv("DISABLE_CSS", "true")
	t.Setenv("DYNAMIC_WAIT_MS", "500")
	t.Setenv("MONGODB_URL", "mongodb://db.test/url_content_fetcher")
	t.Setenv("RABBITMQ_URL", "amqp://broker.test/")

	cfg := Load()

	assert.Equal(t, 30*time.Minute, cfg.ScrapeInterval)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 8, cfg.ConcurrentScrapers)
	assert.Equal(t, render.WaitComprehensive, cfg.WaitStrategy)
	assert.False(t, cfg.DisableImages)
	assert.True(t, cfg.DisableCSS)
	assert.Equal(t, 500*time.Millisecond, cfg.DynamicWait)
	assert.Equal(t, "mongodb://db.test/url_content_fetcher", cfg.MongoURL)
	assert.Equal(t, "amqp://broker.test/", cfg.RabbitMQURL)
}

func TestLoadIgnoresInvalidIntegerOverride(t *testing.T) {
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := Load()

	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestWorkerConfigProjectsNavigationFields(t *testing.T) {
	cfg := Load()
	wc := cfg.WorkerConfig()

	assert.Equal(t, cfg.WaitStrategy, wc.WaitStrategy)
	assert.Equal(t, cfg.PuppeteerTimeout, wc.NavTimeout)
	assert.Equal(t, cfg.DisableImages, wc.DisableImages)
	assert.Equal(t, cfg.DisableCSS, wc.DisableCSS)
	assert.Equal(t, cfg.DynamicWait, wc.DynamicWait)
	assert.Equal(t, render.DefaultUserAgent, wc.UserAgent)
}
