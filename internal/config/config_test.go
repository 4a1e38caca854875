package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "storefront.db", cfg.DBPath)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.EventsEnabled())
	assert.Equal(t, 10, cfg.CheckoutRateLimit)
	assert.Equal(t, time.Minute, cfg.CheckoutRateWindow)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.Equal(t, 12*time.Second, cfg.FAQTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.SeedReviews)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("CHECKOUT_RATE_WINDOW_SEC", "5")
	t.Setenv("SITE_URL", "https://shop.example/")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("SEED_REVIEWS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.EventsEnabled())
	assert.Equal(t, 5*time.Second, cfg.CheckoutRateWindow)
	assert.Equal(t, "https://shop.example", cfg.SiteURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.SeedReviews)
	assert.NotNil(t, cfg.NewLogger())
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"CHECKOUT_RATE_LIMIT":      "0",
		"CHECKOUT_RATE_WINDOW_SEC": "x",
		"SESSION_TTL_HOUR":         "-1",
		"REDIS_DB":                 "one",
		"FAQ_AI_TIMEOUT_SEC":       "0",
		"LOG_LEVEL":                "loud",
		"LOG_FORMAT":               "xml",
		"SEED_REVIEWS":             "maybe",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
