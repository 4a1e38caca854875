package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，全部通过环境变量注入。
type AppConfig struct {
	HTTPAddr  string
	DBPath    string
	SiteURL   string
	// StaticDir 商品图片目录，挂在 /static 下。
	StaticDir string

	// REDIS_ADDR 为空时会话放内存，结账不限流，也不写事件流。
	RedisAddr string
	RedisDB   int

	// KAFKA_BROKERS 为空时事件只写日志。
	KafkaBrokers []string
	KafkaTopic   string

	// Redis Stream outbox（请求内入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	SessionTTL         time.Duration

	AdminUsername string
	AdminPassword string

	SMTPHost           string
	SMTPPort           int
	SMTPTimeout        time.Duration
	NewsletterFrom     string
	NewsletterFromName string
	NewsletterPassword string

	FAQAPIKey   string
	FAQEndpoint string
	FAQTimeout  time.Duration

	LogLevel  slog.Level
	LogFormat string

	SeedReviews bool
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "storefront.db"),
		SiteURL:            strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
		StaticDir:          getEnv("STATIC_DIR", "static"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "storefront-events"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "storefront:events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "storefront-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "storefront-relay-1"),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "admin123"),
		SMTPHost:           getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPTimeout:        20 * time.Second,
		NewsletterFrom:     getEnv("NEWSLETTER_FROM_EMAIL", ""),
		NewsletterFromName: getEnv("NEWSLETTER_FROM_NAME", "Bghitha"),
		NewsletterPassword: getEnv("NEWSLETTER_APP_PASSWORD", ""),
		FAQAPIKey:          getEnv("FAQ_AI_API_KEY", ""),
		FAQEndpoint:        getEnv("FAQ_AI_ENDPOINT", ""),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if cfg.CheckoutRateLimit, err = getEnvInt("CHECKOUT_RATE_LIMIT", 10); err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_RATE_LIMIT: %w", err)
	}
	if cfg.CheckoutRateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_RATE_LIMIT must be > 0")
	}

	windowSec, err := getEnvInt("CHECKOUT_RATE_WINDOW_SEC", 60)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_RATE_WINDOW_SEC: %w", err)
	}
	if windowSec <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_RATE_WINDOW_SEC must be > 0")
	}
	cfg.CheckoutRateWindow = time.Duration(windowSec) * time.Second

	ttlHour, err := getEnvInt("SESSION_TTL_HOUR", 24*7)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SESSION_TTL_HOUR: %w", err)
	}
	if ttlHour <= 0 {
		return AppConfig{}, fmt.Errorf("SESSION_TTL_HOUR must be > 0")
	}
	cfg.SessionTTL = time.Duration(ttlHour) * time.Hour

	if cfg.SMTPPort, err = getEnvInt("SMTP_PORT", 465); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	faqSec, err := getEnvInt("FAQ_AI_TIMEOUT_SEC", 12)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid FAQ_AI_TIMEOUT_SEC: %w", err)
	}
	if faqSec <= 0 {
		return AppConfig{}, fmt.Errorf("FAQ_AI_TIMEOUT_SEC must be > 0")
	}
	cfg.FAQTimeout = time.Duration(faqSec) * time.Second

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return AppConfig{}, fmt.Errorf("LOG_FORMAT must be text or json")
	}

	if cfg.SeedReviews, err = getEnvBool("SEED_REVIEWS", false); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SEED_REVIEWS: %w", err)
	}

	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return AppConfig{}, fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must not be empty")
	}
	if cfg.EventsEnabled() {
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.OrderEventStream == "" || cfg.OrderEventGroup == "" || cfg.OrderEventConsumer == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM/GROUP/CONSUMER must not be empty")
		}
	}

	return cfg, nil
}

// EventsEnabled Redis 与 Kafka 都配置时才走 outbox + relay。
func (c AppConfig) EventsEnabled() bool {
	return c.RedisAddr != "" && len(c.KafkaBrokers) > 0
}

// NewLogger 按 LOG_FORMAT/LOG_LEVEL 构造 slog.Logger。
func (c AppConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
