package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/code"
	"storefront/internal/config"
	"storefront/internal/faq"
	"storefront/internal/middleware"
	"storefront/internal/newsletter"
	"storefront/internal/queue"
	"storefront/internal/router"
	"storefront/internal/schema"
	"storefront/internal/session"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// 1. 打开 SQLite，建表或增量迁移
	db, err := store.Open(cfg.DBPath, logger.With("component", "db"))
	if err != nil {
		logger.Error("db open", "error", err)
		os.Exit(1)
	}
	if err := (&schema.Migrator{DB: db, Logger: logger.With("component", "schema"), Codes: code.Default}).Run(); err != nil {
		logger.Error("db migrate", "error", err)
		os.Exit(1)
	}
	if err := auth.EnsureDefaultAdmin(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Error("ensure admin", "error", err)
		os.Exit(1)
	}
	if cfg.SeedReviews {
		n, err := catalog.SeedReviews(db, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), time.Now())
		if err != nil {
			logger.Warn("seed reviews", "error", err)
		} else if n > 0 {
			logger.Info("seeded reviews", "count", n)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := router.Deps{
		DB:         db,
		Logger:     logger,
		SiteURL:    cfg.SiteURL,
		SessionTTL: cfg.SessionTTL,
		StaticDir:  cfg.StaticDir,
		FAQ:        faq.NewClient(cfg.FAQEndpoint, cfg.FAQAPIKey, cfg.FAQTimeout, logger.With("component", "faq")),
		Announcer: &newsletter.Announcer{
			DB:       db,
			From:     cfg.NewsletterFrom,
			FromName: cfg.NewsletterFromName,
			SiteURL:  cfg.SiteURL,
			Logger:   logger.With("component", "newsletter"),
		},
	}
	if cfg.NewsletterFrom != "" && cfg.NewsletterPassword != "" {
		deps.Announcer.Sender = newsletter.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.NewsletterFrom, cfg.NewsletterPassword, cfg.SMTPTimeout)
	} else {
		logger.Info("newsletter smtp not configured, announcements disabled")
	}

	// 2. Redis 可选：会话、结账限流与幂等、事件 outbox
	var rdb *rd.Client
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("redis ping", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		deps.Sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
		deps.Claims = session.NewRedisClaimer(rdb)
		deps.Limiter = middleware.NewRedisLimiter(rdb, cfg.CheckoutRateLimit, cfg.CheckoutRateWindow)
	} else {
		logger.Info("redis not configured, using in-memory sessions")
		deps.Sessions = session.NewMemoryStore(cfg.SessionTTL)
		deps.Claims = session.NewMemoryClaimer()
	}

	// 3. Kafka 可选：事件先写 Redis Stream，由 Relay 异步转发
	if cfg.EventsEnabled() {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		deps.Events = queue.NewOutbox(rdb, cfg.OrderEventStream, logger.With("component", "outbox"))
		relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer, logger.With("component", "relay"))
		go relay.Run(ctx)
	} else {
		deps.Events = queue.LogSink{Logger: logger.With("component", "events")}
	}

	r := gin.New()
	router.Setup(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	deps.Announcer.Wait()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
