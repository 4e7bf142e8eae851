package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pansan0/saleidia/internal/bus"
	"github.com/pansan0/saleidia/internal/chat"
	"github.com/pansan0/saleidia/internal/config"
	"github.com/pansan0/saleidia/internal/database"
	"github.com/pansan0/saleidia/internal/http/handlers"
	"github.com/pansan0/saleidia/internal/http/middleware"
	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pansan0/saleidia/internal/logger"
	"github.com/pansan0/saleidia/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	provider, err := openProvider(cfg, store)
	if err != nil {
		log.Fatal("failed to set up identity provider", zap.String("provider", cfg.AuthProvider), zap.Error(err))
	}

	hub := ws.NewHub(log.Named("ws"))
	var notifier ws.Notifier = hub
	if cfg.NATSURL != "" {
		host, _ := os.Hostname()
		b, err := bus.Connect(bus.Config{URL: cfg.NATSURL, Name: "dreamark-api@" + host}, hub, log.Named("bus"))
		if err != nil {
			log.Fatal("failed to connect nats", zap.Error(err))
		}
		defer func() { _ = b.Close() }()
		notifier = b
	}

	svc := chat.New(chat.Config{
		Store:         store,
		Provider:      provider,
		Notifier:      notifier,
		Log:           log.Named("chat"),
		DefaultAvatar: cfg.DefaultAvatar,
	})

	done := make(chan struct{})
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log.Named("ratelimit"))
	limiter.StartCleanup(time.Minute, done)
	defer close(done)

	r := handlers.NewRouter(handlers.Deps{
		Service:              svc,
		Provider:             provider,
		Hub:                  hub,
		Limiter:              limiter,
		Log:                  log.Named("http"),
		AnonKey:              cfg.AnonKey,
		WSInsecureSkipVerify: cfg.WSInsecureSkipVerify,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("auth", cfg.AuthProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg config.Config) (kv.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMySQL, config.StorePostgres:
		db, err := database.Connect(cfg.StoreDriver, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := kv.NewGormStore(db)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, errors.Wrap(err, "ping redis")
		}
		return kv.NewRedisStore(rdb, "dreamark"), func() { _ = rdb.Close() }, nil
	default:
		return kv.NewMemory(), func() {}, nil
	}
}

func openProvider(cfg config.Config, store kv.Store) (identity.Provider, error) {
	if cfg.AuthProvider == config.AuthSupabase {
		p, err := identity.NewSupabaseProvider(identity.SupabaseConfig{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseKey,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return identity.NewLocalProvider(store, cfg.JWTSecret, cfg.JWTTTL), nil
}
