package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/gsis-platform/gsis-dashboard/internal/appstate"
	"github.com/gsis-platform/gsis-dashboard/internal/auth"
	"github.com/gsis-platform/gsis-dashboard/internal/clock"
	"github.com/gsis-platform/gsis-dashboard/internal/config"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
	"github.com/gsis-platform/gsis-dashboard/internal/gate"
	"github.com/gsis-platform/gsis-dashboard/internal/handlers"
	"github.com/gsis-platform/gsis-dashboard/internal/inference"
	"github.com/gsis-platform/gsis-dashboard/internal/logging"
	"github.com/gsis-platform/gsis-dashboard/internal/realtime"
	"github.com/gsis-platform/gsis-dashboard/internal/seed"
	"github.com/gsis-platform/gsis-dashboard/internal/settings"
	"github.com/gsis-platform/gsis-dashboard/internal/uploads"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "config/config.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("gsis-dashboard %s (%s)\n", version, gitCommit)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting gsis-dashboard",
		"version", version, "environment", cfg.Environment, "port", cfg.Server.Port)

	store, err := settings.Open(cfg.Store.Dir, logger)
	if err != nil {
		logger.Error("failed to open settings store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	devRole := domain.Role(cfg.Auth.DevRole)
	var session *auth.Session
	if devRole.Valid() {
		session = &auth.Session{Principal: "local-dev", Role: devRole}
	}
	provider := auth.NewStaticProvider(session)

	facade := appstate.New(appstate.Config{
		Logger:         logger,
		Clock:          clock.New(),
		Store:          store,
		Provider:       provider,
		Keys:           hub,
		Seed:           seed.Alerts(),
		RefreshLatency: cfg.Refresh.Latency,
	})
	defer facade.Close()
	removeListener := facade.AddListener(hub.BroadcastEvent)
	defer removeListener()

	var cache inference.Cache = inference.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to in-process cache", "error", err)
		} else {
			cache = inference.NewRedisCache(rdb, cfg.Redis.TTL)
		}
	}
	inf := inference.NewClient(cfg.Inference.BaseURL, cfg.Inference.Timeout, logger, cache)

	var uploadStore handlers.UploadStore
	if cfg.Database.DSN != "" {
		up, err := uploads.Open(cfg.Database.DSN, logger)
		if err != nil {
			// The dashboard stays usable without upload history.
			logger.Warn("upload store unavailable", "error", err)
		} else {
			uploadStore = up
		}
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenDuration)
	g := gate.New(&gate.TokenResolver{Tokens: tokens}, logger,
		cfg.Auth.SignInURL, cfg.Auth.UnauthorizedURL)

	devSignIn := cfg.Environment != "production"
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.New(logger, inf, uploadStore, g, hub, tokens, devSignIn).Register(router, facade)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
