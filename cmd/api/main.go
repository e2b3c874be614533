package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialtrack/internal/auth"
	"dialtrack/internal/calllog"
	"dialtrack/internal/config"
	"dialtrack/internal/contacts"
	"dialtrack/internal/dialer"
	"dialtrack/internal/httpapi"
	"dialtrack/internal/override"
	"dialtrack/internal/provider"
	"dialtrack/pkg/logger"
	"dialtrack/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	contactRepo := contacts.NewPostgresRepo(db)
	attemptRepo := calllog.NewPostgresRepo(db)
	providerClient := provider.NewClient(cfg.Provider)

	sessions := dialer.NewSessionManager(contactRepo, cfg.Poller.Interval, log)
	defer sessions.Shutdown()

	dialSvc := dialer.NewService(contactRepo, attemptRepo, providerClient, sessions, log).
		WithDialSlots(dialer.NewRedisDialSlots(rdb, 0)).
		WithReportFetcher(providerClient)

	resolver := override.NewResolver(override.NewRedisStore(rdb, log), contactRepo, log)
	if err := resolver.Hydrate(rootCtx); err != nil {
		log.Error("override hydrate failed", "err", err)
		os.Exit(1)
	}
	go func() {
		if err := resolver.StartWatch(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("override watch stopped", "err", err)
		}
	}()

	notes := calllog.NewRecorder(calllog.NewContactNotesStore(contactRepo))

	handlers := httpapi.Handlers{
		Contacts:  contactRepo,
		Dialer:    dialSvc,
		Overrides: resolver,
		Notes:     notes,
	}
	webhook := provider.WebhookHandler{Settler: dialSvc}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, webhook, auth.RequireBearerToken(authManager), db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
