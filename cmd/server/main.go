package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/neighbor-group/internal/api"
	"github.com/dom/neighbor-group/internal/config"
	"github.com/dom/neighbor-group/internal/mail"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/dom/neighbor-group/internal/repository/gormrepo"
	"github.com/dom/neighbor-group/internal/scheduler"
	"github.com/dom/neighbor-group/internal/service"
	"github.com/dom/neighbor-group/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Initialize database
	db, err := gormrepo.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Initialize repositories
	repos := gormrepo.NewRepositories(db)

	sessionKey, err := service.LoadSessionKey(context.Background(), repos.Option, cfg.SessionKey)
	if err != nil {
		log.Fatalf("failed to load session key: %v", err)
	}

	mailer, err := mail.New(cfg.Mail)
	if err != nil {
		log.Fatalf("failed to configure mail: %v", err)
	}
	if !cfg.Mail.Enabled() {
		log.Warn("SMTP is not configured; password reset codes cannot be delivered")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	// Initialize services
	services := service.NewServices(repos, cfg, sessionKey, mailer, metrics, log)

	// Initialize WebSocket hub
	hub := websocket.NewHub(log)
	go hub.Run()

	jobs := scheduler.New(metrics, log)
	if err := jobs.AddSessionPruning(cfg.SessionPruneSpec, services.Sessions); err != nil {
		log.Fatalf("failed to schedule jobs: %v", err)
	}
	jobs.Start()

	// Initialize router
	router := api.NewRouter(services, hub, metrics, cfg, log)

	// Create server
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"addr":        cfg.Addr(),
			"environment": cfg.Environment,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	hub.Stop()
	select {
	case <-jobs.Stop().Done():
	case <-ctx.Done():
		log.Warn("background jobs still running at shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info("server stopped")
}
