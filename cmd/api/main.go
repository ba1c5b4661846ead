package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/punchamoorthee/procurefin/internal/api"
	"github.com/punchamoorthee/procurefin/internal/config"
	"github.com/punchamoorthee/procurefin/internal/events"
	"github.com/punchamoorthee/procurefin/internal/jobs"
	"github.com/punchamoorthee/procurefin/internal/logger"
	"github.com/punchamoorthee/procurefin/internal/service"
	"github.com/punchamoorthee/procurefin/internal/store"
)

func main() {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Unable to build logger: %v", err)
	}
	defer zl.Sync()

	if cfg.IsProduction() && cfg.JWTSecret == "" {
		zl.Fatal("JWT_SECRET is required in production")
	}

	ctx := context.Background()
	ledgerStore, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		zl.Fatal("unable to connect to database", zap.Error(err))
	}
	defer ledgerStore.Close()
	zl.Info("database connection established")

	publisher := events.Connect(cfg.RabbitMQURL, cfg.EventsExchange, zl)
	defer publisher.Close()

	// Initialize Layers
	plans := service.NewPlanService(ledgerStore, publisher, zl)
	contributions := service.NewContributionService(ledgerStore, publisher, zl)
	payables := service.NewPayableService(ledgerStore, cfg.Location())
	handler := api.NewHandler(plans, contributions, payables, zl, cfg.Location())
	router := api.NewRouter(handler, api.RequireRole([]byte(cfg.JWTSecret), cfg.Roles(), zl))

	scheduler := jobs.NewScheduler(jobs.NewJobs(ledgerStore, publisher, zl, cfg.Location()), zl, cfg.OverdueSweepSchedule)
	if err := scheduler.Start(); err != nil {
		zl.Fatal("unable to start scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zl.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
	zl.Info("stopped gracefully")
}
