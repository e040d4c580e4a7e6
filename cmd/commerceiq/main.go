package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/commerceiq/internal/adapter/fsm"
	"github.com/neomorfeo/commerceiq/internal/adapter/sqlite"
	"github.com/neomorfeo/commerceiq/internal/app"
	"github.com/neomorfeo/commerceiq/internal/config"

	handler "github.com/neomorfeo/commerceiq/internal/adapter/http"
	otelx "github.com/neomorfeo/commerceiq/internal/adapter/otel"
	riverx "github.com/neomorfeo/commerceiq/internal/adapter/river"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("commerceiq: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// --- Telemetry ---
	providers, err := otelx.Setup(ctx, otelx.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otelx.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	repo, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer repo.Close()

	// The sweep worker is constructed unbound: the River client needs the
	// registered workers, the publisher needs the client, the service needs
	// the publisher, and only then can the worker get the service.
	sweep := riverx.NewSweepWorker()
	client, err := riverx.Setup(ctx, db, sweep, cfg.SweepInterval, cfg.SweepBatchSize)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	publisher := otelx.NewTracingPublisher(riverx.NewPublisher(client))

	// --- Application ---
	svc := app.NewEntityService(otelx.NewTracingRepository(repo), repo, fsm.New(), publisher)
	stats := app.NewStatsService(repo)
	proj := app.NewProjector(repo)
	sweep.Bind(svc)

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			log.Printf("river stop: %v", err)
		}
	}()

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("commerceiq", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("commerceiq", "0.1.0"))
	handler.Register(api, svc, stats, proj)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("commerceiq listening on :%s", cfg.Port)
		log.Printf("API docs: http://localhost:%s/docs", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}

	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Println("stopped")
	return nil
}
