package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/api"
	"github.com/ricirt/newsdigest/internal/config"
	"github.com/ricirt/newsdigest/internal/fetcher"
	"github.com/ricirt/newsdigest/internal/logger"
	"github.com/ricirt/newsdigest/internal/mailer"
	"github.com/ricirt/newsdigest/internal/metrics"
	"github.com/ricirt/newsdigest/internal/repository"
	"github.com/ricirt/newsdigest/internal/service"
	"github.com/ricirt/newsdigest/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	tlsMin, err := cfg.TLSMinVersion()
	if err != nil {
		log.Fatal("invalid TLS settings", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	f := fetcher.New(fetcher.Config{
		RankingURL:  cfg.RankingURL,
		ItemBaseURL: cfg.ItemBaseURL,
		ItemPageURL: cfg.ItemPageURL,
		Timeout:     cfg.HTTPTimeout,
		Concurrency: cfg.FetchConcurrency,
	}, log, fetcher.WithLookupFailedHook(m.LookupFailedHook()))

	dispatcher := mailer.NewDispatcher(cfg.SenderEmail, cfg.MessageID, log)
	transport := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUser,
		Password:      cfg.SMTPPassword,
		Timeout:       cfg.SMTPTimeout,
		TLSMinVersion: tlsMin,
		Subject:       cfg.Subject,
	})

	openStore := func(ctx context.Context) (repository.SubscriberRepository, error) {
		return repository.Open(ctx, cfg, log)
	}

	onRun, onItemsFetched, onDelivery := m.ServiceHooks()
	svc := service.NewDigestService(openStore, f, dispatcher, transport, service.Options{
		TemplatePath:   cfg.TemplatePath,
		UnsubscribeURL: cfg.UnsubscribeURL,
		CloseRetries:   cfg.DBCloseRetries,
	}, log, service.Hooks{
		OnRun:          onRun,
		OnItemsFetched: onItemsFetched,
		OnDelivery:     onDelivery,
	})

	if cfg.Schedule == "" {
		runOnce(cfg, svc, reg, log)
		return
	}
	serve(cfg, svc, reg, log)
}

// runOnce executes a single digest run and exits non-zero when it failed.
func runOnce(cfg *config.Config, svc *service.DigestService, reg *prometheus.Registry, log *zap.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, runErr := svc.Run(ctx)

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, reg); err != nil {
			log.Warn("failed to push metrics", zap.Error(err))
		}
		cancel()
	}

	if runErr != nil {
		stop()
		log.Fatal("digest run failed", zap.Error(runErr))
	}
}

// serve runs the digest on cfg.Schedule and exposes the ops HTTP surface
// until SIGINT or SIGTERM.
func serve(cfg *config.Config, svc *service.DigestService, reg *prometheus.Registry, log *zap.Logger) {
	schedule, err := worker.ParseSchedule(cfg.Schedule)
	if err != nil {
		log.Fatal("invalid schedule", zap.Error(err))
	}

	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	scheduler := worker.NewSchedulerWorker(svc, schedule, log)
	scheduler.Start(workerCtx)

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(scheduler, reg, log),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("schedule", cfg.Schedule))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the schedule and cancel any run in flight.
	cancelWorkers()

	// 3. Wait for the running digest to notice and return.
	scheduler.Wait()

	log.Info("server stopped cleanly")
}
