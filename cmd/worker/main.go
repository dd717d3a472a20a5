package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docvault/internal/bootstrap"
	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/usecase"
	"github.com/kirillkom/docvault/internal/observability/logging"
	"github.com/kirillkom/docvault/internal/observability/metrics"
)

const (
	serviceName    = "docvault-worker"
	processTimeout = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.WorkerMetricsPort,
		Handler:      workerMetrics.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker metrics server", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	handle := app.Jobs.Handle(app.ProcessUC)

	logger.Info("worker subscribed", "stream", cfg.NATSStream, "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIngest(ctx, func(handlerCtx context.Context, payload domain.IngestPayload) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		workerMetrics.StartJob()
		start := time.Now()
		if !payload.EnqueuedAt.IsZero() {
			workerMetrics.ObserveQueueLag(start.Sub(payload.EnqueuedAt))
		}

		err := handle(processCtx, payload)

		workerMetrics.FinishJob(serviceName, time.Since(start), err)
		if err != nil {
			workerMetrics.RecordStageFailure(serviceName, usecase.StageOf(err))
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
