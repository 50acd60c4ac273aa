package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/voicenote-intake/internal/config"
	"github.com/benvon/voicenote-intake/internal/logger"
	"github.com/benvon/voicenote-intake/internal/queue"
	"github.com/benvon/voicenote-intake/internal/services/notify"
	"github.com/benvon/voicenote-intake/internal/workers"
	"go.uber.org/zap"
)

const dlqGCInterval = time.Hour

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_not_configured")
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Int("mail_rate_per_minute", cfg.MailRatePerMinute),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobQueue, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	mailer, err := notify.NewMailNotifierFromConfig(cfg)
	if err != nil {
		zapLogger.Fatal("failed_to_create_mail_notifier", zap.Error(err))
	}

	sender := workers.NewNotificationSender(mailer, jobQueue, workers.DefaultRetryBackoff, cfg.NotifyTimeout, zapLogger)

	dlqGC := queue.NewGarbageCollector(jobQueue, dlqGCInterval, queue.DefaultDLQRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()
	zapLogger.Info("started_dlq_garbage_collector",
		zap.Duration("interval", dlqGCInterval),
		zap.Duration("retention", queue.DefaultDLQRetention),
	)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sender.Run(ctx, msgChan, errChan)
	}()
	zapLogger.Info("worker_started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zapLogger.Info("shutdown_signal_received")
	case <-done:
		zapLogger.Warn("consumer_stopped")
	}

	cancel()
	<-done
	zapLogger.Info("worker_stopped")
}
