package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/config"
	"github.com/hackgods/clinic-booking-platform/internal/db"
	"github.com/hackgods/clinic-booking-platform/internal/logging"
	"github.com/hackgods/clinic-booking-platform/internal/notification"
)

// notifier-worker drains the notification outbox. Dev logs each message;
// every other environment publishes to Kafka.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	var sender notification.Sender
	if cfg.IsDev() {
		sender = notification.NewLogSender(logger.Named("outbox"))
		logger.Info("delivering notifications to the log")
	} else {
		kafka := notification.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("closing kafka writer", zap.Error(err))
			}
		}()
		sender = kafka
		logger.Info("delivering notifications to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	gateway := notification.NewGateway(notification.NewPgStore(pgPool), sender, logger.Named("notifier"), cfg.NotifyBatchSize)
	gateway.Run(rootCtx, cfg.NotifyInterval)

	logger.Info("notifier-worker stopped")
}
