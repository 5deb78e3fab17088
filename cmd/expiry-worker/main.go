package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/appointment"
	"github.com/hackgods/clinic-booking-platform/internal/config"
	"github.com/hackgods/clinic-booking-platform/internal/db"
	"github.com/hackgods/clinic-booking-platform/internal/logging"
)

// expiry-worker runs the expiry sweeper and the reminder scheduler.
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

	logger.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Duration("reminder_interval", cfg.ReminderInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	repo := appointment.NewPgRepository(pgPool)
	sweeper := appointment.NewSweeper(repo, logger.Named("sweeper"), nil)
	reminders := appointment.NewReminderScheduler(repo, logger.Named("reminders"), cfg.ReminderLead, cfg.ReminderTolerance, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sweeper.Run(rootCtx, cfg.SweepInterval)
	}()
	go func() {
		defer wg.Done()
		reminders.Run(rootCtx, cfg.ReminderInterval)
	}()
	wg.Wait()

	logger.Info("expiry-worker stopped")
}
