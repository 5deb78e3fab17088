package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking-platform/internal/api"
	"github.com/hackgods/clinic-booking-platform/internal/appointment"
	"github.com/hackgods/clinic-booking-platform/internal/availability"
	"github.com/hackgods/clinic-booking-platform/internal/config"
	"github.com/hackgods/clinic-booking-platform/internal/db"
	"github.com/hackgods/clinic-booking-platform/internal/logging"
	redisclient "github.com/hackgods/clinic-booking-platform/internal/redis"
	"github.com/hackgods/clinic-booking-platform/internal/slots"
)

var version = "dev"

// devJWTSecret signs tokens when APP_ENV=dev and JWT_SECRET is unset.
const devJWTSecret = "dev-only-secret"

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

	logger.Info("api-server starting up", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort), zap.String("version", version))

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

	rdb, err := redisclient.Connect(rootCtx, redisclient.Endpoint{
		URL:      cfg.RedisURL,
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	availRepo := availability.NewPgRepository(pgPool)
	apptRepo := appointment.NewPgRepository(pgPool)

	bookings := appointment.NewService(appointment.Deps{
		Repo:         apptRepo,
		Locker:       redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL, cfg.LockWait),
		Availability: availRepo,
		Limiter:      redisclient.NewFixedWindowLimiter(rdb, "ratelimit:hold", cfg.BookingRateLimit, cfg.BookingRateWindow),
		Logger:       logger.Named("booking"),
	}, cfg)

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set, using the dev signing key")
		secret = devJWTSecret
	}

	router := api.NewRouter(api.RouterConfig{
		Bookings:     bookings,
		Availability: availability.NewService(availRepo, logger.Named("availability")),
		Slots:        slots.NewService(availRepo, apptRepo, nil),
		Health: api.NewHealthHandler(
			pgPool,
			api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
			cfg.Env, version,
		),
		Auth:        api.NewAuthenticator(secret, cfg.IsDev()),
		Logger:      logger.Named("http"),
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	logger.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
