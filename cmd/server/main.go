// Command server runs the reservation API, the payment deadline sweeper and,
// when enabled, the booking-log consumer.
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

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/homestay-reservation/internal/config"
	"github.com/iliyamo/homestay-reservation/internal/database"
	"github.com/iliyamo/homestay-reservation/internal/handler"
	"github.com/iliyamo/homestay-reservation/internal/middleware"
	"github.com/iliyamo/homestay-reservation/internal/queue"
	"github.com/iliyamo/homestay-reservation/internal/repository"
	"github.com/iliyamo/homestay-reservation/internal/router"
	"github.com/iliyamo/homestay-reservation/internal/service"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	bookingCfg := config.LoadBookingConfig()
	queueCfg := config.LoadQueueConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database ---------------------------------------------------------
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	applied, err := database.Migrate(ctx, db)
	if err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "migrations_applied", applied)

	// --- Redis (optional) -------------------------------------------------
	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		slog.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	// --- Engine -----------------------------------------------------------
	var notifier service.Notifier = service.NopNotifier{}
	if queueCfg.NotifyEnabled {
		notifier = service.NewQueuePublisher(queueCfg.URL, queueCfg.QueueName)
	}
	svc := service.NewBookingService(
		repository.NewReservationRepo(db),
		repository.NewRoomRepo(db),
		service.Options{
			PaymentTimeout: bookingCfg.PaymentTimeout,
			LockWait:       bookingCfg.LockWait,
			NotifyTimeout:  bookingCfg.NotifyTimeout,
			Clock:          service.SystemClock{},
			Notifier:       notifier,
			Logger:         logger,
		},
	)

	done := make(chan struct{}, 2)
	workers := 0
	if bookingCfg.SweepEnabled {
		workers++
		sweeper := service.NewPaymentSweeper(svc, bookingCfg.SweepInterval, bookingCfg.SweepBatch)
		go func() {
			sweeper.Run(ctx)
			done <- struct{}{}
		}()
	}
	if queueCfg.ConsumerEnabled {
		workers++
		go func() {
			if err := queue.StartReservationConsumer(ctx, queueCfg.URL, queueCfg.QueueName, queueCfg.LogDir); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("reservation consumer stopped", "error", err)
			}
			done <- struct{}{}
		}()
	}

	// --- HTTP -------------------------------------------------------------
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.NewSlogLogger(logger))
	e.Use(echomw.Recover())

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	reservations := handler.NewReservationHandler(svc, logger)

	router.RegisterRoutes(e, handler.NewHealthHandler(db))
	router.RegisterPublic(e, handler.NewAvailabilityHandler(svc, logger), cache)
	router.RegisterCustomer(e, reservations, cfg.JWTSecret, limit)
	router.RegisterStaff(e, reservations, cfg.JWTSecret, limit)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	for i := 0; i < workers; i++ {
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}
	svc.WaitNotifications()
	slog.Info("server stopped")
}
