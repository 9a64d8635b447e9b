package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"skibook/internal/bonus"
	"skibook/internal/booking"
	"skibook/internal/client"
	"skibook/internal/config"
	"skibook/internal/db"
	"skibook/internal/events"
	"skibook/internal/lock"
	"skibook/internal/logger"
	"skibook/internal/notify"
	"skibook/internal/payment"
	"skibook/internal/schedule"
	"skibook/internal/server"
	"skibook/internal/wallet"

	"github.com/redis/go-redis/v9"
)

const (
	birthdayJobInterval = time.Hour
	queueGaugeInterval  = 30 * time.Second
)

// @title SkiBook API
// @version 1.0
// @description Slot booking, payments and bonuses for a ski and snowboard simulator school.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting SkiBook application")

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	notifier := notify.New(rdb)
	defer notifier.Close()
	locker := lock.New(rdb)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			logger.Fatalf("Failed to connect to rabbitmq: %v", err)
		}
		publisher = rp
		logger.Info("Publishing domain events", "exchange", cfg.EventsExchange)
	}
	defer publisher.Close()

	var provider payment.Provider
	if cfg.PaymentsEnabled() {
		om, err := payment.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseSourceType)
		if err != nil {
			logger.Fatalf("Failed to init payment provider: %v", err)
		}
		provider = om
		logger.Info("Card payments enabled", "provider", om.Name())
	} else {
		logger.Warn("Card payments disabled, OMISE keys not set")
	}

	loc := cfg.Location()

	slotRepo := schedule.NewRepository(database)
	walletRepo := wallet.NewRepository(database)
	bookingRepo := booking.NewRepository(database)
	paymentRepo := payment.NewRepository(database)

	scheduleService := schedule.NewService(database, slotRepo, loc)
	bonusService := bonus.NewService(database, bonus.NewRepository(database), walletRepo, notifier, publisher, loc)
	clientService := client.NewService(client.NewRepository(database), bonusService, publisher, cfg.JWTSecret)
	bookingService := booking.NewService(database, bookingRepo, slotRepo, walletRepo, bonusService, notifier, publisher, loc)
	reconciler := payment.NewReconciler(database, paymentRepo, slotRepo, bookingService, walletRepo, notifier, publisher, provider)
	paymentService := payment.NewService(database, paymentRepo, slotRepo, provider, reconciler, payment.Options{
		HoldTTL:   cfg.HoldTTL,
		Currency:  cfg.Currency,
		ReturnURL: cfg.PaymentReturnURL,
		Location:  loc,
	})

	srv := server.New(cfg, server.Handlers{
		Client:   client.NewHandler(clientService),
		Schedule: schedule.NewHandler(scheduleService),
		Booking:  booking.NewHandler(bookingService),
		Payment:  payment.NewHandler(paymentService, reconciler),
		Wallet:   wallet.NewHandler(walletRepo),
		Bonus:    bonus.NewHandler(bonusService),
		Checks: map[string]server.Check{
			"postgres": database.PingContext,
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workers sync.WaitGroup
	runWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(ctx)
		}()
	}
	runWorker(schedule.NewSweeper(slotRepo, locker, cfg.SweepInterval).Run)
	runWorker(payment.NewPoller(paymentRepo, reconciler, locker, cfg.ReconcileInterval, cfg.PendingTimeout).Run)
	runWorker(bonus.NewBirthdayJob(bonusService, locker, birthdayJobInterval).Run)
	runWorker(func(ctx context.Context) { watchQueue(ctx, notifier) })

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	cancel()
	workers.Wait()

	logger.Info("Server stopped")
}

// watchQueue keeps the notification backlog gauge current.
func watchQueue(ctx context.Context, n *notify.Service) {
	ticker := time.NewTicker(queueGaugeInterval)
	defer ticker.Stop()
	for {
		n.QueueLength(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
