package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/marketplace-tx/internal/api"
	"github.com/honeynil/marketplace-tx/internal/config"
	"github.com/honeynil/marketplace-tx/internal/gateway"
	"github.com/honeynil/marketplace-tx/internal/gateway/paypalgw"
	"github.com/honeynil/marketplace-tx/internal/gateway/stripegw"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/auth"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/kafka"
	"github.com/honeynil/marketplace-tx/internal/infrastructure/redis"
	"github.com/honeynil/marketplace-tx/internal/jobs"
	"github.com/honeynil/marketplace-tx/internal/models"
	"github.com/honeynil/marketplace-tx/internal/notify"
	"github.com/honeynil/marketplace-tx/internal/observability"
	core "github.com/honeynil/marketplace-tx/internal/repository/postgres"
	service "github.com/honeynil/marketplace-tx/internal/services"
	"github.com/honeynil/marketplace-tx/internal/tokens"
	"github.com/honeynil/marketplace-tx/internal/validation"
	_ "github.com/lib/pq"
)

const day = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Логи, метрики, трейсы
	shutdownTracing, metricsHandler := observability.Setup(ctx, observability.Options{
		ServiceName:  "marketplace-tx",
		LogLevel:     cfg.LogLevel,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	defer shutdownTracing(context.Background())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	repos := service.Repositories{
		Transactions:   core.NewTransactionRepository(db),
		Listings:       core.NewListingRepository(db),
		Communities:    core.NewCommunityRepository(db),
		SellerAccounts: core.NewSellerAccountRepository(db),
		Conversations:  core.NewConversationRepository(db),
		Bookings:       core.NewBookingRepository(db),
	}

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		os.Exit(1)
	}
	defer redisClient.Close()
	rdb := redisClient.Redis()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	scheduler := jobs.NewScheduler(kafka.NewJobPublisher(producer, cfg.Kafka.JobsTopic), redis.NewDelayedQueue(rdb))
	notifier := notify.NewNotifier(producer, cfg.Kafka.NotificationsTopic)

	registry, err := newRegistry(cfg)
	if err != nil {
		slog.Error("failed to set up payment gateways", "error", err)
		os.Exit(1)
	}

	svc := service.NewTransactionService(
		repos,
		tokens.NewTracker(redis.NewTokenStore(rdb, cfg.Payments.TokenRetention)),
		registry,
		redis.NewLocker(rdb, cfg.Payments.LockTTL, cfg.Payments.LockWait),
		redis.NewDeduplicator(rdb, cfg.Payments.WebhookDedupTTL),
		scheduler,
		notifier,
		service.Config{
			Horizons: validation.Horizons{
				Default: cfg.Payments.BookingHorizonDays,
				Stripe:  cfg.Payments.StripeHorizonDays,
			},
			PayoutDelay:        time.Duration(cfg.Payments.PayoutDelayDays) * day,
			DelayedPayoutModes: cfg.Payments.DelayedPayoutModes,
			AutoCompleteAfter:  time.Duration(cfg.Payments.AutoCompleteDays) * day,
			AsyncTimeout:       cfg.Payments.GatewayTimeout * 2,
		},
	)

	go scheduler.Run(ctx, cfg.Payments.SchedulerInterval)

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		Topic:           cfg.Kafka.JobsTopic,
		GroupID:         cfg.Kafka.ConsumerGroup,
		DeadLetterTopic: cfg.Kafka.DeadLetterTopic,
		MaxAttempts:     cfg.Payments.JobMaxAttempts,
	}, scheduler, producer)
	defer consumer.Close()
	go func() {
		if err := consumer.Run(ctx, svc.ProcessJob); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("job consumer stopped", "error", err)
		}
	}()

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.Payments.JWTTTL)
	router := api.SetupRouter(svc, jwtService, redis.NewRevocations(rdb), metricsHandler)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	svc.Wait()
	notifier.Wait()
	slog.Info("server stopped")
}

// newRegistry registers every gateway that has credentials configured.
func newRegistry(cfg *config.Config) (*gateway.Registry, error) {
	registry := gateway.NewRegistry(cfg.Payments.GatewayTimeout)

	if cfg.Stripe.SecretKey != "" {
		registry.Register(models.GatewayStripe, stripegw.New(stripegw.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
		}))
		slog.Info("stripe gateway enabled")
	}

	if cfg.Paypal.ClientID != "" {
		gw, err := paypalgw.New(paypalgw.Config{
			ClientID:  cfg.Paypal.ClientID,
			Secret:    cfg.Paypal.Secret,
			Mode:      cfg.Paypal.Mode,
			WebhookID: cfg.Paypal.WebhookID,
			ReturnURL: cfg.Paypal.ReturnURL,
			CancelURL: cfg.Paypal.CancelURL,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(models.GatewayPaypal, gw)
		slog.Info("paypal gateway enabled")
	}
	return registry, nil
}
