package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-statemachine/internal/api"
	"github.com/akylbek/payment-system/payment-statemachine/internal/config"
	"github.com/akylbek/payment-system/payment-statemachine/internal/events"
	"github.com/akylbek/payment-system/payment-statemachine/internal/interfaces"
	"github.com/akylbek/payment-system/payment-statemachine/internal/ledger"
	"github.com/akylbek/payment-system/payment-statemachine/internal/lock"
	"github.com/akylbek/payment-system/payment-statemachine/internal/repository"
	"github.com/akylbek/payment-system/payment-statemachine/internal/service"
	"github.com/akylbek/payment-system/payment-statemachine/internal/statemachine"
	"github.com/akylbek/payment-system/payment-statemachine/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := telemetry.InitTelemetry("payment-statemachine", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment State Machine")

	// Payment store
	var repo interfaces.PaymentRepository
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		pgRepo := repository.NewPostgresPaymentRepository(db)
		if err := pgRepo.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		repo = pgRepo
	} else {
		telemetry.Logger.Warn("DATABASE_URL not set, payments are kept in memory")
		repo = repository.NewMemoryPaymentRepository()
	}

	// Per-payment locks
	var locker interfaces.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
	}

	// State change publishers
	var publishers events.MultiPublisher
	if cfg.KafkaEnabled() {
		publishers = append(publishers, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaStateTopic))
	}
	if cfg.NatsURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NatsURL, cfg.NatsSubject)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		publishers = append(publishers, natsPublisher)
	}
	var publisher interfaces.StateChangePublisher
	if len(publishers) > 0 {
		publisher = publishers
		defer publishers.Close()
	}

	account, err := ledger.NewAccount(cfg.InitialBalance, cfg.LimitPerPayment)
	if err != nil {
		telemetry.Logger.Fatal("Failed to open account", zap.Error(err))
	}

	paymentService := service.NewPaymentService(
		repo,
		locker,
		account,
		statemachine.NewPersistingInterceptor(repo, publisher),
	)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if cfg.KafkaEnabled() {
		consumer := events.NewCommandConsumer(cfg.KafkaBrokers, cfg.KafkaCommandTopic, cfg.KafkaGroupID, paymentService)
		go func() {
			if err := consumer.Run(consumerCtx); err != nil {
				telemetry.Logger.Error("Command consumer stopped", zap.Error(err))
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(paymentService),
	}

	go func() {
		telemetry.Logger.Info("Payment State Machine starting",
			zap.String("port", cfg.Port),
			zap.String("balance", account.Balance().String()),
			zap.String("limit_per_payment", account.Limit().String()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
