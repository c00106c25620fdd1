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

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/payflow/payment-core/internal/api"
	"github.com/payflow/payment-core/internal/audit"
	"github.com/payflow/payment-core/internal/config"
	"github.com/payflow/payment-core/internal/gateway"
	"github.com/payflow/payment-core/internal/metrics"
	"github.com/payflow/payment-core/internal/repository"
	"github.com/payflow/payment-core/internal/service"
	"github.com/payflow/payment-core/internal/telemetry"
	"github.com/payflow/payment-core/internal/workflow"
)

const gatewayTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-core"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Core")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize run repository
	repo := repository.NewRunRepository(db)
	if err := repo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Kafka audit trail
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    cfg.AuditTopic,
		Balancer: &kafka.LeastBytes{},
	}
	auditSink := audit.NewKafkaSink(kafkaWriter, telemetry.Logger)
	defer auditSink.Close()

	// Gateways to the mock banking backend and fraud service
	ledgerClient := gateway.NewLedgerClient(cfg.BankBaseURL, gatewayTimeout)
	paymentClient := gateway.NewPaymentClient(cfg.BankBaseURL, gatewayTimeout)
	fraudClient := gateway.NewFraudClient(nc, gatewayTimeout)

	// State machine engine and orchestrator
	engine := workflow.NewEngine(ledgerClient, fraudClient, paymentClient, auditSink, telemetry.Logger)
	m := metrics.New(prometheus.DefaultRegisterer)
	orchestrator := service.NewOrchestrator(engine, repo, redisClient, m, telemetry.Logger)

	// Setup HTTP server
	r := api.NewRouter(orchestrator)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Core starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
