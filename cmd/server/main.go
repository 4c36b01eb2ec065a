package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lim5max/checkly-billing/internal/adapters/logging"
	"github.com/lim5max/checkly-billing/internal/adapters/postgres"
	"github.com/lim5max/checkly-billing/internal/adapters/smtp"
	"github.com/lim5max/checkly-billing/internal/adapters/tbank"
	"github.com/lim5max/checkly-billing/internal/config"
	cronHandler "github.com/lim5max/checkly-billing/internal/handlers/cron"
	webhookHandler "github.com/lim5max/checkly-billing/internal/handlers/webhook"
	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/services/billing"
	"github.com/lim5max/checkly-billing/internal/services/notification"
	"github.com/lim5max/checkly-billing/pkg/middleware"
	"github.com/lim5max/checkly-billing/pkg/observability"
	"github.com/lim5max/checkly-billing/pkg/resilience"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
		zap.Bool("gateway_test_mode", cfg.Gateway.IsTestMode),
	)

	dbPool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	deps := initDependencies(dbPool, cfg, logger)

	// HTTP server for cron and webhook endpoints
	httpMux := http.NewServeMux()

	// The webhook is reachable by anyone who knows the URL; rate limit it
	rateLimiter := middleware.NewRateLimiter(10, 20)
	defer rateLimiter.Shutdown()

	httpMux.HandleFunc("/cron/charge-subscription", deps.chargeCronHandler.ChargeSubscription)
	httpMux.HandleFunc("/cron/process-renewals", deps.chargeCronHandler.ProcessRenewals)
	httpMux.HandleFunc("/webhook/tbank", rateLimiter.HTTPHandlerFunc(deps.webhookHandler.HandleNotification))

	// No server-level write timeout: the renewal batch endpoint can run for
	// minutes and bounds itself through the cron batch context.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics and health endpoints on a separate port
	healthChecker := observability.NewHealthChecker(dbPool)
	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker)

	go func() {
		logger.Info("HTTP server listening",
			zap.String("address", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Servers stopped")
}

// Dependencies holds all initialized services and handlers
type Dependencies struct {
	chargeCronHandler *cronHandler.ChargeHandler
	webhookHandler    *webhookHandler.TBankHandler
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}

	if cfg.Development {
		zapCfg := zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(level)
		logger, _ := zapCfg.Build()
		return logger
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, _ := zapCfg.Build()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// initDependencies initializes all services and handlers with dependency injection
func initDependencies(dbPool *pgxpool.Pool, cfg *config.Config, logger *zap.Logger) *Dependencies {
	portLogger := logging.NewZapLogger(logger)
	timeouts := resilience.DefaultTimeoutConfig()

	db := postgres.NewDBExecutor(dbPool)

	subRepo := postgres.NewSubscriptionRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	planRepo := postgres.NewPlanRepository(db)
	userRepo := postgres.NewUserRepository(db)
	notifLogRepo := postgres.NewNotificationLogRepository(db)

	gateway := tbank.NewClient(tbank.Config{
		TerminalKey: cfg.Gateway.TerminalKey,
		Password:    cfg.Gateway.Password,
		BaseURL:     cfg.Gateway.BaseURL,
		IsTestMode:  cfg.Gateway.IsTestMode,
	}, &http.Client{}, portLogger)

	mailer := smtp.NewMailer(smtp.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})

	dispatcher := notification.NewDispatcher(notifLogRepo, mailer, portLogger)

	orchestrator := billing.NewOrchestrator(
		db, subRepo, orderRepo, planRepo, userRepo,
		gateway, dispatcher, domain.TwoStrikePolicy, timeouts, portLogger,
	)

	chargeCronHdlr := cronHandler.NewChargeHandler(orchestrator, logger, cfg.Cron.Secret, timeouts)
	webhookHdlr := webhookHandler.NewTBankHandler(db, orderRepo, subRepo, planRepo, userRepo, gateway, logger)

	return &Dependencies{
		chargeCronHandler: chargeCronHdlr,
		webhookHandler:    webhookHdlr,
	}
}
