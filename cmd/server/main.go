package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/coffee-order/internal/adapter/handler"
	"github.com/rl1809/coffee-order/internal/adapter/messaging"
	"github.com/rl1809/coffee-order/internal/adapter/notification"
	"github.com/rl1809/coffee-order/internal/adapter/payment"
	"github.com/rl1809/coffee-order/internal/adapter/resilience"
	"github.com/rl1809/coffee-order/internal/adapter/storage"
	"github.com/rl1809/coffee-order/internal/config"
	"github.com/rl1809/coffee-order/internal/core/service"
	"github.com/rl1809/coffee-order/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := telemetry.InitLogger(cfg.LogLevel, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	logger.Info("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		return err
	}
	if cfg.SeedCatalog {
		if err := mysqlAdapter.SeedCatalog(ctx, storage.DefaultCatalog()); err != nil {
			return err
		}
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	logger.Info("connected to redis")

	sagaLog, err := storage.OpenSagaLog(cfg.SagaLogPath)
	if err != nil {
		return err
	}
	defer sagaLog.Close()

	publisher, err := messaging.NewKafkaPublisher(cfg.KafkaBrokers)
	if err != nil {
		return err
	}
	defer publisher.Close()

	metrics := telemetry.NewMetrics(logger)

	// Initialize adapters
	httpClient := &http.Client{}
	catalog := storage.NewCachedCatalog(mysqlAdapter, rdb, cfg.CatalogTTL, logger)
	payments := payment.NewClient(cfg.PaymentURL, httpClient,
		resilience.NewPolicy(cfg.Payment, metrics), storage.NewRedisLocker(rdb), logger).
		WithLockLease(cfg.PaymentLockTTL)
	notifier := notification.NewClient(cfg.NotificationURL, httpClient,
		resilience.NewPolicy(cfg.Notification, metrics), logger)

	relay := service.NewEventRelay(publisher, cfg.RelayQueueSize, logger, metrics)
	relay.Start(cfg.RelayWorkers)
	logger.Info("started event relay", "workers", cfg.RelayWorkers)

	orderService := service.NewOrderService(catalog, mysqlAdapter, payments, notifier, relay,
		service.WithSagaLog(sagaLog),
		service.WithMetrics(metrics),
		service.WithLogger(logger),
		service.WithCurrency(cfg.Currency),
	)
	recovery := service.NewSagaRecovery(sagaLog, mysqlAdapter, payments, logger)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.OrderServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(orderService, logger), metrics.Middleware, metrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return recovery.Run(gctx, cfg.RecoveryInterval, cfg.RecoveryAge)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		healthServer.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		// no more producers; flush queued events before closing kafka
		relay.Close()
		logger.Info("event relay stopped")

		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
