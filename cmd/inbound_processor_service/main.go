package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	gRPC "google.golang.org/grpc"

	grpcadapter "github.com/aradsms/inbox_services/internal/inbound_processor_service/adapters/grpc"
	httpadapter "github.com/aradsms/inbox_services/internal/inbound_processor_service/adapters/http"
	"github.com/aradsms/inbox_services/internal/inbound_processor_service/adapters/natsnotify"
	"github.com/aradsms/inbox_services/internal/inbound_processor_service/app"
	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
	"github.com/aradsms/inbox_services/internal/inbound_processor_service/repository/badgerstore"
	"github.com/aradsms/inbox_services/internal/inbound_processor_service/repository/memory"
	"github.com/aradsms/inbox_services/internal/inbound_processor_service/repository/postgres"
	"github.com/aradsms/inbox_services/internal/platform/config"
	"github.com/aradsms/inbox_services/internal/platform/database"
	"github.com/aradsms/inbox_services/internal/platform/logger"
	"github.com/aradsms/inbox_services/internal/platform/messagebroker"
)

const (
	serviceName          = "inbound_processor_service"
	shutdownTimeout      = 10 * time.Second
	healthRefreshPeriod  = 5 * time.Second
	metricsHeaderTimeout = 2 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	prefs := &app.PreferencesStore{}
	cfg, err := config.LoadAndWatch(serviceName, slog.Default(), func(next *config.Config) {
		if err := prefs.Update(preferencesFrom(next)); err != nil {
			slog.Warn("Ignoring blocking preferences from changed configuration", "error", err)
			return
		}
		slog.Info("Blocking preferences reloaded", "drop_blocked", next.DropBlockedMessages, "blocking_manager", next.BlockingManager)
	})
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Starting service...")
	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"store_backend", cfg.StoreBackend,
		"nats_url", cfg.NATSURL,
		"postgres_dsn_present", cfg.PostgresDSN != "",
		"workers", cfg.InboundWorkerCount,
		"metrics_port", cfg.MetricsPort,
		"admin_http_port", cfg.AdminHTTPPort,
		"grpc_health_port", cfg.GRPCHealthPort,
	)

	readiness := make(map[string]func(ctx context.Context) error)

	var stores storeBackend
	switch cfg.StoreBackend {
	case "postgres":
		dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, database.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}, appLogger)
		if err != nil {
			appLogger.Error("Failed to initialize database connection pool", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		if err := postgres.EnsureSchema(mainCtx, dbPool, appLogger); err != nil {
			appLogger.Error("Failed to ensure database schema", "error", err)
			os.Exit(1)
		}
		stores = postgresStores(dbPool, appLogger)
		readiness["postgres"] = dbPool.Ping
	case "badger":
		store, err := badgerstore.Open(badgerstore.Options{Path: cfg.BadgerPath, InMemory: cfg.BadgerInMemory}, appLogger)
		if err != nil {
			appLogger.Error("Failed to open badger store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				appLogger.Error("Failed to close badger store", "error", err)
			}
		}()
		stores = badgerStores(store, appLogger)
		readiness["badger"] = func(context.Context) error { return store.Ready() }
	default:
		appLogger.Warn("Using in-memory stores; state is lost on restart")
		stores = memoryStores(appLogger)
	}

	nc, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	appLogger.Info("NATS connection initialized")
	readiness["nats"] = func(context.Context) error {
		if !nc.Ready() {
			return messagebroker.ErrNotConnected
		}
		return nil
	}

	if err := prefs.Update(preferencesFrom(cfg)); err != nil {
		appLogger.Error("Invalid blocking preferences", "error", err)
		os.Exit(1)
	}

	active := &app.ActiveConversation{}
	notifiers := natsnotify.NewNotifiers(nc, cfg.NotifySubjectPrefix, appLogger)
	pipeline := app.NewPipeline(stores.Stores, active, notifiers, appLogger)

	inboundEvents := make(chan app.InboundEvent, cfg.InboundBufferSize)
	consumer := app.NewInboundConsumer(nc, appLogger, inboundEvents)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return consumer.ConsumeSMS(groupCtx, cfg.InboundSMSSubject, cfg.InboundQueueGroup)
	})
	g.Go(func() error {
		return consumer.ConsumeMMS(groupCtx, cfg.InboundMMSSubject, cfg.InboundQueueGroup)
	})
	for i := 1; i <= cfg.InboundWorkerCount; i++ {
		worker := app.NewWorker(i, pipeline, prefs, appLogger)
		g.Go(func() error {
			return worker.Run(groupCtx, inboundEvents)
		})
	}

	// --- gRPC health server ---
	grpcChecks := make(map[string]grpcadapter.Check, len(readiness))
	for name, check := range readiness {
		grpcChecks[name] = check
	}
	healthReporter := grpcadapter.NewHealthReporter(grpcChecks, healthRefreshPeriod, appLogger)
	grpcMetrics := grpcprom.NewServerMetrics(grpcprom.WithServerHandlingTimeHistogram())
	if err := prometheus.DefaultRegisterer.Register(grpcMetrics); err != nil {
		appLogger.Warn("Failed to register gRPC Prometheus metrics", "error", err)
	}
	grpcServer := grpcadapter.NewServer(healthReporter, grpcMetrics)

	grpcListenAddress := fmt.Sprintf(":%d", cfg.GRPCHealthPort)
	grpcListener, err := net.Listen("tcp", grpcListenAddress)
	if err != nil {
		appLogger.Error("Failed to listen for gRPC", "address", grpcListenAddress, "error", err)
		os.Exit(1)
	}
	g.Go(func() error {
		return healthReporter.Run(groupCtx)
	})
	g.Go(func() error {
		appLogger.Info("gRPC health server starting", "address", grpcListenAddress)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, gRPC.ErrServerStopped) {
			appLogger.Error("gRPC server failed to serve", "error", err)
			return err
		}
		appLogger.Info("gRPC server shut down gracefully.")
		return nil
	})

	// --- Admin HTTP server ---
	httpChecks := make(map[string]httpadapter.ReadinessCheck, len(readiness))
	for name, check := range readiness {
		httpChecks[name] = check
	}
	adminHandler := httpadapter.NewAdminHandler(active, prefs, stores.rules, stores.contacts, stores.archiver, httpChecks, appLogger)
	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AdminHTTPPort),
		Handler:      adminHandler.Routes([]byte(cfg.AdminJWTSecret)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	g.Go(func() error {
		appLogger.Info("Admin HTTP server starting", "address", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Admin HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Admin HTTP server shut down gracefully.")
		return nil
	})

	// --- Metrics HTTP server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: metricsHeaderTimeout,
	}
	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Metrics HTTP server shut down gracefully.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		var shutdownErrors error
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("admin http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		grpcServer.GracefulStop()
		return shutdownErrors
	})

	appLogger.Info("Service components initialized and workers started. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		appLogger.Info("Received termination signal", "signal", sig.String())
	case groupErr = <-watchGroup(g):
		appLogger.Error("A critical component failed, initiating shutdown", "error", groupErr)
	}

	appLogger.Info("Attempting graceful shutdown...")
	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		appLogger.Error("Error during graceful shutdown of components", "error", err)
	} else if groupErr != nil && !errors.Is(groupErr, context.Canceled) && !errors.Is(groupErr, context.DeadlineExceeded) {
		appLogger.Error("Shutdown initiated due to component error", "error", groupErr)
	}

	appLogger.Info("Service shutdown complete.")
}

// storeBackend is the pipeline's repositories plus the write side the admin
// API manages.
type storeBackend struct {
	app.Stores
	rules    domain.BlockingRuleStore
	contacts domain.ContactStore
	archiver domain.ConversationArchiver
}

func postgresStores(pool *pgxpool.Pool, log *slog.Logger) storeBackend {
	policy := postgres.NewPgBlockingPolicy(pool, log)
	contacts := postgres.NewPgContactDirectory(pool, log)
	conversations := postgres.NewPgConversationRepository(pool, log)
	return storeBackend{
		Stores: app.Stores{
			Messages:      postgres.NewPgMessageRepository(pool, log),
			Conversations: conversations,
			Policy:        policy,
			Contacts:      contacts,
		},
		rules:    policy,
		contacts: contacts,
		archiver: conversations,
	}
}

func badgerStores(store *badgerstore.Store, log *slog.Logger) storeBackend {
	policy := badgerstore.NewBlockingPolicy(store, log)
	contacts := badgerstore.NewContactDirectory(store, log)
	conversations := badgerstore.NewConversationRepository(store, log)
	return storeBackend{
		Stores: app.Stores{
			Messages:      badgerstore.NewMessageRepository(store, log),
			Conversations: conversations,
			Policy:        policy,
			Contacts:      contacts,
		},
		rules:    policy,
		contacts: contacts,
		archiver: conversations,
	}
}

func memoryStores(log *slog.Logger) storeBackend {
	messages := memory.NewMessageRepository(log)
	policy := memory.NewBlockingPolicy()
	contacts := memory.NewContactDirectory()
	conversations := memory.NewConversationRepository(messages, log)
	return storeBackend{
		Stores: app.Stores{
			Messages:      messages,
			Conversations: conversations,
			Policy:        policy,
			Contacts:      contacts,
		},
		rules:    policy,
		contacts: contacts,
		archiver: conversations,
	}
}

func preferencesFrom(cfg *config.Config) domain.Preferences {
	return domain.Preferences{
		DropBlocked:     cfg.DropBlockedMessages,
		BlockingManager: domain.BlockingManager(cfg.BlockingManager),
	}
}

// watchGroup is a helper to monitor an errgroup for early exit.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}
