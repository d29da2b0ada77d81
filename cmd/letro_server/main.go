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

	"github.com/letroapp/letro_server/internal/letro_service/adapters/authority"
	"github.com/letroapp/letro_server/internal/letro_service/adapters/awalaresolver"
	"github.com/letroapp/letro_server/internal/letro_service/adapters/emitter"
	grpcadapter "github.com/letroapp/letro_server/internal/letro_service/adapters/grpc"
	"github.com/letroapp/letro_server/internal/letro_service/adapters/veraid"
	"github.com/letroapp/letro_server/internal/letro_service/app"
	"github.com/letroapp/letro_server/internal/letro_service/domain"
	"github.com/letroapp/letro_server/internal/letro_service/repository/memory"
	"github.com/letroapp/letro_server/internal/letro_service/repository/postgres"
	httptransport "github.com/letroapp/letro_server/internal/letro_service/transport/http"
	natstransport "github.com/letroapp/letro_server/internal/letro_service/transport/nats"
	"github.com/letroapp/letro_server/internal/platform/clock"
	"github.com/letroapp/letro_server/internal/platform/config"
	"github.com/letroapp/letro_server/internal/platform/database"
	"github.com/letroapp/letro_server/internal/platform/logger"
	"github.com/letroapp/letro_server/internal/platform/messagebroker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	serviceName       = "letro-server"
	shutdownTimeout   = 30 * time.Second
	healthCheckPeriod = 15 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Letro server starting...", "log_level", cfg.LogLevel, "version", cfg.Version)

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Letro server stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Letro server shut down.")
}

func run(cfg *config.Config, appLogger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	store, closeStore, err := newPairingRequestStore(ctx, cfg, clk, appLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	var natsClient *messagebroker.NatsClient
	if cfg.EmitterBackend == config.EmitterBackendNATS || cfg.NATSIngressEnabled {
		natsClient, err = messagebroker.NewNatsClient(cfg.NATSURL, serviceName, appLogger)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		appLogger.Info("Successfully connected to NATS")
	}
	if cfg.EmitterBackend == config.EmitterBackendNATS {
		if err := natsClient.EnsureStream(ctx, cfg.NATSOutgoingStream, cfg.NATSOutgoingSubject); err != nil {
			return err
		}
	}

	messageEmitter, err := newEmitter(cfg, natsClient, appLogger)
	if err != nil {
		return err
	}

	tokens := authority.NewTokenSource(cfg.VeraidAuthTokenURL, cfg.VeraidAuthAPIAudience, nil, clk, appLogger)
	authorityMaker := authority.NewMaker(cfg.VeraidAuthAPIURL, tokens, cfg.VeraidAuthRequestsPerSec, nil, appLogger)

	dispatcher := app.NewDispatcher(messageEmitter, store, authorityMaker, clk, appLogger)
	app.RegisterLetroHandlers(dispatcher, app.Handlers{
		Verifier:  veraid.NewVerifier(cfg.VeraidVerifierURL, nil, appLogger),
		Retriever: awalaresolver.NewRetriever(cfg.ConnectionParamsTimeout, cfg.Version, appLogger),
		Orgs:      app.NewOrgDirectory(cfg.FallbackDomainName, cfg.DomainByLocale),
	})
	appLogger.Info("Service message handlers registered", "content_types", dispatcher.ContentTypes())

	g, gctx := errgroup.WithContext(ctx)

	router := httptransport.NewRouter(httptransport.NewServiceMessageHandler(dispatcher, appLogger))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error { return serveHTTP(gctx, httpServer, "Letro server", appLogger) })

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error { return serveHTTP(gctx, metricsServer, "Metrics", appLogger) })

	healthServer := grpcadapter.NewHealthServer(store, appLogger)
	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)
	g.Go(func() error { return healthServer.Run(gctx, healthCheckPeriod) })
	g.Go(func() error { return serveGRPC(gctx, grpcServer, cfg.GRPCHealthPort, appLogger) })

	sweeper := app.NewPairingSweeper(store, clk, cfg.PairingSweepInterval, appLogger)
	g.Go(func() error { return sweeper.Run(gctx) })

	if cfg.NATSIngressEnabled {
		consumer := natstransport.NewConsumer(natsClient.JS, dispatcher, natstransport.ConsumerConfig{
			Stream:       cfg.NATSIncomingStream,
			Subject:      cfg.NATSIncomingSubject,
			ConsumerName: cfg.NATSConsumerName,
		}, appLogger)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	return g.Wait()
}

func newPairingRequestStore(ctx context.Context, cfg *config.Config, clk clock.Clock, appLogger *slog.Logger) (domain.PairingRequestRepository, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		appLogger.Warn("Using in-memory pairing request store; pending requests are lost on restart")
		return memory.NewPairingRequestRepository(clk), func() {}, nil
	case config.StoreBackendPostgres:
		dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN, appLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
		}
		repo := postgres.NewPgPairingRequestRepository(dbPool, clk, appLogger)
		if err := repo.EnsureSchema(ctx); err != nil {
			dbPool.Close()
			return nil, nil, err
		}
		return repo, dbPool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newEmitter(cfg *config.Config, natsClient *messagebroker.NatsClient, appLogger *slog.Logger) (domain.MessageEmitter, error) {
	switch cfg.EmitterBackend {
	case config.EmitterBackendNATS:
		return emitter.NewNatsEmitter(natsClient, cfg.NATSOutgoingSubject, appLogger), nil
	case config.EmitterBackendHTTP:
		if cfg.CloudEventSink == "" {
			return nil, errors.New("K_SINK must be set when the HTTP emitter is used")
		}
		return emitter.NewHTTPEmitter(cfg.CloudEventSink, nil, appLogger), nil
	default:
		return nil, fmt.Errorf("unknown emitter backend %q", cfg.EmitterBackend)
	}
}

func serveHTTP(ctx context.Context, server *http.Server, name string, appLogger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		appLogger.Info(name+" HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s HTTP server failed: %w", name, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s HTTP server shutdown failed: %w", name, err)
	}
	appLogger.Info(name + " HTTP server shut down gracefully")
	return nil
}

func serveGRPC(ctx context.Context, server *grpc.Server, port int, appLogger *slog.Logger) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on port %d: %w", port, err)
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("gRPC health server listening", "port", port)
		errCh <- server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gRPC server failed: %w", err)
	case <-ctx.Done():
		server.GracefulStop()
		return nil
	}
}
