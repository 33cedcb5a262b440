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

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	gRPC "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/starsgate/golang_services/internal/fulfillment_service/adapters/marketplace"
	"github.com/starsgate/golang_services/internal/fulfillment_service/app"
	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
	"github.com/starsgate/golang_services/internal/fulfillment_service/provider"
	"github.com/starsgate/golang_services/internal/fulfillment_service/repository/file"
	pgrepo "github.com/starsgate/golang_services/internal/fulfillment_service/repository/postgres"
	"github.com/starsgate/golang_services/internal/platform/config"
	"github.com/starsgate/golang_services/internal/platform/database"
	"github.com/starsgate/golang_services/internal/platform/logger"
	"github.com/starsgate/golang_services/internal/platform/messagebroker"
)

const (
	serviceName     = "fulfillment_service"
	shutdownTimeout = 15 * time.Second
	streamRetry     = 2 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat).With("service", serviceName)
	for _, key := range cfg.DefaultedKeys {
		appLogger.Warn("Safety setting not configured, using safe default", "key", key)
	}
	appLogger.Info("Fulfillment service starting...",
		"cooldown", cfg.Cooldown().String(),
		"auto_refund", cfg.AutoRefund,
		"auto_deactivate", cfg.AutoDeactivate,
		"wallet_min_balance", cfg.WalletMinBalance,
		"category_id", cfg.DeactivateCategoryID,
		"filter_by_category", cfg.FilterOrdersByCategory,
		"wallet_version", cfg.WalletVersion,
		"secret_fingerprint", cfg.SecretFingerprint(),
	)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	// Wallet credential. Without one no order can be fulfilled.
	credentials := file.NewCredentialStore(cfg.WalletTokenFile, appLogger)
	wallet := provider.NewWalletClient(appLogger, provider.WalletConfig{
		BaseURL:        cfg.WalletAPIURL,
		APIKey:         cfg.WalletAPIKey,
		Phone:          cfg.WalletPhone,
		Mnemonics:      cfg.Mnemonics(),
		Version:        cfg.WalletVersion,
		AuthTimeout:    cfg.WalletAuthTimeout(),
		CheckTimeout:   cfg.WalletCheckTimeout(),
		OrderTimeout:   cfg.WalletOrderTimeout(),
		BalanceTimeout: cfg.WalletBalanceTimeout(),
		RateLimit:      rate.Limit(cfg.WalletRateLimitRPS),
		RateBurst:      cfg.WalletRateLimitBurst,
	}, credentials, nil)
	if err := wallet.EnsureCredential(mainCtx); err != nil {
		appLogger.Error("Wallet credential unavailable", "error", err)
		os.Exit(1)
	}
	if cred, ok := wallet.Credential(); ok {
		if claims, ok := file.InspectToken(cred.Token); ok && !claims.ExpiresAt.IsZero() {
			appLogger.Info("Wallet credential ready", "version", cred.Version, "expires_at", claims.ExpiresAt)
		} else {
			appLogger.Info("Wallet credential ready", "version", cred.Version)
		}
	}

	// Marketplace bridge over NATS.
	natsClient, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	bridge := marketplace.NewBridge(appLogger, natsClient, marketplace.Config{
		SubjectPrefix:  cfg.MarketplaceSubjectPrefix,
		RequestTimeout: cfg.MarketplaceRequestTimeout(),
	})
	sub, err := natsClient.SubscribeSync(bridge.Subject("events"))
	if err != nil {
		appLogger.Error("Failed to subscribe to marketplace events", "error", err)
		os.Exit(1)
	}
	events := marketplace.NewEventStream(appLogger, sub)
	appLogger.Info("Marketplace bridge ready", "events_subject", sub.Subject, "account_id", cfg.MarketplaceAccountID)

	// Audit ledger; optional.
	var ledger domain.OrderLedger = pgrepo.NoopLedger{}
	if cfg.PostgresDSN != "" {
		dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		pgLedger := pgrepo.NewPgFulfillmentLedger(dbPool, appLogger)
		if err := pgLedger.EnsureSchema(mainCtx); err != nil {
			appLogger.Error("Failed to prepare ledger schema", "error", err)
			os.Exit(1)
		}
		if counts, err := pgLedger.DeliveryCounts(mainCtx); err == nil {
			appLogger.Info("Ledger ready", "deliveries", counts)
		}
		ledger = pgLedger
	} else {
		appLogger.Info("POSTGRES_DSN not set, delivery ledger disabled")
	}

	cooldown := app.NewCooldown(cfg.Cooldown())
	replier := app.NewReplier(bridge, cooldown, appLogger)
	refunds := app.NewRefundHandler(appLogger, bridge, replier, ledger, cfg.AutoRefund)
	deactivator := app.NewDeactivator(appLogger, bridge.DeactivationChains())
	balance := app.NewBalanceMonitor(appLogger, wallet, deactivator, cfg.WalletMinBalance, cfg.AutoDeactivate, cfg.DeactivateCategoryID)
	fulfillment := app.NewFulfillment(appLogger, replier, refunds, balance, ledger)
	sessions := app.NewSessionStore()
	conversation := app.NewConversation(appLogger, sessions, replier, wallet, wallet, fulfillment, cfg.MarketplaceAccountID)
	orchestrator := app.NewOrchestrator(appLogger, events, bridge, conversation, cooldown, app.OrchestratorConfig{
		CategoryID:       cfg.DeactivateCategoryID,
		FilterByCategory: cfg.FilterOrdersByCategory,
		RetryDelay:       streamRetry,
	})

	if bal, ok := wallet.Balance(mainCtx); ok {
		appLogger.Info("Wallet balance at startup", "balance", bal, "min_balance", cfg.WalletMinBalance)
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		err := orchestrator.Run(groupCtx)
		if errors.Is(err, domain.ErrEventStreamClosed) {
			appLogger.Warn("Marketplace event stream closed")
		}
		return err
	})

	var opsServer *http.Server
	if cfg.MetricsPort > 0 {
		opsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:      newOpsRouter(appLogger, natsClient.IsConnected, sessions),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		g.Go(func() error {
			appLogger.Info("Ops HTTP server starting", "address", opsServer.Addr)
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops http server: %w", err)
			}
			return nil
		})
	}

	var grpcServer *gRPC.Server
	if cfg.GRPCHealthPort > 0 {
		grpcServer = gRPC.NewServer()
		healthServer := health.NewServer()
		healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)

		grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCHealthPort))
		if err != nil {
			appLogger.Error("Failed to listen for gRPC", "port", cfg.GRPCHealthPort, "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			appLogger.Info("gRPC health server starting", "address", grpcListener.Addr().String())
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, gRPC.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-groupCtx.Done()
			healthServer.Shutdown()
			return nil
		})
	}

	appLogger.Info("Fulfillment service is ready and running.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		appLogger.Info("Received termination signal", "signal", sig.String())
	case groupErr = <-watchGroup(g):
		appLogger.Error("A critical component stopped, initiating shutdown", "error", groupErr)
	}

	mainCancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Ops HTTP server graceful shutdown failed", "error", err)
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Error during shutdown of components", "error", err)
	}
	if open := sessions.Len(); open > 0 {
		appLogger.Warn("Shutting down with open buyer sessions", "count", open)
	}
	appLogger.Info("Fulfillment service shut down.")
}

// watchGroup reports the first error, or nil, once every goroutine in g returns.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}
