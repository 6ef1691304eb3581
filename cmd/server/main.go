package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solboard/service/activity"
	"github.com/brojonat/solboard/service/catalog"
	"github.com/brojonat/solboard/service/config"
	"github.com/brojonat/solboard/service/dashboard"
	"github.com/brojonat/solboard/service/metrics"
	natspkg "github.com/brojonat/solboard/service/nats"
	"github.com/brojonat/solboard/service/server"
	"github.com/brojonat/solboard/service/snapshot"
	"github.com/brojonat/solboard/service/solana"
	"github.com/brojonat/solboard/service/transfer"
	"github.com/brojonat/solboard/service/wallet"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.SolanaNetwork,
	)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaClient := newSolanaClient(solana.NewRPCClient(cfg.SolanaRPCURL), cfg, m, logger)
	logger.Info("initialized solana RPC client", "network", cfg.SolanaNetwork, "host", cfg.RPCHost())

	fetcher, err := catalog.NewFetcher(cfg.TokenListURL, cfg.TokenListQuery, nil, m, logger)
	if err != nil {
		logger.Error("failed to initialize token catalog", "error", err)
		os.Exit(1)
	}
	builder := snapshot.NewBuilder(solanaClient, fetcher, m, logger)

	// NATS is optional: without it outcomes are not published and the
	// streaming endpoint is disabled.
	var publisher transfer.Publisher
	var stream *server.ActivityStream
	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		publisher = pub

		stream, err = server.NewActivityStream(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize activity stream", "error", err)
			os.Exit(1)
		}
	}

	funds := transfer.NewService(solanaClient, publisher, transfer.Config{
		MaxAirdrop:     cfg.MaxAirdropSOL,
		AirdropEnabled: cfg.AirdropEnabled(),
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, m, logger)

	dash := dashboard.New(builder, solanaClient, funds, dashboard.Config{
		Feed: activity.Config{
			PageSize:          cfg.FeedPageSize,
			DetailConcurrency: cfg.DetailConcurrency,
		},
		Notice: transfer.NewNotice(cfg.NoticeDuration),
	}, m, logger)

	var keypair wallet.Wallet
	if cfg.WalletKeypairPath != "" {
		kp, err := wallet.LoadKeypair(cfg.WalletKeypairPath)
		if err != nil {
			logger.Error("failed to load keypair", "path", cfg.WalletKeypairPath, "error", err)
			os.Exit(1)
		}
		keypair = kp
		logger.Info("loaded keypair", "address", kp.PublicKey().String())
	}

	if err := connectAtStartup(dash, keypair, cfg.WalletAddress, logger); err != nil {
		logger.Error("failed to connect startup wallet", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, dash, keypair, stream, m, logger).
		WithBuildInfo(server.BuildInfo{Version: version, Commit: commit})

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc_host", cfg.RPCHost(),
		"nats_url", cfg.NATSURL,
		"airdrop_enabled", cfg.AirdropEnabled(),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// newSolanaClient labels RPC metrics with the network name. The RPC URL may
// hold an API key and must not reach /metrics.
func newSolanaClient(rpcClient solana.RPCClient, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *solana.Client {
	return solana.NewClient(rpcClient, cfg.SolanaNetwork, m, logger,
		solana.WithConfirmPollInterval(cfg.ConfirmPollInterval))
}

// connectAtStartup connects the keypair, or else the watch-only address,
// so the dashboard is populated before the first request. A balance
// failure is logged and the session kept.
func connectAtStartup(dash *dashboard.Dashboard, keypair wallet.Wallet, address string, logger *slog.Logger) error {
	target := keypair
	if target == nil && address != "" {
		watch, err := wallet.NewWatchOnly(address)
		if err != nil {
			return err
		}
		target = watch
	}
	if target == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := dash.Connect(ctx, target)
	if err != nil && !session.Connected {
		return err
	}
	if err != nil {
		logger.Warn("initial balance fetch failed", "address", session.Address, "error", err)
	}
	logger.Info("wallet connected", "address", session.Address, "wallet", session.Wallet, "balance", session.Balance.String())
	return nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
