// Pocket Keeper — an automated executor for on-ledger DCA pockets.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: trigger loop over active pockets, price feed, metrics
//	registry/registry.go — platform registry: owner, operator set, mint whitelist
//	pocket/              — pocket records and lifecycle (create, deposit, withdraw, close)
//	condition/           — pure pre-trade evaluation: schedule, price gate, stop conditions
//	executor/            — swap execution: build batch, submit, settle accounting post-confirm
//	exchange/            — market gateway REST client, swap instruction builders, ws price feed
//	chain/               — message compiler, signer, batch assembler, JSON-RPC ledger client
//	store/store.go       — JSON file persistence for the registry and pockets
//	api/                 — HTTP admin surface, snapshot endpoint, websocket event stream
//
// What it does:
//
//	Owners register pockets that swap a fixed batch volume between a base
//	and quote token on a recurring schedule. The keeper triggers each
//	active pocket on its cadence, checks its price and stop conditions,
//	and submits the swap batch to the ledger. Balances and counters only
//	change after the ledger confirms the submission.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"pocket-keeper/internal/api"
	"pocket-keeper/internal/config"
	"pocket-keeper/internal/engine"
)

func main() {
	// .env is optional, real deployments set env vars directly.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POCKET_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("api started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no batches will be submitted")
	}

	logger.Info("pocket keeper started",
		"operator", eng.Operator().Hex(),
		"trigger_interval", cfg.Keeper.TriggerInterval,
		"finality", cfg.Ledger.Finality,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
