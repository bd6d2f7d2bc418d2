// Package engine is the central orchestrator of the pocket keeper.
//
// It wires together all subsystems:
//
//  1. The JSON store restores registry and pocket records on startup.
//  2. The ledger client provides checkpoints, custody, and batch submission.
//  3. The gateway client and websocket price feed provide venue state.
//  4. The trigger loop walks every Active pocket each tick and hands it to
//     the executor, which decides skip / force-close / swap.
//  5. Domain events fan out on a buffered channel for the HTTP API stream.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pocket-keeper/internal/chain"
	"pocket-keeper/internal/condition"
	"pocket-keeper/internal/config"
	"pocket-keeper/internal/exchange"
	"pocket-keeper/internal/executor"
	"pocket-keeper/internal/pocket"
	"pocket-keeper/internal/registry"
	"pocket-keeper/internal/store"
	"pocket-keeper/pkg/types"
)

// triggerer is the slice of the executor the trigger loop calls into.
type triggerer interface {
	Trigger(ctx context.Context, caller, addr types.Address) (*types.SwapResult, condition.Decision, error)
}

// Engine owns the lifecycle of every keeper goroutine: the price feed, the
// trigger loop, and the event fan-out consumed by the API server.
type Engine struct {
	cfg      config.Config
	store    *store.Store
	registry *registry.Service
	pockets  *pocket.Service
	exec     triggerer
	gateway  *exchange.Client
	feed     *exchange.PriceFeed // nil when the ws url is not configured
	markets  *marketSource
	signer   *chain.Signer
	metrics  *Metrics
	events   chan types.Event
	logger   *slog.Logger

	// subscribed tracks which markets are on the price feed so each cycle
	// only subscribes the delta.
	subscribed map[types.Address]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and wires all engine components.
func New(cfg config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Engine, error) {
	signer, err := chain.NewSignerFromHex(cfg.Keeper.PrivateKey)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	events := make(chan types.Event, 256)
	metrics := NewMetrics(reg)

	ledger := chain.NewClient(cfg.Ledger.Endpoint, cfg.Ledger.RequestTimeout, logger)
	assembler := chain.NewAssembler(ledger, cfg.Ledger.PollInterval, logger)
	custody := chain.NewCustody(ledger)

	gateway := exchange.NewClient(cfg.Exchange.BaseURL, logger)
	var feed *exchange.PriceFeed
	if cfg.Exchange.WSURL != "" {
		feed = exchange.NewPriceFeed(cfg.Exchange.WSURL, logger)
	}
	markets := &marketSource{
		gateway: gateway,
		feed:    feed,
		maxAge:  cfg.Exchange.MaxPriceAge,
		metrics: metrics,
	}

	regSvc := registry.NewService(st, events)
	policy := registry.NewPolicy(regSvc)
	pockets := pocket.NewService(st, custody, policy, events, logger)

	exec := executor.New(pockets, custody, markets, assembler, policy, signer,
		executor.Config{
			SlippageBps:    cfg.Executor.SlippageBps,
			Finality:       types.Finality(cfg.Ledger.Finality),
			UseLookupTable: cfg.Executor.UseLookupTable,
		}, events, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		store:      st,
		registry:   regSvc,
		pockets:    pockets,
		exec:       exec,
		gateway:    gateway,
		feed:       feed,
		markets:    markets,
		signer:     signer,
		metrics:    metrics,
		events:     events,
		logger:     logger.With("component", "engine"),
		subscribed: make(map[types.Address]bool),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the background goroutines: the price feed and the trigger
// loop.
func (e *Engine) Start() error {
	if e.feed != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.feed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
				e.logger.Error("price feed error", "error", err)
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.triggerLoop()
	}()

	e.logger.Info("keeper started",
		"operator", e.signer.Address().Hex(),
		"interval", e.cfg.Keeper.TriggerInterval,
		"dry_run", e.cfg.DryRun,
	)
	return nil
}

// Stop gracefully shuts down: cancels all contexts, waits for goroutines,
// and closes resources.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()
	e.wg.Wait()

	if e.feed != nil {
		e.feed.Close()
	}
	e.store.Close()
	e.logger.Info("shutdown complete")
}

// triggerLoop is the main keeper loop: every tick it walks the pocket set
// and evaluates each Active pocket.
func (e *Engine) triggerLoop() {
	ticker := time.NewTicker(e.cfg.Keeper.TriggerInterval)
	defer ticker.Stop()

	// First cycle immediately rather than one interval in.
	e.runCycle()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runCycle()
		}
	}
}

func (e *Engine) runCycle() {
	pockets, err := e.pockets.List()
	if err != nil {
		e.logger.Error("list pockets", "error", err)
		return
	}

	active := 0
	for _, p := range pockets {
		if p.Status != types.StatusActive {
			continue
		}
		active++
		e.syncFeedSubscription(p.Market)
		e.triggerPocket(p.Address)
	}
	e.metrics.ActivePockets.Set(float64(active))
}

// syncFeedSubscription puts a market on the price feed the first time an
// Active pocket references it.
func (e *Engine) syncFeedSubscription(market types.Address) {
	if e.feed == nil || e.subscribed[market] {
		return
	}
	e.subscribed[market] = true
	if err := e.feed.Subscribe(market); err != nil {
		// The feed re-sends the whole subscription set on (re)connect, so a
		// write to a down connection is not lost.
		e.logger.Debug("feed subscribe deferred", "market", market.Hex(), "error", err)
	}
}

func (e *Engine) triggerPocket(addr types.Address) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.Keeper.TriggerInterval)
	defer cancel()

	if e.cfg.DryRun {
		e.dryRunPocket(ctx, addr)
		return
	}

	res, decision, err := e.exec.Trigger(ctx, e.signer.Address(), addr)
	if err != nil {
		e.metrics.TriggerErrors.Inc()
		if errors.Is(err, types.ErrExpiredCheckpoint) {
			// The batch never landed; the next cycle rebuilds it from fresh
			// state.
			e.logger.Warn("checkpoint expired", "pocket", addr.Hex())
			return
		}
		e.logger.Error("trigger failed", "pocket", addr.Hex(), "error", err)
		return
	}

	switch decision.Verdict {
	case condition.Proceed:
		e.metrics.TriggersTotal.WithLabelValues("proceed").Inc()
	case condition.ForceClose:
		e.metrics.TriggersTotal.WithLabelValues("force_close").Inc()
		e.logger.Info("pocket force-closed", "pocket", addr.Hex(), "detail", decision.Detail)
	default:
		e.metrics.TriggersTotal.WithLabelValues("skip").Inc()
	}

	if res != nil {
		e.metrics.SwapsTotal.Inc()
		e.metrics.SwapVolume.WithLabelValues(res.FromMint.Hex()).Add(float64(res.FromAmount))
	}
}

// dryRunPocket evaluates without assembling or submitting anything.
func (e *Engine) dryRunPocket(ctx context.Context, addr types.Address) {
	p, err := e.pockets.Get(addr)
	if err != nil {
		e.logger.Error("load pocket", "pocket", addr.Hex(), "error", err)
		return
	}
	mid, err := e.markets.MidPrice(ctx, p.Market)
	if err != nil {
		e.logger.Error("mid price", "pocket", addr.Hex(), "error", err)
		return
	}
	decision := condition.Evaluate(p, time.Now().UTC(), mid)
	if decision.Verdict == condition.Proceed {
		e.logger.Info("DRY-RUN: would execute swap",
			"pocket", addr.Hex(), "side", p.Side, "volume", p.BatchVolume, "mid", mid)
	} else {
		e.logger.Debug("DRY-RUN: no action", "pocket", addr.Hex(), "decision", decision.String())
	}
}

// Trigger evaluates one pocket immediately, outside the scheduled loop.
// Used by the HTTP API's manual trigger endpoint.
func (e *Engine) Trigger(ctx context.Context, addr types.Address) (*types.SwapResult, condition.Decision, error) {
	return e.exec.Trigger(ctx, e.signer.Address(), addr)
}

// Events returns the domain event stream consumed by the API server.
func (e *Engine) Events() <-chan types.Event {
	return e.events
}

// Pockets exposes the pocket service for the API handlers.
func (e *Engine) Pockets() *pocket.Service {
	return e.pockets
}

// Registry exposes the registry service for the API handlers.
func (e *Engine) Registry() *registry.Service {
	return e.registry
}

// Operator returns the keeper's signing principal.
func (e *Engine) Operator() types.Address {
	return e.signer.Address()
}
