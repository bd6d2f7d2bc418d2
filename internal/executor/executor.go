// Package executor turns a trigger into a confirmed swap.
//
// Trigger is the operator entry point: it gates on operator identity,
// consults the condition evaluator, assembles the swap batch (bootstrapping
// the pocket's open-orders account when needed), submits through the
// assembler, and only then updates the pocket's accounting from the
// authoritative post-trade vault balances. A batch that fails to confirm
// leaves the pocket record untouched.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pocket-keeper/internal/chain"
	"pocket-keeper/internal/condition"
	"pocket-keeper/internal/exchange"
	"pocket-keeper/internal/pocket"
	"pocket-keeper/pkg/types"
)

// MarketLoader reads venue state: market account sets, mid prices, and
// open-orders existence. Implemented by the exchange client.
type MarketLoader interface {
	LoadMarket(ctx context.Context, market types.Address) (*types.MarketView, error)
	MidPrice(ctx context.Context, market types.Address) (decimal.Decimal, error)
	HasOpenOrders(ctx context.Context, market, owner types.Address) (bool, error)
}

// Submitter sends an assembled batch and waits for confirmation.
// Implemented by the chain assembler.
type Submitter interface {
	SendAndConfirm(ctx context.Context, b *chain.Batch) (string, error)
}

// Pockets is the slice of the pocket service the executor needs.
type Pockets interface {
	Get(addr types.Address) (*pocket.Pocket, error)
	Save(p *pocket.Pocket) error
	ForceClose(ctx context.Context, addr types.Address, reason string) (*pocket.Pocket, error)
}

// BalanceReader reads authoritative vault balances from token custody.
type BalanceReader interface {
	BalanceOf(ctx context.Context, vault types.Address) (uint64, error)
}

// OperatorPolicy gates who may trigger executions. Implemented by the
// registry.
type OperatorPolicy interface {
	IsOperator(addr types.Address) bool
}

// Executor coordinates one swap execution end to end.
type Executor struct {
	pockets   Pockets
	custody   BalanceReader
	markets   MarketLoader
	submitter Submitter
	operators OperatorPolicy
	signer    *chain.Signer
	useTable  bool // compress batches through the keeper's lookup table

	slippageBps int64
	finality    types.Finality
	events      chan<- types.Event
	logger      *slog.Logger

	// Triggers for the same pocket serialize: the scheduler loop and the
	// manual API endpoint can race, and the frequency gate is only sound
	// when each evaluation sees every prior recorded execution.
	mu    sync.Mutex
	locks map[types.Address]*sync.Mutex
}

// Config carries the executor's tunables.
type Config struct {
	SlippageBps    int64          // limit price distance from mid, in basis points
	Finality       types.Finality // confirmation depth to wait for
	UseLookupTable bool
}

// New wires an executor. events may be nil.
func New(
	pockets Pockets,
	custody BalanceReader,
	markets MarketLoader,
	submitter Submitter,
	operators OperatorPolicy,
	signer *chain.Signer,
	cfg Config,
	events chan<- types.Event,
	logger *slog.Logger,
) *Executor {
	if cfg.Finality == "" {
		cfg.Finality = types.FinalityConfirmed
	}
	return &Executor{
		pockets:     pockets,
		custody:     custody,
		markets:     markets,
		submitter:   submitter,
		operators:   operators,
		signer:      signer,
		useTable:    cfg.UseLookupTable,
		slippageBps: cfg.SlippageBps,
		finality:    cfg.Finality,
		events:      events,
		logger:      logger.With("component", "executor"),
		locks:       make(map[types.Address]*sync.Mutex),
	}
}

// pocketLock returns the mutex serializing triggers for one pocket.
func (e *Executor) pocketLock(addr types.Address) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		e.locks[addr] = l
	}
	return l
}

// Trigger evaluates a pocket and, when due, executes one swap batch.
//
// A skip is not an error: the decision tells the caller why nothing
// happened. A force-close transitions the pocket and executes nothing.
// result is non-nil only when a swap confirmed.
func (e *Executor) Trigger(ctx context.Context, caller, addr types.Address) (*types.SwapResult, condition.Decision, error) {
	if !e.operators.IsOperator(caller) {
		return nil, condition.Decision{}, types.ErrOnlyOperator
	}

	lock := e.pocketLock(addr)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.pockets.Get(addr)
	if err != nil {
		return nil, condition.Decision{}, err
	}

	mid, err := e.markets.MidPrice(ctx, p.Market)
	if err != nil {
		return nil, condition.Decision{}, fmt.Errorf("mid price: %w", err)
	}

	decision := condition.Evaluate(p, time.Now().UTC(), mid)
	switch decision.Verdict {
	case condition.Skip:
		return nil, decision, nil
	case condition.ForceClose:
		if _, err := e.pockets.ForceClose(ctx, addr, decision.Detail); err != nil {
			return nil, decision, err
		}
		return nil, decision, nil
	}

	result, err := e.execute(ctx, p, mid)
	if err != nil {
		return nil, decision, err
	}
	return result, decision, nil
}

// execute runs one confirmed swap for an already-cleared pocket.
func (e *Executor) execute(ctx context.Context, p *pocket.Pocket, mid decimal.Decimal) (*types.SwapResult, error) {
	view, err := e.markets.LoadMarket(ctx, p.Market)
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}

	spendVault, spendMint, _ := p.SpendingVault()
	recvVault, recvMint := p.ReceivingVault()

	preSpend, err := e.custody.BalanceOf(ctx, spendVault)
	if err != nil {
		return nil, fmt.Errorf("pre-trade balance: %w", err)
	}
	preRecv, err := e.custody.BalanceOf(ctx, recvVault)
	if err != nil {
		return nil, fmt.Errorf("pre-trade balance: %w", err)
	}

	swapIns, err := exchange.SwapInstruction(
		view, p.Address, e.signer.Address(),
		spendVault, recvVault,
		p.Side, p.BatchVolume, e.limitPrice(p.Side, mid),
	)
	if err != nil {
		return nil, err
	}

	batch := chain.NewBatch(swapIns).
		WithSigners(e.signer).
		WithFinality(e.finality)
	if e.useTable {
		batch.WithLookupTable(e.lookupTable(view))
	}

	// Bootstrap the open-orders account when the venue has never seen this
	// pocket. Including the init instruction for an existing account is
	// harmless, so a stale lookup cannot break the batch.
	exists, err := e.markets.HasOpenOrders(ctx, view.Address, p.Address)
	if err != nil {
		return nil, fmt.Errorf("open orders lookup: %w", err)
	}
	if !exists {
		batch.Pre(exchange.InitOpenOrdersInstruction(view, p.Address, e.signer.Address()))
	}

	signature, err := e.submitter.SendAndConfirm(ctx, batch)
	if err != nil {
		return nil, err
	}

	postSpend, err := e.custody.BalanceOf(ctx, spendVault)
	if err != nil {
		return nil, fmt.Errorf("post-trade balance: %w", err)
	}
	postRecv, err := e.custody.BalanceOf(ctx, recvVault)
	if err != nil {
		return nil, fmt.Errorf("post-trade balance: %w", err)
	}

	result := types.SwapResult{
		Signature:   signature,
		GivenAmount: p.BatchVolume,
		FromMint:    spendMint,
		ToMint:      recvMint,
		FromAmount:  preSpend - postSpend,
		ToAmount:    postRecv - preRecv,
		ExecutedAt:  time.Now().UTC(),
	}
	if result.FromAmount > 0 {
		result.Rate = decimal.NewFromUint64(result.ToAmount).
			Div(decimal.NewFromUint64(result.FromAmount))
	}

	baseBalance, quoteBalance := postSpend, postRecv
	if p.Side == types.Buy {
		baseBalance, quoteBalance = postRecv, postSpend
	}
	p.RecordExecution(result, baseBalance, quoteBalance)
	if err := e.pockets.Save(p); err != nil {
		return nil, fmt.Errorf("persist execution: %w", err)
	}

	e.logger.Info("swap executed",
		"pocket", p.Address.Hex(),
		"signature", signature,
		"from_amount", result.FromAmount,
		"to_amount", result.ToAmount,
		"batch", p.ExecutedBatches,
	)
	e.emit(types.Event{
		Kind:      types.EventSwapExecuted,
		Timestamp: result.ExecutedAt,
		Actor:     e.signer.Address(),
		Entity:    p.Address,
		Data: types.SwapExecutedData{
			Signature:  signature,
			FromMint:   result.FromMint,
			ToMint:     result.ToMint,
			FromAmount: result.FromAmount,
			ToAmount:   result.ToAmount,
			Rate:       result.Rate,
			Batch:      p.ExecutedBatches,
		},
	})

	// Stop conditions that were not primary close the pocket only after the
	// batch they allowed has completed.
	progress := p.Progress()
	for _, sc := range p.StopConditions {
		if sc.Satisfied(result.ExecutedAt, progress) {
			if _, err := e.pockets.ForceClose(ctx, p.Address, string(sc.Kind)); err != nil {
				return &result, err
			}
			break
		}
	}

	return &result, nil
}

// lookupTable mirrors the keeper-maintained address lookup table for a
// market: the venue account set every swap batch references. Compiling
// against it moves those accounts out of the static key section.
func (e *Executor) lookupTable(view *types.MarketView) *chain.LookupTable {
	return &chain.LookupTable{
		Address: types.LookupTableAddress(e.signer.Address()),
		Addresses: []types.Address{
			view.EventQueue,
			view.RequestQueue,
			view.Bids,
			view.Asks,
			view.BaseVault,
			view.QuoteVault,
			view.VaultSigner,
		},
	}
}

// limitPrice bounds the fill rate around the mid price by the configured
// slippage. Buys accept up to mid*(1+s), sells down to mid*(1-s).
func (e *Executor) limitPrice(side types.Side, mid decimal.Decimal) decimal.Decimal {
	slip := decimal.NewFromInt(e.slippageBps).Div(decimal.NewFromInt(10000))
	if side == types.Buy {
		return mid.Mul(decimal.NewFromInt(1).Add(slip))
	}
	return mid.Mul(decimal.NewFromInt(1).Sub(slip))
}

func (e *Executor) emit(ev types.Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
