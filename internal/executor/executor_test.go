package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pocket-keeper/internal/chain"
	"pocket-keeper/internal/condition"
	"pocket-keeper/internal/pocket"
	"pocket-keeper/pkg/types"
)

type memPockets struct {
	records map[types.Address]*pocket.Pocket
	closed  map[types.Address]string // address -> close reason
}

func newMemPockets() *memPockets {
	return &memPockets{
		records: make(map[types.Address]*pocket.Pocket),
		closed:  make(map[types.Address]string),
	}
}

func (m *memPockets) Get(addr types.Address) (*pocket.Pocket, error) {
	p, ok := m.records[addr]
	if !ok {
		return nil, types.ErrPocketNotFound
	}
	return p, nil
}

func (m *memPockets) Save(p *pocket.Pocket) error {
	m.records[p.Address] = p
	return nil
}

func (m *memPockets) ForceClose(ctx context.Context, addr types.Address, reason string) (*pocket.Pocket, error) {
	p, err := m.Get(addr)
	if err != nil {
		return nil, err
	}
	p.ForceClose()
	m.closed[addr] = reason
	return p, nil
}

type fakeBalances struct {
	balances map[types.Address]uint64
}

func (f *fakeBalances) BalanceOf(ctx context.Context, vault types.Address) (uint64, error) {
	return f.balances[vault], nil
}

// fakeVenue serves market state and simulates fills: on submission it moves
// the configured fill amounts between the batch's vault balances.
type fakeVenue struct {
	view       *types.MarketView
	mid        decimal.Decimal
	openOrders bool

	balances   *fakeBalances
	spendVault types.Address
	recvVault  types.Address
	fillFrom   uint64
	fillTo     uint64

	submitErr   error
	submissions []*chain.Batch
}

func (f *fakeVenue) LoadMarket(ctx context.Context, market types.Address) (*types.MarketView, error) {
	return f.view, nil
}

func (f *fakeVenue) MidPrice(ctx context.Context, market types.Address) (decimal.Decimal, error) {
	return f.mid, nil
}

func (f *fakeVenue) HasOpenOrders(ctx context.Context, market, owner types.Address) (bool, error) {
	return f.openOrders, nil
}

func (f *fakeVenue) SendAndConfirm(ctx context.Context, b *chain.Batch) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submissions = append(f.submissions, b)
	f.balances.balances[f.spendVault] -= f.fillFrom
	f.balances.balances[f.recvVault] += f.fillTo
	return fmt.Sprintf("sig-%d", len(f.submissions)), nil
}

type allOperators struct{}

func (allOperators) IsOperator(types.Address) bool { return true }

type noOperators struct{}

func (noOperators) IsOperator(types.Address) bool { return false }

func marketView() *types.MarketView {
	base := types.Derive([]byte("mint"), []byte("base"))
	quote := types.Derive([]byte("mint"), []byte("quote"))
	market := types.Derive([]byte("market"), base.Bytes(), quote.Bytes())
	return &types.MarketView{
		Address:      market,
		BaseMint:     base,
		QuoteMint:    quote,
		EventQueue:   types.Derive(market.Bytes(), []byte("events")),
		RequestQueue: types.Derive(market.Bytes(), []byte("requests")),
		Bids:         types.Derive(market.Bytes(), []byte("bids")),
		Asks:         types.Derive(market.Bytes(), []byte("asks")),
		BaseVault:    types.Derive(market.Bytes(), []byte("base-vault")),
		QuoteVault:   types.Derive(market.Bytes(), []byte("quote-vault")),
		VaultSigner:  types.Derive(market.Bytes(), []byte("vault-signer")),
		BaseLotSize:  1,
		QuoteLotSize: 1,
	}
}

// fixture wires an executor around one funded Buy pocket ready to trade.
type fixture struct {
	exec    *Executor
	pockets *memPockets
	venue   *fakeVenue
	pocket  *pocket.Pocket
	keeper  types.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	view := marketView()
	owner := types.Derive([]byte("owner"))
	p, err := pocket.New(pocket.CreateParams{
		ID:          "weekly-accumulate",
		Owner:       owner,
		Side:        types.Buy,
		BaseMint:    view.BaseMint,
		QuoteMint:   view.QuoteMint,
		Market:      view.Address,
		BatchVolume: 1000,
		StartAt:     time.Now().Add(-time.Hour),
		Frequency:   time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	p.QuoteBalance = 5000
	p.TotalQuoteDeposited = 5000

	pockets := newMemPockets()
	pockets.records[p.Address] = p

	balances := &fakeBalances{balances: map[types.Address]uint64{
		p.QuoteVault: 5000,
		p.BaseVault:  0,
	}}
	venue := &fakeVenue{
		view:       view,
		mid:        decimal.NewFromInt(2),
		openOrders: true,
		balances:   balances,
		spendVault: p.QuoteVault,
		recvVault:  p.BaseVault,
		fillFrom:   1000,
		fillTo:     500,
	}

	signer, err := chain.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := New(pockets, balances, venue, venue, allOperators{}, signer,
		Config{SlippageBps: 50}, nil, logger)

	return &fixture{exec: exec, pockets: pockets, venue: venue, pocket: p, keeper: signer.Address()}
}

func TestTriggerExecutesAndRecords(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, decision, err := f.exec.Trigger(context.Background(), f.keeper, f.pocket.Address)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if decision.Verdict != condition.Proceed {
		t.Fatalf("decision = %v, want proceed", decision)
	}
	if res == nil {
		t.Fatal("no swap result")
	}
	if res.FromAmount != 1000 || res.ToAmount != 500 {
		t.Errorf("fill = (%d, %d), want (1000, 500)", res.FromAmount, res.ToAmount)
	}
	if res.Rate.String() != "0.5" {
		t.Errorf("rate = %s, want 0.5", res.Rate)
	}

	p := f.pockets.records[f.pocket.Address]
	if p.ExecutedBatches != 1 {
		t.Errorf("executed batches = %d, want 1", p.ExecutedBatches)
	}
	if p.QuoteBalance != 4000 || p.BaseBalance != 500 {
		t.Errorf("balances = (base %d, quote %d), want (500, 4000)", p.BaseBalance, p.QuoteBalance)
	}
	if p.QuoteTraded != 1000 || p.BaseTraded != 500 {
		t.Errorf("traded = (base %d, quote %d), want (500, 1000)", p.BaseTraded, p.QuoteTraded)
	}
}

func TestTriggerOperatorGate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	exec := New(f.pockets, &fakeBalances{balances: map[types.Address]uint64{}},
		f.venue, f.venue, noOperators{}, mustSigner(t), Config{}, nil, discardLogger())
	_, _, err := exec.Trigger(context.Background(), types.Derive([]byte("rando")), f.pocket.Address)
	if !errors.Is(err, types.ErrOnlyOperator) {
		t.Errorf("err = %v, want ErrOnlyOperator", err)
	}
}

func TestTriggerSkipLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.pocket.Status = types.StatusPaused

	res, decision, err := f.exec.Trigger(context.Background(), f.keeper, f.pocket.Address)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if res != nil {
		t.Error("paused pocket produced a swap result")
	}
	if decision.Verdict != condition.Skip || decision.Reason != condition.ReasonNotActive {
		t.Errorf("decision = %v", decision)
	}
	if len(f.venue.submissions) != 0 {
		t.Error("paused pocket reached the venue")
	}
}

func TestTriggerFailedSubmissionLeavesAccountingUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.venue.submitErr = fmt.Errorf("%w: node down", types.ErrSubmissionFailed)

	res, _, err := f.exec.Trigger(context.Background(), f.keeper, f.pocket.Address)
	if !errors.Is(err, types.ErrSubmissionFailed) {
		t.Fatalf("err = %v, want ErrSubmissionFailed", err)
	}
	if res != nil {
		t.Error("failed submission produced a result")
	}

	p := f.pockets.records[f.pocket.Address]
	if p.ExecutedBatches != 0 || p.QuoteTraded != 0 || p.QuoteBalance != 5000 {
		t.Error("failed submission mutated pocket accounting")
	}
}

func TestTriggerBootstrapsOpenOrders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.venue.openOrders = false

	if _, _, err := f.exec.Trigger(context.Background(), f.keeper, f.pocket.Address); err != nil {
		t.Fatal(err)
	}
	batch := f.venue.submissions[0]
	ins := batch.Instructions()
	if len(ins) != 2 {
		t.Fatalf("batch has %d instructions, want init + swap", len(ins))
	}
	if ins[0].Data[0] != 1 { // init opcode leads the batch
		t.Errorf("first instruction opcode = %d, want open-orders init", ins[0].Data[0])
	}

	// With the account already present, the batch is just the swap.
	f2 := newFixture(t)
	if _, _, err := f2.exec.Trigger(context.Background(), f2.keeper, f2.pocket.Address); err != nil {
		t.Fatal(err)
	}
	if got := len(f2.venue.submissions[0].Instructions()); got != 1 {
		t.Errorf("batch has %d instructions, want 1", got)
	}
}

func TestTriggerPrimaryStopForceCloses(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.pocket.StopConditions = []types.StopCondition{{
		Kind:    types.StopEndTime,
		Time:    time.Now().Add(-time.Minute),
		Primary: true,
	}}

	res, decision, err := f.exec.Trigger(context.Background(), f.keeper, f.pocket.Address)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if res != nil {
		t.Error("force-closed pocket still executed")
	}
	if decision.Verdict != condition.ForceClose {
		t.Fatalf("decision = %v, want force-close", decision)
	}
	if f.pockets.records[f.pocket.Address].Status != types.StatusClosed {
		t.Error("pocket not closed")
	}
	if len(f.venue.submissions) != 0 {
		t.Error("force-closed pocket reached the venue")
	}
}

func TestConcurrentTriggersExecuteOneBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// The scheduler and the manual endpoint can hit the same pocket at
	// once. Triggers must serialize so the later one sees the recorded
	// execution and skips on the frequency gate.
	const n = 4
	results := make([]*types.SwapResult, n)
	decisions := make([]condition.Decision, n)
	errs := make([]error, n)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], decisions[i], errs[i] = f.exec.Trigger(context.Background(), f.keeper, f.pocket.Address)
		}(i)
	}
	close(start)
	wg.Wait()

	executed := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("trigger %d: %v", i, errs[i])
		}
		if results[i] != nil {
			executed++
		} else if decisions[i].Reason != condition.ReasonTooSoon {
			t.Errorf("trigger %d skipped with %v, want too_soon", i, decisions[i])
		}
	}
	if executed != 1 {
		t.Fatalf("confirmed swaps = %d, want 1", executed)
	}
	if len(f.venue.submissions) != 1 {
		t.Errorf("venue saw %d batches, want 1", len(f.venue.submissions))
	}

	p := f.pockets.records[f.pocket.Address]
	if p.ExecutedBatches != 1 {
		t.Errorf("executed batches = %d, want 1", p.ExecutedBatches)
	}
	if p.QuoteBalance != 4000 {
		t.Errorf("quote balance = %d, want 4000 (one batch volume spent)", p.QuoteBalance)
	}
}

func TestTriggerNonPrimaryStopClosesAfterBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.pocket.StopConditions = []types.StopCondition{{
		Kind:   types.StopBatchCount,
		Amount: 1,
	}}

	res, _, err := f.exec.Trigger(context.Background(), f.keeper, f.pocket.Address)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("final batch did not execute")
	}
	p := f.pockets.records[f.pocket.Address]
	if p.ExecutedBatches != 1 {
		t.Errorf("executed batches = %d, want 1", p.ExecutedBatches)
	}
	if p.Status != types.StatusClosed {
		t.Error("pocket not closed after final batch")
	}
	if f.pockets.closed[f.pocket.Address] != string(types.StopBatchCount) {
		t.Errorf("close reason = %q", f.pockets.closed[f.pocket.Address])
	}
}

func mustSigner(t *testing.T) *chain.Signer {
	t.Helper()
	s, err := chain.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
