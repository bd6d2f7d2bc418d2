package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pocket-keeper/internal/chain"
	"pocket-keeper/internal/condition"
	"pocket-keeper/internal/config"
	"pocket-keeper/internal/exchange"
	"pocket-keeper/internal/pocket"
	"pocket-keeper/pkg/types"
)

type memPocketStore struct {
	mu      sync.Mutex
	pockets map[types.Address]*pocket.Pocket
}

func newMemPocketStore() *memPocketStore {
	return &memPocketStore{pockets: make(map[types.Address]*pocket.Pocket)}
}

func (m *memPocketStore) SavePocket(p *pocket.Pocket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pockets[p.Address] = p
	return nil
}

func (m *memPocketStore) LoadPocket(addr types.Address) (*pocket.Pocket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pockets[addr], nil
}

func (m *memPocketStore) ListPockets() ([]*pocket.Pocket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pocket.Pocket, 0, len(m.pockets))
	for _, p := range m.pockets {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPocketStore) DeletePocket(addr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pockets, addr)
	return nil
}

type nopCustody struct{}

func (nopCustody) EnsureVault(ctx context.Context, mint, authority types.Address) (types.Address, bool, error) {
	return types.VaultAddress(authority, mint), false, nil
}
func (nopCustody) BalanceOf(ctx context.Context, vault types.Address) (uint64, error) {
	return 0, nil
}
func (nopCustody) Transfer(ctx context.Context, mint, from, to types.Address, amount uint64) error {
	return nil
}
func (nopCustody) CloseAccount(ctx context.Context, account, destination types.Address) error {
	return nil
}

type allMints struct{}

func (allMints) IsMintEnabled(types.Address) bool { return true }

// fakeTriggerer records which pockets the loop hands it and plays back a
// scripted outcome.
type fakeTriggerer struct {
	mu        sync.Mutex
	triggered []types.Address

	result   *types.SwapResult
	decision condition.Decision
	err      error
}

func (f *fakeTriggerer) Trigger(ctx context.Context, caller, addr types.Address) (*types.SwapResult, condition.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, addr)
	return f.result, f.decision, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T, st pocket.Store, exec triggerer) *Engine {
	t.Helper()
	signer, err := chain.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	logger := discardLogger()

	cfg := config.Config{}
	cfg.Keeper.TriggerInterval = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &Engine{
		cfg:        cfg,
		pockets:    pocket.NewService(st, nopCustody{}, allMints{}, nil, logger),
		exec:       exec,
		signer:     signer,
		metrics:    NewMetrics(prometheus.NewRegistry()),
		logger:     logger.With("component", "engine"),
		subscribed: make(map[types.Address]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func storedPocket(t *testing.T, st pocket.Store, id string, status types.PocketStatus) *pocket.Pocket {
	t.Helper()
	p, err := pocket.New(pocket.CreateParams{
		ID:          id,
		Owner:       types.Derive([]byte("owner")),
		Side:        types.Buy,
		BaseMint:    types.Derive([]byte("base")),
		QuoteMint:   types.Derive([]byte("quote")),
		Market:      types.Derive([]byte("market")),
		BatchVolume: 1000,
		Frequency:   time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	if status != types.StatusActive {
		if err := p.SetStatus(status); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.SavePocket(p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunCycleTriggersOnlyActivePockets(t *testing.T) {
	t.Parallel()

	st := newMemPocketStore()
	active := storedPocket(t, st, "dca-active", types.StatusActive)
	storedPocket(t, st, "dca-paused", types.StatusPaused)
	storedPocket(t, st, "dca-closed", types.StatusClosed)

	exec := &fakeTriggerer{decision: condition.Decision{Verdict: condition.Skip, Reason: condition.ReasonTooSoon}}
	e := testEngine(t, st, exec)

	e.runCycle()

	if len(exec.triggered) != 1 {
		t.Fatalf("triggered %d pockets, want 1 (paused and closed must be skipped)", len(exec.triggered))
	}
	if exec.triggered[0] != active.Address {
		t.Errorf("triggered %s, want the active pocket %s", exec.triggered[0].Hex(), active.Address.Hex())
	}
	if got := testutil.ToFloat64(e.metrics.ActivePockets); got != 1 {
		t.Errorf("active_pockets gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.metrics.TriggersTotal.WithLabelValues("skip")); got != 1 {
		t.Errorf("skip triggers = %v, want 1", got)
	}
}

func TestRunCycleGaugeTracksStatusChanges(t *testing.T) {
	t.Parallel()

	st := newMemPocketStore()
	p := storedPocket(t, st, "dca-1", types.StatusActive)
	storedPocket(t, st, "dca-2", types.StatusActive)

	exec := &fakeTriggerer{decision: condition.Decision{Verdict: condition.Skip, Reason: condition.ReasonTooSoon}}
	e := testEngine(t, st, exec)

	e.runCycle()
	if got := testutil.ToFloat64(e.metrics.ActivePockets); got != 2 {
		t.Fatalf("active_pockets gauge = %v, want 2", got)
	}

	// Pausing a pocket must drop it from the next cycle and the gauge.
	if err := p.SetStatus(types.StatusPaused); err != nil {
		t.Fatal(err)
	}
	if err := st.SavePocket(p); err != nil {
		t.Fatal(err)
	}
	e.runCycle()
	if got := testutil.ToFloat64(e.metrics.ActivePockets); got != 1 {
		t.Errorf("active_pockets gauge after pause = %v, want 1", got)
	}
}

func TestRunCycleRecordsSwapMetrics(t *testing.T) {
	t.Parallel()

	st := newMemPocketStore()
	storedPocket(t, st, "dca-1", types.StatusActive)

	quote := types.Derive([]byte("quote"))
	exec := &fakeTriggerer{
		result:   &types.SwapResult{FromMint: quote, FromAmount: 1000, ToAmount: 480},
		decision: condition.Decision{Verdict: condition.Proceed},
	}
	e := testEngine(t, st, exec)

	e.runCycle()

	if got := testutil.ToFloat64(e.metrics.SwapsTotal); got != 1 {
		t.Errorf("swaps_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.metrics.SwapVolume.WithLabelValues(quote.Hex())); got != 1000 {
		t.Errorf("swap volume for spend mint = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(e.metrics.TriggersTotal.WithLabelValues("proceed")); got != 1 {
		t.Errorf("proceed triggers = %v, want 1", got)
	}
}

func TestRunCycleCountsTriggerErrors(t *testing.T) {
	t.Parallel()

	st := newMemPocketStore()
	storedPocket(t, st, "dca-1", types.StatusActive)

	exec := &fakeTriggerer{err: errors.New("gateway down")}
	e := testEngine(t, st, exec)

	e.runCycle()

	if got := testutil.ToFloat64(e.metrics.TriggerErrors); got != 1 {
		t.Errorf("trigger_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.metrics.SwapsTotal); got != 0 {
		t.Errorf("swaps_total = %v, want 0 on error", got)
	}
}

func TestMidPriceFallsBackToRestWithoutFeedSample(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"mid":"3.5"}`)
	}))
	t.Cleanup(srv.Close)

	// The feed exists but has never delivered a sample for this market, so
	// the read must fall through to the gateway.
	m := &marketSource{
		gateway: exchange.NewClient(srv.URL, discardLogger()),
		feed:    exchange.NewPriceFeed("ws://unreachable.invalid", discardLogger()),
		maxAge:  5 * time.Second,
		metrics: NewMetrics(prometheus.NewRegistry()),
	}

	mid, err := m.MidPrice(context.Background(), types.Derive([]byte("market")))
	if err != nil {
		t.Fatalf("MidPrice: %v", err)
	}
	if mid.String() != "3.5" {
		t.Errorf("mid = %s, want 3.5", mid)
	}
	if got := testutil.ToFloat64(m.metrics.RestPriceReads); got != 1 {
		t.Errorf("rest_price_reads_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.metrics.FeedPriceReads); got != 0 {
		t.Errorf("feed_price_reads_total = %v, want 0", got)
	}
}
