// Package pocket implements the DCA strategy entity and its lifecycle state
// machine.
//
// A pocket is created once by its owner with a schedule (frequency, start
// time, batch volume), an optional price gate, and a set of stop conditions.
// It then cycles Active <-> Paused under owner control, is closed by the
// owner or auto-closed by the condition evaluator, and finally drained via
// withdraw, which is the only path into the terminal Withdrawn state.
//
// All amounts are native token units (uint64), mirroring the ledger's
// representation. Realized-rate math uses decimals and lives in the executor.
package pocket

import (
	"fmt"
	"time"

	"pocket-keeper/pkg/types"
)

// Pocket is the core DCA entity. Base/quote balances mirror the custodial
// vault state and are refreshed from authoritative balances after every
// confirmed execution.
type Pocket struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Address types.Address `json:"address"`
	Owner   types.Address `json:"owner"`

	Status types.PocketStatus `json:"status"`
	Side   types.Side         `json:"side"`

	BaseMint   types.Address `json:"base_mint"`
	QuoteMint  types.Address `json:"quote_mint"`
	Market     types.Address `json:"market"`
	BaseVault  types.Address `json:"base_vault"`
	QuoteVault types.Address `json:"quote_vault"`

	BatchVolume    uint64                `json:"batch_volume"`
	StartAt        time.Time             `json:"start_at"`
	Frequency      time.Duration         `json:"frequency"`
	BuyCondition   *types.BuyCondition   `json:"buy_condition,omitempty"`
	StopConditions []types.StopCondition `json:"stop_conditions,omitempty"`

	TotalBaseDeposited  uint64 `json:"total_base_deposited"`
	TotalQuoteDeposited uint64 `json:"total_quote_deposited"`
	BaseBalance         uint64 `json:"base_balance"`
	QuoteBalance        uint64 `json:"quote_balance"`

	BaseTraded      uint64    `json:"base_traded"`  // cumulative base bought/sold
	QuoteTraded     uint64    `json:"quote_traded"` // cumulative quote spent/received
	ExecutedBatches uint64    `json:"executed_batches"`
	LastExecutionAt time.Time `json:"last_execution_at,omitempty"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CreateParams carries everything needed to register a new pocket.
type CreateParams struct {
	ID             string
	Name           string
	Owner          types.Address
	Side           types.Side
	BaseMint       types.Address
	QuoteMint      types.Address
	Market         types.Address
	BatchVolume    uint64
	StartAt        time.Time
	Frequency      time.Duration
	BuyCondition   *types.BuyCondition
	StopConditions []types.StopCondition
}

// New validates the parameters and returns a fresh Active pocket with all
// counters zeroed. The address is derived from (owner, id), so a duplicate
// id for the same owner derives the same address; the service layer turns
// that into ErrDuplicateID.
func New(p CreateParams) (*Pocket, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("pocket id: %w", types.ErrInvalidCondition)
	}
	if !p.Side.Valid() {
		return nil, fmt.Errorf("side %q: %w", p.Side, types.ErrInvalidCondition)
	}
	if p.BatchVolume == 0 {
		return nil, fmt.Errorf("batch volume: %w", types.ErrZeroAmount)
	}
	if p.BaseMint == p.QuoteMint {
		return nil, types.ErrSameMint
	}
	if p.Frequency <= 0 {
		return nil, fmt.Errorf("frequency: %w", types.ErrInvalidCondition)
	}
	if p.BuyCondition != nil {
		if err := p.BuyCondition.Condition.Validate(); err != nil {
			return nil, fmt.Errorf("buy condition: %w", err)
		}
	}
	for i, sc := range p.StopConditions {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("stop condition %d: %w", i, err)
		}
	}

	addr := types.PocketAddress(p.Owner, p.ID)
	return &Pocket{
		ID:             p.ID,
		Name:           p.Name,
		Address:        addr,
		Owner:          p.Owner,
		Status:         types.StatusActive,
		Side:           p.Side,
		BaseMint:       p.BaseMint,
		QuoteMint:      p.QuoteMint,
		Market:         p.Market,
		BaseVault:      types.VaultAddress(addr, p.BaseMint),
		QuoteVault:     types.VaultAddress(addr, p.QuoteMint),
		BatchVolume:    p.BatchVolume,
		StartAt:        p.StartAt,
		Frequency:      p.Frequency,
		BuyCondition:   p.BuyCondition,
		StopConditions: append([]types.StopCondition(nil), p.StopConditions...),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// SetStatus applies an owner-requested status transition.
//
//	Active  -> Paused, Closed
//	Paused  -> Active, Closed
//	any     -> same status is rejected with ErrNoOpStatusChange
//	Withdrawn is never settable directly; it is reached only via Withdraw.
func (p *Pocket) SetStatus(next types.PocketStatus) error {
	if next == p.Status {
		return types.ErrNoOpStatusChange
	}
	switch next {
	case types.StatusActive:
		if p.Status != types.StatusPaused {
			return types.ErrNotPaused
		}
	case types.StatusPaused:
		if p.Status != types.StatusActive {
			return types.ErrNotActive
		}
	case types.StatusClosed:
		if p.Status != types.StatusActive && p.Status != types.StatusPaused {
			return fmt.Errorf("close from %s: %w", p.Status, types.ErrInvalidStatusInput)
		}
	case types.StatusWithdrawn:
		return types.ErrInvalidStatusInput
	default:
		return fmt.Errorf("status %q: %w", next, types.ErrInvalidStatusInput)
	}
	p.Status = next
	return nil
}

// ForceClose moves the pocket to Closed on behalf of the condition
// evaluator. Terminal and already-closed pockets are left untouched.
func (p *Pocket) ForceClose() bool {
	if p.Status != types.StatusActive && p.Status != types.StatusPaused {
		return false
	}
	p.Status = types.StatusClosed
	return true
}

// ApplyDeposit credits a deposit to one vault side. Deposits are accepted
// only while the pocket is Active.
func (p *Pocket) ApplyDeposit(side types.VaultSide, amount uint64) (mint types.Address, err error) {
	if p.Status != types.StatusActive {
		return mint, fmt.Errorf("deposit while %s: %w", p.Status, types.ErrNotActive)
	}
	if amount == 0 {
		return mint, types.ErrZeroAmount
	}
	switch side {
	case types.VaultBase:
		p.BaseBalance += amount
		p.TotalBaseDeposited += amount
		return p.BaseMint, nil
	case types.VaultQuote:
		p.QuoteBalance += amount
		p.TotalQuoteDeposited += amount
		return p.QuoteMint, nil
	default:
		return mint, fmt.Errorf("deposit side %q: %w", side, types.ErrInvalidCondition)
	}
}

// ApplyWithdraw zeroes both balances and transitions to Withdrawn.
// Callable only once the pocket is Closed.
func (p *Pocket) ApplyWithdraw() error {
	if p.Status != types.StatusClosed {
		return fmt.Errorf("withdraw while %s: %w", p.Status, types.ErrNotClosed)
	}
	p.BaseBalance = 0
	p.QuoteBalance = 0
	p.Status = types.StatusWithdrawn
	return nil
}

// CanCloseAccounts reports whether the storage records may be reclaimed:
// either fully withdrawn, or closed with nothing left in custody.
func (p *Pocket) CanCloseAccounts() bool {
	if p.Status == types.StatusWithdrawn {
		return true
	}
	return p.Status == types.StatusClosed && p.BaseBalance == 0 && p.QuoteBalance == 0
}

// RecordExecution updates counters and balances after a confirmed swap.
// Balances come from the authoritative post-trade vault state, never from
// local arithmetic.
func (p *Pocket) RecordExecution(res types.SwapResult, baseBalance, quoteBalance uint64) {
	switch p.Side {
	case types.Buy: // spent quote, received base
		p.QuoteTraded += res.FromAmount
		p.BaseTraded += res.ToAmount
	case types.Sell: // spent base, received quote
		p.BaseTraded += res.FromAmount
		p.QuoteTraded += res.ToAmount
	}
	p.BaseBalance = baseBalance
	p.QuoteBalance = quoteBalance
	p.ExecutedBatches++
	p.LastExecutionAt = res.ExecutedAt
	p.NextScheduledAt = res.ExecutedAt.Add(p.Frequency)
}

// Progress snapshots the accumulated execution state for stop-condition
// evaluation.
func (p *Pocket) Progress() types.Progress {
	return types.Progress{
		BaseTraded:      p.BaseTraded,
		QuoteTraded:     p.QuoteTraded,
		ExecutedBatches: p.ExecutedBatches,
	}
}

// SpendingVault returns the vault and mint the next execution will spend
// from, and its locally mirrored balance.
func (p *Pocket) SpendingVault() (vault, mint types.Address, balance uint64) {
	if p.Side == types.Buy {
		return p.QuoteVault, p.QuoteMint, p.QuoteBalance
	}
	return p.BaseVault, p.BaseMint, p.BaseBalance
}

// ReceivingVault returns the vault and mint the next execution settles into.
func (p *Pocket) ReceivingVault() (vault, mint types.Address) {
	if p.Side == types.Buy {
		return p.BaseVault, p.BaseMint
	}
	return p.QuoteVault, p.QuoteMint
}
