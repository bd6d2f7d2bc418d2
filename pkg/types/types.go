// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the keeper — addresses, pocket
// enums, swap conditions, ledger instructions, and event payloads. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Address identifies any on-ledger entity: principals, pockets, vaults,
// markets, and programs. Derived entities get their address from Derive.
type Address = common.Address

// Hash is a 32-byte digest, used for reference-state checkpoints and
// message digests.
type Hash = common.Hash

// Side represents the direction of a pocket's recurring trade.
// Buy spends the quote vault to acquire base; Sell spends the base vault.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// VaultSide selects one of a pocket's two custodial vaults. Distinct from
// Side: a Buy pocket spends its quote vault but an owner may fund either.
type VaultSide string

const (
	VaultBase  VaultSide = "BASE"
	VaultQuote VaultSide = "QUOTE"
)

// Valid reports whether the vault side is one of the two known values.
func (s VaultSide) Valid() bool {
	return s == VaultBase || s == VaultQuote
}

// PocketStatus enumerates the pocket lifecycle states.
type PocketStatus string

const (
	StatusActive    PocketStatus = "ACTIVE"
	StatusPaused    PocketStatus = "PAUSED"
	StatusClosed    PocketStatus = "CLOSED"
	StatusWithdrawn PocketStatus = "WITHDRAWN"
)

// Terminal reports whether the status permits no further lifecycle
// transitions other than account cleanup.
func (s PocketStatus) Terminal() bool {
	return s == StatusWithdrawn
}

// Finality is the confirmation depth requested when submitting a batch.
type Finality string

const (
	FinalityProcessed Finality = "processed"
	FinalityConfirmed Finality = "confirmed"
	FinalityFinalized Finality = "finalized"
)

// Checkpoint is the freshness token bounding how long a compiled batch
// remains submittable. Fetched immediately before assembly.
type Checkpoint struct {
	Hash            Hash   `json:"hash"`
	Height          uint64 `json:"height"`
	LastValidHeight uint64 `json:"last_valid_height"`
}

// AccountMeta describes one account referenced by an instruction.
type AccountMeta struct {
	Address  Address `json:"address"`
	Signer   bool    `json:"signer"`
	Writable bool    `json:"writable"`
}

// Instruction is a single logical operation addressed to a program.
// Instructions are compiled into a versioned message by the assembler and
// executed atomically as part of a batch.
type Instruction struct {
	Program  Address       `json:"program"`
	Accounts []AccountMeta `json:"accounts"`
	Data     []byte        `json:"data"`
}

// MarketView is the account set needed to place orders against one
// order-book market, as loaded from the exchange.
type MarketView struct {
	Address      Address `json:"address"`
	BaseMint     Address `json:"base_mint"`
	QuoteMint    Address `json:"quote_mint"`
	EventQueue   Address `json:"event_queue"`
	RequestQueue Address `json:"request_queue"`
	Bids         Address `json:"bids"`
	Asks         Address `json:"asks"`
	BaseVault    Address `json:"base_vault"`
	QuoteVault   Address `json:"quote_vault"`
	VaultSigner  Address `json:"vault_signer"`

	BaseLotSize  uint64          `json:"base_lot_size"`
	QuoteLotSize uint64          `json:"quote_lot_size"`
	MidPrice     decimal.Decimal `json:"mid_price"` // quote units per base unit
}

// VaultInfo is the custodial holding record for one asset side of a pocket.
// The balance is read from the token custody service, never stored here.
type VaultInfo struct {
	Address   Address `json:"address"`
	Mint      Address `json:"mint"`
	Authority Address `json:"authority"` // owning pocket, never changes
}

// MintInfo is one entry of the registry's whitelisted-mint set.
type MintInfo struct {
	Mint    Address `json:"mint"`
	Vault   Address `json:"vault"`
	Enabled bool    `json:"enabled"`
}

// SwapResult captures the realized amounts of one executed swap, read back
// from the authoritative post-trade vault balances.
type SwapResult struct {
	Signature   string          `json:"signature"`
	GivenAmount uint64          `json:"given_amount"`
	FromMint    Address         `json:"from_mint"`
	ToMint      Address         `json:"to_mint"`
	FromAmount  uint64          `json:"from_amount"` // amount of the from token sold
	ToAmount    uint64          `json:"to_amount"`   // amount of the to token purchased
	Rate        decimal.Decimal `json:"rate"`        // realized to/from exchange rate
	ExecutedAt  time.Time       `json:"executed_at"`
}
