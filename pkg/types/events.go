package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind enumerates domain events. Exactly one event is emitted per
// successful state transition.
type EventKind string

const (
	EventRegistryInitialized  EventKind = "registry_initialized"
	EventOperatorsUpdated     EventKind = "operators_updated"
	EventVaultCreated         EventKind = "vault_created"
	EventPocketCreated        EventKind = "pocket_created"
	EventPocketDeposited      EventKind = "pocket_deposited"
	EventPocketWithdrawn      EventKind = "pocket_withdrawn"
	EventPocketStatusChanged  EventKind = "pocket_status_changed"
	EventPocketAccountsClosed EventKind = "pocket_accounts_closed"
	EventSwapExecuted         EventKind = "swap_executed"
)

// Event is the wrapper for all domain events. Entity is the affected record's
// address, Actor the principal that caused the transition.
type Event struct {
	Kind      EventKind   `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     Address     `json:"actor"`
	Entity    Address     `json:"entity"`
	Data      interface{} `json:"data,omitempty"`
}

// VaultCreatedData is the payload of EventVaultCreated.
type VaultCreatedData struct {
	Mint      Address `json:"mint"`
	Authority Address `json:"authority"`
	Vault     Address `json:"vault"`
}

// PocketCreatedData is the payload of EventPocketCreated.
type PocketCreatedData struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Market Address `json:"market"`
}

// DepositedData is the payload of EventPocketDeposited.
type DepositedData struct {
	Mint   Address `json:"mint"`
	Amount uint64  `json:"amount"`
}

// WithdrawnData is the payload of EventPocketWithdrawn.
type WithdrawnData struct {
	BaseMint    Address `json:"base_mint"`
	BaseAmount  uint64  `json:"base_amount"`
	QuoteMint   Address `json:"quote_mint"`
	QuoteAmount uint64  `json:"quote_amount"`
}

// SwapExecutedData is the payload of EventSwapExecuted.
type SwapExecutedData struct {
	Signature  string          `json:"signature"`
	FromMint   Address         `json:"from_mint"`
	ToMint     Address         `json:"to_mint"`
	FromAmount uint64          `json:"from_amount"`
	ToAmount   uint64          `json:"to_amount"`
	Rate       decimal.Decimal `json:"rate"`
	Batch      uint64          `json:"batch"` // ordinal of this execution
}

// StatusChangedData is the payload of EventPocketStatusChanged.
type StatusChangedData struct {
	From   PocketStatus `json:"from"`
	To     PocketStatus `json:"to"`
	Reason string       `json:"reason,omitempty"` // set on auto-close
}
