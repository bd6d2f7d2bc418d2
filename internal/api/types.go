package api

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pocket-keeper/pkg/types"
)

// Request bodies for the admin endpoints. Addresses travel as 0x-prefixed
// hex strings and are validated before any service call.

// InitRegistryRequest bootstraps the platform registry.
type InitRegistryRequest struct {
	Owner     string   `json:"owner"`
	Operators []string `json:"operators"`
}

// OperatorsRequest replaces the operator set.
type OperatorsRequest struct {
	Caller    string   `json:"caller"`
	Operators []string `json:"operators"`
}

// MintRequest whitelists or toggles a mint.
type MintRequest struct {
	Caller  string `json:"caller"`
	Mint    string `json:"mint"`
	Enabled *bool  `json:"enabled,omitempty"` // nil means add-and-enable
}

// PriceConditionRequest is the JSON shape of an optional price gate.
type PriceConditionRequest struct {
	PricedToken string `json:"priced_token"`
	Op          string `json:"op"`
	Value       string `json:"value"`
	ToValue     string `json:"to_value,omitempty"`
}

// StopConditionRequest is the JSON shape of one stop condition.
type StopConditionRequest struct {
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time,omitzero"`
	Amount  uint64    `json:"amount,omitempty"`
	Primary bool      `json:"primary,omitempty"`
}

// CreatePocketRequest registers a new pocket.
type CreatePocketRequest struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name,omitempty"`
	Owner          string                 `json:"owner"`
	Side           string                 `json:"side"`
	BaseMint       string                 `json:"base_mint"`
	QuoteMint      string                 `json:"quote_mint"`
	Market         string                 `json:"market"`
	BatchVolume    uint64                 `json:"batch_volume"`
	StartAt        time.Time              `json:"start_at,omitzero"`
	Frequency      time.Duration          `json:"frequency"`
	BuyCondition   *PriceConditionRequest `json:"buy_condition,omitempty"`
	StopConditions []StopConditionRequest `json:"stop_conditions,omitempty"`
}

// DepositRequest funds one side of a pocket.
type DepositRequest struct {
	Caller string `json:"caller"`
	Side   string `json:"side"` // BASE or QUOTE
	Amount uint64 `json:"amount"`
}

// CallerRequest carries just the acting principal (withdraw, close-accounts).
type CallerRequest struct {
	Caller string `json:"caller"`
}

// StatusRequest applies a lifecycle transition.
type StatusRequest struct {
	Caller string `json:"caller"`
	Status string `json:"status"`
}

// TriggerResponse reports the outcome of a manual trigger.
type TriggerResponse struct {
	Decision string            `json:"decision"`
	Result   *types.SwapResult `json:"result,omitempty"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// parseAddress validates and decodes a 0x-prefixed hex address.
func parseAddress(field, s string) (types.Address, error) {
	if !common.IsHexAddress(s) {
		return types.Address{}, fmt.Errorf("%s: %q is not a valid address", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseAddresses decodes a list of hex addresses.
func parseAddresses(field string, ss []string) ([]types.Address, error) {
	out := make([]types.Address, len(ss))
	for i, s := range ss {
		addr, err := parseAddress(field, s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}
