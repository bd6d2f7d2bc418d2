// instructions.go builds the ledger instructions a swap batch is made of.
//
// A swap against the venue is an immediate-or-cancel order plus a settlement
// of the filled funds back into the pocket's vaults, expressed as a single
// instruction to the venue program. Fills are all-or-nothing at the batch
// level: the assembler submits the whole batch atomically, so a partially
// prepared swap never reaches the book.
package exchange

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"

	"pocket-keeper/pkg/types"
)

// Program addresses are derived from well-known seeds so every component
// resolves the same address without configuration.
var (
	// VenueProgram executes orders against the central limit order book.
	VenueProgram = types.Derive([]byte("pocket/program"), []byte("venue"))

	// TokenProgram moves funds between vault accounts during settlement.
	TokenProgram = types.Derive([]byte("pocket/program"), []byte("token"))
)

// Instruction opcodes understood by the venue program.
const (
	opInitOpenOrders  byte = 1
	opSwap            byte = 2
	opCloseOpenOrders byte = 3
)

const sideBuy, sideSell byte = 0, 1

// InitOpenOrdersInstruction creates the pocket's open-orders account on a
// market. Safe to include in a batch that already has one: the venue treats
// re-initialization of an existing account as a no-op.
func InitOpenOrdersInstruction(view *types.MarketView, pocket, payer types.Address) types.Instruction {
	openOrders := types.OpenOrdersAddress(view.Address, pocket)

	data := []byte{opInitOpenOrders}
	return types.Instruction{
		Program: VenueProgram,
		Accounts: []types.AccountMeta{
			{Address: openOrders, Writable: true},
			{Address: view.Address},
			{Address: pocket},
			{Address: payer, Signer: true, Writable: true},
		},
		Data: data,
	}
}

// CloseOpenOrdersInstruction tears down the pocket's open-orders account
// and refunds its rent to the payer. Only valid once the account holds no
// resting orders, which is always true for immediate-or-cancel flow.
func CloseOpenOrdersInstruction(view *types.MarketView, pocket, payer types.Address) types.Instruction {
	openOrders := types.OpenOrdersAddress(view.Address, pocket)

	data := []byte{opCloseOpenOrders}
	return types.Instruction{
		Program: VenueProgram,
		Accounts: []types.AccountMeta{
			{Address: openOrders, Writable: true},
			{Address: view.Address},
			{Address: pocket},
			{Address: payer, Signer: true, Writable: true},
		},
		Data: data,
	}
}

// SwapInstruction builds the immediate-or-cancel order + settle operation.
//
// amount is the quantity of the spending token in native units: base units
// when selling, quote units when buying. limitPrice bounds the fill rate in
// quote units per base unit; a buy fills at or below it, a sell at or above
// it. Unfilled remainder is cancelled, never left resting.
func SwapInstruction(
	view *types.MarketView,
	pocket, authority types.Address,
	spendingVault, receivingVault types.Address,
	side types.Side,
	amount uint64,
	limitPrice decimal.Decimal,
) (types.Instruction, error) {
	if amount == 0 {
		return types.Instruction{}, types.ErrZeroAmount
	}
	if !side.Valid() {
		return types.Instruction{}, fmt.Errorf("invalid side %q", side)
	}
	if limitPrice.Sign() <= 0 {
		return types.Instruction{}, fmt.Errorf("limit price must be positive, got %s", limitPrice)
	}
	if view.BaseLotSize == 0 || view.QuoteLotSize == 0 {
		return types.Instruction{}, fmt.Errorf("market %s has zero lot size", view.Address.Hex())
	}

	priceLots := limitPriceLots(limitPrice, view)
	if priceLots == 0 {
		return types.Instruction{}, fmt.Errorf("limit price %s rounds to zero lots", limitPrice)
	}

	var sideByte byte
	var maxBaseLots, maxQuoteLots uint64
	switch side {
	case types.Buy:
		sideByte = sideBuy
		maxQuoteLots = amount / view.QuoteLotSize
		// Cap base received by the quote budget at the limit price.
		maxBaseLots = maxQuoteLots / priceLots
	case types.Sell:
		sideByte = sideSell
		maxBaseLots = amount / view.BaseLotSize
		maxQuoteLots = maxBaseLots * priceLots
	}
	if maxBaseLots == 0 {
		return types.Instruction{}, fmt.Errorf("%w: %d native units below one lot", types.ErrZeroSwap, amount)
	}

	data := make([]byte, 0, 2+3*8)
	data = append(data, opSwap, sideByte)
	data = binary.BigEndian.AppendUint64(data, priceLots)
	data = binary.BigEndian.AppendUint64(data, maxBaseLots)
	data = binary.BigEndian.AppendUint64(data, maxQuoteLots)

	openOrders := types.OpenOrdersAddress(view.Address, pocket)
	return types.Instruction{
		Program: VenueProgram,
		Accounts: []types.AccountMeta{
			{Address: view.Address, Writable: true},
			{Address: view.RequestQueue, Writable: true},
			{Address: view.EventQueue, Writable: true},
			{Address: view.Bids, Writable: true},
			{Address: view.Asks, Writable: true},
			{Address: view.BaseVault, Writable: true},
			{Address: view.QuoteVault, Writable: true},
			{Address: view.VaultSigner},
			{Address: openOrders, Writable: true},
			{Address: spendingVault, Writable: true},
			{Address: receivingVault, Writable: true},
			{Address: pocket},
			{Address: authority, Signer: true},
			{Address: TokenProgram},
		},
		Data: data,
	}, nil
}

// limitPriceLots converts a quote-per-base price into the venue's lot
// representation, rounding down.
func limitPriceLots(price decimal.Decimal, view *types.MarketView) uint64 {
	lots := price.
		Mul(decimal.NewFromUint64(view.BaseLotSize)).
		Div(decimal.NewFromUint64(view.QuoteLotSize))
	if lots.Sign() <= 0 {
		return 0
	}
	return uint64(lots.IntPart())
}
