package chain

import (
	"context"

	"pocket-keeper/pkg/types"
)

// Custody executes token-custody operations through the ledger RPC. Vault
// addresses are derived locally from (authority, mint), so creation is
// idempotent: re-ensuring an existing vault resolves to the same account.
type Custody struct {
	c *Client
}

// NewCustody wraps a ledger client for custody calls.
func NewCustody(c *Client) *Custody {
	return &Custody{c: c}
}

// EnsureVault creates the custodial vault for (mint, authority) if it does
// not exist. created is false when the vault was already present.
func (cu *Custody) EnsureVault(ctx context.Context, mint, authority types.Address) (types.Address, bool, error) {
	vault := types.VaultAddress(authority, mint)
	params := map[string]string{
		"vault":     vault.Hex(),
		"mint":      mint.Hex(),
		"authority": authority.Hex(),
	}
	var result struct {
		Created bool `json:"created"`
	}
	if err := cu.c.call(ctx, "custody.ensure", params, &result); err != nil {
		return types.Address{}, false, err
	}
	return vault, result.Created, nil
}

// BalanceOf reads the authoritative balance of a custody account.
func (cu *Custody) BalanceOf(ctx context.Context, account types.Address) (uint64, error) {
	var result struct {
		Balance uint64 `json:"balance"`
	}
	err := cu.c.call(ctx, "custody.balance", map[string]string{"account": account.Hex()}, &result)
	return result.Balance, err
}

// Transfer moves amount of mint between two custody accounts.
func (cu *Custody) Transfer(ctx context.Context, mint, from, to types.Address, amount uint64) error {
	params := map[string]interface{}{
		"mint":   mint.Hex(),
		"from":   from.Hex(),
		"to":     to.Hex(),
		"amount": amount,
	}
	return cu.c.call(ctx, "custody.transfer", params, nil)
}

// CloseAccount releases a custody account and refunds its rent deposit to
// destination.
func (cu *Custody) CloseAccount(ctx context.Context, account, destination types.Address) error {
	params := map[string]string{
		"account":     account.Hex(),
		"destination": destination.Hex(),
	}
	return cu.c.call(ctx, "custody.close", params, nil)
}
