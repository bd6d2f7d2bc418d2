package types

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Entity seeds. Each derived address starts from a distinct tag so that
// derivations can never collide across entity types.
const (
	SeedPlatform    = "pocket/platform"
	SeedPocket      = "pocket/pocket"
	SeedVault       = "pocket/vault"
	SeedOpenOrders  = "pocket/open-orders"
	SeedLookupTable = "pocket/lookup-table"
)

// Derive computes a deterministic address from ordered seed parts.
// Each part is length-prefixed before hashing so ("ab","c") and ("a","bc")
// derive different addresses.
func Derive(parts ...[]byte) Address {
	buf := make([]byte, 0, 64)
	for _, p := range parts {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(p)))
		buf = append(buf, l[:]...)
		buf = append(buf, p...)
	}
	return common.BytesToAddress(crypto.Keccak256(buf))
}

// RegistryAddress is the well-known address of the singleton registry record.
func RegistryAddress() Address {
	return Derive([]byte(SeedPlatform))
}

// PocketAddress derives the address of a pocket from its owner and id.
// Uniqueness of (owner, id) pairs follows by construction.
func PocketAddress(owner Address, id string) Address {
	return Derive([]byte(SeedPocket), owner.Bytes(), []byte(id))
}

// VaultAddress derives the custodial vault address for one asset side of
// a pocket.
func VaultAddress(pocket, mint Address) Address {
	return Derive([]byte(SeedVault), pocket.Bytes(), mint.Bytes())
}

// OpenOrdersAddress derives the exchange-side dependency account for a
// (market, pocket) pair. The derivation is what makes the bootstrap
// idempotent: concurrent triggers resolve the same address and observe
// "already exists" instead of double-allocating.
func OpenOrdersAddress(market, pocket Address) Address {
	return Derive([]byte(SeedOpenOrders), market.Bytes(), pocket.Bytes())
}

// LookupTableAddress derives the address-compression table owned by an
// authority.
func LookupTableAddress(authority Address) Address {
	return Derive([]byte(SeedLookupTable), authority.Bytes())
}
