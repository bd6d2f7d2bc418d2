package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"pocket-keeper/pkg/types"
)

// Signer holds a private key and signs message digests. The address is
// derived from the public key and doubles as the on-ledger principal.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr types.Address
}

// NewSigner wraps an existing private key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewSignerFromHex parses a hex-encoded private key (with or without the
// 0x prefix).
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewSigner(key), nil
}

// GenerateSigner creates a fresh random keypair. Used by tests and the
// local bootstrap path.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

// Address returns the signer's principal address.
func (s *Signer) Address() types.Address {
	return s.addr
}

// Sign produces a recoverable signature over the 32-byte digest.
func (s *Signer) Sign(digest types.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return sig, nil
}
