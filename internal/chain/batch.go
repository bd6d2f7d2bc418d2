package chain

import (
	"pocket-keeper/pkg/types"
)

// Batch is an ordered set of operations submitted as one atomic unit:
// pre-operations (account bootstraps), the primary operation, and
// post-operations (cleanup). Either every instruction applies or none does;
// that contract comes from the ledger, the batch only preserves ordering.
type Batch struct {
	pre      []types.Instruction
	primary  types.Instruction
	post     []types.Instruction
	signers  []*Signer
	finality types.Finality
	table    *LookupTable
}

// NewBatch starts a batch around its primary operation. The default
// finality is confirmed.
func NewBatch(primary types.Instruction) *Batch {
	return &Batch{primary: primary, finality: types.FinalityConfirmed}
}

// Pre appends bootstrap instructions executed before the primary operation.
func (b *Batch) Pre(ins ...types.Instruction) *Batch {
	b.pre = append(b.pre, ins...)
	return b
}

// Post appends cleanup instructions executed after the primary operation.
func (b *Batch) Post(ins ...types.Instruction) *Batch {
	b.post = append(b.post, ins...)
	return b
}

// WithSigners sets the signer set. The first signer is the payer.
func (b *Batch) WithSigners(signers ...*Signer) *Batch {
	b.signers = signers
	return b
}

// WithFinality sets the confirmation depth to wait for.
func (b *Batch) WithFinality(f types.Finality) *Batch {
	b.finality = f
	return b
}

// WithLookupTable supplies an address-compression table for compilation.
func (b *Batch) WithLookupTable(t *LookupTable) *Batch {
	b.table = t
	return b
}

// Instructions returns the full ordered instruction list.
func (b *Batch) Instructions() []types.Instruction {
	out := make([]types.Instruction, 0, len(b.pre)+1+len(b.post))
	out = append(out, b.pre...)
	out = append(out, b.primary)
	out = append(out, b.post...)
	return out
}

// Transaction is a compiled message plus one signature per signer, in
// signer order.
type Transaction struct {
	Message    *Message
	Signatures [][]byte
}

// Serialize renders the transaction for submission.
func (t *Transaction) Serialize() []byte {
	out := []byte{byte(len(t.Signatures))}
	for _, sig := range t.Signatures {
		out = append(out, byte(len(sig)))
		out = append(out, sig...)
	}
	return append(out, t.Message.Serialize()...)
}
