// Package chain implements the transaction-assembly layer: it packages an
// ordered list of instructions into a single signed, versioned submission,
// optionally compressing repeated account addresses through a lookup table,
// and confirms it to a requested finality against a narrow Ledger interface.
package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"pocket-keeper/pkg/types"
)

// messageVersion identifies the compiled wire layout.
const messageVersion uint8 = 0

// LookupTable maps frequently-used addresses to short indices so more
// instructions fit in one submission. Tables are published on-ledger at an
// address derived from their authority.
type LookupTable struct {
	Address   types.Address
	Addresses []types.Address
}

func (t *LookupTable) indexOf(addr types.Address) (uint16, bool) {
	for i, a := range t.Addresses {
		if a == addr {
			return uint16(i), true
		}
	}
	return 0, false
}

// TableLookup references addresses loaded from a lookup table. Loaded
// addresses are appended to the account list after the static keys, in the
// order given by Indexes.
type TableLookup struct {
	Table   types.Address
	Indexes []uint16
}

// CompiledInstruction is an instruction with its accounts resolved to
// positions in the message account list.
type CompiledInstruction struct {
	ProgramIndex   uint16
	AccountIndexes []uint16
	Data           []byte
}

// Message is a compiled, versioned batch: all instructions, the deduplicated
// account list, and the reference-state checkpoint bounding its validity.
type Message struct {
	Version      uint8
	Payer        types.Address
	Checkpoint   types.Checkpoint
	NumSigners   uint16
	StaticKeys   []types.Address
	Lookup       *TableLookup
	Instructions []CompiledInstruction
}

// accountEntry accumulates the merged privileges of one address across all
// instructions referencing it.
type accountEntry struct {
	addr     types.Address
	signer   bool
	writable bool
}

// CompileMessage deduplicates every account referenced by the instructions,
// orders them (signers first, payer at index 0, then writable, then
// readonly), optionally moves table-resident non-signer accounts into the
// lookup section, and resolves instruction operands to indexes.
func CompileMessage(payer types.Address, cp types.Checkpoint, instructions []types.Instruction, table *LookupTable) (*Message, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("compile: empty instruction list")
	}

	order := []types.Address{payer}
	merged := map[types.Address]*accountEntry{
		payer: {addr: payer, signer: true, writable: true},
	}
	touch := func(addr types.Address, signer, writable bool) {
		e, ok := merged[addr]
		if !ok {
			e = &accountEntry{addr: addr}
			merged[addr] = e
			order = append(order, addr)
		}
		e.signer = e.signer || signer
		e.writable = e.writable || writable
	}
	for _, ins := range instructions {
		touch(ins.Program, false, false)
		for _, m := range ins.Accounts {
			touch(m.Address, m.Signer, m.Writable)
		}
	}

	// Partition preserving first-touch order within each class.
	var signers, writable, readonly []*accountEntry
	for _, addr := range order {
		e := merged[addr]
		switch {
		case e.signer:
			signers = append(signers, e)
		case e.writable:
			writable = append(writable, e)
		default:
			readonly = append(readonly, e)
		}
	}

	msg := &Message{
		Version:    messageVersion,
		Payer:      payer,
		Checkpoint: cp,
		NumSigners: uint16(len(signers)),
	}

	// Programs and signers always stay static; other accounts move to the
	// lookup section when the table carries them.
	programs := make(map[types.Address]bool, len(instructions))
	for _, ins := range instructions {
		programs[ins.Program] = true
	}

	var loaded []types.Address
	var lookup *TableLookup
	keep := func(e *accountEntry) bool {
		if table == nil || e.signer || programs[e.addr] {
			return true
		}
		idx, ok := table.indexOf(e.addr)
		if !ok {
			return true
		}
		if lookup == nil {
			lookup = &TableLookup{Table: table.Address}
		}
		lookup.Indexes = append(lookup.Indexes, idx)
		loaded = append(loaded, e.addr)
		return false
	}
	for _, e := range signers {
		msg.StaticKeys = append(msg.StaticKeys, e.addr)
	}
	for _, e := range writable {
		if keep(e) {
			msg.StaticKeys = append(msg.StaticKeys, e.addr)
		}
	}
	for _, e := range readonly {
		if keep(e) {
			msg.StaticKeys = append(msg.StaticKeys, e.addr)
		}
	}
	msg.Lookup = lookup

	// Loaded addresses occupy indexes after the static section.
	position := make(map[types.Address]uint16, len(msg.StaticKeys)+len(loaded))
	for i, a := range msg.StaticKeys {
		position[a] = uint16(i)
	}
	for i, a := range loaded {
		position[a] = uint16(len(msg.StaticKeys) + i)
	}

	for _, ins := range instructions {
		ci := CompiledInstruction{
			ProgramIndex: position[ins.Program],
			Data:         ins.Data,
		}
		for _, m := range ins.Accounts {
			ci.AccountIndexes = append(ci.AccountIndexes, position[m.Address])
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// Serialize renders the message into its deterministic wire form.
func (m *Message) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(m.Version)
	buf.Write(m.Payer.Bytes())
	buf.Write(m.Checkpoint.Hash.Bytes())
	writeU64(&buf, m.Checkpoint.LastValidHeight)
	writeU16(&buf, m.NumSigners)

	writeU16(&buf, uint16(len(m.StaticKeys)))
	for _, k := range m.StaticKeys {
		buf.Write(k.Bytes())
	}

	if m.Lookup != nil {
		buf.WriteByte(1)
		buf.Write(m.Lookup.Table.Bytes())
		writeU16(&buf, uint16(len(m.Lookup.Indexes)))
		for _, i := range m.Lookup.Indexes {
			writeU16(&buf, i)
		}
	} else {
		buf.WriteByte(0)
	}

	writeU16(&buf, uint16(len(m.Instructions)))
	for _, ins := range m.Instructions {
		writeU16(&buf, ins.ProgramIndex)
		writeU16(&buf, uint16(len(ins.AccountIndexes)))
		for _, i := range ins.AccountIndexes {
			writeU16(&buf, i)
		}
		writeU16(&buf, uint16(len(ins.Data)))
		buf.Write(ins.Data)
	}
	return buf.Bytes()
}

// Digest is the signing payload: the keccak hash of the serialized message.
func (m *Message) Digest() types.Hash {
	return crypto.Keccak256Hash(m.Serialize())
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
