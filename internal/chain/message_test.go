package chain

import (
	"bytes"
	"testing"

	"pocket-keeper/pkg/types"
)

func addr(s string) types.Address {
	return types.Derive([]byte("test"), []byte(s))
}

func checkpoint() types.Checkpoint {
	return types.Checkpoint{
		Hash:            types.Hash{0xab},
		Height:          100,
		LastValidHeight: 250,
	}
}

func TestCompileMessageDedup(t *testing.T) {
	t.Parallel()

	payer := addr("payer")
	program := addr("program")
	shared := addr("shared")

	// Two instructions referencing the same account with different
	// privileges: the merged entry keeps the strongest of each.
	ins := []types.Instruction{
		{
			Program: program,
			Accounts: []types.AccountMeta{
				{Address: shared, Writable: false},
				{Address: addr("a"), Writable: true},
			},
			Data: []byte{1},
		},
		{
			Program: program,
			Accounts: []types.AccountMeta{
				{Address: shared, Writable: true},
			},
			Data: []byte{2},
		},
	}

	msg, err := CompileMessage(payer, checkpoint(), ins, nil)
	if err != nil {
		t.Fatal(err)
	}

	// payer + program + shared + a, each exactly once.
	if len(msg.StaticKeys) != 4 {
		t.Fatalf("static keys = %d, want 4", len(msg.StaticKeys))
	}
	if msg.StaticKeys[0] != payer {
		t.Error("payer not at index 0")
	}
	if msg.NumSigners != 1 {
		t.Errorf("signers = %d, want 1", msg.NumSigners)
	}

	// Both instructions must resolve the shared account to the same index.
	if msg.Instructions[0].AccountIndexes[0] != msg.Instructions[1].AccountIndexes[0] {
		t.Error("shared account resolved to different indexes")
	}
}

func TestCompileMessageLookupCompression(t *testing.T) {
	t.Parallel()

	payer := addr("payer")
	program := addr("program")
	market := addr("market")
	bids := addr("bids")
	asks := addr("asks")

	ins := []types.Instruction{{
		Program: program,
		Accounts: []types.AccountMeta{
			{Address: market, Writable: true},
			{Address: bids, Writable: true},
			{Address: asks, Writable: true},
			{Address: addr("not-in-table"), Writable: true},
		},
		Data: []byte{7},
	}}

	plain, err := CompileMessage(payer, checkpoint(), ins, nil)
	if err != nil {
		t.Fatal(err)
	}

	table := &LookupTable{
		Address:   addr("table"),
		Addresses: []types.Address{market, bids, asks},
	}
	compressed, err := CompileMessage(payer, checkpoint(), ins, table)
	if err != nil {
		t.Fatal(err)
	}

	if compressed.Lookup == nil {
		t.Fatal("no lookup section emitted")
	}
	if len(compressed.Lookup.Indexes) != 3 {
		t.Errorf("lookup indexes = %d, want 3", len(compressed.Lookup.Indexes))
	}
	if len(compressed.StaticKeys) != len(plain.StaticKeys)-3 {
		t.Errorf("static keys = %d, want %d", len(compressed.StaticKeys), len(plain.StaticKeys)-3)
	}
	if len(compressed.Serialize()) >= len(plain.Serialize()) {
		t.Error("compressed message not smaller than plain message")
	}

	// Loaded accounts resolve to indexes past the static section.
	staticLen := uint16(len(compressed.StaticKeys))
	marketIdx := compressed.Instructions[0].AccountIndexes[0]
	if marketIdx < staticLen {
		t.Errorf("table-resident account got static index %d", marketIdx)
	}
	// The index maps back to the right table position.
	pos := int(marketIdx - staticLen)
	if table.Addresses[compressed.Lookup.Indexes[pos]] != market {
		t.Error("lookup index does not resolve back to the market address")
	}
}

func TestCompileMessageProgramStaysStatic(t *testing.T) {
	t.Parallel()

	payer := addr("payer")
	program := addr("program")

	// Even when the table carries the program address, it must stay static.
	table := &LookupTable{
		Address:   addr("table"),
		Addresses: []types.Address{program},
	}
	msg, err := CompileMessage(payer, checkpoint(), []types.Instruction{{
		Program: program,
		Data:    []byte{1},
	}}, table)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Lookup != nil {
		t.Error("program address was moved into the lookup section")
	}
}

func TestCompileMessageEmpty(t *testing.T) {
	t.Parallel()

	if _, err := CompileMessage(addr("payer"), checkpoint(), nil, nil); err == nil {
		t.Error("empty instruction list should be rejected")
	}
}

func TestMessageDigestDeterministic(t *testing.T) {
	t.Parallel()

	ins := []types.Instruction{{
		Program:  addr("program"),
		Accounts: []types.AccountMeta{{Address: addr("a"), Writable: true}},
		Data:     []byte{1, 2, 3},
	}}

	m1, _ := CompileMessage(addr("payer"), checkpoint(), ins, nil)
	m2, _ := CompileMessage(addr("payer"), checkpoint(), ins, nil)
	if m1.Digest() != m2.Digest() {
		t.Error("same inputs produced different digests")
	}

	other, _ := CompileMessage(addr("payer"), types.Checkpoint{Hash: types.Hash{0xcd}, LastValidHeight: 9}, ins, nil)
	if m1.Digest() == other.Digest() {
		t.Error("different checkpoints produced identical digests")
	}
}

func TestTransactionSerializeIncludesSignatures(t *testing.T) {
	t.Parallel()

	signer, err := GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	msg, _ := CompileMessage(signer.Address(), checkpoint(), []types.Instruction{{
		Program: addr("program"),
		Data:    []byte{9},
	}}, nil)

	sig, err := signer.Sign(msg.Digest())
	if err != nil {
		t.Fatal(err)
	}
	tx := &Transaction{Message: msg, Signatures: [][]byte{sig}}

	raw := tx.Serialize()
	if raw[0] != 1 {
		t.Errorf("signature count = %d, want 1", raw[0])
	}
	if !bytes.Contains(raw, sig) {
		t.Error("serialized transaction missing the signature")
	}
	if !bytes.HasSuffix(raw, msg.Serialize()) {
		t.Error("serialized transaction does not end with the message")
	}
}
