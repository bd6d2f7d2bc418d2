package store

import (
	"testing"
	"time"

	"pocket-keeper/internal/pocket"
	"pocket-keeper/internal/registry"
	"pocket-keeper/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPocket(t *testing.T, id string) *pocket.Pocket {
	t.Helper()
	p, err := pocket.New(pocket.CreateParams{
		ID:          id,
		Owner:       types.Derive([]byte("owner")),
		Side:        types.Sell,
		BaseMint:    types.Derive([]byte("mint"), []byte("base")),
		QuoteMint:   types.Derive([]byte("mint"), []byte("quote")),
		Market:      types.Derive([]byte("market")),
		BatchVolume: 250,
		StartAt:     time.Now().UTC(),
		Frequency:   time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSaveAndLoadPocket(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	p := testPocket(t, "daily-sell")
	p.BaseBalance = 1234
	p.ExecutedBatches = 3

	if err := s.SavePocket(p); err != nil {
		t.Fatalf("SavePocket: %v", err)
	}

	loaded, err := s.LoadPocket(p.Address)
	if err != nil {
		t.Fatalf("LoadPocket: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadPocket returned nil")
	}
	if loaded.ID != p.ID || loaded.Address != p.Address {
		t.Error("identity fields did not round-trip")
	}
	if loaded.BaseBalance != 1234 || loaded.ExecutedBatches != 3 {
		t.Errorf("counters = (%d, %d), want (1234, 3)", loaded.BaseBalance, loaded.ExecutedBatches)
	}
	if loaded.Status != types.StatusActive {
		t.Errorf("status = %s, want active", loaded.Status)
	}
}

func TestLoadPocketMissing(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	loaded, err := s.LoadPocket(types.Derive([]byte("nope")))
	if err != nil {
		t.Fatalf("LoadPocket: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing pocket, got %+v", loaded)
	}
}

func TestSavePocketOverwrites(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	p := testPocket(t, "daily-sell")
	if err := s.SavePocket(p); err != nil {
		t.Fatal(err)
	}
	p.ExecutedBatches = 7
	if err := s.SavePocket(p); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadPocket(p.Address)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ExecutedBatches != 7 {
		t.Errorf("ExecutedBatches = %d, want 7 (latest save)", loaded.ExecutedBatches)
	}
}

func TestListAndDeletePockets(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	a := testPocket(t, "first")
	b := testPocket(t, "second")
	for _, p := range []*pocket.Pocket{a, b} {
		if err := s.SavePocket(p); err != nil {
			t.Fatal(err)
		}
	}

	pockets, err := s.ListPockets()
	if err != nil {
		t.Fatalf("ListPockets: %v", err)
	}
	if len(pockets) != 2 {
		t.Fatalf("listed %d pockets, want 2", len(pockets))
	}

	if err := s.DeletePocket(a.Address); err != nil {
		t.Fatalf("DeletePocket: %v", err)
	}
	pockets, err = s.ListPockets()
	if err != nil {
		t.Fatal(err)
	}
	if len(pockets) != 1 || pockets[0].Address != b.Address {
		t.Error("wrong pocket survived the delete")
	}

	// Deleting what is already gone is fine.
	if err := s.DeletePocket(a.Address); err != nil {
		t.Errorf("re-delete: %v", err)
	}
}

func TestSaveAndLoadRegistry(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	// Fresh deployment has no registry yet.
	loaded, err := s.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected nil registry on fresh store")
	}

	owner := types.Derive([]byte("owner"))
	r := registry.New()
	if err := r.Initialize(owner, []types.Address{types.Derive([]byte("op"))}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRegistry(r); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}

	loaded, err = s.LoadRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || !loaded.Initialized || loaded.Owner != owner {
		t.Errorf("registry did not round-trip: %+v", loaded)
	}
	if len(loaded.Operators) != 1 {
		t.Errorf("operators = %d, want 1", len(loaded.Operators))
	}
}
