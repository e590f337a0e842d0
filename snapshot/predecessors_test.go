package snapshot

import (
	"testing"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
)

func TestBuildPredecessorTablesGeometricOffsets(t *testing.T) {
	hasher := hashing.Sha3Hasher{}
	genesis := chainhash.BlockHash{0xff}

	history := make([]block.PrunedBlock, 8)
	for i := range history {
		history[i] = block.PrunedBlock{Header: block.Header{Level: int32(i) + 1}}
	}

	tables := BuildPredecessorTables(hasher, history, genesis)
	if len(tables) != len(history) {
		t.Fatalf("expected one table per history entry, got %d", len(tables))
	}

	// history[0] (level 1) is right after genesis: rank 0 has no offset-1
	// predecessor within history, so the genesis special case fires.
	if len(tables[0]) != 1 || tables[0][0].Hash != genesis {
		t.Fatalf("expected history[0] to carry only the genesis entry, got %+v", tables[0])
	}

	// history[7] (index 7) has offsets 1,2,4 within range (7-1=6,7-2=5,7-4=3
	// all >= 0); 7-8=-1 lands exactly one before the start of a history that
	// begins at level 1, so genesis fills rank 3: 4 entries, ranks 0..3.
	if len(tables[7]) != 4 {
		t.Fatalf("expected 4 predecessor entries at index 7, got %d: %+v", len(tables[7]), tables[7])
	}
	if tables[7][3].Hash != genesis {
		t.Fatalf("expected rank 3 at index 7 to be genesis, got %+v", tables[7][3])
	}
	for rank, e := range tables[7] {
		if e.Rank != rank {
			t.Fatalf("expected contiguous ranks starting at 0, got %+v", tables[7])
		}
	}
	wantDist1 := headerHash(hasher, history[6].Header)
	if tables[7][0].Hash != wantDist1 {
		t.Fatalf("rank 0 should point at the immediate predecessor")
	}
}

func TestBuildPredecessorTablesNoGenesisSpecialCaseWhenNotAdjacent(t *testing.T) {
	hasher := hashing.Sha3Hasher{}
	genesis := chainhash.BlockHash{0xff}

	// history starting well above level 1: no genesis special case should
	// ever fire since oldestLevel != 1.
	history := []block.PrunedBlock{
		{Header: block.Header{Level: 100}},
		{Header: block.Header{Level: 101}},
	}
	tables := BuildPredecessorTables(hasher, history, genesis)
	for i, table := range tables {
		for _, e := range table {
			if e.Hash == genesis {
				t.Fatalf("unexpected genesis entry at index %d: %+v", i, table)
			}
		}
	}
}
