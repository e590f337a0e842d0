package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
	"github.com/cernak/tezos/storeio/memstore"
)

// seedLinearChain populates store with a linear chain of n blocks after
// genesis (levels 1..n), each referencing the previous by hash, and returns
// the hash of the last block.
func seedLinearChain(t *testing.T, hasher hashing.Hasher, store *fakeStore, genesis chainhash.BlockHash, n int32) chainhash.BlockHash {
	t.Helper()
	prev := genesis
	var last chainhash.BlockHash
	for level := int32(1); level <= n; level++ {
		h := block.Header{Level: level, Predecessor: prev, Context: chainhash.ContextHash{byte(level)}}
		hash := h.Hash(hasher)
		store.headers[hash] = h
		store.operations[hash] = []block.OperationPass{{PassIndex: 0}}
		store.contents[hash] = storeio.Contents{MaxOperationsTTL: 2}
		prev = hash
		last = hash
	}
	return last
}

func TestExportRollingTargetWritesFile(t *testing.T) {
	ctx := context.Background()
	hasher := hashing.Sha3Hasher{}
	store := newFakeStore()
	genesis := chainhash.BlockHash{0xaa}

	target := seedLinearChain(t, hasher, store, genesis, 5)

	deps := ExportDeps{
		Blocks:  store,
		Chain:   store,
		Context: memstore.New(hasher),
		Hasher:  hasher,
	}
	path := filepath.Join(t.TempDir(), "out.snap")
	err := Export(ctx, deps, ExportOptions{Filename: path, Block: &target, ExportRolling: true})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		t.Fatalf("expected output file to exist: %v", statErr)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty output file")
	}
}

func TestExportRejectsRollingNodeWithoutExportRolling(t *testing.T) {
	ctx := context.Background()
	hasher := hashing.Sha3Hasher{}
	store := newFakeStore()
	store.historyMode = block.Rolling
	store.modeKnown = true
	genesis := chainhash.BlockHash{0xaa}
	target := seedLinearChain(t, hasher, store, genesis, 3)

	deps := ExportDeps{Blocks: store, Chain: store, Context: memstore.New(hasher), Hasher: hasher}
	err := Export(ctx, deps, ExportOptions{Filename: filepath.Join(t.TempDir(), "out.snap"), Block: &target, ExportRolling: false})
	if err == nil {
		t.Fatalf("expected rolling-mode export without export_rolling to fail")
	}
	se, ok := err.(*Error)
	if !ok || se.Code != ErrWrongSnapshotExport {
		t.Fatalf("expected ErrWrongSnapshotExport, got %v", err)
	}
}

func TestExportFailsWhenTargetMissing(t *testing.T) {
	ctx := context.Background()
	hasher := hashing.Sha3Hasher{}
	store := newFakeStore()
	missing := chainhash.BlockHash{0x77}

	deps := ExportDeps{Blocks: store, Chain: store, Context: memstore.New(hasher), Hasher: hasher}
	err := Export(ctx, deps, ExportOptions{Filename: filepath.Join(t.TempDir(), "out.snap"), Block: &missing, ExportRolling: true})
	if err == nil {
		t.Fatalf("expected missing target to fail")
	}
	se, ok := err.(*Error)
	if !ok || se.Code != ErrWrongBlockExport {
		t.Fatalf("expected ErrWrongBlockExport, got %v", err)
	}
}

func TestExportDefaultsToCheckpoint(t *testing.T) {
	ctx := context.Background()
	hasher := hashing.Sha3Hasher{}
	store := newFakeStore()
	genesis := chainhash.BlockHash{0xaa}
	target := seedLinearChain(t, hasher, store, genesis, 4)
	store.checkpoint = store.headers[target]

	deps := ExportDeps{Blocks: store, Chain: store, Context: memstore.New(hasher), Hasher: hasher}
	path := filepath.Join(t.TempDir(), "out.snap")
	if err := Export(ctx, deps, ExportOptions{Filename: path, ExportRolling: true}); err != nil {
		t.Fatalf("Export with default target: %v", err)
	}
}
