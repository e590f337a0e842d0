package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
	"github.com/cernak/tezos/storeio/memstore"
)

// builtChain is a small chain built with the same validator the importer
// will later re-apply, so round-tripping it through Export then Import
// reproduces context hashes the validator itself would recompute.
type builtChain struct {
	genesisHeader block.Header
	genesisHash   chainhash.BlockHash
	headHash      chainhash.BlockHash
	source        *fakeStore
}

func buildAppliedChain(t *testing.T, hasher hashing.Hasher, n int32) builtChain {
	t.Helper()
	validator := memstore.NewValidator(hasher)
	ctx := context.Background()

	genesisHeader := block.Header{Level: 0, Context: chainhash.ContextHash{0xaa}}
	genesisHash := genesisHeader.Hash(hasher)

	store := newFakeStore()
	prevHeader := genesisHeader
	prevHash := genesisHash

	var headHash chainhash.BlockHash
	for level := int32(1); level <= n; level++ {
		op := []byte{byte(level)}
		ops := []block.OperationPass{{PassIndex: 0, Operations: [][]byte{op}}}
		opHash := chainhash.OperationHash(hasher.Sum256(op))
		passRoot := block.OperationListHashCompute(hasher, []chainhash.OperationHash{opHash})
		opsHash := block.OperationListListHashCompute(hasher, []chainhash.OperationListHash{passRoot})

		h := block.Header{
			Level:            level,
			Predecessor:      prevHash,
			ProtoLevel:       0,
			ValidationPasses: 1,
			OperationsHash:   opsHash,
		}
		res, err := validator.Apply(ctx, storeio.ApplyRequest{
			PredecessorHeader: prevHeader,
			BlockHeader:       h,
		})
		if err != nil {
			t.Fatalf("buildAppliedChain: Apply at level %d: %v", level, err)
		}
		h.Context = res.ContextHash

		hash := h.Hash(hasher)
		store.headers[hash] = h
		store.operations[hash] = ops
		store.contents[hash] = storeio.Contents{MaxOperationsTTL: 2}

		prevHeader = h
		prevHash = hash
		headHash = hash
	}

	return builtChain{genesisHeader: genesisHeader, genesisHash: genesisHash, headHash: headHash, source: store}
}

func TestImportRoundTrip(t *testing.T) {
	hasher := hashing.Sha3Hasher{}
	chain := buildAppliedChain(t, hasher, 3)

	exportDeps := ExportDeps{
		Blocks:  chain.source,
		Chain:   chain.source,
		Context: memstore.New(hasher),
		Hasher:  hasher,
	}
	snapPath := filepath.Join(t.TempDir(), "chain.snap")
	head := chain.headHash
	if err := Export(context.Background(), exportDeps, ExportOptions{Filename: snapPath, Block: &head, ExportRolling: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dest := newFakeStore()
	importDeps := ImportDeps{
		Blocks:    dest,
		Bulk:      dest,
		Chain:     dest,
		Context:   memstore.New(hasher),
		Validator: memstore.NewValidator(hasher),
		Hasher:    hasher,
		DirCleaner: func(string) error {
			return nil
		},
	}
	opts := ImportOptions{
		DataDir:       t.TempDir(),
		Filename:      snapPath,
		Genesis:       chainhash.ChainID{0x01},
		GenesisHeader: chain.genesisHeader,
		Reconstruct:   true,
	}
	if err := Import(context.Background(), importDeps, opts); err != nil {
		t.Fatalf("Import: %v", err)
	}

	gotHead, ok, err := dest.HeaderReadOpt(context.Background(), head)
	if err != nil {
		t.Fatalf("HeaderReadOpt: %v", err)
	}
	if !ok {
		t.Fatalf("expected head block to be persisted after import")
	}
	if gotHead.Level != 3 {
		t.Fatalf("expected imported head level 3, got %d", gotHead.Level)
	}

	curHead, err := dest.CurrentHead(context.Background())
	if err != nil {
		t.Fatalf("CurrentHead: %v", err)
	}
	if curHead != head {
		t.Fatalf("expected current_head to be the imported head, got %x", curHead)
	}

	mode, known, err := dest.HistoryMode(context.Background())
	if err != nil {
		t.Fatalf("HistoryMode: %v", err)
	}
	if !known || mode != block.Full {
		t.Fatalf("expected Full history mode after a full-depth import, got mode=%v known=%v", mode, known)
	}
}

func TestImportRejectsMismatchedExpectedBlock(t *testing.T) {
	hasher := hashing.Sha3Hasher{}
	chain := buildAppliedChain(t, hasher, 2)

	exportDeps := ExportDeps{Blocks: chain.source, Chain: chain.source, Context: memstore.New(hasher), Hasher: hasher}
	snapPath := filepath.Join(t.TempDir(), "chain.snap")
	head := chain.headHash
	if err := Export(context.Background(), exportDeps, ExportOptions{Filename: snapPath, Block: &head, ExportRolling: true}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dest := newFakeStore()
	importDeps := ImportDeps{
		Blocks:     dest,
		Bulk:       dest,
		Chain:      dest,
		Context:    memstore.New(hasher),
		Validator:  memstore.NewValidator(hasher),
		Hasher:     hasher,
		DirCleaner: func(string) error { return nil },
	}
	wrong := chainhash.BlockHash{0x55}
	opts := ImportOptions{
		DataDir:       t.TempDir(),
		Filename:      snapPath,
		Block:         &wrong,
		Genesis:       chainhash.ChainID{0x01},
		GenesisHeader: chain.genesisHeader,
	}
	err := Import(context.Background(), importDeps, opts)
	if err == nil {
		t.Fatalf("expected mismatched expected block to fail")
	}
	se, ok := err.(*Error)
	if !ok || se.Code != ErrInconsistentImportedBlock {
		t.Fatalf("expected ErrInconsistentImportedBlock, got %v", err)
	}
}
