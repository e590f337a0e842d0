package snapshot

import (
	"context"
	"fmt"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/storeio"
)

// fakeStore is an in-memory test double implementing storeio.BlockStore,
// storeio.ChainDataStore and storeio.BulkStore together, the same way
// boltstore.Store implements all three against one bbolt handle. It exists
// only so export/import orchestration tests can exercise the full flow
// without a real bbolt file.
type fakeStore struct {
	headers           map[chainhash.BlockHash]block.Header
	contents          map[chainhash.BlockHash]storeio.Contents
	operations        map[chainhash.BlockHash][]block.OperationPass
	opHashes          map[chainhash.BlockHash][]block.OperationHashPass
	predecessors      map[chainhash.BlockHash][]storeio.PredecessorEntry
	blockMetadata     map[chainhash.BlockHash][]byte
	opsMetadata       map[chainhash.BlockHash][]byte
	validationRecords map[chainhash.BlockHash]storeio.ValidationRecord

	checkpoint    block.Header
	savePointLvl  int32
	savePointHash chainhash.BlockHash
	cabooseLvl    int32
	cabooseHash   chainhash.BlockHash
	knownHeads    map[chainhash.BlockHash]bool
	currentHead   chainhash.BlockHash
	mainBranch    map[chainhash.BlockHash]chainhash.BlockHash
	historyMode   block.HistoryMode
	modeKnown     bool
	protocolAt    map[int32]chainhash.ProtocolHash
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		headers:           map[chainhash.BlockHash]block.Header{},
		contents:          map[chainhash.BlockHash]storeio.Contents{},
		operations:        map[chainhash.BlockHash][]block.OperationPass{},
		opHashes:          map[chainhash.BlockHash][]block.OperationHashPass{},
		predecessors:      map[chainhash.BlockHash][]storeio.PredecessorEntry{},
		blockMetadata:     map[chainhash.BlockHash][]byte{},
		opsMetadata:       map[chainhash.BlockHash][]byte{},
		validationRecords: map[chainhash.BlockHash]storeio.ValidationRecord{},
		knownHeads:        map[chainhash.BlockHash]bool{},
		mainBranch:        map[chainhash.BlockHash]chainhash.BlockHash{},
		protocolAt:        map[int32]chainhash.ProtocolHash{},
	}
}

// --- BlockStore ---

func (f *fakeStore) HeaderRead(_ context.Context, hash chainhash.BlockHash) (block.Header, error) {
	h, ok := f.headers[hash]
	if !ok {
		return block.Header{}, fmt.Errorf("fakeStore: header %s not found", chainhash.Hex(hash))
	}
	return h, nil
}

func (f *fakeStore) HeaderReadOpt(_ context.Context, hash chainhash.BlockHash) (block.Header, bool, error) {
	h, ok := f.headers[hash]
	return h, ok, nil
}

func (f *fakeStore) HeaderStore(_ context.Context, hash chainhash.BlockHash, header block.Header) error {
	f.headers[hash] = header
	return nil
}

func (f *fakeStore) ContentsReadOpt(_ context.Context, hash chainhash.BlockHash) (storeio.Contents, bool, error) {
	c, ok := f.contents[hash]
	return c, ok, nil
}

func (f *fakeStore) ContentsKnown(_ context.Context, hash chainhash.BlockHash) (bool, error) {
	_, ok := f.contents[hash]
	return ok, nil
}

func (f *fakeStore) OperationsRead(_ context.Context, hash chainhash.BlockHash) ([]block.OperationPass, error) {
	ops, ok := f.operations[hash]
	if !ok {
		return nil, fmt.Errorf("fakeStore: operations for %s not found", chainhash.Hex(hash))
	}
	return ops, nil
}

func (f *fakeStore) OperationsStore(_ context.Context, hash chainhash.BlockHash, ops []block.OperationPass) error {
	f.operations[hash] = ops
	return nil
}

func (f *fakeStore) OperationsBindings(_ context.Context) ([]chainhash.BlockHash, error) {
	out := make([]chainhash.BlockHash, 0, len(f.operations))
	for k := range f.operations {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeStore) OperationHashesStore(_ context.Context, hash chainhash.BlockHash, hashes []block.OperationHashPass) error {
	f.opHashes[hash] = hashes
	return nil
}

func (f *fakeStore) OperationHashesBindings(_ context.Context) ([]chainhash.BlockHash, error) {
	out := make([]chainhash.BlockHash, 0, len(f.opHashes))
	for k := range f.opHashes {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeStore) PredecessorsRead(_ context.Context, hash chainhash.BlockHash) ([]storeio.PredecessorEntry, error) {
	return f.predecessors[hash], nil
}

func (f *fakeStore) PredecessorsStore(_ context.Context, hash chainhash.BlockHash, entries []storeio.PredecessorEntry) error {
	f.predecessors[hash] = entries
	return nil
}

func (f *fakeStore) BlockMetadataStore(_ context.Context, hash chainhash.BlockHash, metadata []byte) error {
	f.blockMetadata[hash] = metadata
	return nil
}

func (f *fakeStore) OpsMetadataStore(_ context.Context, hash chainhash.BlockHash, metadata []byte) error {
	f.opsMetadata[hash] = metadata
	return nil
}

func (f *fakeStore) ValidationRecordStore(_ context.Context, hash chainhash.BlockHash, record storeio.ValidationRecord) error {
	f.validationRecords[hash] = record
	return nil
}

// --- ChainDataStore ---

func (f *fakeStore) Checkpoint(_ context.Context) (block.Header, error) { return f.checkpoint, nil }
func (f *fakeStore) SetCheckpoint(_ context.Context, header block.Header) error {
	f.checkpoint = header
	return nil
}

func (f *fakeStore) SavePoint(_ context.Context) (int32, chainhash.BlockHash, error) {
	return f.savePointLvl, f.savePointHash, nil
}
func (f *fakeStore) SetSavePoint(_ context.Context, level int32, hash chainhash.BlockHash) error {
	f.savePointLvl, f.savePointHash = level, hash
	return nil
}

func (f *fakeStore) Caboose(_ context.Context) (int32, chainhash.BlockHash, error) {
	return f.cabooseLvl, f.cabooseHash, nil
}
func (f *fakeStore) SetCaboose(_ context.Context, level int32, hash chainhash.BlockHash) error {
	f.cabooseLvl, f.cabooseHash = level, hash
	return nil
}

func (f *fakeStore) KnownHeads(_ context.Context) ([]chainhash.BlockHash, error) {
	out := make([]chainhash.BlockHash, 0, len(f.knownHeads))
	for h := range f.knownHeads {
		out = append(out, h)
	}
	return out, nil
}
func (f *fakeStore) AddKnownHead(_ context.Context, hash chainhash.BlockHash) error {
	f.knownHeads[hash] = true
	return nil
}
func (f *fakeStore) RemoveKnownHead(_ context.Context, hash chainhash.BlockHash) error {
	delete(f.knownHeads, hash)
	return nil
}

func (f *fakeStore) CurrentHead(_ context.Context) (chainhash.BlockHash, error) { return f.currentHead, nil }
func (f *fakeStore) SetCurrentHead(_ context.Context, hash chainhash.BlockHash) error {
	f.currentHead = hash
	return nil
}

func (f *fakeStore) InMainBranchSuccessor(_ context.Context, predecessor chainhash.BlockHash) (chainhash.BlockHash, bool, error) {
	succ, ok := f.mainBranch[predecessor]
	return succ, ok, nil
}
func (f *fakeStore) SetInMainBranch(_ context.Context, predecessor, successor chainhash.BlockHash) error {
	f.mainBranch[predecessor] = successor
	return nil
}

func (f *fakeStore) HistoryMode(_ context.Context) (block.HistoryMode, bool, error) {
	return f.historyMode, f.modeKnown, nil
}
func (f *fakeStore) SetHistoryMode(_ context.Context, mode block.HistoryMode) error {
	f.historyMode, f.modeKnown = mode, true
	return nil
}

func (f *fakeStore) SetProtocolAt(_ context.Context, protoLevel int32, hash chainhash.ProtocolHash) error {
	f.protocolAt[protoLevel] = hash
	return nil
}

// --- BulkStore ---

func (f *fakeStore) PutBulk(_ context.Context, entries []storeio.BulkEntry) error {
	for _, e := range entries {
		f.headers[e.Hash] = e.Header
		f.operations[e.Hash] = e.Operations
		f.opHashes[e.Hash] = e.OperationHashes
		f.predecessors[e.Hash] = e.Predecessors
		for _, p := range e.Predecessors {
			if p.Rank == 0 {
				f.mainBranch[p.Hash] = e.Hash
				break
			}
		}
	}
	return nil
}

var (
	_ storeio.BlockStore     = (*fakeStore)(nil)
	_ storeio.ChainDataStore = (*fakeStore)(nil)
	_ storeio.BulkStore      = (*fakeStore)(nil)
)
