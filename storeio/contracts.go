// Package storeio declares the external collaborator contracts the snapshot
// engine is built against: the context (Merkle state) subsystem, the
// block/operation key-value store, the chain-data store, and the block
// validator. None of these are implemented by this package — it only
// declares the seams. Concrete implementations live in storeio/boltstore
// (block + chain-data store, backed by bbolt) and storeio/memstore
// (development-only context store and validator).
package storeio

import (
	"context"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
)

// ContextIndex is an open handle to the context subsystem, returned by
// ContextStore.Init and consumed by every other context operation.
type ContextIndex interface {
	Close(ctx context.Context) error
}

// DumpWorkItem is one unit of work handed to ContextStore.DumpContexts: the
// head block's predecessor header, the head block's full data, and the
// iterator the dump routine drives until it signals termination.
type DumpWorkItem struct {
	PredecessorHeader block.Header
	BlockData         block.Data
	Iterator          Iterator
	TargetHeader      block.Header
}

// RestoredItem is one unit of work produced by ContextStore.RestoreContexts:
// the mirror image of DumpWorkItem, with old_blocks delivered exactly as the
// wire format carries them — newest first.
type RestoredItem struct {
	PredecessorHeader block.Header
	BlockData         block.Data
	OldBlocksNewestFirst []block.PrunedBlock
	ProtocolDataList     []block.ProtocolData
}

// Iterator is the pull-based producer C1 implements: the context subsystem
// calls Step repeatedly, feeding back each returned header's predecessor,
// until pruned comes back nil.
type Iterator interface {
	// Step evaluates one iteration given the current header. Normal
	// termination (the export limit reached) returns a nil pruned block
	// with ok still true; ok is false only on a hard failure, in which
	// case callers should surface the iterator's own error (if it exposes
	// one) rather than treating the nil result as a clean stop. Either way,
	// once pruned comes back nil, callers must stop calling Step.
	Step(header block.Header) (pruned *block.PrunedBlock, proto *block.ProtocolData, ok bool)
}

// ContextStore is the context (authenticated state tree) subsystem contract.
// Its wire format is opaque to the engine; implementations own dump/restore
// framing entirely.
type ContextStore interface {
	Init(ctx context.Context, readonly bool) (ContextIndex, error)
	GetProtocolDataFromHeader(ctx context.Context, idx ContextIndex, header block.Header) (block.ProtocolData, error)
	DumpContexts(ctx context.Context, idx ContextIndex, items []DumpWorkItem, filename string) error
	RestoreContexts(ctx context.Context, idx ContextIndex, filename string) ([]RestoredItem, error)
	CheckoutExn(ctx context.Context, idx ContextIndex, hash chainhash.ContextHash) (Context, error)
	ValidateContextHashConsistencyAndCommit(ctx context.Context, idx ContextIndex, req ProtocolCommitRequest) (bool, error)
}

// Context is an opaque checked-out state tree handle.
type Context interface {
	Hash() chainhash.ContextHash
}

// ProtocolCommitRequest bundles the arguments to
// ValidateContextHashConsistencyAndCommit; it exists only to keep that
// call's signature from sprawling across eight positional parameters.
type ProtocolCommitRequest struct {
	Author              string
	Timestamp            []byte
	Message              string
	DataKey              chainhash.ContextHash
	Parents              []chainhash.ContextHash
	ExpectedContextHash  chainhash.ContextHash
	TestChain            []byte
	ProtocolHash         chainhash.ProtocolHash
}

// BlockStore is the block/operation key-value store contract, keyed by
// block hash.
type BlockStore interface {
	HeaderRead(ctx context.Context, hash chainhash.BlockHash) (block.Header, error)
	HeaderReadOpt(ctx context.Context, hash chainhash.BlockHash) (block.Header, bool, error)
	HeaderStore(ctx context.Context, hash chainhash.BlockHash, header block.Header) error

	ContentsReadOpt(ctx context.Context, hash chainhash.BlockHash) (Contents, bool, error)
	ContentsKnown(ctx context.Context, hash chainhash.BlockHash) (bool, error)

	OperationsRead(ctx context.Context, hash chainhash.BlockHash) ([]block.OperationPass, error)
	OperationsStore(ctx context.Context, hash chainhash.BlockHash, ops []block.OperationPass) error
	OperationsBindings(ctx context.Context) ([]chainhash.BlockHash, error)

	OperationHashesStore(ctx context.Context, hash chainhash.BlockHash, hashes []block.OperationHashPass) error
	OperationHashesBindings(ctx context.Context) ([]chainhash.BlockHash, error)

	PredecessorsRead(ctx context.Context, hash chainhash.BlockHash) ([]PredecessorEntry, error)
	PredecessorsStore(ctx context.Context, hash chainhash.BlockHash, entries []PredecessorEntry) error

	// BlockMetadataStore and OpsMetadataStore persist the validator's two
	// opaque result blobs (spec §4.5 step 4.11), alongside the header and
	// operations this engine already understands.
	BlockMetadataStore(ctx context.Context, hash chainhash.BlockHash, metadata []byte) error
	OpsMetadataStore(ctx context.Context, hash chainhash.BlockHash, metadata []byte) error

	// ValidationRecordStore persists the validation-store record spec §4.5
	// step 4.11 requires alongside a newly-stored head.
	ValidationRecordStore(ctx context.Context, hash chainhash.BlockHash, record ValidationRecord) error
}

// ValidationRecord is the validation-store record spec §4.5 step 4.11
// requires alongside the stored head: the validator's resulting context
// hash, its free-form message, the ttl/fork-level bounds it reported, and
// whether it asked for a test-chain fork.
type ValidationRecord struct {
	ContextHash          chainhash.ContextHash
	Message              string
	MaxOperationsTTL     int32
	LastAllowedForkLevel int32
	ForkingTestchain     bool
}

// Contents exposes the per-block metadata the export path needs without
// pulling in the full validator-facing block-metadata type.
type Contents struct {
	MaxOperationsTTL int32
}

// PredecessorEntry is one (rank, ancestor hash) row in a block's
// rank-indexed skip-list, as built by the C2 predecessor-table builder.
type PredecessorEntry struct {
	Rank int
	Hash chainhash.BlockHash
}

// ChainDataStore is the contract for the chain-wide mutable cells: named
// cells in a transactional key-value interface, never process-global state.
type ChainDataStore interface {
	Checkpoint(ctx context.Context) (block.Header, error)
	SetCheckpoint(ctx context.Context, header block.Header) error

	SavePoint(ctx context.Context) (level int32, hash chainhash.BlockHash, err error)
	SetSavePoint(ctx context.Context, level int32, hash chainhash.BlockHash) error

	Caboose(ctx context.Context) (level int32, hash chainhash.BlockHash, err error)
	SetCaboose(ctx context.Context, level int32, hash chainhash.BlockHash) error

	KnownHeads(ctx context.Context) ([]chainhash.BlockHash, error)
	AddKnownHead(ctx context.Context, hash chainhash.BlockHash) error
	RemoveKnownHead(ctx context.Context, hash chainhash.BlockHash) error

	CurrentHead(ctx context.Context) (chainhash.BlockHash, error)
	SetCurrentHead(ctx context.Context, hash chainhash.BlockHash) error

	InMainBranchSuccessor(ctx context.Context, predecessor chainhash.BlockHash) (chainhash.BlockHash, bool, error)
	SetInMainBranch(ctx context.Context, predecessor, successor chainhash.BlockHash) error

	// HistoryMode is the configuration cell described in spec §6.
	HistoryMode(ctx context.Context) (block.HistoryMode, bool, error)
	SetHistoryMode(ctx context.Context, mode block.HistoryMode) error

	// SetProtocolAt records the protocol hash active at a given proto_level,
	// as committed during C5 step 4.9.
	SetProtocolAt(ctx context.Context, protoLevel int32, hash chainhash.ProtocolHash) error
}

// ValidationResult is the validator's verdict on one block application.
type ValidationResult struct {
	Message               string
	MaxOperationsTTL       int32
	LastAllowedForkLevel   int32
}

// ApplyRequest bundles the validator's inputs; see Validator.Apply.
type ApplyRequest struct {
	ChainID            chainhash.ChainID
	MaxOperationsTTL   int32
	PredecessorHeader  block.Header
	PredecessorContext Context
	BlockHeader        block.Header
	Operations         []block.OperationPass
}

// ApplyResult bundles everything the validator returns from one Apply call.
type ApplyResult struct {
	ValidationResult  ValidationResult
	BlockMetadata     []byte
	OpsMetadata       []byte
	ForkingTestchain  bool
	ContextHash       chainhash.ContextHash
}

// Validator is the external block-application contract: it re-executes a
// block against a predecessor context and reports the resulting context
// hash. This engine never validates consensus itself; it only checks the
// validator's reported context hash against the header's declared one.
type Validator interface {
	Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error)
}

// BulkEntry is one history record the importer persists atomically during
// C5a: a header, its operations and operation hashes, and the predecessor
// table C2 built for it.
type BulkEntry struct {
	Hash            chainhash.BlockHash
	Header          block.Header
	Operations      []block.OperationPass
	OperationHashes []block.OperationHashPass
	Predecessors    []PredecessorEntry
}

// BulkStore is the bounded-transaction bulk-write seam C5a needs: callers
// chunk their input (spec §4.5 C5a's ~5000-entries-per-commit bound) and
// call PutBulk once per chunk, each call mapping onto one atomic write
// scope in the underlying store.
type BulkStore interface {
	PutBulk(ctx context.Context, entries []BulkEntry) error
}

// DirCleaner purges partially-written state from a data directory after a
// failed import, so the importer can re-raise without leaving a corrupt
// on-disk chain behind.
type DirCleaner func(dataDir string) error

// PatchContext optionally transforms a checked-out context before use; a
// no-op by default.
type PatchContext func(ctx context.Context, c Context) (Context, error)
