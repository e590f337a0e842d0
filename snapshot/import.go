package snapshot

import (
	"context"
	"fmt"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
)

// Bulk and reconstruction chunk bounds, per spec §4.5/§5. These are
// performance/memory tuning knobs, expressed as named constants rather than
// inline magic numbers.
const (
	bulkChunkSize        = 5000
	reconstructChunkSize = 1000
)

// ImportDeps bundles the external collaborators the importer is driven
// against.
type ImportDeps struct {
	Blocks     storeio.BlockStore
	Bulk       storeio.BulkStore
	Chain      storeio.ChainDataStore
	Context    storeio.ContextStore
	Validator  storeio.Validator
	Hasher     hashing.Hasher
	Logger     Logger
	DirCleaner storeio.DirCleaner
}

// ImportOptions is the CLI-level request described in spec §6. GenesisHeader
// carries genesis's well-known header (level 0, zero predecessor, and its
// already-committed context hash): it is needed both as the base case for
// C3's predecessor-hash chain and as the predecessor context checked out
// during level-0 reconstruction, even though genesis itself is never part
// of the imported history array.
type ImportOptions struct {
	DataDir       string
	Filename      string
	Block         *chainhash.BlockHash
	Genesis       chainhash.ChainID
	GenesisHeader block.Header
	Reconstruct   bool
}

// Import is C5: orchestrates import. It restores context, validates the
// head block, runs C3, stores pruned blocks transactionally via C2, advances
// chain metadata, and optionally reconstructs every context by re-applying
// blocks from genesis.
//
// The guarantee spec §4.5 demands of callers — data_dir must be empty at
// entry — is enforced at the storeio.BlockStore level: Import asserts that
// the snapshot's head block is not already present and panics if it is,
// treating the hit as a caller contract violation rather than a recoverable
// condition. Any error or panic after the placeholder history mode is set
// triggers DirCleaner before propagating; a panic is re-raised after cleanup.
func Import(ctx context.Context, deps ImportDeps, opts ImportOptions) (err error) {
	logger := deps.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	if err := deps.Chain.SetHistoryMode(ctx, block.Rolling); err != nil {
		return fmt.Errorf("snapshot: set placeholder history mode: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if deps.DirCleaner != nil {
				_ = deps.DirCleaner(opts.DataDir)
			}
			panic(r)
		}
		if err != nil && deps.DirCleaner != nil {
			if cleanErr := deps.DirCleaner(opts.DataDir); cleanErr != nil {
				err = fmt.Errorf("%w (cleanup also failed: %v)", err, cleanErr)
			}
		}
	}()

	idx, ierr := deps.Context.Init(ctx, false)
	if ierr != nil {
		return fmt.Errorf("snapshot: init context index: %w", ierr)
	}
	defer func() { _ = idx.Close(ctx) }()

	items, rerr := deps.Context.RestoreContexts(ctx, idx, opts.Filename)
	if rerr != nil {
		return fmt.Errorf("snapshot: restore contexts: %w", rerr)
	}

	genesisHash := opts.GenesisHeader.Hash(deps.Hasher)

	for _, item := range items {
		if ierr := importOne(ctx, deps, idx, opts, genesisHash, item, logger); ierr != nil {
			return ierr
		}
	}

	logger.Printf("snapshot import from %s complete", opts.Filename)
	return nil
}

func importOne(ctx context.Context, deps ImportDeps, idx storeio.ContextIndex, opts ImportOptions, genesisHash chainhash.BlockHash, item storeio.RestoredItem, logger Logger) error {
	blockHash := item.BlockData.Header.Hash(deps.Hasher)

	if opts.Block != nil {
		if *opts.Block != blockHash {
			return newErr(ErrInconsistentImportedBlock, fmt.Sprintf("expected=%s got=%s", chainhash.Hex(*opts.Block), chainhash.Hex(blockHash)))
		}
	} else {
		logger.Printf("no expected block supplied; importing snapshot head %s", chainhash.Hex(blockHash))
	}

	if _, known, err := deps.Blocks.HeaderReadOpt(ctx, blockHash); err != nil {
		return fmt.Errorf("snapshot: check existing block: %w", err)
	} else if known {
		panic(fmt.Sprintf("snapshot: data_dir is not empty: block %s already present", chainhash.Hex(blockHash)))
	}

	predContext, err := deps.Context.CheckoutExn(ctx, idx, item.PredecessorHeader.Context)
	if err != nil {
		return fmt.Errorf("snapshot: checkout predecessor context: %w", err)
	}

	applyResult, err := deps.Validator.Apply(ctx, storeio.ApplyRequest{
		ChainID: opts.Genesis,
		// The upstream source passes the predecessor's level, not its
		// max_operations_ttl, as this argument — an upper-bound hack,
		// since ttl <= level always holds. Replicated here to preserve
		// validator-observable behavior.
		MaxOperationsTTL:   item.PredecessorHeader.Level,
		PredecessorHeader:  item.PredecessorHeader,
		PredecessorContext: predContext,
		BlockHeader:        item.BlockData.Header,
		Operations:         item.BlockData.Operations,
	})
	if err != nil {
		return fmt.Errorf("snapshot: apply head block: %w", err)
	}
	if applyResult.ContextHash != item.BlockData.Header.Context {
		return newErr(ErrSnapshotImportFailure, "resulting context hash does not match")
	}

	history := reverseAndTag(deps.Hasher, item.OldBlocksNewestFirst)

	// CheckHistoryConsistency requires oldest-to-newest input (it reads
	// history[len-1] as the entry adjacent to the head); history was just
	// built in that order above, so feed it that, not the raw
	// newest-first item.OldBlocksNewestFirst.
	if err := CheckHistoryConsistency(deps.Hasher, item.BlockData.Header, historyPrunedBlocks(history), genesisHash, func(n int) {
		logger.Printf("history consistency check: %d blocks verified", n)
	}); err != nil {
		return err
	}

	mode := resultingImportMode(history[0].pruned.Header.Level)
	if err := deps.Chain.SetHistoryMode(ctx, mode); err != nil {
		return fmt.Errorf("snapshot: set history mode: %w", err)
	}

	if err := importProtocolData(ctx, deps, idx, history, item.ProtocolDataList); err != nil {
		return err
	}

	if err := persistHistoryBulk(ctx, deps, history); err != nil {
		return err
	}

	if err := storeHeadAndAdvanceChainData(ctx, deps, item, blockHash, history, genesisHash, applyResult); err != nil {
		return err
	}

	if opts.Reconstruct {
		if history[0].pruned.Header.Level != 1 {
			return newErr(ErrWrongReconstructMode, "reconstruction requires a Full snapshot")
		}
		if err := reconstructContexts(ctx, deps, history, opts.Genesis, opts.GenesisHeader, logger); err != nil {
			return err
		}
	}

	return nil
}

// historyEntry tags a PrunedBlock with its own header hash, computed once
// up front since it is referenced repeatedly below.
type historyEntry struct {
	hash   chainhash.BlockHash
	pruned block.PrunedBlock
}

// reverseAndTag implements spec §4.5 step 4.6: building history by reversing
// old_blocks_newest_first into oldest-to-newest order and tagging each entry
// with its header hash.
func reverseAndTag(hasher hashing.Hasher, newestFirst []block.PrunedBlock) []historyEntry {
	out := make([]historyEntry, len(newestFirst))
	n := len(newestFirst)
	for i, pb := range newestFirst {
		out[n-1-i] = historyEntry{hash: pb.Header.Hash(hasher), pruned: pb}
	}
	return out
}

// historyPrunedBlocks strips the precomputed hash tag back off, recovering
// the oldest-to-newest []block.PrunedBlock view CheckHistoryConsistency and
// BuildPredecessorTables are defined against.
func historyPrunedBlocks(history []historyEntry) []block.PrunedBlock {
	out := make([]block.PrunedBlock, len(history))
	for i, e := range history {
		out[i] = e.pruned
	}
	return out
}

func importProtocolData(ctx context.Context, deps ImportDeps, idx storeio.ContextIndex, history []historyEntry, protocolData []block.ProtocolData) error {
	if len(history) == 0 {
		return nil
	}
	base := history[0].pruned.Header.Level
	for _, pd := range protocolData {
		i := int(pd.ProtocolLevel - base)
		if i < 0 || i >= len(history) {
			return fmt.Errorf("snapshot: protocol data level %d out of history range", pd.ProtocolLevel)
		}
		entry := history[i]
		ok, err := deps.Context.ValidateContextHashConsistencyAndCommit(ctx, idx, storeio.ProtocolCommitRequest{
			Author:              pd.Info.Author,
			Timestamp:           pd.Info.Timestamp,
			Message:             pd.Info.Message,
			DataKey:             pd.DataKey,
			Parents:             pd.Parents,
			ExpectedContextHash: entry.pruned.Header.Context,
			TestChain:           pd.TestChainStatus,
			ProtocolHash:        pd.ProtocolHash,
		})
		if err != nil {
			return fmt.Errorf("snapshot: validate protocol data: %w", err)
		}
		if !ok {
			return newErr(ErrWrongProtocolHash, chainhash.Hex(pd.ProtocolHash))
		}
		if err := deps.Chain.SetProtocolAt(ctx, int32(entry.pruned.Header.ProtoLevel), pd.ProtocolHash); err != nil {
			return fmt.Errorf("snapshot: record protocol hash: %w", err)
		}
	}
	return nil
}

// persistHistoryBulk is C5a: walks history in ascending order inside
// bounded atomic write scopes, committing roughly every bulkChunkSize
// entries.
func persistHistoryBulk(ctx context.Context, deps ImportDeps, history []historyEntry) error {
	tables := buildPredecessorTablesFromEntries(deps.Hasher, history)

	for start := 0; start < len(history); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(history) {
			end = len(history)
		}
		chunk := make([]storeio.BulkEntry, 0, end-start)
		for i := start; i < end; i++ {
			e := history[i]
			chunk = append(chunk, storeio.BulkEntry{
				Hash:            e.hash,
				Header:          e.pruned.Header,
				Operations:      e.pruned.Operations,
				OperationHashes: e.pruned.OperationHashes,
				Predecessors:    tables[i],
			})
		}
		if err := deps.Bulk.PutBulk(ctx, chunk); err != nil {
			return fmt.Errorf("snapshot: persist history chunk [%d:%d): %w", start, end, err)
		}
	}
	return nil
}

func buildPredecessorTablesFromEntries(hasher hashing.Hasher, history []historyEntry) [][]storeio.PredecessorEntry {
	var genesis chainhash.BlockHash
	if len(history) > 0 && history[0].pruned.Header.Level == 1 {
		genesis = history[0].pruned.Header.Predecessor
	}
	return BuildPredecessorTables(hasher, historyPrunedBlocks(history), genesis)
}

// storeHeadAndAdvanceChainData implements spec §4.5 steps 4.11-4.12.
func storeHeadAndAdvanceChainData(ctx context.Context, deps ImportDeps, item storeio.RestoredItem, blockHash chainhash.BlockHash, history []historyEntry, genesisHash chainhash.BlockHash, applyResult storeio.ApplyResult) error {
	if err := deps.Blocks.HeaderStore(ctx, blockHash, item.BlockData.Header); err != nil {
		return fmt.Errorf("snapshot: store head header: %w", err)
	}
	if err := deps.Blocks.OperationsStore(ctx, blockHash, item.BlockData.Operations); err != nil {
		return fmt.Errorf("snapshot: store head operations: %w", err)
	}
	if err := deps.Blocks.BlockMetadataStore(ctx, blockHash, applyResult.BlockMetadata); err != nil {
		return fmt.Errorf("snapshot: store head block metadata: %w", err)
	}
	if err := deps.Blocks.OpsMetadataStore(ctx, blockHash, applyResult.OpsMetadata); err != nil {
		return fmt.Errorf("snapshot: store head ops metadata: %w", err)
	}
	if err := deps.Blocks.ValidationRecordStore(ctx, blockHash, storeio.ValidationRecord{
		ContextHash:          applyResult.ContextHash,
		Message:              applyResult.ValidationResult.Message,
		MaxOperationsTTL:     applyResult.ValidationResult.MaxOperationsTTL,
		LastAllowedForkLevel: applyResult.ValidationResult.LastAllowedForkLevel,
		ForkingTestchain:     applyResult.ForkingTestchain,
	}); err != nil {
		return fmt.Errorf("snapshot: store head validation record: %w", err)
	}

	if err := deps.Chain.RemoveKnownHead(ctx, genesisHash); err != nil {
		return fmt.Errorf("snapshot: remove genesis known head: %w", err)
	}
	if err := deps.Chain.AddKnownHead(ctx, blockHash); err != nil {
		return fmt.Errorf("snapshot: add new known head: %w", err)
	}
	if err := deps.Chain.SetCurrentHead(ctx, blockHash); err != nil {
		return fmt.Errorf("snapshot: set current head: %w", err)
	}

	if err := deps.Chain.SetCheckpoint(ctx, item.BlockData.Header); err != nil {
		return fmt.Errorf("snapshot: advance checkpoint: %w", err)
	}
	if err := deps.Chain.SetSavePoint(ctx, item.BlockData.Header.Level, blockHash); err != nil {
		return fmt.Errorf("snapshot: advance save point: %w", err)
	}

	oldest := history[0]
	cabooseLevel := oldest.pruned.Header.Level
	cabooseHash := oldest.hash
	if cabooseLevel == 1 {
		cabooseLevel = 0
		cabooseHash = genesisHash
	}

	if bound := item.BlockData.Header.Level - applyResult.ValidationResult.MaxOperationsTTL; cabooseLevel > bound {
		return newErr(ErrCabooseExceedsHistoryBound, fmt.Sprintf("caboose.level=%d target.level=%d max_operations_ttl=%d", cabooseLevel, item.BlockData.Header.Level, applyResult.ValidationResult.MaxOperationsTTL))
	}

	if err := deps.Chain.SetCaboose(ctx, cabooseLevel, cabooseHash); err != nil {
		return fmt.Errorf("snapshot: advance caboose: %w", err)
	}
	return nil
}

// reconstructContexts is C5b: for level 0..n-1, re-applies each block
// against its predecessor's context, verifying the resulting context hash,
// reporting progress every step and noting chunk boundaries every
// reconstructChunkSize levels.
func reconstructContexts(ctx context.Context, deps ImportDeps, history []historyEntry, chainID chainhash.ChainID, genesisHeader block.Header, logger Logger) error {
	idx, err := deps.Context.Init(ctx, false)
	if err != nil {
		return fmt.Errorf("snapshot: init context index for reconstruction: %w", err)
	}
	defer func() { _ = idx.Close(ctx) }()

	for level := 0; level < len(history); level++ {
		header := history[level].pruned.Header

		predecessorHeader := genesisHeader
		if level > 0 {
			predecessorHeader = history[level-1].pruned.Header
		}

		predContext, err := deps.Context.CheckoutExn(ctx, idx, predecessorHeader.Context)
		if err != nil {
			return fmt.Errorf("snapshot: reconstruct: checkout predecessor context at level %d: %w", level, err)
		}

		result, err := deps.Validator.Apply(ctx, storeio.ApplyRequest{
			ChainID: chainID,
			// Same predecessor-level-as-ttl replication as importOne.
			MaxOperationsTTL:   predecessorHeader.Level,
			PredecessorHeader:  predecessorHeader,
			PredecessorContext: predContext,
			BlockHeader:        header,
			Operations:         history[level].pruned.Operations,
		})
		if err != nil {
			return fmt.Errorf("snapshot: reconstruct: apply at level %d: %w", level, err)
		}
		if result.ContextHash != header.Context {
			return newErr(ErrSnapshotImportFailure, fmt.Sprintf("reconstruction context mismatch at level %d", level))
		}

		logger.Printf("reconstruct: level %d context verified", level)
		// Chunk boundaries fall on (level+1) % 1000 == 0, explicitly: the
		// upstream source's "level + 1 mod 1000 == 0" is never true under
		// standard operator precedence (it parses as level + (1 mod 1000),
		// i.e. level+1, which never equals 0 for level >= 0), so this is a
		// deliberate departure rather than a literal port. Reconstruction
		// writes nothing to the block store and opens no write scope, so a
		// boundary is only logged; nothing is committed there.
		if (level+1)%reconstructChunkSize == 0 {
			logger.Printf("reconstruct: reached chunk boundary at level %d", level)
		}
	}
	return nil
}
