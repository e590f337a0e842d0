// Package snapshot implements the snapshot export/import engine: C1-C5 from
// the pruned-block iterator up through the importer/reconstructor. It is
// built entirely against the storeio contracts and never talks to a
// concrete store directly, so it can run against storeio/boltstore in
// production and storeio/memstore in tests.
package snapshot

import (
	"context"
	"fmt"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
)

// ExportDeps bundles the external collaborators the exporter is driven
// against.
type ExportDeps struct {
	Blocks  storeio.BlockStore
	Chain   storeio.ChainDataStore
	Context storeio.ContextStore
	Hasher  hashing.Hasher
	Logger  Logger
}

// ExportOptions is the CLI-level request described in spec §6.
type ExportOptions struct {
	Filename      string
	Block         *chainhash.BlockHash
	ExportRolling bool
}

// Export is C4: orchestrates export. It resolves the target block,
// computes the export depth limit per history mode, drives C1 via the
// context subsystem's DumpContexts, and logs success.
func Export(ctx context.Context, deps ExportDeps, opts ExportOptions) error {
	logger := deps.Logger
	if logger == nil {
		logger = NopLogger{}
	}

	mode, modeKnown, err := deps.Chain.HistoryMode(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: read history mode: %w", err)
	}
	if err := checkExportModeLegal(mode, modeKnown, opts.ExportRolling); err != nil {
		return err
	}

	targetHash, err := resolveExportTarget(ctx, deps, opts.Block)
	if err != nil {
		return err
	}

	targetHeader, ok, err := deps.Blocks.HeaderReadOpt(ctx, targetHash)
	if err != nil {
		return fmt.Errorf("snapshot: read target header: %w", err)
	}
	if !ok {
		return newErr(ErrWrongBlockExport, fmt.Sprintf("%s: CannotBeFound", chainhash.Hex(targetHash)))
	}
	predHeader, ok, err := deps.Blocks.HeaderReadOpt(ctx, targetHeader.Predecessor)
	if err != nil {
		return fmt.Errorf("snapshot: read predecessor header: %w", err)
	}
	if !ok {
		return newErr(ErrWrongBlockExport, fmt.Sprintf("%s: CannotBeFound", chainhash.Hex(targetHeader.Predecessor)))
	}
	operations, err := deps.Blocks.OperationsRead(ctx, targetHash)
	if err != nil {
		return fmt.Errorf("snapshot: read target operations: %w", err)
	}

	limit, err := computeExportLimit(ctx, deps, targetHash, targetHeader, opts.ExportRolling)
	if err != nil {
		return err
	}

	idx, err := deps.Context.Init(ctx, true)
	if err != nil {
		return fmt.Errorf("snapshot: init context index: %w", err)
	}
	defer func() { _ = idx.Close(ctx) }()

	it := newPrunedBlockIterator(ctx, deps.Blocks, deps.Hasher, limit)
	item := storeio.DumpWorkItem{
		PredecessorHeader: predHeader,
		BlockData:         block.Data{Header: targetHeader, Operations: operations},
		Iterator:          it,
		TargetHeader:      targetHeader,
	}
	if err := deps.Context.DumpContexts(ctx, idx, []storeio.DumpWorkItem{item}, opts.Filename); err != nil {
		return fmt.Errorf("snapshot: dump contexts: %w", err)
	}
	if it.Err() != nil {
		return it.Err()
	}

	logger.Printf("snapshot export of %s complete: %s", chainhash.Hex(targetHash), opts.Filename)
	return nil
}

// resolveExportTarget implements spec §4.4 step 3: if block is supplied,
// use it directly; otherwise fall back to the checkpoint, refusing a
// genesis-level checkpoint.
func resolveExportTarget(ctx context.Context, deps ExportDeps, requested *chainhash.BlockHash) (chainhash.BlockHash, error) {
	if requested != nil {
		return *requested, nil
	}
	cp, err := deps.Chain.Checkpoint(ctx)
	if err != nil {
		return chainhash.BlockHash{}, fmt.Errorf("snapshot: read checkpoint: %w", err)
	}
	if cp.Level == 0 {
		return chainhash.BlockHash{}, newErr(ErrWrongBlockExport, "checkpoint is genesis: TooFewPredecessors")
	}
	hash := cp.Hash(deps.Hasher)
	deps.logDefaultTarget(hash)
	return hash, nil
}

func (deps ExportDeps) logDefaultTarget(hash chainhash.BlockHash) {
	logger := deps.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	logger.Printf("no block requested; defaulting export target to checkpoint %s", chainhash.Hex(hash))
}

// computeExportLimit implements spec §4.4 step 5.
func computeExportLimit(ctx context.Context, deps ExportDeps, targetHash chainhash.BlockHash, targetHeader block.Header, exportRolling bool) (int32, error) {
	contents, ok, err := deps.Blocks.ContentsReadOpt(ctx, targetHash)
	if err != nil {
		return 0, fmt.Errorf("snapshot: read target contents: %w", err)
	}
	if !ok {
		return 0, newErr(ErrWrongBlockExport, fmt.Sprintf("%s: Pruned", chainhash.Hex(targetHash)))
	}

	if !exportRolling {
		cabooseLevel, _, err := deps.Chain.Caboose(ctx)
		if err != nil {
			return 0, fmt.Errorf("snapshot: read caboose: %w", err)
		}
		limit := cabooseLevel
		if limit < 1 {
			limit = 1
		}
		return limit, nil
	}

	limit := targetHeader.Level - contents.MaxOperationsTTL
	if limit <= 0 {
		return 0, newErr(ErrWrongBlockExport, "TooFewPredecessors")
	}
	return limit, nil
}
