package snapshot

import (
	"context"
	"fmt"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
)

// prunedBlockIterator is C1: a pull-based producer of (PrunedBlock,
// ProtocolData) pairs, closed over a read-only block store and a
// precomputed depth limit. The dump routine (storeio.ContextStore) drives
// it by repeatedly calling Step with the header it was just handed back.
type prunedBlockIterator struct {
	ctx    context.Context
	store  storeio.BlockStore
	hasher hashing.Hasher
	limit  int32
	err    error
}

// newPrunedBlockIterator returns the C1 iterator bound to limit: the
// lowest level still included in the exported range.
func newPrunedBlockIterator(ctx context.Context, store storeio.BlockStore, hasher hashing.Hasher, limit int32) *prunedBlockIterator {
	return &prunedBlockIterator{ctx: ctx, store: store, hasher: hasher, limit: limit}
}

// Step implements storeio.Iterator.
func (it *prunedBlockIterator) Step(header block.Header) (*block.PrunedBlock, *block.ProtocolData, bool) {
	if header.Level <= it.limit {
		proto := protocolDataFor(header)
		return nil, &proto, true
	}

	pred, ok, err := it.store.HeaderReadOpt(it.ctx, header.Predecessor)
	if err != nil || !ok {
		// §4.1: if pred.predecessor header is absent or pruned, fail.
		// The iterator interface has no error return, so callers that
		// need the failure surfaced must check Err() after
		// iteration terminates with ok==false and pruned==nil.
		it.err = wrapErr(ErrWrongBlockExport, fmt.Sprintf("predecessor header for %s absent or pruned", chainhash.Hex(header.Predecessor)), err)
		return nil, nil, false
	}

	ops, err := it.store.OperationsRead(it.ctx, header.Predecessor)
	if err != nil {
		it.err = wrapErr(ErrWrongBlockExport, fmt.Sprintf("operations for %s unreadable", chainhash.Hex(header.Predecessor)), err)
		return nil, nil, false
	}
	opHashesEntries, err := readOperationHashPasses(it.ctx, it.store, header.Predecessor, it.hasher, ops)
	if err != nil {
		it.err = err
		return nil, nil, false
	}

	pruned := block.PrunedBlock{
		Header:          pred,
		Operations:      ops,
		OperationHashes: opHashesEntries,
	}

	var proto *block.ProtocolData
	if header.ProtoLevel != pred.ProtoLevel {
		p := protocolDataFor(header)
		proto = &p
	}
	return &pruned, proto, true
}

// Err surfaces the last failure Step hit. Export checks it after
// DumpContexts returns; the dump routine itself does not call it.
func (it *prunedBlockIterator) Err() error { return it.err }

// readOperationHashPasses computes operation hashes by hashing each
// operation in ops. It does not read any operation hashes the store has
// recorded for the block.
func readOperationHashPasses(ctx context.Context, store storeio.BlockStore, hash chainhash.BlockHash, hasher hashing.Hasher, ops []block.OperationPass) ([]block.OperationHashPass, error) {
	out := make([]block.OperationHashPass, len(ops))
	for i, pass := range ops {
		hashes := make([]chainhash.OperationHash, len(pass.Operations))
		for j, op := range pass.Operations {
			hashes[j] = chainhash.OperationHash(hasher.Sum256(op))
		}
		out[i] = block.OperationHashPass{PassIndex: pass.PassIndex, Hashes: hashes}
	}
	return out, nil
}

// protocolDataFor produces the minimal protocol-data marker for header: the
// header's level and, as data key, the context hash the header commits to,
// which the importer later checks against that block's context. Author,
// timestamp, message, parents, test-chain status and protocol hash are left
// empty; the context subsystem's GetProtocolDataFromHeader is not consulted.
func protocolDataFor(header block.Header) block.ProtocolData {
	return block.ProtocolData{
		DataKey:       header.Context,
		ProtocolLevel: header.Level,
	}
}
