package memstore

import (
	"context"

	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
)

// Validator is a development-only block validator. It performs no
// consensus validation at all (that is explicitly out of scope for this
// engine — spec Non-goals); it only derives a deterministic "resulting
// context hash" from the predecessor context and the block header, so the
// engine's import/reconstruct paths have something real to compare against
// block_data.header.context.
//
// A production deployment replaces this wholesale with a real validator
// that re-executes transactions against the previous state.
type Validator struct {
	hasher hashing.Hasher
}

// NewValidator returns a development Validator using hasher to derive
// resulting context hashes.
func NewValidator(hasher hashing.Hasher) *Validator {
	return &Validator{hasher: hasher}
}

// Apply implements storeio.Validator. The resulting context hash is
// Sum256(predecessor_context || operations_hash || proto_level ||
// validation_passes); other header fields do not affect it. This has no
// bearing on real state transition semantics, only on exercising the
// engine's context-hash consistency check end to end.
func (v *Validator) Apply(_ context.Context, req storeio.ApplyRequest) (storeio.ApplyResult, error) {
	predCtx := req.PredecessorHeader.Context
	buf := make([]byte, 0, 32+32+1+1)
	buf = append(buf, predCtx[:]...)
	buf = append(buf, req.BlockHeader.OperationsHash[:]...)
	buf = append(buf, req.BlockHeader.ProtoLevel, req.BlockHeader.ValidationPasses)
	resultHash := chainhash.ContextHash(v.hasher.Sum256(buf))

	return storeio.ApplyResult{
		ValidationResult: storeio.ValidationResult{
			Message:              "ok",
			MaxOperationsTTL:     req.MaxOperationsTTL,
			LastAllowedForkLevel: req.BlockHeader.Level,
		},
		ContextHash: resultHash,
	}, nil
}

var _ storeio.Validator = (*Validator)(nil)
