package snapshot

import (
	"fmt"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
)

// progressEvery is how often check_history_consistency reports progress,
// per spec §4.3.
const progressEvery = 1000

// CheckOperationsConsistency is C3's first routine: for each pass, verifies
// every operation hashes to its recorded expected hash, then verifies the
// aggregate operation-list-list root matches the header's declared one.
//
// A per-operation hash mismatch is a programming-level invariant violation
// (the pruned record's own internal bookkeeping is wrong) and fails hard
// with a plain error rather than one of the engine's operator-facing error
// kinds; only the aggregate Merkle mismatch is reported as
// InconsistentOperationHashes, since that is the one a tampered snapshot
// can actually trigger.
func CheckOperationsConsistency(hasher hashing.Hasher, pb block.PrunedBlock) error {
	if len(pb.Operations) != len(pb.OperationHashes) {
		return fmt.Errorf("snapshot: pruned block has %d operation passes but %d hash passes", len(pb.Operations), len(pb.OperationHashes))
	}
	for i, pass := range pb.Operations {
		hashPass := pb.OperationHashes[i]
		if len(pass.Operations) != len(hashPass.Hashes) {
			return fmt.Errorf("snapshot: pass %d has %d operations but %d hashes", i, len(pass.Operations), len(hashPass.Hashes))
		}
		for j, op := range pass.Operations {
			got := chainhash.OperationHash(hasher.Sum256(op))
			if got != hashPass.Hashes[j] {
				return fmt.Errorf("snapshot: pass %d operation %d hash mismatch: got=%s want=%s", i, j, chainhash.Hex(got), chainhash.Hex(hashPass.Hashes[j]))
			}
		}
	}

	// Operations are stored newest-pass-first in the pruned record; the
	// Merkle tree is defined oldest-first, so reverse before hashing.
	passRoots := make([]chainhash.OperationListHash, len(pb.OperationHashes))
	for i := range pb.OperationHashes {
		reversed := pb.OperationHashes[len(pb.OperationHashes)-1-i]
		passRoots[i] = block.OperationListHashCompute(hasher, reversed.Hashes)
	}
	observed := block.OperationListListHashCompute(hasher, passRoots)
	if observed != pb.Header.OperationsHash {
		return newErr(ErrInconsistentOperationHashes, fmt.Sprintf("observed=%s expected=%s", chainhash.Hex(observed), chainhash.Hex(pb.Header.OperationsHash)))
	}
	return nil
}

// CheckHistoryConsistency is C3's second routine: verifies the head's
// predecessor link, the chain's predecessor-hash linkage throughout
// history, and the genesis boundary condition, while running
// CheckOperationsConsistency over every entry. progress is called roughly
// every 1000 blocks, matching the spec's progress-reporting cadence.
func CheckHistoryConsistency(hasher hashing.Hasher, headHeader block.Header, history []block.PrunedBlock, genesis chainhash.BlockHash, progress func(n int)) error {
	if len(history) == 0 {
		return fmt.Errorf("snapshot: empty history")
	}
	last := history[len(history)-1]
	lastHash := headerHash(hasher, last.Header)
	if headHeader.Predecessor != lastHash {
		return fmt.Errorf("snapshot: head predecessor %s does not match history tail %s", chainhash.Hex(headHeader.Predecessor), chainhash.Hex(lastHash))
	}

	if history[0].Header.Level < 1 {
		return fmt.Errorf("snapshot: history[0].level must be >= 1, got %d", history[0].Header.Level)
	}
	if history[0].Header.Level == 1 && history[0].Header.Predecessor != genesis {
		return fmt.Errorf("snapshot: history[0].predecessor must equal genesis at level 1")
	}

	if err := CheckOperationsConsistency(hasher, history[0]); err != nil {
		return err
	}

	for i := len(history) - 1; i >= 1; i-- {
		if err := CheckOperationsConsistency(hasher, history[i]); err != nil {
			return err
		}
		if history[i].Header.Level < 2 {
			return fmt.Errorf("snapshot: history[%d].level must be >= 2, got %d", i, history[i].Header.Level)
		}
		want := headerHash(hasher, history[i-1].Header)
		if history[i].Header.Predecessor != want {
			return fmt.Errorf("snapshot: history[%d].predecessor %s does not match hash(history[%d]) %s", i, chainhash.Hex(history[i].Header.Predecessor), i-1, chainhash.Hex(want))
		}
		if progress != nil && (len(history)-i)%progressEvery == 0 {
			progress(len(history) - i)
		}
	}
	return nil
}
