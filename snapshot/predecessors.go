package snapshot

import (
	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
)

// BuildPredecessorTables is C2: for history sorted oldest-to-newest by
// level, computes for every entry its skip-list of ancestor pointers at
// geometric offsets (1, 2, 4, ...), terminated at genesis.
func BuildPredecessorTables(hasher hashing.Hasher, history []block.PrunedBlock, genesis chainhash.BlockHash) [][]storeio.PredecessorEntry {
	tables := make([][]storeio.PredecessorEntry, len(history))
	oldestLevel := int32(0)
	if len(history) > 0 {
		oldestLevel = history[0].Header.Level
	}

	for i := range history {
		var entries []storeio.PredecessorEntry
		rank := 0
		dist := 1
		for i-dist >= 0 {
			entries = append(entries, storeio.PredecessorEntry{
				Rank: rank,
				Hash: headerHash(hasher, history[i-dist].Header),
			})
			rank++
			dist *= 2
		}
		// Special case: history[0] is the block just after genesis and the
		// next step would land one before the start; genesis is a
		// legitimate predecessor there.
		if oldestLevel == 1 && i-dist == -1 {
			entries = append(entries, storeio.PredecessorEntry{Rank: rank, Hash: genesis})
		}
		tables[i] = entries
	}
	return tables
}

func headerHash(hasher hashing.Hasher, h block.Header) chainhash.BlockHash {
	return h.Hash(hasher)
}
