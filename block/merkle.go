package block

import "github.com/cernak/tezos/chainhash"

// hasher256 is the narrow digest seam block needs; it matches
// hashing.Hasher structurally so callers can pass a hashing.Sha3Hasher{}
// without this package importing the hashing package directly.
type hasher256 interface {
	Sum256(data []byte) [32]byte
}

const (
	opListLeafTag byte = 0x00
	opListNodeTag byte = 0x01
	opListListLeafTag byte = 0x02
	opListListNodeTag byte = 0x03
)

// OperationListHashCompute computes the Merkle root over one validation
// pass's operation hashes, in the order given.
func OperationListHashCompute(h hasher256, hashes []chainhash.OperationHash) chainhash.OperationListHash {
	root := merkleRootTagged(h, toIDs(hashes), opListLeafTag, opListNodeTag)
	return chainhash.OperationListHash(root)
}

// OperationListListHashCompute computes the Merkle root over the per-pass
// operation-list hashes, producing the value a BlockHeader commits to as
// OperationsHash.
func OperationListListHashCompute(h hasher256, passRoots []chainhash.OperationListHash) chainhash.OperationListListHash {
	ids := make([][32]byte, len(passRoots))
	for i, r := range passRoots {
		ids[i] = [32]byte(r)
	}
	root := merkleRootTagged(h, ids, opListListLeafTag, opListListNodeTag)
	return chainhash.OperationListListHash(root)
}

func toIDs(hashes []chainhash.OperationHash) [][32]byte {
	ids := make([][32]byte, len(hashes))
	for i, hh := range hashes {
		ids[i] = [32]byte(hh)
	}
	return ids
}

// merkleRootTagged builds a binary Merkle tree with distinct domain-tagged
// preimages for leaves and interior nodes, carrying forward any odd node at
// each level unchanged rather than duplicating it.
//
// An empty input yields the all-zero root: the engine treats a block with
// zero validation passes or an empty pass as a degenerate, not an error,
// since spec-level validity (validation_passes > 0) is the validator's
// concern, not this package's.
func merkleRootTagged(h hasher256, ids [][32]byte, leafTag, nodeTag byte) [32]byte {
	if len(ids) == 0 {
		return [32]byte{}
	}

	level := make([][32]byte, 0, len(ids))
	var leafPreimage [1 + 32]byte
	leafPreimage[0] = leafTag
	for _, id := range ids {
		copy(leafPreimage[1:], id[:])
		level = append(level, h.Sum256(leafPreimage[:]))
	}

	var nodePreimage [1 + 32 + 32]byte
	nodePreimage[0] = nodeTag
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				next = append(next, level[i])
				i++
				continue
			}
			copy(nodePreimage[1:33], level[i][:])
			copy(nodePreimage[33:], level[i+1][:])
			next = append(next, h.Sum256(nodePreimage[:]))
			i += 2
		}
		level = next
	}
	return level[0]
}
