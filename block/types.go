// Package block defines the snapshot engine's core data model: block
// headers, pruned history entries, the head block carried in full, protocol
// transition markers, and the three-way history-mode variant.
package block

import (
	"github.com/cernak/tezos/chainhash"
)

// Header is the minimum set of fields the snapshot engine needs from a
// block header. Fields outside this set (fitness, timestamp, protocol_data)
// are carried as opaque payloads: the engine never interprets them, only
// hashes and stores them.
type Header struct {
	Level            int32
	Predecessor      chainhash.BlockHash
	ProtoLevel       uint8
	ValidationPasses uint8
	OperationsHash   chainhash.OperationListListHash
	Context          chainhash.ContextHash

	Fitness       []byte
	Timestamp     []byte
	ProtocolData  []byte
}

// OperationPass is one validation pass's operations, in inclusion order.
type OperationPass struct {
	PassIndex  int
	Operations [][]byte
}

// OperationHashPass is one validation pass's operation hashes, parallel to
// an OperationPass with the same PassIndex.
type OperationHashPass struct {
	PassIndex int
	Hashes    []chainhash.OperationHash
}

// PrunedBlock is a history entry without contents/metadata: a header plus
// its operations and operation hashes, stored newest-pass-first exactly as
// the wire snapshot format carries them.
//
// Invariant: for each pass p, Hashes[p] == map(hash, Operations[p].Operations).
type PrunedBlock struct {
	Header          Header
	Operations      []OperationPass
	OperationHashes []OperationHashPass
}

// Data is the head block of the snapshot, carried with its full operations
// (no pruning) since the importer must re-validate it directly.
type Data struct {
	Header     Header
	Operations []OperationPass
}

// ProtocolInfo carries the opaque author/timestamp/message triple recorded
// at a protocol transition.
type ProtocolInfo struct {
	Author    string
	Timestamp []byte
	Message   string
}

// ProtocolData is the marker emitted at each protocol transition inside an
// exported range, used to re-commit the protocol epoch root in the restored
// context.
type ProtocolData struct {
	Info            ProtocolInfo
	TestChainStatus []byte
	DataKey         chainhash.ContextHash
	Parents         []chainhash.ContextHash
	ProtocolHash    chainhash.ProtocolHash
	ProtocolLevel   int32
}

// Hash returns the content hash of h using hasher, grounding BlockHash on
// the same digest primitive used for every other hash family.
func (h Header) Hash(hasher interface{ Sum256([]byte) [32]byte }) chainhash.BlockHash {
	return chainhash.BlockHash(hasher.Sum256(h.bytesForHash()))
}

// bytesForHash produces a deterministic, order-stable encoding of the header
// fields for hashing. It is intentionally simple (length-prefixed
// concatenation) since the wire encoding itself is owned by the external
// context subsystem; this engine only needs a stable preimage.
func (h Header) bytesForHash() []byte {
	buf := make([]byte, 0, 4+32+1+1+32+32+len(h.Fitness)+len(h.Timestamp)+len(h.ProtocolData)+4*3)
	buf = appendUint32(buf, uint32(h.Level))
	buf = append(buf, h.Predecessor[:]...)
	buf = append(buf, h.ProtoLevel, h.ValidationPasses)
	buf = append(buf, h.OperationsHash[:]...)
	buf = append(buf, h.Context[:]...)
	buf = appendBytes(buf, h.Fitness)
	buf = appendBytes(buf, h.Timestamp)
	buf = appendBytes(buf, h.ProtocolData)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendBytes(buf []byte, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v))) // #nosec G115 -- payloads are bounded by store-level size limits, never attacker-sized beyond int32.
	return append(buf, v...)
}
