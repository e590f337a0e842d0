package boltstore

import (
	"encoding/binary"
	"fmt"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/storeio"
)

// encodeHeader lays out a block.Header as:
//   level i32le | predecessor 32 | proto_level u8 | validation_passes u8 |
//   operations_hash 32 | context 32 |
//   fitness_len u32le | fitness | timestamp_len u32le | timestamp |
//   protocol_data_len u32le | protocol_data
func encodeHeader(h block.Header) []byte {
	out := make([]byte, 0, 4+32+1+1+32+32+4+len(h.Fitness)+4+len(h.Timestamp)+4+len(h.ProtocolData))
	out = appendUint32(out, uint32(h.Level)) // #nosec G115 -- level is a small non-negative block height in practice.
	out = append(out, h.Predecessor[:]...)
	out = append(out, h.ProtoLevel, h.ValidationPasses)
	out = append(out, h.OperationsHash[:]...)
	out = append(out, h.Context[:]...)
	out = appendBlob(out, h.Fitness)
	out = appendBlob(out, h.Timestamp)
	out = appendBlob(out, h.ProtocolData)
	return out
}

func decodeHeader(b []byte) (block.Header, error) {
	if len(b) < 4+32+1+1+32+32 {
		return block.Header{}, fmt.Errorf("boltstore: truncated header")
	}
	var h block.Header
	h.Level = int32(binary.LittleEndian.Uint32(b[0:4]))
	copy(h.Predecessor[:], b[4:36])
	h.ProtoLevel = b[36]
	h.ValidationPasses = b[37]
	copy(h.OperationsHash[:], b[38:70])
	copy(h.Context[:], b[70:102])

	rest := b[102:]
	var err error
	h.Fitness, rest, err = readBlob(rest)
	if err != nil {
		return block.Header{}, err
	}
	h.Timestamp, rest, err = readBlob(rest)
	if err != nil {
		return block.Header{}, err
	}
	h.ProtocolData, rest, err = readBlob(rest)
	if err != nil {
		return block.Header{}, err
	}
	if len(rest) != 0 {
		return block.Header{}, fmt.Errorf("boltstore: trailing bytes in header")
	}
	return h, nil
}

func encodeContents(c storeio.Contents) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(c.MaxOperationsTTL)) // #nosec G115 -- ttl is a small bounded window, never negative in practice.
	return out
}

func decodeContents(b []byte) (storeio.Contents, error) {
	if len(b) != 4 {
		return storeio.Contents{}, fmt.Errorf("boltstore: bad contents length")
	}
	return storeio.Contents{MaxOperationsTTL: int32(binary.LittleEndian.Uint32(b))}, nil
}

// encodeOperationPasses lays out: pass_count u32le | per pass (index u32le | op_count u32le | per op (len u32le | bytes))
func encodeOperationPasses(passes []block.OperationPass) []byte {
	out := appendUint32(nil, uint32(len(passes))) // #nosec G115 -- pass count bounded by validation_passes (uint8).
	for _, p := range passes {
		out = appendUint32(out, uint32(p.PassIndex)) // #nosec G115 -- pass index bounded by validation_passes.
		out = appendUint32(out, uint32(len(p.Operations))) // #nosec G115 -- operation counts are store-bounded, never adversarially huge within this engine's scope.
		for _, op := range p.Operations {
			out = appendBlob(out, op)
		}
	}
	return out
}

func decodeOperationPasses(b []byte) ([]block.OperationPass, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	passes := make([]block.OperationPass, 0, n)
	for i := uint32(0); i < n; i++ {
		idx, r2, err := readUint32(rest)
		if err != nil {
			return nil, err
		}
		opCount, r3, err := readUint32(r2)
		if err != nil {
			return nil, err
		}
		rest = r3
		ops := make([][]byte, 0, opCount)
		for j := uint32(0); j < opCount; j++ {
			var op []byte
			op, rest, err = readBlob(rest)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
		passes = append(passes, block.OperationPass{PassIndex: int(idx), Operations: ops})
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("boltstore: trailing bytes in operation passes")
	}
	return passes, nil
}

// encodeOperationHashPasses mirrors encodeOperationPasses but for fixed-width hashes.
func encodeOperationHashPasses(passes []block.OperationHashPass) []byte {
	out := appendUint32(nil, uint32(len(passes))) // #nosec G115 -- pass count bounded by validation_passes.
	for _, p := range passes {
		out = appendUint32(out, uint32(p.PassIndex)) // #nosec G115 -- pass index bounded by validation_passes.
		out = appendUint32(out, uint32(len(p.Hashes))) // #nosec G115 -- hash counts are store-bounded.
		for _, hh := range p.Hashes {
			out = append(out, hh[:]...)
		}
	}
	return out
}

func decodeOperationHashPasses(b []byte) ([]block.OperationHashPass, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	passes := make([]block.OperationHashPass, 0, n)
	for i := uint32(0); i < n; i++ {
		idx, r2, err := readUint32(rest)
		if err != nil {
			return nil, err
		}
		count, r3, err := readUint32(r2)
		if err != nil {
			return nil, err
		}
		rest = r3
		hashes := make([]chainhash.OperationHash, 0, count)
		for j := uint32(0); j < count; j++ {
			if len(rest) < 32 {
				return nil, fmt.Errorf("boltstore: truncated operation hash")
			}
			var hh chainhash.OperationHash
			copy(hh[:], rest[:32])
			rest = rest[32:]
			hashes = append(hashes, hh)
		}
		passes = append(passes, block.OperationHashPass{PassIndex: int(idx), Hashes: hashes})
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("boltstore: trailing bytes in operation hash passes")
	}
	return passes, nil
}

// encodePredecessors lays out: count u32le | per entry (rank u32le | hash 32)
func encodePredecessors(entries []storeio.PredecessorEntry) []byte {
	out := appendUint32(nil, uint32(len(entries))) // #nosec G115 -- predecessor tables are logarithmic in chain length, never uint32-overflowing.
	for _, e := range entries {
		out = appendUint32(out, uint32(e.Rank)) // #nosec G115 -- rank is a small skip-list index.
		out = append(out, e.Hash[:]...)
	}
	return out
}

func decodePredecessors(b []byte) ([]storeio.PredecessorEntry, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, err
	}
	entries := make([]storeio.PredecessorEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		rank, r2, err := readUint32(rest)
		if err != nil {
			return nil, err
		}
		if len(r2) < 32 {
			return nil, fmt.Errorf("boltstore: truncated predecessor hash")
		}
		var hh chainhash.BlockHash
		copy(hh[:], r2[:32])
		rest = r2[32:]
		entries = append(entries, storeio.PredecessorEntry{Rank: int(rank), Hash: hh})
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("boltstore: trailing bytes in predecessor table")
	}
	return entries, nil
}

// encodeValidationRecord lays out: context_hash 32 | message blob |
// max_operations_ttl i32le | last_allowed_fork_level i32le | forking_testchain u8
func encodeValidationRecord(r storeio.ValidationRecord) []byte {
	out := make([]byte, 0, 32+4+len(r.Message)+4+4+1)
	out = append(out, r.ContextHash[:]...)
	out = appendBlob(out, []byte(r.Message))
	out = appendUint32(out, uint32(r.MaxOperationsTTL))     // #nosec G115 -- ttl is a small bounded window, never negative in practice.
	out = appendUint32(out, uint32(r.LastAllowedForkLevel)) // #nosec G115 -- fork level is a block height, never negative in practice.
	if r.ForkingTestchain {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

func decodeValidationRecord(b []byte) (storeio.ValidationRecord, error) {
	if len(b) < 32 {
		return storeio.ValidationRecord{}, fmt.Errorf("boltstore: truncated validation record")
	}
	var r storeio.ValidationRecord
	copy(r.ContextHash[:], b[:32])

	msg, rest, err := readBlob(b[32:])
	if err != nil {
		return storeio.ValidationRecord{}, err
	}
	r.Message = string(msg)

	ttl, rest, err := readUint32(rest)
	if err != nil {
		return storeio.ValidationRecord{}, err
	}
	r.MaxOperationsTTL = int32(ttl)

	forkLevel, rest, err := readUint32(rest)
	if err != nil {
		return storeio.ValidationRecord{}, err
	}
	r.LastAllowedForkLevel = int32(forkLevel)

	if len(rest) != 1 {
		return storeio.ValidationRecord{}, fmt.Errorf("boltstore: bad validation record trailer")
	}
	r.ForkingTestchain = rest[0] != 0
	return r, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBlob(buf []byte, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v))) // #nosec G115 -- blob sizes are store/transport bounded, never int32-overflowing in this engine's scope.
	return append(buf, v...)
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("boltstore: truncated uint32")
	}
	return binary.LittleEndian.Uint32(b[:4]), b[4:], nil
}

func readBlob(b []byte) ([]byte, []byte, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, fmt.Errorf("boltstore: truncated blob")
	}
	return append([]byte(nil), rest[:n]...), rest[n:], nil
}
