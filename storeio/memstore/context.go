// Package memstore is a development-only implementation of the context
// subsystem (storeio.ContextStore) and block validator (storeio.Validator).
// It does not claim to model real Merkle-ized state or real consensus
// validation; it exists only to let the snapshot engine's own tests and
// tooling exercise the full export/import/reconstruct flow without a
// production context database, in the same spirit as the teacher's
// development-only crypto provider.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
)

// Store is the in-memory context subsystem. Every checked-out context is
// just its hash; the "state" a context commits to is never materialized
// beyond that hash, since nothing downstream of this package inspects state
// contents.
type Store struct {
	hasher hashing.Hasher
}

// New returns a Store using hasher to derive context hashes.
func New(hasher hashing.Hasher) *Store {
	return &Store{hasher: hasher}
}

type index struct{ readonly bool }

func (i *index) Close(context.Context) error { return nil }

// Init opens a context index. memstore needs no on-disk state of its own,
// so this only records the readonly flag for parity with the contract.
func (s *Store) Init(_ context.Context, readonly bool) (storeio.ContextIndex, error) {
	return &index{readonly: readonly}, nil
}

func (s *Store) GetProtocolDataFromHeader(_ context.Context, _ storeio.ContextIndex, header block.Header) (block.ProtocolData, error) {
	return block.ProtocolData{
		ProtocolLevel: header.Level,
	}, nil
}

// wireRecord is the on-disk framing for one DumpWorkItem / RestoredItem.
// This is memstore's own format; the snapshot engine never parses it
// directly (the contract in storeio is deliberately opaque).
type wireRecord struct {
	PredecessorHeader wireHeader       `json:"predecessor_header"`
	BlockData         wireData         `json:"block_data"`
	OldBlocksNewestFirst []wirePruned  `json:"old_blocks_newest_first"`
	ProtocolDataList     []wireProto   `json:"protocol_data_list"`
}

type wireHeader struct {
	Level            int32  `json:"level"`
	Predecessor      string `json:"predecessor"`
	ProtoLevel       uint8  `json:"proto_level"`
	ValidationPasses uint8  `json:"validation_passes"`
	OperationsHash   string `json:"operations_hash"`
	Context          string `json:"context"`
	Fitness          []byte `json:"fitness"`
	Timestamp        []byte `json:"timestamp"`
	ProtocolData     []byte `json:"protocol_data"`
}

type wireOpPass struct {
	PassIndex  int      `json:"pass_index"`
	Operations [][]byte `json:"operations"`
}

type wireOpHashPass struct {
	PassIndex int      `json:"pass_index"`
	Hashes    []string `json:"hashes"`
}

type wireData struct {
	Header     wireHeader   `json:"header"`
	Operations []wireOpPass `json:"operations"`
}

type wirePruned struct {
	Header          wireHeader       `json:"header"`
	Operations      []wireOpPass     `json:"operations"`
	OperationHashes []wireOpHashPass `json:"operation_hashes"`
}

type wireProto struct {
	Author        string   `json:"author"`
	Timestamp     []byte   `json:"timestamp"`
	Message       string   `json:"message"`
	TestChainStatus []byte `json:"test_chain_status"`
	DataKey       string   `json:"data_key"`
	Parents       []string `json:"parents"`
	ProtocolHash  string   `json:"protocol_hash"`
	ProtocolLevel int32    `json:"protocol_level"`
}

func toWireHeader(h block.Header) wireHeader {
	return wireHeader{
		Level:            h.Level,
		Predecessor:      chainhash.Hex(h.Predecessor),
		ProtoLevel:       h.ProtoLevel,
		ValidationPasses: h.ValidationPasses,
		OperationsHash:   chainhash.Hex(h.OperationsHash),
		Context:          chainhash.Hex(h.Context),
		Fitness:          h.Fitness,
		Timestamp:        h.Timestamp,
		ProtocolData:     h.ProtocolData,
	}
}

func fromWireHeader(w wireHeader) (block.Header, error) {
	pred, err := chainhash.ParseHex[chainhash.BlockHash](w.Predecessor)
	if err != nil {
		return block.Header{}, fmt.Errorf("memstore: predecessor: %w", err)
	}
	ops, err := chainhash.ParseHex[chainhash.OperationListListHash](w.OperationsHash)
	if err != nil {
		return block.Header{}, fmt.Errorf("memstore: operations_hash: %w", err)
	}
	ctx, err := chainhash.ParseHex[chainhash.ContextHash](w.Context)
	if err != nil {
		return block.Header{}, fmt.Errorf("memstore: context: %w", err)
	}
	return block.Header{
		Level:            w.Level,
		Predecessor:      pred,
		ProtoLevel:       w.ProtoLevel,
		ValidationPasses: w.ValidationPasses,
		OperationsHash:   ops,
		Context:          ctx,
		Fitness:          w.Fitness,
		Timestamp:        w.Timestamp,
		ProtocolData:     w.ProtocolData,
	}, nil
}

func toWireOpPasses(passes []block.OperationPass) []wireOpPass {
	out := make([]wireOpPass, len(passes))
	for i, p := range passes {
		out[i] = wireOpPass{PassIndex: p.PassIndex, Operations: p.Operations}
	}
	return out
}

func fromWireOpPasses(passes []wireOpPass) []block.OperationPass {
	out := make([]block.OperationPass, len(passes))
	for i, p := range passes {
		out[i] = block.OperationPass{PassIndex: p.PassIndex, Operations: p.Operations}
	}
	return out
}

func toWireOpHashPasses(passes []block.OperationHashPass) []wireOpHashPass {
	out := make([]wireOpHashPass, len(passes))
	for i, p := range passes {
		hashes := make([]string, len(p.Hashes))
		for j, h := range p.Hashes {
			hashes[j] = chainhash.Hex(h)
		}
		out[i] = wireOpHashPass{PassIndex: p.PassIndex, Hashes: hashes}
	}
	return out
}

func fromWireOpHashPasses(passes []wireOpHashPass) ([]block.OperationHashPass, error) {
	out := make([]block.OperationHashPass, len(passes))
	for i, p := range passes {
		hashes := make([]chainhash.OperationHash, len(p.Hashes))
		for j, hstr := range p.Hashes {
			hh, err := chainhash.ParseHex[chainhash.OperationHash](hstr)
			if err != nil {
				return nil, fmt.Errorf("memstore: operation hash: %w", err)
			}
			hashes[j] = hh
		}
		out[i] = block.OperationHashPass{PassIndex: p.PassIndex, Hashes: hashes}
	}
	return out, nil
}

// DumpContexts drives each item's iterator to completion and writes the
// resulting records to filename as a temp-then-rename write. Neither the
// temp file nor the directory is fsynced, so the write is not durable
// across an OS crash.
func (s *Store) DumpContexts(_ context.Context, _ storeio.ContextIndex, items []storeio.DumpWorkItem, filename string) error {
	records := make([]wireRecord, 0, len(items))
	for _, item := range items {
		var oldBlocksNewestFirst []wirePruned
		var protoList []wireProto

		header := item.TargetHeader
		for {
			pruned, proto, ok := item.Iterator.Step(header)
			if !ok {
				break
			}
			if proto != nil {
				protoList = append(protoList, wireProto{
					Author:          proto.Info.Author,
					Timestamp:       proto.Info.Timestamp,
					Message:         proto.Info.Message,
					TestChainStatus: proto.TestChainStatus,
					DataKey:         chainhash.Hex(proto.DataKey),
					Parents:         hexAll(proto.Parents),
					ProtocolHash:    chainhash.Hex(proto.ProtocolHash),
					ProtocolLevel:   proto.ProtocolLevel,
				})
			}
			if pruned == nil {
				break
			}
			// Record newest-first, matching the wire convention the
			// restore side must reverse.
			oldBlocksNewestFirst = append(oldBlocksNewestFirst, wirePruned{
				Header:          toWireHeader(pruned.Header),
				Operations:      toWireOpPasses(pruned.Operations),
				OperationHashes: toWireOpHashPasses(pruned.OperationHashes),
			})
			header = pruned.Header
		}

		records = append(records, wireRecord{
			PredecessorHeader:    toWireHeader(item.PredecessorHeader),
			BlockData:            wireData{Header: toWireHeader(item.BlockData.Header), Operations: toWireOpPasses(item.BlockData.Operations)},
			OldBlocksNewestFirst: oldBlocksNewestFirst,
			ProtocolDataList:     protoList,
		})
	}

	enc, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("memstore: marshal snapshot: %w", err)
	}
	return writeFileAtomic(filename, enc)
}

func hexAll(parents []chainhash.ContextHash) []string {
	out := make([]string, len(parents))
	for i, p := range parents {
		out[i] = chainhash.Hex(p)
	}
	return out
}

// RestoreContexts reads back what DumpContexts wrote.
func (s *Store) RestoreContexts(_ context.Context, _ storeio.ContextIndex, filename string) ([]storeio.RestoredItem, error) {
	raw, err := os.ReadFile(filename) // #nosec G304 -- filename is an operator-supplied CLI argument, not attacker input.
	if err != nil {
		return nil, fmt.Errorf("memstore: read snapshot: %w", err)
	}
	var records []wireRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("memstore: unmarshal snapshot: %w", err)
	}

	out := make([]storeio.RestoredItem, 0, len(records))
	for _, rec := range records {
		predHeader, err := fromWireHeader(rec.PredecessorHeader)
		if err != nil {
			return nil, err
		}
		dataHeader, err := fromWireHeader(rec.BlockData.Header)
		if err != nil {
			return nil, err
		}
		pruned := make([]block.PrunedBlock, 0, len(rec.OldBlocksNewestFirst))
		for _, wp := range rec.OldBlocksNewestFirst {
			h, err := fromWireHeader(wp.Header)
			if err != nil {
				return nil, err
			}
			hashPasses, err := fromWireOpHashPasses(wp.OperationHashes)
			if err != nil {
				return nil, err
			}
			pruned = append(pruned, block.PrunedBlock{
				Header:          h,
				Operations:      fromWireOpPasses(wp.Operations),
				OperationHashes: hashPasses,
			})
		}
		protoList := make([]block.ProtocolData, 0, len(rec.ProtocolDataList))
		for _, wp := range rec.ProtocolDataList {
			dataKey, err := chainhash.ParseHex[chainhash.ContextHash](wp.DataKey)
			if err != nil {
				return nil, err
			}
			protocolHash, err := chainhash.ParseHex[chainhash.ProtocolHash](wp.ProtocolHash)
			if err != nil {
				return nil, err
			}
			parents := make([]chainhash.ContextHash, len(wp.Parents))
			for i, pstr := range wp.Parents {
				ph, err := chainhash.ParseHex[chainhash.ContextHash](pstr)
				if err != nil {
					return nil, err
				}
				parents[i] = ph
			}
			protoList = append(protoList, block.ProtocolData{
				Info:            block.ProtocolInfo{Author: wp.Author, Timestamp: wp.Timestamp, Message: wp.Message},
				TestChainStatus: wp.TestChainStatus,
				DataKey:         dataKey,
				Parents:         parents,
				ProtocolHash:    protocolHash,
				ProtocolLevel:   wp.ProtocolLevel,
			})
		}

		out = append(out, storeio.RestoredItem{
			PredecessorHeader:    predHeader,
			BlockData:            block.Data{Header: dataHeader, Operations: fromWireOpPasses(rec.BlockData.Operations)},
			OldBlocksNewestFirst: pruned,
			ProtocolDataList:     protoList,
		})
	}
	return out, nil
}

// memContext is the Store's Context implementation: just a hash.
type memContext struct {
	hash chainhash.ContextHash
}

func (c memContext) Hash() chainhash.ContextHash { return c.hash }

func (s *Store) CheckoutExn(_ context.Context, _ storeio.ContextIndex, hash chainhash.ContextHash) (storeio.Context, error) {
	return memContext{hash: hash}, nil
}

// ValidateContextHashConsistencyAndCommit has no real protocol epoch root
// to commit in this development-only store; its model of "consistent" is
// simply that the caller's data_key, which names the committed state, is
// the same hash the caller expects that state to carry.
func (s *Store) ValidateContextHashConsistencyAndCommit(_ context.Context, _ storeio.ContextIndex, req storeio.ProtocolCommitRequest) (bool, error) {
	return req.DataKey == req.ExpectedContextHash, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memstore: mkdir %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil { // #nosec G304 -- tmp path is derived from an operator-supplied filename, not attacker input.
		return fmt.Errorf("memstore: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("memstore: rename: %w", err)
	}
	return nil
}

var _ storeio.ContextStore = (*Store)(nil)
