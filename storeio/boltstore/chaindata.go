package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/storeio"

	bolt "go.etcd.io/bbolt"
)

var _ storeio.ChainDataStore = (*Store)(nil)

// --- singular cells: checkpoint / save_point / caboose / current_head / history_mode ---

func (s *Store) Checkpoint(_ context.Context) (block.Header, error) {
	var out block.Header
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChainCells).Get(cellCheckpoint)
		if v == nil {
			return fmt.Errorf("boltstore: checkpoint not set")
		}
		h, err := decodeHeader(v)
		if err != nil {
			return err
		}
		out = h
		return nil
	})
	return out, err
}

func (s *Store) SetCheckpoint(_ context.Context, header block.Header) error {
	enc := encodeHeader(header)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChainCells).Put(cellCheckpoint, enc)
	})
}

func (s *Store) SavePoint(_ context.Context) (int32, chainhash.BlockHash, error) {
	return s.readLevelHashCell(cellSavePoint)
}

func (s *Store) SetSavePoint(_ context.Context, level int32, hash chainhash.BlockHash) error {
	return s.writeLevelHashCell(cellSavePoint, level, hash)
}

func (s *Store) Caboose(_ context.Context) (int32, chainhash.BlockHash, error) {
	return s.readLevelHashCell(cellCaboose)
}

func (s *Store) SetCaboose(_ context.Context, level int32, hash chainhash.BlockHash) error {
	return s.writeLevelHashCell(cellCaboose, level, hash)
}

func (s *Store) CurrentHead(_ context.Context) (chainhash.BlockHash, error) {
	var out chainhash.BlockHash
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChainCells).Get(cellCurrentHead)
		if len(v) != 32 {
			return fmt.Errorf("boltstore: current_head not set")
		}
		copy(out[:], v)
		return nil
	})
	return out, err
}

func (s *Store) SetCurrentHead(_ context.Context, hash chainhash.BlockHash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChainCells).Put(cellCurrentHead, hash[:])
	})
}

func (s *Store) HistoryMode(_ context.Context) (block.HistoryMode, bool, error) {
	var mode block.HistoryMode
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChainCells).Get(cellHistoryMode)
		if v == nil {
			return nil
		}
		if len(v) != 1 {
			return fmt.Errorf("boltstore: bad history_mode length")
		}
		mode = block.HistoryMode(v[0])
		found = true
		return nil
	})
	return mode, found, err
}

func (s *Store) SetHistoryMode(_ context.Context, mode block.HistoryMode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChainCells).Put(cellHistoryMode, []byte{byte(mode)})
	})
}

func (s *Store) readLevelHashCell(key []byte) (int32, chainhash.BlockHash, error) {
	var level int32
	var hash chainhash.BlockHash
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChainCells).Get(key)
		if len(v) != 4+32 {
			return fmt.Errorf("boltstore: cell %s not set", string(key))
		}
		level = int32(binary.LittleEndian.Uint32(v[0:4]))
		copy(hash[:], v[4:36])
		return nil
	})
	return level, hash, err
}

func (s *Store) writeLevelHashCell(key []byte, level int32, hash chainhash.BlockHash) error {
	v := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(v[0:4], uint32(level)) // #nosec G115 -- level is a small non-negative block height in practice.
	copy(v[4:36], hash[:])
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChainCells).Put(key, v)
	})
}

// --- set: known_heads ---

func (s *Store) KnownHeads(_ context.Context) ([]chainhash.BlockHash, error) {
	return s.bucketKeys(bucketKnownHeads)
}

func (s *Store) AddKnownHead(_ context.Context, hash chainhash.BlockHash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKnownHeads).Put(hash[:], []byte{1})
	})
}

func (s *Store) RemoveKnownHead(_ context.Context, hash chainhash.BlockHash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKnownHeads).Delete(hash[:])
	})
}

// --- mapping: in_main_branch (predecessor -> successor) ---

func (s *Store) InMainBranchSuccessor(_ context.Context, predecessor chainhash.BlockHash) (chainhash.BlockHash, bool, error) {
	var out chainhash.BlockHash
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketInMainBranch).Get(predecessor[:])
		if v == nil {
			return nil
		}
		if len(v) != 32 {
			return fmt.Errorf("boltstore: bad in_main_branch value length")
		}
		copy(out[:], v)
		found = true
		return nil
	})
	return out, found, err
}

func (s *Store) SetInMainBranch(_ context.Context, predecessor, successor chainhash.BlockHash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInMainBranch).Put(predecessor[:], successor[:])
	})
}

// --- mapping: protocol_at (proto_level -> protocol hash) ---

func (s *Store) SetProtocolAt(_ context.Context, protoLevel int32, hash chainhash.ProtocolHash) error {
	key := make([]byte, 4)
	binary.LittleEndian.PutUint32(key, uint32(protoLevel)) // #nosec G115 -- proto_level is a small monotonic counter.
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProtocolAt).Put(key, hash[:])
	})
}
