// Package boltstore is a bbolt-backed implementation of the block-store and
// chain-data-store contracts declared in package storeio. It is the
// reference store this engine is built and tested against; a production
// deployment may swap in another implementation of the same interfaces
// without touching the snapshot package.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/storeio"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketHeaders          = []byte("headers_by_hash")
	bucketContents         = []byte("contents_by_hash")
	bucketOperations       = []byte("operations_by_hash")
	bucketOperationHashes  = []byte("operation_hashes_by_hash")
	bucketPredecessors     = []byte("predecessors_by_hash")
	bucketChainCells       = []byte("chain_cells")
	bucketKnownHeads       = []byte("known_heads")
	bucketInMainBranch     = []byte("in_main_branch")
	bucketProtocolAt       = []byte("protocol_at")
	bucketBlockMetadata    = []byte("block_metadata_by_hash")
	bucketOpsMetadata      = []byte("ops_metadata_by_hash")
	bucketValidationRecord = []byte("validation_record_by_hash")
)

var allBuckets = [][]byte{
	bucketHeaders, bucketContents, bucketOperations, bucketOperationHashes,
	bucketPredecessors, bucketChainCells, bucketKnownHeads, bucketInMainBranch,
	bucketProtocolAt, bucketBlockMetadata, bucketOpsMetadata, bucketValidationRecord,
}

// Chain-cell keys within bucketChainCells.
var (
	cellCheckpoint   = []byte("checkpoint")
	cellSavePoint    = []byte("save_point")
	cellCaboose      = []byte("caboose")
	cellCurrentHead  = []byte("current_head")
	cellHistoryMode  = []byte("history_mode")
)

// Store wraps a single bbolt database providing every bucket this engine
// needs. A production deployment typically opens one Store per chain
// directory, the way the teacher opens one *bolt.DB per chain under
// datadir/chains/<chain_id_hex>/.
type Store struct {
	db *bolt.DB
}

// Options configures Open. InitialMmapSize corresponds to spec §4.5 step 2's
// "open block store with large maximum map size (~40 GiB)" requirement for
// import; callers doing export-only work can leave it zero for bbolt's
// default.
type Options struct {
	InitialMmapSize int
}

// Open creates (if absent) and opens the bbolt database rooted at dir,
// provisioning every bucket this engine's contracts need inside a single
// bounded transaction.
func Open(dir string, opts Options) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("boltstore: dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("boltstore: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, "chaindata.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:         1 * time.Second,
		InitialMmapSize: opts.InitialMmapSize,
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open bbolt: %w", err)
	}

	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("boltstore: create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return &Store{db: bdb}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- BlockStore ---

func (s *Store) HeaderRead(_ context.Context, hash chainhash.BlockHash) (block.Header, error) {
	h, ok, err := s.HeaderReadOpt(nil, hash)
	if err != nil {
		return block.Header{}, err
	}
	if !ok {
		return block.Header{}, fmt.Errorf("boltstore: header %s not found", chainhash.Hex(hash))
	}
	return h, nil
}

func (s *Store) HeaderReadOpt(_ context.Context, hash chainhash.BlockHash) (block.Header, bool, error) {
	var out block.Header
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeaders).Get(hash[:])
		if v == nil {
			return nil
		}
		h, err := decodeHeader(v)
		if err != nil {
			return err
		}
		out = h
		found = true
		return nil
	})
	return out, found, err
}

func (s *Store) HeaderStore(_ context.Context, hash chainhash.BlockHash, header block.Header) error {
	enc := encodeHeader(header)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHeaders).Put(hash[:], enc)
	})
}

func (s *Store) ContentsReadOpt(_ context.Context, hash chainhash.BlockHash) (storeio.Contents, bool, error) {
	var out storeio.Contents
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketContents).Get(hash[:])
		if v == nil {
			return nil
		}
		c, err := decodeContents(v)
		if err != nil {
			return err
		}
		out = c
		found = true
		return nil
	})
	return out, found, err
}

func (s *Store) ContentsKnown(_ context.Context, hash chainhash.BlockHash) (bool, error) {
	var known bool
	err := s.db.View(func(tx *bolt.Tx) error {
		known = tx.Bucket(bucketContents).Get(hash[:]) != nil
		return nil
	})
	return known, err
}

// ContentsStore is not part of the storeio.BlockStore interface (the
// external contents subsystem normally populates it as a side effect of
// block application); it is exposed as a concrete method on *Store so a
// caller can seed contents directly. The importer does not call it.
func (s *Store) ContentsStore(hash chainhash.BlockHash, c storeio.Contents) error {
	enc := encodeContents(c)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContents).Put(hash[:], enc)
	})
}

func (s *Store) OperationsRead(_ context.Context, hash chainhash.BlockHash) ([]block.OperationPass, error) {
	var out []block.OperationPass
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOperations).Get(hash[:])
		if v == nil {
			return fmt.Errorf("boltstore: operations for %s not found", chainhash.Hex(hash))
		}
		passes, err := decodeOperationPasses(v)
		if err != nil {
			return err
		}
		out = passes
		return nil
	})
	return out, err
}

func (s *Store) OperationsStore(_ context.Context, hash chainhash.BlockHash, ops []block.OperationPass) error {
	enc := encodeOperationPasses(ops)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOperations).Put(hash[:], enc)
	})
}

func (s *Store) OperationsBindings(_ context.Context) ([]chainhash.BlockHash, error) {
	return s.bucketKeys(bucketOperations)
}

func (s *Store) OperationHashesStore(_ context.Context, hash chainhash.BlockHash, hashes []block.OperationHashPass) error {
	enc := encodeOperationHashPasses(hashes)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOperationHashes).Put(hash[:], enc)
	})
}

func (s *Store) OperationHashesBindings(_ context.Context) ([]chainhash.BlockHash, error) {
	return s.bucketKeys(bucketOperationHashes)
}

func (s *Store) PredecessorsRead(_ context.Context, hash chainhash.BlockHash) ([]storeio.PredecessorEntry, error) {
	var out []storeio.PredecessorEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPredecessors).Get(hash[:])
		if v == nil {
			return nil
		}
		entries, err := decodePredecessors(v)
		if err != nil {
			return err
		}
		out = entries
		return nil
	})
	return out, err
}

func (s *Store) PredecessorsStore(_ context.Context, hash chainhash.BlockHash, entries []storeio.PredecessorEntry) error {
	enc := encodePredecessors(entries)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPredecessors).Put(hash[:], enc)
	})
}

func (s *Store) BlockMetadataStore(_ context.Context, hash chainhash.BlockHash, metadata []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlockMetadata).Put(hash[:], metadata)
	})
}

func (s *Store) OpsMetadataStore(_ context.Context, hash chainhash.BlockHash, metadata []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOpsMetadata).Put(hash[:], metadata)
	})
}

func (s *Store) ValidationRecordStore(_ context.Context, hash chainhash.BlockHash, record storeio.ValidationRecord) error {
	enc := encodeValidationRecord(record)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketValidationRecord).Put(hash[:], enc)
	})
}

func (s *Store) bucketKeys(name []byte) ([]chainhash.BlockHash, error) {
	var out []chainhash.BlockHash
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(name).ForEach(func(k, _ []byte) error {
			if len(k) != 32 {
				return fmt.Errorf("boltstore: bad key length %d in %s", len(k), string(name))
			}
			var h chainhash.BlockHash
			copy(h[:], k)
			out = append(out, h)
			return nil
		})
	})
	return out, err
}

var _ storeio.BlockStore = (*Store)(nil)
