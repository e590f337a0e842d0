package boltstore

import (
	"context"
	"fmt"

	"github.com/cernak/tezos/storeio"

	bolt "go.etcd.io/bbolt"
)

// PutBulk persists entries inside a single bbolt transaction. Callers
// implement the spec's ~5000-entries-per-chunk bound (spec §4.5 C5a) by
// slicing their input before calling PutBulk repeatedly; PutBulk itself
// does not chunk, so that the atomicity of one call maps directly onto one
// bolt.Tx.
func (s *Store) PutBulk(_ context.Context, entries []storeio.BulkEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		headers := tx.Bucket(bucketHeaders)
		operations := tx.Bucket(bucketOperations)
		opHashes := tx.Bucket(bucketOperationHashes)
		predecessors := tx.Bucket(bucketPredecessors)
		mainBranch := tx.Bucket(bucketInMainBranch)

		for _, e := range entries {
			if err := headers.Put(e.Hash[:], encodeHeader(e.Header)); err != nil {
				return fmt.Errorf("boltstore: bulk put header: %w", err)
			}
			if err := operations.Put(e.Hash[:], encodeOperationPasses(e.Operations)); err != nil {
				return fmt.Errorf("boltstore: bulk put operations: %w", err)
			}
			if err := opHashes.Put(e.Hash[:], encodeOperationHashPasses(e.OperationHashes)); err != nil {
				return fmt.Errorf("boltstore: bulk put operation hashes: %w", err)
			}
			if err := predecessors.Put(e.Hash[:], encodePredecessors(e.Predecessors)); err != nil {
				return fmt.Errorf("boltstore: bulk put predecessors: %w", err)
			}
			for _, p := range e.Predecessors {
				if p.Rank == 0 {
					if err := mainBranch.Put(p.Hash[:], e.Hash[:]); err != nil {
						return fmt.Errorf("boltstore: bulk put in_main_branch: %w", err)
					}
					break
				}
			}
		}
		return nil
	})
}

var _ storeio.BulkStore = (*Store)(nil)
