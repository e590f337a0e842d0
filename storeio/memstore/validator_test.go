package memstore

import (
	"context"
	"testing"

	"github.com/cernak/tezos/block"
	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
	"github.com/cernak/tezos/storeio"
)

func TestValidatorApplyDeterministic(t *testing.T) {
	v := NewValidator(hashing.Sha3Hasher{})
	req := storeio.ApplyRequest{
		MaxOperationsTTL:  5,
		PredecessorHeader: block.Header{Level: 5, Context: chainhash.ContextHash{0x01}},
		BlockHeader: block.Header{
			Level:            6,
			OperationsHash:   chainhash.OperationListListHash{0x02},
			ProtoLevel:       1,
			ValidationPasses: 2,
		},
	}

	r1, err := v.Apply(context.Background(), req)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	r2, err := v.Apply(context.Background(), req)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r1.ContextHash != r2.ContextHash {
		t.Fatalf("expected deterministic context hash, got %x vs %x", r1.ContextHash, r2.ContextHash)
	}
	if r1.ValidationResult.MaxOperationsTTL != 5 {
		t.Fatalf("expected max_operations_ttl passthrough, got %d", r1.ValidationResult.MaxOperationsTTL)
	}
	if r1.ValidationResult.LastAllowedForkLevel != 6 {
		t.Fatalf("expected last_allowed_fork_level = block level, got %d", r1.ValidationResult.LastAllowedForkLevel)
	}
}

func TestValidatorApplyDiffersByInput(t *testing.T) {
	v := NewValidator(hashing.Sha3Hasher{})
	base := storeio.ApplyRequest{
		PredecessorHeader: block.Header{Context: chainhash.ContextHash{0x01}},
		BlockHeader:       block.Header{OperationsHash: chainhash.OperationListListHash{0x02}},
	}
	other := base
	other.BlockHeader.OperationsHash = chainhash.OperationListListHash{0x03}

	r1, err := v.Apply(context.Background(), base)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	r2, err := v.Apply(context.Background(), other)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r1.ContextHash == r2.ContextHash {
		t.Fatalf("expected differing operations_hash to change the resulting context hash")
	}
}

var _ storeio.Validator = (*Validator)(nil)
