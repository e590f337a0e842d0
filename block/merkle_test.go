package block

import (
	"testing"

	"github.com/cernak/tezos/chainhash"
	"github.com/cernak/tezos/hashing"
)

func TestOperationListHashComputeDeterministic(t *testing.T) {
	h := hashing.Sha3Hasher{}
	ops := []chainhash.OperationHash{{1}, {2}, {3}}

	r1 := OperationListHashCompute(h, ops)
	r2 := OperationListHashCompute(h, ops)
	if r1 != r2 {
		t.Fatalf("expected deterministic root, got %x != %x", r1, r2)
	}

	shuffled := []chainhash.OperationHash{{2}, {1}, {3}}
	r3 := OperationListHashCompute(h, shuffled)
	if r1 == r3 {
		t.Fatalf("expected order-sensitive root")
	}
}

func TestOperationListListHashComputeEmpty(t *testing.T) {
	h := hashing.Sha3Hasher{}
	var zero chainhash.OperationListListHash
	got := OperationListListHashCompute(h, nil)
	if got != zero {
		t.Fatalf("expected zero root for empty pass list")
	}
}

func TestOperationListListHashComputeAggregatesPasses(t *testing.T) {
	h := hashing.Sha3Hasher{}
	pass0 := OperationListHashCompute(h, []chainhash.OperationHash{{1}, {2}})
	pass1 := OperationListHashCompute(h, []chainhash.OperationHash{{3}})

	root := OperationListListHashCompute(h, []chainhash.OperationListHash{pass0, pass1})
	rootAgain := OperationListListHashCompute(h, []chainhash.OperationListHash{pass0, pass1})
	if root != rootAgain {
		t.Fatalf("expected deterministic aggregate root")
	}

	swapped := OperationListListHashCompute(h, []chainhash.OperationListHash{pass1, pass0})
	if root == swapped {
		t.Fatalf("expected pass order to affect the aggregate root")
	}
}
