// Package hashing provides the pluggable digest primitive the engine uses to
// compute content hashes. It mirrors the narrow provider seam the teacher
// repo uses for its own signature/digest backends: a single small interface,
// with a development-only concrete implementation built on the standard
// SHA3-256 construction.
package hashing

import "golang.org/x/crypto/sha3"

// Hasher computes the SHA3-256 digest used to derive every hash family in
// package chainhash (block hashes, operation hashes, operation-list and
// operation-list-list Merkle roots). It is an interface, not a free
// function, so a production node can swap in a hardware-backed or
// FIPS-certified implementation without touching call sites.
type Hasher interface {
	Sum256(data []byte) [32]byte
}

// Sha3Hasher is a development-only Hasher backed by golang.org/x/crypto/sha3.
// It does not claim FIPS compliance; it exists so the engine and its tests
// have a working digest without depending on a production crypto provider.
type Sha3Hasher struct{}

// Sum256 implements Hasher.
func (Sha3Hasher) Sum256(data []byte) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
