package snapshot

import "fmt"

// ErrorCode is the closed enumeration of the permanent, non-retryable,
// operator-facing failure kinds this engine raises. Other failures (store
// and context I/O, history linkage checks, per-operation hash mismatches)
// are returned as plain errors, wrapping a lower-layer error via %w where
// there is one.
type ErrorCode string

const (
	// ErrWrongSnapshotExport fires when the node's history mode is
	// incompatible with the requested export mode (spec §4.4 step 2).
	ErrWrongSnapshotExport ErrorCode = "WRONG_SNAPSHOT_EXPORT"

	// ErrWrongBlockExport fires for Pruned / TooFewPredecessors /
	// CannotBeFound failures while resolving or bounding the export target.
	ErrWrongBlockExport ErrorCode = "WRONG_BLOCK_EXPORT"

	// ErrInconsistentImportedBlock fires when a caller-specified expected
	// block disagrees with the snapshot's actual head.
	ErrInconsistentImportedBlock ErrorCode = "INCONSISTENT_IMPORTED_BLOCK"

	// ErrSnapshotImportFailure fires when the validator's reported context
	// hash disagrees with the header's declared one.
	ErrSnapshotImportFailure ErrorCode = "SNAPSHOT_IMPORT_FAILURE"

	// ErrWrongReconstructMode fires when reconstruction is requested for a
	// snapshot that did not import as Full.
	ErrWrongReconstructMode ErrorCode = "WRONG_RECONSTRUCT_MODE"

	// ErrWrongProtocolHash fires when protocol-data validation at the
	// context level returns false.
	ErrWrongProtocolHash ErrorCode = "WRONG_PROTOCOL_HASH"

	// ErrInconsistentOperationHashes fires on a Merkle root mismatch for an
	// operation-list-list.
	ErrInconsistentOperationHashes ErrorCode = "INCONSISTENT_OPERATION_HASHES"

	// ErrCabooseExceedsHistoryBound fires when the newly-advanced caboose
	// sits at a higher level than target.level - max_operations_ttl (spec
	// §4.5 step 4.12).
	ErrCabooseExceedsHistoryBound ErrorCode = "CABOOSE_EXCEEDS_HISTORY_BOUND"
)

// Error is the structured error type the failures with an ErrorCode are
// returned as. Code identifies the kind; Detail carries operator-facing
// context (a hash, a reason tag, an expected-vs-got pair) as free text since
// the payload shape differs per kind.
type Error struct {
	Code   ErrorCode
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code ErrorCode, detail string) error {
	return &Error{Code: code, Detail: detail}
}

func wrapErr(code ErrorCode, detail string, err error) error {
	return &Error{Code: code, Detail: detail, Err: err}
}
