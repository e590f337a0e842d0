package snapshot

import "github.com/cernak/tezos/block"

// checkExportModeLegal implements spec §4.4 step 2: a Rolling node refuses
// a non-rolling export request; Archive, Full, and the absence of a stored
// mode (fresh node, treated as Archive-like) are always permitted.
func checkExportModeLegal(mode block.HistoryMode, modeKnown bool, exportRolling bool) error {
	if !modeKnown {
		return nil
	}
	switch mode {
	case block.Rolling:
		if !exportRolling {
			return newErr(ErrWrongSnapshotExport, "node is in Rolling mode; export_rolling must be true")
		}
		return nil
	case block.Archive, block.Full:
		return nil
	default:
		return newErr(ErrWrongSnapshotExport, "unknown history mode")
	}
}

// resultingImportMode implements spec §4.5 step 4.8: the imported chain's
// mode is Full exactly when the snapshot's history reaches back to the
// block directly after genesis; otherwise it remains Rolling.
func resultingImportMode(oldestLevel int32) block.HistoryMode {
	if oldestLevel == 1 {
		return block.Full
	}
	return block.Rolling
}
