package protocol

// Directory and path constants used throughout glyphos.
const (
	// HomeDir is the user-level state directory (e.g., ~/.glyphos).
	HomeDir = ".glyphos"

	// DefaultDBName is the lexicon database file name inside HomeDir.
	DefaultDBName = "lexicon.db"

	// DefaultConfigName is the config file name looked up inside HomeDir.
	DefaultConfigName = "config.yaml"

	// BackupsDir is the default backup directory inside HomeDir.
	BackupsDir = "backups"

	// ReportsDir is the default prune report directory inside HomeDir.
	ReportsDir = "reports"

	// BackupSuffix separates the database file name from the UTC timestamp
	// in backup file names: lexicon.db.bak.20261014T031500.123456789Z
	BackupSuffix = ".bak."

	// BackupTimeFormat is the UTC timestamp layout used in backup names.
	BackupTimeFormat = "20060102T150405.000000000Z"
)

// ChangeKind labels a glyph_versions row.
type ChangeKind string

const (
	ChangeInsert  ChangeKind = "insert"  // New glyph entered the active table.
	ChangeMerge   ChangeKind = "merge"   // Incoming candidate merged into an existing glyph.
	ChangeEdit    ChangeKind = "edit"    // Admin edit of curated fields.
	ChangeArchive ChangeKind = "archive" // Moved to glyph_lexicon_archived.
	ChangeRestore ChangeKind = "restore" // Moved back from the archive.
	ChangeImport  ChangeKind = "import"  // Operator legacy import, dedup not enforced.
)

// Valid reports whether c is one of the known change kinds.
func (c ChangeKind) Valid() bool {
	switch c {
	case ChangeInsert, ChangeMerge, ChangeEdit, ChangeArchive, ChangeRestore, ChangeImport:
		return true
	default:
		return false
	}
}

// Archive reasons written by consolidation.
const (
	ReasonStrictDup = "strict-dup"
	ReasonGateCap   = "gate-cap"
	ReasonManual    = "manual"
)

// Missing semantic elements reported by the composer, in question priority order.
const (
	ElementContext             = "context"
	ElementTemporalSpecificity = "temporal_specificity"
	ElementSomatic             = "somatic"
	ElementRelational          = "relational"
	ElementAgency              = "agency"
)
