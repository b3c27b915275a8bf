package model

import "time"

// SnapshotEntry records one file captured by a Snapshot. Tombstone is true
// for paths that did not exist at snapshot time, so that restore can
// delete a file created during a fix.
type SnapshotEntry struct {
	OriginalPath string
	StoredPath   string // relative path under the snapshot's files/ directory
	SHA256       string
	Mode         uint32
	Size         int64
	Tombstone    bool
}

// Snapshot is an immutable, closed record of a file set's bytes and modes.
type Snapshot struct {
	ID          string
	CreatedAt   time.Time
	Entries     []SnapshotEntry
	Description string
}
