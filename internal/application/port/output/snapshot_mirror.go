package output

import (
	"context"
	"time"
)

// SnapshotMirror is an optional secondary store for closed snapshots.
// The Snapshot Manager remains the source of truth on the local disk;
// a mirror only receives copies after a snapshot is closed, so a mirror
// failure degrades durability but never correctness.
type SnapshotMirror interface {
	// SaveSnapshot uploads the manifest plus file payloads for one snapshot.
	SaveSnapshot(ctx context.Context, req SaveSnapshotRequest) (*MirrorEntry, error)

	// LoadSnapshot fetches a previously mirrored snapshot by id.
	LoadSnapshot(ctx context.Context, snapshotID string) (*MirroredSnapshot, error)

	// ListSnapshots returns metadata for every mirrored snapshot.
	ListSnapshots(ctx context.Context) ([]MirrorEntry, error)

	// DeleteSnapshot removes a mirrored snapshot, e.g. after local GC.
	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

// SaveSnapshotRequest carries one closed snapshot's bytes to a mirror.
type SaveSnapshotRequest struct {
	SnapshotID string
	Manifest   []byte            // manifest.json bytes, verbatim
	Files      map[string][]byte // stored-path → raw bytes, manifest order not required
}

// MirrorEntry is the mirror-side metadata for one snapshot.
type MirrorEntry struct {
	SnapshotID  string
	StoragePath string // e.g. s3://bucket/prefix/snapshots/<id>/ or a local dir
	Size        int64
	MirroredAt  time.Time
	SHA256      string // hash of the manifest bytes
}

// MirroredSnapshot is a snapshot fetched back from a mirror.
type MirroredSnapshot struct {
	Entry    MirrorEntry
	Manifest []byte
	Files    map[string][]byte
}
