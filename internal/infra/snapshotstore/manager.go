// Package snapshotstore implements the snapshot manager: it
// creates/verifies/restores filesystem snapshots of a declared file set,
// using afero so the manager is testable against an in-memory filesystem
// and oklog/ulid for lexicographically sortable, time-prefixed ids.
package snapshotstore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

// manifest mirrors the on-disk manifest.json (the Snapshot struct sans file contents).
type manifest struct {
	ID          string              `json:"id"`
	CreatedAt   string              `json:"created_at"`
	Description string              `json:"description"`
	Entries     []manifestEntryJSON `json:"entries"`
}

type manifestEntryJSON struct {
	OriginalPath string `json:"original_path"`
	StoredPath   string `json:"stored_path"`
	SHA256       string `json:"sha256"`
	Mode         uint32 `json:"mode"`
	Size         int64  `json:"size"`
	Tombstone    bool   `json:"tombstone"`
}

// Manager stores snapshots under cacheRoot/snapshots/<id>/.
type Manager struct {
	fs        afero.Fs
	cacheRoot string
}

// New returns a Manager rooted at cacheRoot, using fs for all I/O.
// Pass afero.NewOsFs() in production, afero.NewMemMapFs() in tests.
func New(fs afero.Fs, cacheRoot string) *Manager {
	return &Manager{fs: fs, cacheRoot: cacheRoot}
}

func (m *Manager) snapshotDir(id string) string {
	return filepath.Join(m.cacheRoot, "snapshots", id)
}

// Create records each file's content, SHA-256, and mode under a new
// snapshot directory (0700) with files at 0600. Nonexistent files
// are recorded as tombstones so restore can delete them.
func (m *Manager) Create(files []string, description string) (*model.Snapshot, error) {
	id := newULID()
	dir := m.snapshotDir(id)
	if err := m.fs.MkdirAll(filepath.Join(dir, "files"), 0o700); err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to create snapshot directory", err)
	}

	snap := &model.Snapshot{ID: id, CreatedAt: time.Now().UTC(), Description: description}
	man := manifest{ID: id, CreatedAt: snap.CreatedAt.Format(time.RFC3339Nano), Description: description}

	sortedFiles := append([]string{}, files...)
	sort.Strings(sortedFiles)

	for i, path := range sortedFiles {
		entry := model.SnapshotEntry{OriginalPath: path}
		info, err := m.fs.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("failed to stat %s", path), err)
			}
			entry.Tombstone = true
			snap.Entries = append(snap.Entries, entry)
			man.Entries = append(man.Entries, toManifestEntry(entry, ""))
			continue
		}

		data, err := afero.ReadFile(m.fs, path)
		if err != nil {
			return nil, ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("failed to read %s", path), err)
		}
		sum := sha256.Sum256(data)
		storedRel := strconv.Itoa(i)
		storedPath := filepath.Join(dir, "files", storedRel)
		if err := afero.WriteFile(m.fs, storedPath, data, 0o600); err != nil {
			return nil, ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("failed to store snapshot copy of %s", path), err)
		}
		entry.StoredPath = storedRel
		entry.SHA256 = hex.EncodeToString(sum[:])
		entry.Mode = uint32(info.Mode().Perm())
		entry.Size = info.Size()
		snap.Entries = append(snap.Entries, entry)
		man.Entries = append(man.Entries, toManifestEntry(entry, storedRel))
	}

	b, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to marshal snapshot manifest", err)
	}
	if err := afero.WriteFile(m.fs, filepath.Join(dir, "manifest.json"), b, 0o600); err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to write snapshot manifest", err)
	}
	return snap, nil
}

// Verify recomputes each recorded file's SHA-256 from the snapshot's own
// stored copy and compares it with the recorded hash. It checks the
// entries of snap only; manifest.json is not re-read.
func (m *Manager) Verify(snap *model.Snapshot) bool {
	dir := m.snapshotDir(snap.ID)
	for _, e := range snap.Entries {
		if e.Tombstone {
			continue
		}
		data, err := afero.ReadFile(m.fs, filepath.Join(dir, "files", e.StoredPath))
		if err != nil {
			return false
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != e.SHA256 {
			return false
		}
	}
	return true
}

// Restore recreates the exact original bytes and mode for every recorded
// path, deleting paths that were tombstoned at snapshot time, so that
// restore deterministically recreates the original state.
func (m *Manager) Restore(snap *model.Snapshot) error {
	dir := m.snapshotDir(snap.ID)
	for _, e := range snap.Entries {
		if e.Tombstone {
			if err := m.fs.Remove(e.OriginalPath); err != nil && !os.IsNotExist(err) {
				return ciherr.Wrap(ciherr.KindRollbackFailed, fmt.Sprintf("failed to remove %s during restore", e.OriginalPath), err)
			}
			continue
		}
		data, err := afero.ReadFile(m.fs, filepath.Join(dir, "files", e.StoredPath))
		if err != nil {
			return ciherr.Wrap(ciherr.KindRollbackFailed, fmt.Sprintf("failed to read stored copy of %s", e.OriginalPath), err)
		}
		if err := m.fs.MkdirAll(filepath.Dir(e.OriginalPath), 0o755); err != nil {
			return ciherr.Wrap(ciherr.KindRollbackFailed, fmt.Sprintf("failed to recreate parent dir of %s", e.OriginalPath), err)
		}
		if err := afero.WriteFile(m.fs, e.OriginalPath, data, os.FileMode(e.Mode)); err != nil {
			return ciherr.Wrap(ciherr.KindRollbackFailed, fmt.Sprintf("failed to restore %s", e.OriginalPath), err)
		}
		if err := m.fs.Chmod(e.OriginalPath, os.FileMode(e.Mode)); err != nil {
			return ciherr.Wrap(ciherr.KindRollbackFailed, fmt.Sprintf("failed to restore mode of %s", e.OriginalPath), err)
		}
	}
	return nil
}

// GC deletes snapshots older than retention, unless their id is in keep
// (ids referenced by an un-reclaimed FixResult), and additionally caps the
// number of retained snapshots at maxCount even within the retention
// window, so a tight loop of fix attempts cannot grow the cache root
// without bound.
func (m *Manager) GC(retention time.Duration, maxCount int, keep map[string]bool) error {
	snapshotsDir := filepath.Join(m.cacheRoot, "snapshots")
	entries, err := afero.ReadDir(m.fs, snapshotsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ciherr.Wrap(ciherr.KindIO, "failed to list snapshots for gc", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	// ULIDs are lexicographically sortable by creation time.
	sort.Strings(ids)

	cutoff := time.Now().Add(-retention)
	var toDelete []string
	for i, id := range ids {
		if keep[id] {
			continue
		}
		overCount := len(ids)-i > maxCount
		createdAt, err := ulidTime(id)
		overAge := err == nil && createdAt.Before(cutoff)
		if overCount || overAge {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		if err := m.fs.RemoveAll(filepath.Join(snapshotsDir, id)); err != nil {
			return ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("failed to remove snapshot %s during gc", id), err)
		}
	}
	return nil
}

// List returns every stored snapshot id in ascending (creation) order.
func (m *Manager) List() ([]string, error) {
	snapshotsDir := filepath.Join(m.cacheRoot, "snapshots")
	entries, err := afero.ReadDir(m.fs, snapshotsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to list snapshots", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Export reads a stored snapshot's manifest and file payloads back as raw
// bytes, e.g. for handing to a snapshot mirror.
func (m *Manager) Export(id string) ([]byte, map[string][]byte, error) {
	dir := m.snapshotDir(id)
	man, err := afero.ReadFile(m.fs, filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, nil, ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("failed to read manifest of snapshot %s", id), err)
	}
	filesDir := filepath.Join(dir, "files")
	infos, err := afero.ReadDir(m.fs, filesDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("failed to list files of snapshot %s", id), err)
	}
	files := map[string][]byte{}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		data, err := afero.ReadFile(m.fs, filepath.Join(filesDir, info.Name()))
		if err != nil {
			return nil, nil, ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("failed to read stored file %s of snapshot %s", info.Name(), id), err)
		}
		files[info.Name()] = data
	}
	return man, files, nil
}

func toManifestEntry(e model.SnapshotEntry, storedPath string) manifestEntryJSON {
	return manifestEntryJSON{
		OriginalPath: e.OriginalPath,
		StoredPath:   storedPath,
		SHA256:       e.SHA256,
		Mode:         e.Mode,
		Size:         e.Size,
		Tombstone:    e.Tombstone,
	}
}

func newULID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Now(), entropy).String()
}

func ulidTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
