package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/scottlz0310/ci-helper/internal/application/port/output"
)

// LocalSnapshotMirror implements output.SnapshotMirror against a local
// directory, typically a second disk or a network mount. Layout mirrors
// the S3 variant: <baseDir>/snapshots/<snapshotID>/{manifest.json,files/...}.
type LocalSnapshotMirror struct {
	baseDir string
}

// NewLocalSnapshotMirror creates the base directory if absent.
func NewLocalSnapshotMirror(baseDir string) (*LocalSnapshotMirror, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "snapshots"), 0o700); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}
	return &LocalSnapshotMirror{baseDir: baseDir}, nil
}

func (m *LocalSnapshotMirror) snapshotDir(id string) string {
	return filepath.Join(m.baseDir, "snapshots", id)
}

// SaveSnapshot writes the manifest and file payloads under the mirror root.
func (m *LocalSnapshotMirror) SaveSnapshot(ctx context.Context, req output.SaveSnapshotRequest) (*output.MirrorEntry, error) {
	if req.SnapshotID == "" {
		return nil, fmt.Errorf("snapshot id is empty")
	}
	dir := m.snapshotDir(req.SnapshotID)
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o700); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), req.Manifest, 0o600); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	var total int64 = int64(len(req.Manifest))
	for p, data := range req.Files {
		dst := filepath.Join(dir, "files", filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			return nil, fmt.Errorf("create file directory: %w", err)
		}
		if err := os.WriteFile(dst, data, 0o600); err != nil {
			return nil, fmt.Errorf("write file %s: %w", p, err)
		}
		total += int64(len(data))
	}

	sum := sha256.Sum256(req.Manifest)
	return &output.MirrorEntry{
		SnapshotID:  req.SnapshotID,
		StoragePath: dir,
		Size:        total,
		MirroredAt:  time.Now().UTC(),
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

// LoadSnapshot reads a mirrored snapshot back.
func (m *LocalSnapshotMirror) LoadSnapshot(ctx context.Context, snapshotID string) (*output.MirroredSnapshot, error) {
	dir := m.snapshotDir(snapshotID)
	manifest, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest for %s: %w", snapshotID, err)
	}

	filesDir := filepath.Join(dir, "files")
	files := map[string][]byte{}
	var total int64 = int64(len(manifest))
	err = filepath.WalkDir(filesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(filesDir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		total += int64(len(data))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read files for %s: %w", snapshotID, err)
	}

	sum := sha256.Sum256(manifest)
	return &output.MirroredSnapshot{
		Entry: output.MirrorEntry{
			SnapshotID:  snapshotID,
			StoragePath: dir,
			Size:        total,
			SHA256:      hex.EncodeToString(sum[:]),
		},
		Manifest: manifest,
		Files:    files,
	}, nil
}

// ListSnapshots enumerates mirrored snapshot ids in sorted order.
func (m *LocalSnapshotMirror) ListSnapshots(ctx context.Context) ([]output.MirrorEntry, error) {
	root := filepath.Join(m.baseDir, "snapshots")
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var entries []output.MirrorEntry
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		entries = append(entries, output.MirrorEntry{
			SnapshotID:  d.Name(),
			StoragePath: filepath.Join(root, d.Name()),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SnapshotID < entries[j].SnapshotID })
	return entries, nil
}

// DeleteSnapshot removes the mirrored snapshot directory.
func (m *LocalSnapshotMirror) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	return os.RemoveAll(m.snapshotDir(snapshotID))
}
