package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottlz0310/ci-helper/internal/application/port/output"
)

func TestLocalSnapshotMirror_RoundTrip(t *testing.T) {
	mirror, err := NewLocalSnapshotMirror(t.TempDir())
	require.NoError(t, err)

	entry, err := mirror.SaveSnapshot(context.Background(), output.SaveSnapshotRequest{
		SnapshotID: "01JLOCAL",
		Manifest:   []byte(`{"id":"01JLOCAL"}`),
		Files:      map[string][]byte{"0": []byte("bytes")},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(entry.StoragePath), "01JLOCAL")

	loaded, err := mirror.LoadSnapshot(context.Background(), "01JLOCAL")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"01JLOCAL"}`), loaded.Manifest)
	assert.Equal(t, []byte("bytes"), loaded.Files["0"])

	entries, err := mirror.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, mirror.DeleteSnapshot(context.Background(), "01JLOCAL"))
	entries, err = mirror.ListSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalSnapshotMirror_LoadMissing(t *testing.T) {
	mirror, err := NewLocalSnapshotMirror(t.TempDir())
	require.NoError(t, err)

	_, err = mirror.LoadSnapshot(context.Background(), "missing")
	assert.Error(t, err)
}
