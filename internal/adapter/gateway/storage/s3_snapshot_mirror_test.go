package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottlz0310/ci-helper/internal/application/port/output"
)

func TestS3SnapshotMirror_SaveAndLoad(t *testing.T) {
	client := NewMockS3Client()
	mirror := NewS3SnapshotMirrorWithClient(client, "test-bucket", "ci-helper/prod")

	entry, err := mirror.SaveSnapshot(context.Background(), output.SaveSnapshotRequest{
		SnapshotID: "01J0000000000000000000TEST",
		Manifest:   []byte(`{"id":"01J0000000000000000000TEST"}`),
		Files: map[string][]byte{
			"0": []byte("original content"),
			"1": []byte("second file"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "01J0000000000000000000TEST", entry.SnapshotID)
	assert.Contains(t, entry.StoragePath, "s3://test-bucket/ci-helper/prod/snapshots/")
	assert.NotEmpty(t, entry.SHA256)

	loaded, err := mirror.LoadSnapshot(context.Background(), "01J0000000000000000000TEST")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"01J0000000000000000000TEST"}`), loaded.Manifest)
	assert.Equal(t, []byte("original content"), loaded.Files["0"])
	assert.Equal(t, []byte("second file"), loaded.Files["1"])
	assert.Equal(t, entry.SHA256, loaded.Entry.SHA256)
}

func TestS3SnapshotMirror_LoadMissing(t *testing.T) {
	mirror := NewS3SnapshotMirrorWithClient(NewMockS3Client(), "test-bucket", "")

	_, err := mirror.LoadSnapshot(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestS3SnapshotMirror_ListAndDelete(t *testing.T) {
	client := NewMockS3Client()
	mirror := NewS3SnapshotMirrorWithClient(client, "test-bucket", "")

	for _, id := range []string{"01B", "01A"} {
		_, err := mirror.SaveSnapshot(context.Background(), output.SaveSnapshotRequest{
			SnapshotID: id,
			Manifest:   []byte("{}"),
			Files:      map[string][]byte{"0": []byte("x")},
		})
		require.NoError(t, err)
	}

	entries, err := mirror.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Sorted by id, which for ULID-shaped ids is creation order.
	assert.Equal(t, "01A", entries[0].SnapshotID)
	assert.Equal(t, "01B", entries[1].SnapshotID)

	require.NoError(t, mirror.DeleteSnapshot(context.Background(), "01A"))
	entries, err = mirror.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "01B", entries[0].SnapshotID)
	assert.Equal(t, 2, client.ObjectCount())
}

func TestS3SnapshotMirror_RejectsEmptyID(t *testing.T) {
	mirror := NewS3SnapshotMirrorWithClient(NewMockS3Client(), "test-bucket", "")
	_, err := mirror.SaveSnapshot(context.Background(), output.SaveSnapshotRequest{})
	assert.Error(t, err)
}
