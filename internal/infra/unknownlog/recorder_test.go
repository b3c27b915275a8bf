package unknownlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

func TestRecorder_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unknown.jsonl")
	rec, err := New(path)
	require.NoError(t, err)

	failures := []model.Failure{
		{Kind: model.FailureUnknown, Message: "CustomLib[ERROR]: widget not found in registry-42", Fingerprint: "fp1"},
		{Kind: model.FailureUnknown, Message: "CustomLib[ERROR]: widget not found in registry-7", Fingerprint: "fp1"},
	}
	require.NoError(t, rec.Record("run-1", failures))
	require.NoError(t, rec.Close())

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.FailureUnknown, got[0].Kind)
	assert.Equal(t, "fp1", got[0].Fingerprint)
	assert.Contains(t, got[1].Message, "registry-7")
}

func TestReadAll_MissingFileIsEmpty(t *testing.T) {
	got, err := ReadAll(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
