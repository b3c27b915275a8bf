package snapshotstore

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestCreateThenRestoreRecreatesOriginalBytes(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "a.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New(fs, "/cache")

	snap, err := m.Create([]string{"a.txt"}, "pre-fix")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Verify(snap) {
		t.Fatal("expected freshly created snapshot to verify")
	}

	if err := afero.WriteFile(fs, "a.txt", []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Restore(snap); err != nil {
		t.Fatal(err)
	}
	data, err := afero.ReadFile(fs, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "x" {
		t.Fatalf("expected restored content 'x', got %q", data)
	}
}

func TestCreateRecordsTombstoneForMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/cache")
	snap, err := m.Create([]string{"missing.txt"}, "pre-fix")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Entries[0].Tombstone {
		t.Fatal("expected tombstone entry for nonexistent file")
	}

	if err := afero.WriteFile(fs, "missing.txt", []byte("created by fix"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Restore(snap); err != nil {
		t.Fatal(err)
	}
	exists, _ := afero.Exists(fs, "missing.txt")
	if exists {
		t.Fatal("expected restore to delete a file created during the fix")
	}
}

func TestSnapshotIDsAreLexicographicallySortable(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/cache")
	s1, err := m.Create(nil, "first")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	s2, err := m.Create(nil, "second")
	if err != nil {
		t.Fatal(err)
	}
	if !(s1.ID < s2.ID) {
		t.Fatalf("expected later snapshot id to sort after earlier one: %s vs %s", s1.ID, s2.ID)
	}
}

func TestGCRespectsKeepSet(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/cache")
	snap, err := m.Create(nil, "keep me")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.GC(0, 0, map[string]bool{snap.ID: true}); err != nil {
		t.Fatal(err)
	}
	if !m.Verify(snap) {
		t.Fatal("expected kept snapshot to survive gc even past retention/maxCount")
	}
}
