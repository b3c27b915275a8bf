package cachestore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Put("fp1:v1", []byte("result-bytes"), 12); err != nil {
		t.Fatal(err)
	}
	value, ok, err := c.Get("fp1:v1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(value) != "result-bytes" {
		t.Fatalf("unexpected value: %q", value)
	}
}

func TestGetMissOnUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, ok, err := c.Get("nope")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestTTLExpiryIsTreatedAsMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, 0, time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Put("fp1", []byte("x"), 1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	_, ok, err := c.Get("fp1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ttl-expired entry to be treated as a miss")
	}
}

func TestInvalidateDeletesByPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_ = c.Put("fp1:v1", []byte("a"), 1)
	_ = c.Put("fp1:v2", []byte("b"), 1)
	_ = c.Put("fp2:v1", []byte("c"), 1)

	if err := c.Invalidate("fp1:"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get("fp1:v1"); ok {
		t.Fatal("expected fp1:v1 invalidated")
	}
	if _, ok, _ := c.Get("fp2:v1"); !ok {
		t.Fatal("expected fp2:v1 unaffected by unrelated prefix invalidation")
	}
}

func TestPutEvictsLeastRecentlyAccessedWhenOverBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, 10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Put("old", []byte("0123456789"), 10); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := c.Put("new", []byte("abcdefghij"), 10); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := c.Get("old"); ok {
		t.Fatal("expected least-recently-accessed entry evicted once over budget")
	}
	if _, ok, _ := c.Get("new"); !ok {
		t.Fatal("expected most recent entry to survive eviction")
	}
}
