package meshstorage

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func testShards() [][]byte {
	shards := make([][]byte, TotalShards)
	for i := range shards {
		shards[i] = bytes.Repeat([]byte{byte(i)}, 8)
	}
	return shards
}

func TestLocalStorage(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	m := Manifest{CID: "bafk-test", Size: 75, ShardSize: 8, DataShards: DataShards, ParityShards: ParityShards}
	shards := testShards()
	shards[14] = nil

	if err := storage.Put(m, shards); err != nil {
		t.Fatalf("Failed to put content: %v", err)
	}

	got, err := storage.GetManifest("bafk-test")
	if err != nil {
		t.Fatalf("Failed to get manifest: %v", err)
	}
	if got.Size != 75 || got.ShardSize != 8 || got.DataShards != DataShards {
		t.Errorf("Manifest mismatch: %+v", got)
	}
	if got.StoredAt.IsZero() {
		t.Error("Expected StoredAt to be set")
	}

	shard, err := storage.GetShard("bafk-test", 3)
	if err != nil {
		t.Fatalf("Failed to get shard: %v", err)
	}
	if !bytes.Equal(shard, shards[3]) {
		t.Error("Shard 3 mismatch")
	}

	if _, err := storage.GetShard("bafk-test", 14); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for skipped shard, got %v", err)
	}

	all, err := storage.GetShards("bafk-test")
	if err != nil {
		t.Fatalf("Failed to get shards: %v", err)
	}
	if len(all) != TotalShards || all[14] != nil || all[0] == nil {
		t.Errorf("Unexpected shard layout: %d entries", len(all))
	}

	stats, err := storage.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Contents != 1 || stats.Shards != 14 || stats.TotalSize != 14*8 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if err := storage.DeleteShard("bafk-test", 0); err != nil {
		t.Fatalf("Failed to delete shard: %v", err)
	}
	if err := storage.DeleteShard("bafk-test", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}

	if err := storage.Delete("bafk-test"); err != nil {
		t.Fatalf("Failed to delete content: %v", err)
	}
	if _, err := storage.GetManifest("bafk-test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := storage.Delete("bafk-test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStorageReopen(t *testing.T) {
	dir := t.TempDir()

	storage, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	m := Manifest{CID: "bafk-persist", Size: 10, ShardSize: 1, DataShards: DataShards, ParityShards: ParityShards}
	if err := storage.Put(m, testShards()); err != nil {
		t.Fatalf("Failed to put content: %v", err)
	}
	storage.Close()

	storage, err = NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer storage.Close()

	if _, err := storage.GetManifest("bafk-persist"); err != nil {
		t.Fatalf("Manifest lost across reopen: %v", err)
	}
}

func TestStorageCleanup(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	m := Manifest{CID: "bafk-old", Size: 10, ShardSize: 1, DataShards: DataShards, ParityShards: ParityShards}
	if err := storage.Put(m, testShards()); err != nil {
		t.Fatalf("Failed to put content: %v", err)
	}

	removed, err := storage.Cleanup(time.Hour)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected nothing removed, got %d", removed)
	}

	removed, err = storage.Cleanup(-time.Minute)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	stats, err := storage.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Shards != 0 {
		t.Errorf("Expected shards removed with manifest, got %d", stats.Shards)
	}
}
