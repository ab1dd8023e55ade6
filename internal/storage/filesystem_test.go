package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteAndRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	payload := []byte("mp4 payload")
	key, err := store.Write(context.Background(), "renders/job-1/video.mp4", payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "renders/job-1/video.mp4" {
		t.Fatalf("unexpected key %q", key)
	}

	got, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read mismatch: got %q", got)
	}

	onDisk, err := os.ReadFile(filepath.Join(store.BasePath(), "renders", "job-1", "video.mp4"))
	if err != nil {
		t.Fatalf("stat written file: %v", err)
	}
	if !bytes.Equal(onDisk, payload) {
		t.Fatal("on-disk content mismatch")
	}
}

func TestFileStoreRejectsTraversalKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	for _, key := range []string{"", "../escape.mp4", "a/../../escape.mp4", "."} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("key %q: expected error", key)
		}
	}
}

func TestFileStoreNormalizesKeySeparators(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	key, err := store.Write(context.Background(), `renders\job-2\video.mp4`, []byte("x"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "renders/job-2/video.mp4" {
		t.Fatalf("unexpected key %q", key)
	}
}
