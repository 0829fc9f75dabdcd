package backup

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/hupe1980/memmesh/core"
)

func newSQLiteStore(t *testing.T) *SQLiteSnapshotStore {
	t.Helper()
	s, err := NewSQLiteSnapshotStore(filepath.Join(t.TempDir(), "snapshots.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSnapshotStore_WriteReadDelete(t *testing.T) {
	s := newSQLiteStore(t)

	if err := s.Write(1, []byte("one")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Write(2, []byte("two")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	blob, err := s.Read(1)
	if err != nil || string(blob) != "one" {
		t.Fatalf("read mismatch: %q err %v", blob, err)
	}

	seqs, err := s.Sequences()
	if err != nil || len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("unexpected sequences: %v err %v", seqs, err)
	}

	if err := s.Delete(1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Read(1); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting an unknown sequence is a no-op
	if err := s.Delete(42); err != nil {
		t.Fatalf("delete unknown must not fail: %v", err)
	}
}

func TestSQLiteSnapshotStore_OverwriteIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	s.Write(5, []byte("first"))
	if err := s.Write(5, []byte("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	blob, _ := s.Read(5)
	if string(blob) != "second" {
		t.Fatalf("expected overwritten blob, got %q", blob)
	}
	seqs, _ := s.Sequences()
	if len(seqs) != 1 {
		t.Fatalf("overwrite must not duplicate rows: %v", seqs)
	}
}

func TestSQLiteSnapshotStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots.sqlite")

	s, err := NewSQLiteSnapshotStore(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Write(3, []byte("durable")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := NewSQLiteSnapshotStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	blob, err := reopened.Read(3)
	if err != nil || string(blob) != "durable" {
		t.Fatalf("blob lost across reopen: %q err %v", blob, err)
	}
}
