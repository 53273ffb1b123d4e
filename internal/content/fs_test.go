package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/franz/bgdb/internal/util"
)

func TestFSStoreWriteOnce(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}

	written, err := s.Write(ctx, "11202_bg.jpg", []byte("first"))
	if err != nil || !written {
		t.Fatalf("first Write = %v, %v", written, err)
	}

	written, err = s.Write(ctx, "11202_bg.jpg", []byte("second"))
	if err != nil || written {
		t.Fatalf("second Write = %v, %v; expected no-op", written, err)
	}

	data, err := s.Read(ctx, "11202_bg.jpg")
	if err != nil || string(data) != "first" {
		t.Errorf("Read = %q, %v", data, err)
	}

	ok, err := s.Exists(ctx, "11202_bg.jpg")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	ok, _ = s.Exists(ctx, "11202_missing.jpg")
	if ok {
		t.Error("missing identity reported as existing")
	}

	if _, err := s.Read(ctx, "11202_missing.jpg"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Read(ctx, "../etc_passwd"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound for traversal, got %v", err)
	}
	if _, err := s.Write(ctx, "bad/name", []byte("x")); !errors.Is(err, util.ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite for invalid identity, got %v", err)
	}
}

func TestFSStoreList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFS(dir)

	s.Write(ctx, "2_b.png", []byte("b"))
	s.Write(ctx, "1_a.jpg", []byte("a"))
	os.WriteFile(filepath.Join(dir, ".tmp-leftover"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(dir, "3_dir"), 0755)

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "1_a.jpg" || ids[1] != "2_b.png" {
		t.Errorf("unexpected identities %v", ids)
	}
}

func TestFSStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFS(t.TempDir())

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Write(ctx, "5_bg.jpg", []byte("same"))
			if err != nil {
				t.Errorf("Write failed: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one writer to win, got %d", wins.Load())
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}
