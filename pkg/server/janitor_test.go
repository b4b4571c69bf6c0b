package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRemoveStaleUploads(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	files := map[string]time.Duration{
		"old.png":    48 * time.Hour,
		"older.jpg":  72 * time.Hour,
		"fresh.png":  time.Hour,
		".gitignore": 100 * time.Hour,
	}
	for name, age := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		mtime := now.Add(-age)
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "keep"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	removed, err := removeStaleUploads(dir, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("removeStaleUploads: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	for name, wantExists := range map[string]bool{
		"old.png":    false,
		"older.jpg":  false,
		"fresh.png":  true,
		".gitignore": true,
		"keep":       true,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		if exists := err == nil; exists != wantExists {
			t.Errorf("%s exists = %v, want %v", name, exists, wantExists)
		}
	}
}

func TestRemoveStaleUploadsEdges(t *testing.T) {
	if n, err := removeStaleUploads(filepath.Join(t.TempDir(), "missing"), time.Hour, time.Now()); n != 0 || err != nil {
		t.Fatalf("missing dir: got %d, %v", n, err)
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "ancient.png")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-1000 * time.Hour)
	_ = os.Chtimes(p, old, old)

	if n, err := removeStaleUploads(dir, 0, time.Now()); n != 0 || err != nil {
		t.Fatalf("zero retention: got %d, %v", n, err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("zero retention must keep files: %v", err)
	}
}
