package picker

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestInspectImage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "gauge.png")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	_ = f.Close()

	info, err := Inspect(p)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Name != "gauge.png" {
		t.Errorf("name = %q, want gauge.png", info.Name)
	}
	if info.MIME != "image/png" || !info.IsImage {
		t.Errorf("mime = %q image = %v, want image/png", info.MIME, info.IsImage)
	}
	if info.Width != 64 || info.Height != 48 {
		t.Errorf("dimensions = %dx%d, want 64x48", info.Width, info.Height)
	}
	if info.Size == 0 {
		t.Errorf("size should be non-zero")
	}
}

func TestInspectArbitraryFile(t *testing.T) {
	p := writeFile(t, "notes.txt", []byte("needle stuck at 40 psi\n"))

	info, err := Inspect(p)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.IsImage {
		t.Errorf("text file reported as image")
	}
	if !strings.HasPrefix(info.MIME, "text/plain") {
		t.Errorf("mime = %q, want text/plain", info.MIME)
	}
	if info.Width != 0 || info.Height != 0 {
		t.Errorf("text file should have no dimensions")
	}
}

func TestInspectErrors(t *testing.T) {
	if _, err := Inspect(""); !errors.Is(err, ErrCancelled) {
		t.Errorf("empty path: got %v, want ErrCancelled", err)
	}
	if _, err := Inspect(t.TempDir()); err == nil {
		t.Errorf("directory should be rejected")
	}
	if _, err := Inspect(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Errorf("missing file should be rejected")
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName("/"); got != UnknownName {
		t.Errorf("displayName(/) = %q, want %q", got, UnknownName)
	}
	if got := displayName("dir/photo.jpg"); got != "photo.jpg" {
		t.Errorf("displayName = %q, want photo.jpg", got)
	}
}
