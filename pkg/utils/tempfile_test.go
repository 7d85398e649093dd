package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestTempScopeReleaseRemovesAdoptedAndCreated(t *testing.T) {
	dir := t.TempDir()
	upload := filepath.Join(dir, "upload.wav")
	writeFile(t, upload)

	scope := NewTempScope(dir)
	scope.Adopt(upload)

	derived, err := scope.NewPath(".wav")
	if err != nil {
		t.Fatalf("NewPath failed: %v", err)
	}
	writeFile(t, derived)

	if len(scope.Paths()) != 2 {
		t.Fatalf("Expected 2 owned paths, got %d", len(scope.Paths()))
	}

	if err := scope.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	for _, p := range []string{upload, derived} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be removed", p)
		}
	}
}

func TestTempScopeReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	scope := NewTempScope(dir)

	p, err := scope.NewPath(".tmp")
	if err != nil {
		t.Fatalf("NewPath failed: %v", err)
	}
	writeFile(t, p)

	if err := scope.Release(); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	if err := scope.Release(); err != nil {
		t.Fatalf("Second release should be a no-op, got: %v", err)
	}
	if len(scope.Paths()) != 0 {
		t.Errorf("Expected no owned paths after release, got %v", scope.Paths())
	}
}

func TestTempScopeIgnoresNeverWrittenPaths(t *testing.T) {
	scope := NewTempScope(t.TempDir())
	if _, err := scope.NewPath(".wav"); err != nil {
		t.Fatalf("NewPath failed: %v", err)
	}
	if err := scope.Release(); err != nil {
		t.Errorf("Release should ignore missing files, got: %v", err)
	}
}

func TestTempScopeUniqueNames(t *testing.T) {
	dir := t.TempDir()
	scope := NewTempScope(dir)
	defer scope.Release()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := scope.NewPath(".wav")
		if err != nil {
			t.Fatalf("NewPath failed: %v", err)
		}
		if seen[p] {
			t.Fatalf("Duplicate temp path: %s", p)
		}
		seen[p] = true
		if !strings.HasPrefix(p, dir) || filepath.Ext(p) != ".wav" {
			t.Errorf("Unexpected path %s", p)
		}
	}
}

func TestTempScopeCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tmp")
	scope := NewTempScope(dir)
	defer scope.Release()

	if _, err := scope.NewPath(".wav"); err != nil {
		t.Fatalf("NewPath failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Expected scope directory to be created: %v", err)
	}
}

func TestFileSize(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	writeFile(t, p)

	size, err := FileSize(p)
	if err != nil {
		t.Fatalf("FileSize failed: %v", err)
	}
	if size != 4 {
		t.Errorf("Expected size 4, got %d", size)
	}

	if _, err := FileSize(dir); err == nil {
		t.Error("FileSize should reject directories")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, src)

	dst := filepath.Join(dir, "dst")
	n, err := CopyFile(src, dst)
	if err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 bytes copied, got %d", n)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("Source must be left in place")
	}

	if _, err := CopyFile(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("Expected error for missing source")
	}
}
