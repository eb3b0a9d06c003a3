package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestInitCreatesJobDirectory checks the per-job path layout.
func TestInitCreatesJobDirectory(t *testing.T) {
	root := t.TempDir()
	w := New(root)

	dir, err := w.Init("job-1")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if dir != filepath.Join(root, "jobs", "job-1") {
		t.Errorf("dir = %q", dir)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("job directory missing: %v", err)
	}
}

// TestJobsDoNotCollide checks two jobs get distinct directories.
func TestJobsDoNotCollide(t *testing.T) {
	w := New(t.TempDir())

	a, err := w.Init("job-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := w.Init("job-b")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("job directories collide: %q", a)
	}
}

// TestRemoveDeletesAllArtifacts checks recursive cleanup.
func TestRemoveDeletesAllArtifacts(t *testing.T) {
	w := New(t.TempDir())
	dir, err := w.Init("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "source.bin"), []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "source.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := w.Remove("job-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("job directory should be gone, stat err = %v", err)
	}
}

// TestRemoveIsIdempotent checks removing twice is not an error.
func TestRemoveIsIdempotent(t *testing.T) {
	w := New(t.TempDir())
	if _, err := w.Init("job-1"); err != nil {
		t.Fatal(err)
	}
	if err := w.Remove("job-1"); err != nil {
		t.Fatal(err)
	}
	if err := w.Remove("job-1"); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
}
