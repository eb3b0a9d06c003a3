package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace implements ports.Workspace on the local filesystem. Every
// job gets its own directory under <root>/jobs/<jobID> so concurrent
// jobs never collide.
type Workspace struct {
	root string
}

// New creates a Workspace rooted at the given temp directory.
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Init creates the job directory and returns its path.
func (w *Workspace) Init(jobID string) (string, error) {
	path := w.Path(jobID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	return path, nil
}

// Path returns the directory for a job without creating it.
func (w *Workspace) Path(jobID string) string {
	return filepath.Join(w.root, "jobs", jobID)
}

// Remove deletes the job directory and all artifacts in it. Removing an
// already-removed directory is not an error.
func (w *Workspace) Remove(jobID string) error {
	if err := os.RemoveAll(w.Path(jobID)); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}
	return nil
}
