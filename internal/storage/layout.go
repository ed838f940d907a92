// Package storage owns the on-disk data directories and publication of
// finished renders.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/MimeLyc/timeline-renderer/pkg/file"
	"github.com/google/uuid"
)

const (
	UploadsPrefix = "/uploads/"
	RendersPrefix = "/renders/"
)

// Layout is the data directory tree: uploads/, renders/ and tmp/.
type Layout struct {
	Root string
}

func (l Layout) Uploads() string { return filepath.Join(l.Root, "uploads") }
func (l Layout) Renders() string { return filepath.Join(l.Root, "renders") }
func (l Layout) Temp() string    { return filepath.Join(l.Root, "tmp") }

func (l Layout) Ensure() error {
	for _, dir := range []string{l.Uploads(), l.Renders(), l.Temp()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// OutputName is the rendered file name for a job.
func OutputName(jobID string) string {
	return "render-" + jobID + ".mp4"
}

func (l Layout) RenderPath(jobID string) string {
	return filepath.Join(l.Renders(), OutputName(jobID))
}

// SaveUpload stores r under a fresh uuid name that keeps originalName's
// extension and returns the stored file name.
func (l Layout) SaveUpload(r io.Reader, originalName string) (string, error) {
	name := file.ReplaceExt(uuid.NewString(), file.SafeExt(originalName))
	path := filepath.Join(l.Uploads(), name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return name, nil
}

// Remove deletes path, tolerating a file that is already gone.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
