package file

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FindStale lists regular files under dir last modified before cutoff.
// A missing dir yields no files.
func FindStale(dir string, cutoff time.Time) ([]string, error) {
	var stale []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() && info.ModTime().Before(cutoff) {
			stale = append(stale, path)
		}
		return nil
	})

	return stale, err
}

// RemoveStale deletes what FindStale reports and returns how many files
// were removed.
func RemoveStale(dir string, cutoff time.Time) (int, error) {
	stale, err := FindStale(dir, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
