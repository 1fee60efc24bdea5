package watcher

import (
	"path/filepath"
)

// Canonical returns the absolute, symlink-free form of path. When path
// itself no longer exists (a file removed mid-save) its directory is
// resolved instead and the base name re-attached, so events for a
// vanished file still compare equal to the original target.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}
