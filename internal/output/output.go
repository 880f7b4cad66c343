// Package output writes artifacts so that nothing incomplete is ever left
// under the requested file name.
package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is an artifact being written. Content goes to a temporary file in
// the destination directory; Commit renames it into place and Abort
// removes it.
type File struct {
	*os.File
	dest string
	done bool
}

// Create opens a scoped artifact named name in dir, creating dir as needed.
func Create(dir, name string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	dest := filepath.Join(dir, name)

	// Write to temp file first, then rename
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	return &File{File: tmp, dest: dest}, nil
}

// Path returns the final path of the artifact.
func (f *File) Path() string {
	return f.dest
}

// Commit closes the file and moves it to its final name.
func (f *File) Commit() error {
	if f.done {
		return fmt.Errorf("%s already finished", f.dest)
	}
	f.done = true
	tmpPath := f.Name()

	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmpPath, f.dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

// Abort discards the file. It is a no-op after Commit, so it can be
// deferred unconditionally.
func (f *File) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.Close()
	os.Remove(f.Name())
}
