package layout

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
)

var skippedDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".bzr": true,
	".tox": true, ".nox": true, ".venv": true,
	".mypy_cache": true, ".pytest_cache": true, "__pycache__": true,
}

// Snapshot lists the regular files of a project tree, sorted, as POSIX
// paths relative to its root. The build directory, VCS and tool caches and
// bytecode are left out.
func Snapshot(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == BuildDir || skippedDirs[d.Name()] || path.Ext(d.Name()) == ".egg-info" {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		switch path.Ext(p) {
		case ".pyc", ".pyo":
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking project tree: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
