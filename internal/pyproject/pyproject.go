// Package pyproject decodes a pyproject.toml into the generic mapping the
// metadata model consumes.
package pyproject

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/frederic-klein/yapb/internal/errors"
	"github.com/frederic-klein/yapb/internal/project"
	"github.com/frederic-klein/yapb/internal/scm"
)

// Load reads the descriptor of the project rooted at root.
func Load(root string) (map[string]any, error) {
	return LoadFile(filepath.Join(root, project.DescriptorFile))
}

// LoadFile decodes the TOML file at path.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "reading %s", path)
	}
	return Decode(data)
}

// Decode decodes TOML text.
func Decode(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "parsing %s", project.DescriptorFile)
	}
	return doc, nil
}

// LoadMetadata reads and normalizes the descriptor of the project at root.
func LoadMetadata(root string) (*project.Metadata, error) {
	doc, err := Load(root)
	if err != nil {
		return nil, err
	}
	return project.LoadWithSCM(doc, os.DirFS(root), func() (string, error) {
		return scm.Version(root, time.Now())
	})
}
