// Package inspect reads built artifacts back: member listings, core
// metadata and RECORD verification. It never extracts to disk.
package inspect

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/yapb/internal/distinfo"
	"github.com/frederic-klein/yapb/internal/pkginfo"
)

// Kind is the artifact format.
type Kind string

const (
	KindSdist Kind = "sdist"
	KindWheel Kind = "wheel"
)

// Member is one regular file in an artifact.
type Member struct {
	Name string `yaml:"name" json:"name"`
	Size int64  `yaml:"size" json:"size"`
	Mode int64  `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// Archive is an artifact loaded into memory.
type Archive struct {
	Path    string
	Kind    Kind
	members []Member
	data    map[string][]byte
}

// Open loads the sdist (.tar.gz) or wheel (.whl) at p.
func Open(p string) (*Archive, error) {
	a := &Archive{Path: p, data: make(map[string][]byte)}
	var err error
	switch {
	case strings.HasSuffix(p, ".tar.gz"):
		a.Kind = KindSdist
		err = a.readTarball(p)
	case strings.HasSuffix(p, ".whl"):
		a.Kind = KindWheel
		err = a.readWheel(p)
	default:
		return nil, fmt.Errorf("unknown artifact type: %s", p)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) readTarball(p string) error {
	file, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("opening tarball: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("decompressing tarball: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tarball: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tarReader)
		if err != nil {
			return fmt.Errorf("reading %s: %w", header.Name, err)
		}
		a.add(Member{Name: header.Name, Size: header.Size, Mode: header.Mode}, data)
	}
	return nil
}

func (a *Archive) readWheel(p string) error {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return fmt.Errorf("opening wheel: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
		a.add(Member{Name: f.Name, Size: int64(f.UncompressedSize64), Mode: int64(f.Mode().Perm())}, data)
	}
	return nil
}

func (a *Archive) add(m Member, data []byte) {
	a.members = append(a.members, m)
	a.data[m.Name] = data
}

// Members returns the regular files in archive order.
func (a *Archive) Members() []Member {
	return append([]Member(nil), a.members...)
}

// Names returns the member names in archive order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.members))
	for i, m := range a.members {
		names[i] = m.Name
	}
	return names
}

// Has reports whether name is a member.
func (a *Archive) Has(name string) bool {
	_, ok := a.data[name]
	return ok
}

// Read returns the content of a member.
func (a *Archive) Read(name string) ([]byte, error) {
	data, ok := a.data[name]
	if !ok {
		return nil, fmt.Errorf("%s: no member %s", filepath.Base(a.Path), name)
	}
	return data, nil
}

// MetadataPath returns the member holding the core metadata: PKG-INFO for
// an sdist, the dist-info METADATA for a wheel.
func (a *Archive) MetadataPath() (string, error) {
	for _, m := range a.members {
		dir, base := path.Split(m.Name)
		dir = strings.TrimSuffix(dir, "/")
		switch a.Kind {
		case KindSdist:
			if base == "PKG-INFO" && dir != "" && !strings.Contains(dir, "/") {
				return m.Name, nil
			}
		case KindWheel:
			if base == distinfo.MetadataFile && strings.HasSuffix(dir, ".dist-info") && !strings.Contains(dir, "/") {
				return m.Name, nil
			}
		}
	}
	return "", fmt.Errorf("%s: no core metadata found", filepath.Base(a.Path))
}

// Metadata parses the core metadata.
func (a *Archive) Metadata() (*pkginfo.Info, error) {
	name, err := a.MetadataPath()
	if err != nil {
		return nil, err
	}
	return pkginfo.Parse(bytes.NewReader(a.data[name]))
}

// Verify checks the structure of the artifact. For a wheel every member
// must be listed in RECORD with a matching hash; for an sdist every member
// must sit under the single versioned directory.
func (a *Archive) Verify() error {
	if a.Kind == KindSdist {
		return a.verifySdist()
	}

	metadata, err := a.MetadataPath()
	if err != nil {
		return err
	}
	recordPath := path.Join(path.Dir(metadata), distinfo.RecordFile)
	data, err := a.Read(recordPath)
	if err != nil {
		return err
	}
	rows, err := distinfo.ParseRecord(bytes.NewReader(data))
	if err != nil {
		return err
	}

	listed := make(map[string]bool)
	for _, row := range rows {
		listed[row.Path] = true
		content, err := a.Read(row.Path)
		if err != nil {
			return err
		}
		if row.Path == recordPath {
			continue
		}
		if err := row.Verify(content); err != nil {
			return err
		}
	}
	var missing []string
	for _, name := range a.Names() {
		if !listed[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("members missing from RECORD: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (a *Archive) verifySdist() error {
	if _, err := a.MetadataPath(); err != nil {
		return err
	}
	var prefix string
	for _, name := range a.Names() {
		top, _, ok := strings.Cut(name, "/")
		if !ok {
			return fmt.Errorf("member %s outside the versioned directory", name)
		}
		if prefix == "" {
			prefix = top
		}
		if top != prefix {
			return fmt.Errorf("members under both %s/ and %s/", prefix, top)
		}
	}
	return nil
}

// Report is the printable summary of an artifact.
type Report struct {
	File     string         `yaml:"file" json:"file"`
	Kind     Kind           `yaml:"kind" json:"kind"`
	Metadata map[string]any `yaml:"metadata" json:"metadata"`
	Members  []Member       `yaml:"members" json:"members"`
}

// Report summarizes the artifact.
func (a *Archive) Report() (*Report, error) {
	info, err := a.Metadata()
	if err != nil {
		return nil, err
	}
	return &Report{
		File:     filepath.Base(a.Path),
		Kind:     a.Kind,
		Metadata: info.Map(),
		Members:  a.Members(),
	}, nil
}

// YAML renders the report.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}
