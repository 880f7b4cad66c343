// Package distinfo renders the .dist-info metadata files of a wheel and
// reads and writes its RECORD.
package distinfo

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/project"
)

// Version is the yapb release stamped into WHEEL files.
var Version = "0.1.0"

const (
	MetadataFile    = "METADATA"
	WheelFile       = "WHEEL"
	EntryPointsFile = "entry_points.txt"
	RecordFile      = "RECORD"
)

// File is a rendered metadata file.
type File struct {
	Name string
	Data []byte
}

// Options control the rendered files.
type Options struct {
	Tags []dist.Tag
	// Purelib is the Root-Is-Purelib value.
	Purelib bool
	// ExtraRequires are appended to the runtime dependencies, e.g. the
	// redirection library of an editable wheel.
	ExtraRequires []string
}

// Render returns entry_points.txt (when there are entry points), WHEEL and
// METADATA, in that order.
func Render(meta *project.Metadata, opts Options) []File {
	var files []File
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	if len(meta.EntryPoints) > 0 {
		e.EntryPoints(meta.EntryPoints)
		files = append(files, File{Name: EntryPointsFile, Data: bytes.Clone(buf.Bytes())})
		buf.Reset()
	}

	e.Wheel(opts.Tags, opts.Purelib)
	files = append(files, File{Name: WheelFile, Data: bytes.Clone(buf.Bytes())})
	buf.Reset()

	e.Metadata(meta, opts.ExtraRequires)
	files = append(files, File{Name: MetadataFile, Data: bytes.Clone(buf.Bytes())})
	return files
}

// Emitter writes metadata files. Write errors are sticky: after the first
// one the emitter does nothing and Err reports it.
type Emitter struct {
	w   io.Writer
	err error
}

// NewEmitter creates an emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Err returns the first write error.
func (e *Emitter) Err() error {
	return e.err
}

func (e *Emitter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *Emitter) field(key, value string) {
	if value == "" {
		return
	}
	e.printf("%s: %s\n", key, value)
}

// Wheel writes the WHEEL file.
func (e *Emitter) Wheel(tags []dist.Tag, purelib bool) {
	e.printf("Wheel-Version: 1.0\n")
	e.printf("Generator: yapb (%s)\n", Version)
	e.printf("Root-Is-Purelib: %t\n", purelib)
	for _, t := range tags {
		for _, x := range t.Expand() {
			e.printf("Tag: %s\n", x)
		}
	}
}

// EntryPoints writes entry_points.txt with groups and names sorted.
func (e *Emitter) EntryPoints(groups map[string]map[string]string) {
	names := sortedKeys(groups)
	for i, group := range names {
		if i > 0 {
			e.printf("\n")
		}
		e.printf("[%s]\n", group)
		entries := groups[group]
		for _, name := range sortedKeys(entries) {
			e.printf("%s = %s\n", name, entries[name])
		}
	}
}

// Metadata writes the core metadata file (METADATA, or PKG-INFO in an
// sdist).
func (e *Emitter) Metadata(m *project.Metadata, extraRequires []string) {
	e.field("Metadata-Version", "2.1")
	e.field("Name", m.Name)
	e.field("Version", m.Version)
	e.field("Summary", m.Summary)
	e.field("Keywords", strings.Join(m.Keywords, ","))
	for _, label := range sortedKeys(m.URLs) {
		e.field("Project-URL", label+", "+m.URLs[label])
	}

	names, emails := project.FormatPeople(m.Authors)
	e.field("Author", names)
	e.field("Author-email", emails)
	names, emails = project.FormatPeople(m.Maintainers)
	e.field("Maintainer", names)
	e.field("Maintainer-email", emails)

	e.field("License", foldLines(m.License))
	for _, c := range m.Classifiers {
		e.field("Classifier", c)
	}
	e.field("Requires-Python", m.RequiresPython)

	for _, dep := range m.Dependencies {
		e.field("Requires-Dist", dep)
	}
	for _, dep := range extraRequires {
		e.field("Requires-Dist", dep)
	}
	for _, extra := range m.Extras() {
		e.field("Provides-Extra", extra)
		for _, dep := range m.OptionalDependencies[extra] {
			e.field("Requires-Dist", withExtraMarker(dep, extra))
		}
	}

	if m.Readme.Text != "" {
		e.field("Description-Content-Type", m.Readme.ContentType)
		e.printf("\n%s", m.Readme.Text)
		if !strings.HasSuffix(m.Readme.Text, "\n") {
			e.printf("\n")
		}
	}
}

// withExtraMarker restricts a requirement to an extra, keeping any marker it
// already carries.
func withExtraMarker(req, extra string) string {
	name, marker, ok := strings.Cut(req, ";")
	name = strings.TrimSpace(name)
	if !ok || strings.TrimSpace(marker) == "" {
		return fmt.Sprintf("%s; extra == %q", name, extra)
	}
	return fmt.Sprintf("%s; (%s) and extra == %q", name, strings.TrimSpace(marker), extra)
}

// foldLines indents continuation lines of a multi-line header value.
func foldLines(s string) string {
	s = strings.TrimRight(s, "\n")
	return strings.ReplaceAll(s, "\n", "\n        ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
