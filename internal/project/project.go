// Package project normalizes a decoded pyproject.toml into the metadata
// record every builder works from.
package project

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/errors"
)

// DescriptorFile is the project descriptor every build reads.
const DescriptorFile = "pyproject.toml"

// toolTables are the [tool.*] tables consulted for backend settings, in order.
var toolTables = []string{"yapb", "pdm"}

// Editable backends.
const (
	EditableRedirect = "editables"
	EditablePath     = "path"
)

// Person is an author or maintainer entry.
type Person struct {
	Name  string
	Email string
}

// Readme is the long description source.
type Readme struct {
	File        string // project-relative path; empty for inline text
	ContentType string
	Text        string
}

// Extension is a declared native extension module.
type Extension struct {
	Name    string   `json:"name"`
	Sources []string `json:"sources"`
}

// Layout holds the layout hints of the tool table.
type Layout struct {
	PackageDir      string            // single package root, e.g. "src"
	PackageDirs     map[string]string // explicit package name -> directory
	Includes        []string
	Excludes        []string
	SourceIncludes  []string
	EditableBackend string
}

// Metadata is the canonical project record. It is never mutated after Load.
type Metadata struct {
	Name                 string
	Version              string
	Summary              string
	License              string
	LicenseFile          string
	Authors              []Person
	Maintainers          []Person
	Keywords             []string
	Classifiers          []string
	RequiresPython       string
	Dependencies         []string
	OptionalDependencies map[string][]string
	EntryPoints          map[string]map[string]string
	URLs                 map[string]string
	Readme               Readme

	// Build is true iff the project declares a native-extension build step.
	Build       bool
	BuildScript string
	Extensions  []Extension

	Layout Layout
}

var versionAttrRe = regexp.MustCompile(`(?m)^__version__\s*=\s*['"]([^'"]+)['"]`)

// VersionControl derives the project version from its version control
// history.
type VersionControl func() (string, error)

// Load builds a Metadata from a decoded descriptor. src is the project tree,
// used for dynamic versions and the readme; it may be nil when neither is
// needed.
func Load(descriptor map[string]any, src fs.FS) (*Metadata, error) {
	return LoadWithSCM(descriptor, src, nil)
}

// LoadWithSCM is Load for a project checkout: scm serves
// version = {use_scm = true}.
func LoadWithSCM(descriptor map[string]any, src fs.FS, scm VersionControl) (*Metadata, error) {
	root := newTable("", descriptor)
	if !root.has("project") {
		return nil, errors.New(errors.ErrCodeInvalidDescriptor, "missing [project] table")
	}
	proj, err := root.sub("project")
	if err != nil {
		return nil, err
	}
	tool, err := toolTable(root)
	if err != nil {
		return nil, err
	}

	dynamic, err := proj.strs("dynamic")
	if err != nil {
		return nil, err
	}

	m := &Metadata{}
	if m.Name, err = proj.str("name"); err != nil {
		return nil, err
	}
	if m.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidDescriptor, "project.name is required")
	}
	if !dist.ValidName(m.Name) {
		return nil, errors.New(errors.ErrCodeInvalidDescriptor, "project.name %q is not a valid distribution name", m.Name)
	}

	if err := m.loadVersion(proj, tool, dynamic, src, scm); err != nil {
		return nil, err
	}
	if m.Summary, err = proj.str("description"); err != nil {
		return nil, err
	}
	if err := m.loadLicense(proj); err != nil {
		return nil, err
	}
	if m.Authors, err = people(proj, "authors"); err != nil {
		return nil, err
	}
	if m.Maintainers, err = people(proj, "maintainers"); err != nil {
		return nil, err
	}
	if m.Keywords, err = proj.strs("keywords"); err != nil {
		return nil, err
	}
	if m.Classifiers, err = proj.strs("classifiers"); err != nil {
		return nil, err
	}
	if m.RequiresPython, err = proj.str("requires-python"); err != nil {
		return nil, err
	}
	if m.RequiresPython != "" {
		if _, err := pep440.NewSpecifiers(m.RequiresPython); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "project.requires-python")
		}
	}
	if m.Dependencies, err = proj.strs("dependencies"); err != nil {
		return nil, err
	}
	if err := m.loadOptionalDependencies(proj); err != nil {
		return nil, err
	}
	if err := m.loadEntryPoints(proj); err != nil {
		return nil, err
	}
	if m.URLs, err = proj.stringMap("urls"); err != nil {
		return nil, err
	}
	if err := m.loadReadme(proj, src); err != nil {
		return nil, err
	}
	if err := m.loadTool(tool); err != nil {
		return nil, err
	}

	if slices.Contains(dynamic, "classifiers") {
		m.Classifiers = m.generateClassifiers()
	}
	return m, nil
}

func toolTable(root table) (table, error) {
	tools, err := root.sub("tool")
	if err != nil {
		return table{}, err
	}
	for _, name := range toolTables {
		if tools.has(name) {
			return tools.sub(name)
		}
	}
	return newTable("tool."+toolTables[0], nil), nil
}

func (m *Metadata) loadVersion(proj, tool table, dynamic []string, src fs.FS, scm VersionControl) error {
	raw, err := proj.str("version")
	if err != nil {
		return err
	}
	if raw == "" && slices.Contains(dynamic, "version") {
		if raw, err = dynamicVersion(tool, src, scm); err != nil {
			return err
		}
	}
	if raw == "" {
		return errors.New(errors.ErrCodeInvalidDescriptor, "project.version is required")
	}
	version, err := normalizeVersion(raw)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "project.version")
	}
	m.Version = version
	return nil
}

var numberRe = regexp.MustCompile(`[0-9]+`)

// normalizeVersion returns the canonical form of a PEP 440 version. Numeric
// segments must fit in 64 bits.
func normalizeVersion(raw string) (string, error) {
	for _, n := range numberRe.FindAllString(raw, -1) {
		if _, err := strconv.ParseInt(n, 10, 64); err != nil {
			return "", fmt.Errorf("version %q: segment %s out of range", raw, n)
		}
	}
	v, err := pep440.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func dynamicVersion(tool table, src fs.FS, scm VersionControl) (string, error) {
	spec, err := tool.sub("version")
	if err != nil {
		return "", err
	}
	useSCM, err := spec.boolean("use_scm")
	if err != nil {
		return "", err
	}
	if useSCM {
		if scm == nil {
			return "", errors.New(errors.ErrCodeInvalidDescriptor, "%s.use_scm needs a version control checkout", spec.path)
		}
		v, err := scm()
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "deriving version from version control")
		}
		return v, nil
	}

	from, err := spec.str("from")
	if err != nil {
		return "", err
	}
	if from == "" {
		return "", errors.New(errors.ErrCodeInvalidDescriptor, "dynamic version needs %s.from or %s.use_scm", spec.path, spec.path)
	}
	if src == nil {
		return "", errors.New(errors.ErrCodeInvalidDescriptor, "cannot read dynamic version from %s without a source tree", from)
	}
	data, err := fs.ReadFile(src, path.Clean(from))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "reading version from %s", from)
	}
	match := versionAttrRe.FindSubmatch(data)
	if match == nil {
		return "", errors.New(errors.ErrCodeInvalidDescriptor, "no __version__ assignment in %s", from)
	}
	return string(match[1]), nil
}

func (m *Metadata) loadLicense(proj table) error {
	if !proj.has("license") {
		return nil
	}
	if s, ok := proj.m["license"].(string); ok {
		m.License = s
		return nil
	}
	lic, err := proj.sub("license")
	if err != nil {
		return err
	}
	if m.License, err = lic.str("text"); err != nil {
		return err
	}
	if m.LicenseFile, err = lic.str("file"); err != nil {
		return err
	}
	return nil
}

func people(proj table, key string) ([]Person, error) {
	entries, err := proj.tables(key)
	if err != nil {
		return nil, err
	}
	var out []Person
	for _, e := range entries {
		var p Person
		if p.Name, err = e.str("name"); err != nil {
			return nil, err
		}
		if p.Email, err = e.str("email"); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Metadata) loadOptionalDependencies(proj table) error {
	groups, err := proj.sub("optional-dependencies")
	if err != nil {
		return err
	}
	if groups.m == nil {
		return nil
	}
	m.OptionalDependencies = make(map[string][]string, len(groups.m))
	for extra := range groups.m {
		reqs, err := groups.strs(extra)
		if err != nil {
			return err
		}
		m.OptionalDependencies[extra] = reqs
	}
	return nil
}

func (m *Metadata) loadEntryPoints(proj table) error {
	eps := make(map[string]map[string]string)
	for key, group := range map[string]string{"scripts": "console_scripts", "gui-scripts": "gui_scripts"} {
		entries, err := proj.stringMap(key)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			eps[group] = entries
		}
	}

	groups, err := proj.sub("entry-points")
	if err != nil {
		return err
	}
	for group := range groups.m {
		if group == "console_scripts" || group == "gui_scripts" {
			return errors.New(errors.ErrCodeInvalidDescriptor,
				"%s.%s is not allowed, use project.scripts or project.gui-scripts", groups.path, group)
		}
		entries, err := groups.stringMap(group)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			eps[group] = entries
		}
	}
	if len(eps) > 0 {
		m.EntryPoints = eps
	}
	return nil
}

var readmeCandidates = []string{"README.md", "README.rst", "README.txt", "README"}

func (m *Metadata) loadReadme(proj table, src fs.FS) error {
	switch v := proj.m["readme"].(type) {
	case nil:
		if src == nil {
			return nil
		}
		for _, name := range readmeCandidates {
			if _, err := fs.Stat(src, name); err == nil {
				m.Readme = Readme{File: name, ContentType: contentType(name)}
				break
			}
		}
	case string:
		m.Readme = Readme{File: v, ContentType: contentType(v)}
	default:
		readme, err := proj.sub("readme")
		if err != nil {
			return err
		}
		if m.Readme.File, err = readme.str("file"); err != nil {
			return err
		}
		if m.Readme.Text, err = readme.str("text"); err != nil {
			return err
		}
		if m.Readme.ContentType, err = readme.str("content-type"); err != nil {
			return err
		}
		if m.Readme.ContentType == "" {
			m.Readme.ContentType = contentType(m.Readme.File)
		}
	}

	if m.Readme.File != "" && m.Readme.Text == "" && src != nil {
		file := path.Clean(m.Readme.File)
		if _, err := fs.Stat(src, file); err != nil {
			return errors.Wrap(errors.ErrCodeLayout, err, "readme %q does not exist", m.Readme.File)
		}
		data, err := fs.ReadFile(src, file)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "reading readme %s", m.Readme.File)
		}
		m.Readme.Text = string(data)
	}
	return nil
}

func contentType(file string) string {
	switch strings.ToLower(path.Ext(file)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".rst":
		return "text/x-rst"
	default:
		return "text/plain"
	}
}

func (m *Metadata) loadTool(tool table) error {
	var err error
	l := &m.Layout

	switch v := tool.m["package-dir"].(type) {
	case nil:
	case string:
		l.PackageDir = strings.Trim(path.Clean(v), "/")
		if l.PackageDir == "." {
			l.PackageDir = ""
		}
	default:
		if l.PackageDirs, err = tool.stringMap("package-dir"); err != nil {
			return err
		}
	}
	if l.Includes, err = tool.strs("includes"); err != nil {
		return err
	}
	if l.Excludes, err = tool.strs("excludes"); err != nil {
		return err
	}
	if l.SourceIncludes, err = tool.strs("source-includes"); err != nil {
		return err
	}
	if l.EditableBackend, err = tool.str("editable-backend"); err != nil {
		return err
	}
	switch l.EditableBackend {
	case "":
		l.EditableBackend = EditableRedirect
	case EditableRedirect, EditablePath:
	default:
		return errors.New(errors.ErrCodeInvalidDescriptor,
			"%s.editable-backend must be %q or %q", tool.path, EditableRedirect, EditablePath)
	}

	if m.BuildScript, err = tool.str("build"); err != nil {
		return err
	}
	exts, err := tool.tables("ext-modules")
	if err != nil {
		return err
	}
	for _, e := range exts {
		var ext Extension
		if ext.Name, err = e.str("name"); err != nil {
			return err
		}
		if ext.Sources, err = e.strs("sources"); err != nil {
			return err
		}
		if ext.Name == "" || len(ext.Sources) == 0 {
			return errors.New(errors.ErrCodeInvalidDescriptor, "%s needs a name and sources", e.path)
		}
		m.Extensions = append(m.Extensions, ext)
	}
	m.Build = m.BuildScript != "" || len(m.Extensions) > 0
	return nil
}

// FormatPeople splits people into the Author and Author-email field values:
// names without an email, and "name <email>" entries.
func FormatPeople(people []Person) (names, emails string) {
	var n, e []string
	for _, p := range people {
		switch {
		case p.Email == "":
			if p.Name != "" {
				n = append(n, p.Name)
			}
		case p.Name == "":
			e = append(e, p.Email)
		default:
			e = append(e, p.Name+" <"+p.Email+">")
		}
	}
	return strings.Join(n, ", "), strings.Join(e, ", ")
}

// Extras returns the optional dependency group names, sorted.
func (m *Metadata) Extras() []string {
	extras := make([]string, 0, len(m.OptionalDependencies))
	for extra := range m.OptionalDependencies {
		extras = append(extras, extra)
	}
	sort.Strings(extras)
	return extras
}
