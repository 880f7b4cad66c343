// Package layout resolves a project source tree into the set of files each
// artifact ships and where they land inside it.
//
// Resolution is a pure function of a file list taken once with Snapshot, so
// the resolver runs unchanged against a virtual tree in tests.
package layout

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/frederic-klein/yapb/internal/errors"
	"github.com/frederic-klein/yapb/internal/project"
)

// Role classifies a manifest entry.
type Role int

const (
	RoleModule Role = iota
	RolePackageInit
	RolePackageData
	RoleBuildOnly
	RoleDocLicense
	RoleProjectDescriptor
)

var roleNames = [...]string{"module", "package_init", "package_data", "build_only", "doc_license", "project_descriptor"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// MarshalText renders the role by name in manifest dumps.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Entry maps one source file to its place in the artifacts.
type Entry struct {
	Source    string `json:"source" yaml:"source"`                     // project-relative, also the sdist path
	Target    string `json:"target,omitempty" yaml:"target,omitempty"` // wheel path
	Role      Role   `json:"role" yaml:"role"`
	SdistOnly bool   `json:"sdist_only,omitempty" yaml:"sdist_only,omitempty"`
}

// RootKind tells how an import root is imported.
type RootKind string

const (
	KindPackage   RootKind = "package"
	KindNamespace RootKind = "namespace"
	KindModule    RootKind = "module"
)

// ImportRoot is a top-level importable name and the source it comes from.
// Source is a directory for packages and namespaces, a file for modules.
type ImportRoot struct {
	Name   string   `json:"name" yaml:"name"`
	Source string   `json:"source" yaml:"source"`
	Kind   RootKind `json:"kind" yaml:"kind"`
}

// Target returns the wheel path the root's source maps to.
func (r ImportRoot) Target() string {
	if r.Kind == KindModule {
		return path.Base(r.Source)
	}
	return strings.ReplaceAll(r.Name, ".", "/")
}

// Contains reports whether the project-relative file belongs to the root.
func (r ImportRoot) Contains(file string) bool {
	if r.Kind == KindModule {
		return file == r.Source
	}
	return isUnder(file, r.Source)
}

// Layout is the discovered package structure.
type Layout struct {
	PackageRoot string            `json:"package_root" yaml:"package_root"`
	Packages    []string          `json:"packages,omitempty" yaml:"packages,omitempty"`
	Namespaces  []string          `json:"namespaces,omitempty" yaml:"namespaces,omitempty"`
	Modules     []string          `json:"modules,omitempty" yaml:"modules,omitempty"`
	Roots       []ImportRoot      `json:"roots" yaml:"roots"`
	Explicit    map[string]string `json:"explicit,omitempty" yaml:"explicit,omitempty"`
}

// HasNamespace reports whether any import root is a namespace package.
func (l *Layout) HasNamespace() bool {
	for _, r := range l.Roots {
		if r.Kind == KindNamespace {
			return true
		}
	}
	return false
}

// Manifest is a resolved layout with its entries sorted by Source.
type Manifest struct {
	Layout  Layout  `json:"layout" yaml:"layout"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Wheel returns the wheel partition sorted by Target.
func (m *Manifest) Wheel() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if !e.SdistOnly {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Sdist returns every entry sorted by Source.
func (m *Manifest) Sdist() []Entry {
	return append([]Entry(nil), m.Entries...)
}

// Options are the layout hints of a project.
type Options struct {
	PackageDir     string
	PackageDirs    map[string]string
	Includes       []string
	Excludes       []string
	SourceIncludes []string
	BuildScript    string
	LicenseFile    string
	Readme         string
}

// OptionsFor extracts the layout hints from project metadata.
func OptionsFor(m *project.Metadata) Options {
	return Options{
		PackageDir:     m.Layout.PackageDir,
		PackageDirs:    m.Layout.PackageDirs,
		Includes:       m.Layout.Includes,
		Excludes:       m.Layout.Excludes,
		SourceIncludes: m.Layout.SourceIncludes,
		BuildScript:    m.BuildScript,
		LicenseFile:    m.LicenseFile,
		Readme:         m.Readme.File,
	}
}

// BuildDir is the intermediate native build directory. Nothing under it
// ever ships.
const BuildDir = "build"

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	nativeSourceExts = map[string]bool{
		".c": true, ".cc": true, ".cpp": true, ".cxx": true,
		".h": true, ".hh": true, ".hpp": true, ".hxx": true,
		".pyx": true,
	}

	// Directories auto-discovery never treats as import roots.
	ignoredRoots = map[string]bool{
		"tests": true, "test": true, "docs": true, "doc": true,
		"examples": true, "build": true, "dist": true,
	}

	toolingFiles = map[string]bool{"setup.py": true, "conftest.py": true}

	licensePrefixes = []string{"LICENSE", "LICENCE", "COPYING", "NOTICE"}
)

// Priorities for the tie-break between rules producing the same path.
const (
	byDiscovery = iota + 1
	byInclude
	byExplicit
)

type candidate struct {
	Entry
	priority int
}

type tree struct {
	files map[string]bool
	dirs  map[string]bool
	list  []string
}

func newTree(files []string) *tree {
	t := &tree{files: make(map[string]bool), dirs: map[string]bool{"": true}}
	for _, f := range files {
		f = path.Clean(f)
		if isUnder(f, BuildDir) {
			continue
		}
		t.files[f] = true
		t.list = append(t.list, f)
		for d := path.Dir(f); d != "."; d = path.Dir(d) {
			t.dirs[d] = true
		}
	}
	sort.Strings(t.list)
	return t
}

// under returns the files below dir in sorted order.
func (t *tree) under(dir string) []string {
	var out []string
	for _, f := range t.list {
		if isUnder(f, dir) {
			out = append(out, f)
		}
	}
	return out
}

// Resolve computes the manifest for the given snapshot.
func Resolve(files []string, opts Options) (*Manifest, error) {
	for _, group := range [][]string{opts.Includes, opts.Excludes, opts.SourceIncludes} {
		for _, p := range group {
			if err := ValidatePattern(p); err != nil {
				return nil, err
			}
		}
	}

	t := newTree(files)
	lay, err := resolveLayout(t, opts)
	if err != nil {
		return nil, err
	}

	r := &resolver{tree: t, layout: lay, opts: opts, entries: make(map[string]*candidate)}
	r.collectRoots()
	r.collectIncludes()
	r.applyExcludes()
	if err := r.appendSdistFiles(); err != nil {
		return nil, err
	}
	r.demoteTargetConflicts()

	m := &Manifest{Layout: *lay}
	for _, c := range r.entries {
		m.Entries = append(m.Entries, c.Entry)
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Source < m.Entries[j].Source })
	return m, nil
}

func resolveLayout(t *tree, opts Options) (*Layout, error) {
	if len(opts.PackageDirs) > 0 {
		return explicitLayout(t, opts)
	}

	lay := &Layout{}
	switch {
	case opts.PackageDir != "":
		if !t.dirs[opts.PackageDir] {
			return nil, errors.New(errors.ErrCodeLayout, "package-dir %q does not exist", opts.PackageDir)
		}
		lay.PackageRoot = opts.PackageDir
	case t.dirs["src"] && len(discover(t, "src", opts).Roots) > 0:
		lay.PackageRoot = "src"
	}

	found := discover(t, lay.PackageRoot, opts)
	found.PackageRoot = lay.PackageRoot
	return found, nil
}

// discover finds import roots directly under root. Directories and files
// matched by an exclude pattern never become roots. Top-level modules are
// discovered next to packages unless includes are declared, in which case a
// module ships only when an include names it.
func discover(t *tree, root string, opts Options) *Layout {
	lay := &Layout{PackageRoot: root}
	children := make(map[string]bool)
	for d := range t.dirs {
		if d != "" && path.Dir(d) == dirOrDot(root) && d != root {
			children[d] = true
		}
	}
	names := make([]string, 0, len(children))
	for d := range children {
		names = append(names, d)
	}
	sort.Strings(names)

	for _, dir := range names {
		name := path.Base(dir)
		if !identifierRe.MatchString(name) || ignoredRoots[name] || matchAny(opts.Excludes, dir) {
			continue
		}
		kind, ok := t.packageKind(dir, opts.Excludes)
		if !ok {
			continue
		}
		lay.Roots = append(lay.Roots, ImportRoot{Name: name, Source: dir, Kind: kind})
		lay.collectPackages(t, name, dir, opts.Excludes)
	}

	if len(opts.Includes) > 0 {
		return lay
	}
	for _, f := range t.list {
		if path.Dir(f) != dirOrDot(root) || matchAny(opts.Excludes, f) {
			continue
		}
		base := path.Base(f)
		if toolingFiles[base] || f == path.Clean(opts.BuildScript) {
			continue
		}
		name, ok := moduleName(base)
		if !ok {
			continue
		}
		lay.Roots = append(lay.Roots, ImportRoot{Name: name, Source: f, Kind: KindModule})
		lay.Modules = append(lay.Modules, name)
	}
	return lay
}

// packageKind classifies dir by the files that survive the excludes: a
// package when its __init__.py does, a namespace when other Python source
// does.
func (t *tree) packageKind(dir string, excludes []string) (RootKind, bool) {
	marker := path.Join(dir, "__init__.py")
	if t.files[marker] && !matchAny(excludes, marker) {
		return KindPackage, true
	}
	for _, f := range t.under(dir) {
		if path.Ext(f) == ".py" && !matchAny(excludes, f) {
			return KindNamespace, true
		}
	}
	return "", false
}

// collectPackages records the dotted names of every package and namespace
// below a root.
func (l *Layout) collectPackages(t *tree, name, dir string, excludes []string) {
	var dirs []string
	for d := range t.dirs {
		if d == dir || isUnder(d, dir) {
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		if matchAny(excludes, d) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(d, dir), "/")
		dotted := name
		if rel != "" {
			if !validDotted(rel, "/") {
				continue
			}
			dotted += "." + strings.ReplaceAll(rel, "/", ".")
		}
		switch kind, ok := t.packageKind(d, excludes); {
		case !ok:
		case kind == KindPackage:
			l.Packages = append(l.Packages, dotted)
		default:
			l.Namespaces = append(l.Namespaces, dotted)
		}
	}
}

func explicitLayout(t *tree, opts Options) (*Layout, error) {
	lay := &Layout{PackageRoot: opts.PackageDir, Explicit: make(map[string]string)}
	names := make([]string, 0, len(opts.PackageDirs))
	for name := range opts.PackageDirs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !validDotted(name, ".") {
			return nil, errors.New(errors.ErrCodeLayout, "package-dir key %q is not an importable name", name)
		}
		dir := path.Clean(opts.PackageDirs[name])
		if dir == "." || !t.dirs[dir] {
			return nil, errors.New(errors.ErrCodeLayout, "package directory %q for %s does not exist", opts.PackageDirs[name], name)
		}
		kind := KindNamespace
		if t.files[path.Join(dir, "__init__.py")] {
			kind = KindPackage
		}
		root := ImportRoot{Name: name, Source: dir, Kind: kind}
		for _, prev := range lay.Roots {
			if overlaps(prev.Target(), root.Target()) || overlaps(prev.Source, root.Source) {
				return nil, errors.New(errors.ErrCodeLayout, "packages %s and %s resolve to overlapping paths", prev.Name, name)
			}
		}
		lay.Roots = append(lay.Roots, root)
		lay.Explicit[name] = dir
		lay.collectPackages(t, name, dir, opts.Excludes)
	}
	return lay, nil
}

type resolver struct {
	tree    *tree
	layout  *Layout
	opts    Options
	entries map[string]*candidate
}

func (r *resolver) add(c *candidate) {
	if prev, ok := r.entries[c.Source]; ok && prev.priority >= c.priority {
		return
	}
	r.entries[c.Source] = c
}

func (r *resolver) rootFor(file string) (ImportRoot, bool) {
	for _, root := range r.layout.Roots {
		if root.Contains(file) {
			return root, true
		}
	}
	return ImportRoot{}, false
}

func (r *resolver) collectRoots() {
	priority := byDiscovery
	if len(r.layout.Explicit) > 0 {
		priority = byExplicit
	}
	for _, root := range r.layout.Roots {
		files := []string{root.Source}
		if root.Kind != KindModule {
			files = r.tree.under(root.Source)
		}
		for _, f := range files {
			r.add(&candidate{Entry: shipped(f, targetIn(root, f)), priority: priority})
		}
	}
}

func (r *resolver) collectIncludes() {
	for _, f := range r.tree.list {
		if matchAny(r.opts.Includes, f) {
			target := f
			if root, ok := r.rootFor(f); ok {
				target = targetIn(root, f)
			}
			r.add(&candidate{Entry: shipped(f, target), priority: byInclude})
			continue
		}
		if matchAny(r.opts.SourceIncludes, f) {
			e := shipped(f, "")
			e.SdistOnly = true
			r.add(&candidate{Entry: e, priority: byDiscovery})
		}
	}
}

func (r *resolver) applyExcludes() {
	for src := range r.entries {
		if matchAny(r.opts.Excludes, src) {
			delete(r.entries, src)
		}
	}
}

// appendSdistFiles adds the files every sdist carries regardless of the
// include and exclude patterns.
func (r *resolver) appendSdistFiles() error {
	always := func(file string, role Role) {
		if prev, ok := r.entries[file]; ok && !prev.SdistOnly {
			return
		}
		r.entries[file] = &candidate{Entry: Entry{Source: file, Role: role, SdistOnly: true}}
	}

	if r.tree.files[project.DescriptorFile] {
		always(project.DescriptorFile, RoleProjectDescriptor)
	}
	for _, f := range r.licenseFiles() {
		always(f, RoleDocLicense)
	}

	declared := []struct {
		file, what string
		role       Role
	}{
		{r.opts.LicenseFile, "license file", RoleDocLicense},
		{r.opts.Readme, "readme", RoleDocLicense},
		{r.opts.BuildScript, "build script", RoleBuildOnly},
	}
	for _, d := range declared {
		if d.file == "" {
			continue
		}
		f := path.Clean(d.file)
		if !r.tree.files[f] {
			return errors.New(errors.ErrCodeLayout, "%s %q does not exist", d.what, d.file)
		}
		always(f, d.role)
	}
	return nil
}

// licenseFiles returns the declared license file, or the conventionally
// named ones at the project root when none is declared.
func (r *resolver) licenseFiles() []string {
	if r.opts.LicenseFile != "" {
		return nil
	}
	var out []string
	for _, f := range r.tree.list {
		if strings.Contains(f, "/") {
			continue
		}
		for _, p := range licensePrefixes {
			if strings.HasPrefix(strings.ToUpper(f), p) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// demoteTargetConflicts keeps one wheel entry per target, demoting the
// lower priority ones to the sdist.
func (r *resolver) demoteTargetConflicts() {
	sources := make([]string, 0, len(r.entries))
	for s := range r.entries {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	owner := make(map[string]*candidate)
	for _, s := range sources {
		c := r.entries[s]
		if c.SdistOnly {
			continue
		}
		prev, ok := owner[c.Target]
		switch {
		case !ok:
			owner[c.Target] = c
		case c.priority > prev.priority:
			prev.SdistOnly = true
			owner[c.Target] = c
		default:
			c.SdistOnly = true
		}
	}
}

// shipped builds an entry for a file that goes into both artifacts unless
// it is a native source.
func shipped(source, target string) Entry {
	e := Entry{Source: source, Target: target, Role: classify(source)}
	if e.Role == RoleBuildOnly {
		e.SdistOnly = true
	}
	return e
}

func classify(file string) Role {
	base := path.Base(file)
	ext := path.Ext(base)
	switch {
	case nativeSourceExts[ext]:
		return RoleBuildOnly
	case base == "__init__.py":
		return RolePackageInit
	case ext == ".py" || ext == ".so" || ext == ".pyd":
		return RoleModule
	default:
		return RolePackageData
	}
}

func targetIn(root ImportRoot, file string) string {
	if root.Kind == KindModule {
		return root.Target()
	}
	return path.Join(root.Target(), strings.TrimPrefix(file, root.Source+"/"))
}

// moduleName returns the import name of a top-level module file, including
// compiled extensions such as "foo.cpython-311-x86_64-linux-gnu.so".
func moduleName(base string) (string, bool) {
	ext := path.Ext(base)
	if ext != ".py" && ext != ".so" && ext != ".pyd" {
		return "", false
	}
	name, _, _ := strings.Cut(base, ".")
	return name, identifierRe.MatchString(name)
}

func validDotted(name, sep string) bool {
	for _, part := range strings.Split(name, sep) {
		if !identifierRe.MatchString(part) {
			return false
		}
	}
	return true
}

func isUnder(file, dir string) bool {
	if dir == "" {
		return true
	}
	return strings.HasPrefix(file, dir+"/")
}

func overlaps(a, b string) bool {
	return a == b || isUnder(a, b) || isUnder(b, a)
}

func dirOrDot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
