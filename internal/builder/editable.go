package builder

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/errors"
	"github.com/frederic-klein/yapb/internal/layout"
	"github.com/frederic-klein/yapb/internal/logging"
	"github.com/frederic-klein/yapb/internal/output"
	"github.com/frederic-klein/yapb/internal/project"
)

const finderImport = "from editables.redirector import RedirectingFinder as F"

// redirects reports whether the editable wheel uses the import redirector
// rather than a plain path entry. Namespace roots always need the path
// entry; a path-mode project falls back to the redirector when some root
// lives in a directory not named after it.
func (p *Project) redirects(m *layout.Manifest) bool {
	if m.Layout.HasNamespace() {
		return false
	}
	if p.Meta.Layout.EditableBackend != project.EditablePath {
		return true
	}
	for _, r := range m.Layout.Roots {
		if _, ok := pathParent(r); !ok {
			return true
		}
	}
	return false
}

// pathParent returns the directory that, put on sys.path, makes r
// importable under its own name.
func pathParent(r layout.ImportRoot) (string, bool) {
	target := r.Target()
	switch {
	case r.Source == target:
		return "", true
	case strings.HasSuffix(r.Source, "/"+target):
		return strings.TrimSuffix(r.Source, "/"+target), true
	}
	return "", false
}

// livePath returns the absolute resolved path an import root maps to: a
// package's __init__.py or a module's file.
func (p *Project) livePath(r layout.ImportRoot) string {
	source := r.Source
	if r.Kind == layout.KindPackage {
		source += "/__init__.py"
	}
	full := filepath.Join(p.Root, filepath.FromSlash(source))
	if resolved, err := filepath.EvalSymlinks(full); err == nil {
		return resolved
	}
	return full
}

// proxyModule renders the module the .pth imports to install the finder.
func (p *Project) proxyModule(roots []layout.ImportRoot) string {
	roots = append([]layout.ImportRoot(nil), roots...)
	sort.Slice(roots, func(i, j int) bool { return roots[i].Name < roots[j].Name })

	var b strings.Builder
	b.WriteString(finderImport + "\n")
	b.WriteString("F.install()\n")
	for _, r := range roots {
		b.WriteString("F.map_module(" + pyRepr(r.Name) + ", " + pyRepr(p.livePath(r)) + ")\n")
	}
	return b.String()
}

// pathEntry returns the directory a path-mode .pth adds to sys.path: the
// common parent of every import root.
func (p *Project) pathEntry(m *layout.Manifest) (string, error) {
	rel := m.Layout.PackageRoot
	for i, r := range m.Layout.Roots {
		parent, ok := pathParent(r)
		if !ok {
			return "", errors.New(errors.ErrCodeLayout,
				"%s is mapped from %s; an editable path entry cannot expose it under its own name", r.Name, r.Source)
		}
		if i > 0 && parent != rel {
			return "", errors.New(errors.ErrCodeLayout,
				"import roots live under both %q and %q; an editable path entry needs a single directory", rel, parent)
		}
		rel = parent
	}

	dir := filepath.Join(p.Root, filepath.FromSlash(rel))
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return dir, nil
}

// Editable builds an editable wheel into outDir. Instead of the package
// sources it ships a .pth file pointing the interpreter at the live tree;
// files outside the import roots are copied.
func (p *Project) Editable(ctx context.Context, outDir string) (string, error) {
	logger := logging.FromContext(ctx)
	progress := logging.Start(logger)

	if err := p.nativeBuild(ctx); err != nil {
		return "", err
	}
	tag, err := p.WheelTag(ctx)
	if err != nil {
		return "", err
	}
	m, err := p.Manifest()
	if err != nil {
		return "", err
	}

	name := dist.WheelFilename(p.Meta.Name, p.Meta.Version, tag)
	out, err := output.Create(outDir, name)
	if err != nil {
		return "", err
	}
	defer out.Abort()

	w := newWheelWriter(out, p.Epoch)
	escaped := dist.EscapeName(p.Meta.Name)
	redirect := p.redirects(m)

	var extra []string
	if redirect {
		logger.Debug("editable install via import redirector", "roots", len(m.Layout.Roots))
		if err := w.add(escaped+".pth", []byte("import _"+escaped+"\n"), 0o644); err != nil {
			return "", err
		}
		if err := w.add("_"+escaped+".py", []byte(p.proxyModule(m.Layout.Roots)), 0o644); err != nil {
			return "", err
		}
		extra = []string{EditableRequirement}
	} else {
		entry, err := p.pathEntry(m)
		if err != nil {
			return "", err
		}
		logger.Debug("editable install via path entry", "path", entry)
		if err := w.add(escaped+".pth", []byte(entry+"\n"), 0o644); err != nil {
			return "", err
		}
	}

	for _, e := range m.Wheel() {
		if inRoots(m.Layout.Roots, e.Source) {
			continue
		}
		data, mode, err := p.readSource(e.Source)
		if err != nil {
			return "", err
		}
		logger.Debug("adding to editable wheel", "path", e.Target)
		if err := w.add(e.Target, data, mode); err != nil {
			return "", err
		}
	}

	if err := w.finish(p.DistInfoName(), p.renderMetadata(tag, extra)); err != nil {
		return "", err
	}
	if err := out.Commit(); err != nil {
		return "", err
	}
	progress.Done("Built " + name)
	return name, nil
}

func inRoots(roots []layout.ImportRoot, source string) bool {
	for _, r := range roots {
		if r.Contains(source) {
			return true
		}
	}
	return false
}
