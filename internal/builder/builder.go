// Package builder assembles sdists, wheels and editable wheels from a
// project tree.
//
// Every build starts from a fresh Project: the descriptor is decoded, the
// tree snapshotted and the layout resolved again, so nothing leaks between
// builds. Artifacts are written through internal/output and only appear
// under their final name once complete.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/distinfo"
	"github.com/frederic-klein/yapb/internal/layout"
	"github.com/frederic-klein/yapb/internal/logging"
	"github.com/frederic-klein/yapb/internal/nativebuild"
	"github.com/frederic-klein/yapb/internal/project"
	"github.com/frederic-klein/yapb/internal/pyproject"
)

// BuildRequirement is what a native build needs beyond the backend.
const BuildRequirement = "setuptools>=40.8.0"

// EditableRequirement is the runtime dependency of a redirecting editable
// wheel.
const EditableRequirement = "editables"

// Project is a loaded project ready to build.
type Project struct {
	Root   string // absolute, symlinks resolved
	Meta   *project.Metadata
	Config Config
	Tool   nativebuild.Tool
	Epoch  time.Time
}

// Open loads the project rooted at root.
func Open(root string, cfg Config) (*Project, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	meta, err := pyproject.LoadMetadata(abs)
	if err != nil {
		return nil, err
	}
	epoch, err := SourceDateEpoch()
	if err != nil {
		return nil, err
	}
	return &Project{
		Root:   abs,
		Meta:   meta,
		Config: cfg,
		Tool:   nativebuild.NewPython(cfg.Python),
		Epoch:  epoch,
	}, nil
}

// Manifest snapshots the tree and resolves its layout.
func (p *Project) Manifest() (*layout.Manifest, error) {
	files, err := layout.Snapshot(os.DirFS(p.Root))
	if err != nil {
		return nil, err
	}
	return layout.Resolve(files, layout.OptionsFor(p.Meta))
}

// Requires returns the extra requirements for building a wheel.
func (p *Project) Requires() []string {
	if p.Meta.Build {
		return []string{BuildRequirement}
	}
	return []string{}
}

// WheelTag returns the tag of the wheel: pure unless the project builds
// native code, with the configured overrides applied.
func (p *Project) WheelTag(ctx context.Context) (dist.Tag, error) {
	tag := dist.PureTag(p.Meta.SupportsPython2())
	if p.Meta.Build && !(p.Config.PyLimitedAPI != "" && p.Config.PlatName != "") {
		native, err := p.Tool.Tag(ctx)
		if err != nil {
			return dist.Tag{}, err
		}
		tag = native
	}

	if p.Config.PythonTag != "" {
		tag.Python = p.Config.PythonTag
	}
	if p.Config.PyLimitedAPI != "" {
		tag.Python = p.Config.PyLimitedAPI
		tag.ABI = "abi3"
	}
	if p.Config.PlatName != "" {
		tag.Platform = normalizePlatform(p.Config.PlatName)
	}
	return tag, nil
}

// DistInfoName returns the .dist-info directory name.
func (p *Project) DistInfoName() string {
	return dist.DistInfoDir(p.Meta.Name, p.Meta.Version)
}

// nativeBuild compiles extensions in place when the project declares any.
func (p *Project) nativeBuild(ctx context.Context) error {
	if !p.Meta.Build {
		return nil
	}
	progress := logging.Start(logging.FromContext(ctx))
	err := p.Tool.Build(ctx, nativebuild.Request{
		Root:       p.Root,
		Name:       p.Meta.Name,
		Script:     p.Meta.BuildScript,
		Extensions: p.Meta.Extensions,
		BuildTemp:  layout.BuildDir,
	})
	if err != nil {
		return err
	}
	progress.Done("Built native extensions")
	return nil
}

// renderMetadata renders the dist-info files for tag.
func (p *Project) renderMetadata(tag dist.Tag, extraRequires []string) []distinfo.File {
	return distinfo.Render(p.Meta, distinfo.Options{
		Tags:          []dist.Tag{tag},
		Purelib:       !p.Meta.Build,
		ExtraRequires: extraRequires,
	})
}

// PrepareMetadata writes the dist-info files a wheel (or an editable wheel)
// would carry into dir and returns the dist-info directory name.
func (p *Project) PrepareMetadata(ctx context.Context, dir string, editable bool) (string, error) {
	tag, err := p.WheelTag(ctx)
	if err != nil {
		return "", err
	}
	var extra []string
	if editable {
		m, err := p.Manifest()
		if err != nil {
			return "", err
		}
		if p.redirects(m) {
			extra = []string{EditableRequirement}
		}
	}

	name := p.DistInfoName()
	if err := distinfo.WriteDir(filepath.Join(dir, name), p.renderMetadata(tag, extra)); err != nil {
		return "", err
	}
	logging.FromContext(ctx).Debug("prepared metadata", "dir", name)
	return name, nil
}

func (p *Project) readSource(source string) ([]byte, os.FileMode, error) {
	full := filepath.Join(p.Root, filepath.FromSlash(source))
	info, err := os.Stat(full)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", source, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", source, err)
	}
	mode := os.FileMode(0o644)
	if info.Mode()&0o111 != 0 {
		mode = 0o755
	}
	return data, mode, nil
}
