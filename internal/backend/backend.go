// Package backend is the build backend dispatch surface: one method per
// hook a frontend calls, each taking the frontend's config settings.
//
// Every call loads the project afresh. Results are bare file or directory
// names relative to the directory the caller passed in.
package backend

import (
	"context"

	"github.com/frederic-klein/yapb/internal/builder"
	"github.com/frederic-klein/yapb/internal/logging"
	"github.com/frederic-klein/yapb/internal/nativebuild"
)

// Backend builds the project rooted at Root.
type Backend struct {
	Root string
	// Tool replaces the interpreter-driven native build when set.
	Tool nativebuild.Tool
}

// New creates a backend for the project at root.
func New(root string) *Backend {
	return &Backend{Root: root}
}

func (b *Backend) open(settings map[string]any) (*builder.Project, error) {
	cfg, err := ParseConfig(settings)
	if err != nil {
		return nil, err
	}
	p, err := builder.Open(b.Root, cfg)
	if err != nil {
		return nil, err
	}
	if b.Tool != nil {
		p.Tool = b.Tool
	}
	return p, nil
}

// GetRequiresForBuildWheel returns setuptools when the project builds
// native extensions, else nothing.
func (b *Backend) GetRequiresForBuildWheel(ctx context.Context, settings map[string]any) ([]string, error) {
	p, err := b.open(settings)
	if err != nil {
		return nil, err
	}
	return p.Requires(), nil
}

// GetRequiresForBuildSdist returns nothing: an sdist needs no extra tools.
func (b *Backend) GetRequiresForBuildSdist(ctx context.Context, settings map[string]any) ([]string, error) {
	return []string{}, nil
}

// GetRequiresForBuildEditable is GetRequiresForBuildWheel.
func (b *Backend) GetRequiresForBuildEditable(ctx context.Context, settings map[string]any) ([]string, error) {
	return b.GetRequiresForBuildWheel(ctx, settings)
}

// PrepareMetadataForBuildWheel writes the wheel's dist-info files into
// metadataDir and returns the dist-info directory name.
func (b *Backend) PrepareMetadataForBuildWheel(ctx context.Context, metadataDir string, settings map[string]any) (string, error) {
	p, err := b.open(settings)
	if err != nil {
		return "", err
	}
	return p.PrepareMetadata(ctx, metadataDir, false)
}

// PrepareMetadataForBuildEditable is PrepareMetadataForBuildWheel for the
// editable wheel, whose METADATA may carry the redirector requirement.
func (b *Backend) PrepareMetadataForBuildEditable(ctx context.Context, metadataDir string, settings map[string]any) (string, error) {
	p, err := b.open(settings)
	if err != nil {
		return "", err
	}
	return p.PrepareMetadata(ctx, metadataDir, true)
}

// BuildWheel builds the wheel into outDir. metadataDir, from an earlier
// prepare call, is accepted and not consulted: the wheel renders the same
// metadata itself.
func (b *Backend) BuildWheel(ctx context.Context, outDir string, settings map[string]any, metadataDir string) (string, error) {
	p, err := b.open(settings)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Debug("build_wheel", "project", p.Meta.Name, "metadata_dir", metadataDir)
	return p.Wheel(ctx, outDir)
}

// BuildSdist builds the sdist into outDir.
func (b *Backend) BuildSdist(ctx context.Context, outDir string, settings map[string]any) (string, error) {
	p, err := b.open(settings)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Debug("build_sdist", "project", p.Meta.Name)
	return p.Sdist(ctx, outDir)
}

// BuildEditable builds the editable wheel into outDir.
func (b *Backend) BuildEditable(ctx context.Context, outDir string, settings map[string]any, metadataDir string) (string, error) {
	p, err := b.open(settings)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Debug("build_editable", "project", p.Meta.Name, "metadata_dir", metadataDir)
	return p.Editable(ctx, outDir)
}
