package builder

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/klauspost/compress/gzip"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/distinfo"
	"github.com/frederic-klein/yapb/internal/logging"
	"github.com/frederic-klein/yapb/internal/output"
)

// Sdist writes {name}-{version}.tar.gz into outDir and returns its file
// name. It never runs the native build.
func (p *Project) Sdist(ctx context.Context, outDir string) (string, error) {
	logger := logging.FromContext(ctx)
	progress := logging.Start(logger)

	m, err := p.Manifest()
	if err != nil {
		return "", err
	}

	name := dist.SdistFilename(p.Meta.Name, p.Meta.Version)
	prefix := dist.SdistPrefix(p.Meta.Name, p.Meta.Version)
	out, err := output.Create(outDir, name)
	if err != nil {
		return "", err
	}
	defer out.Abort()

	gw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("compressing sdist: %w", err)
	}
	gw.ModTime = p.Epoch
	tw := tar.NewWriter(gw)

	for _, e := range m.Sdist() {
		data, mode, err := p.readSource(e.Source)
		if err != nil {
			return "", err
		}
		logger.Debug("adding to sdist", "path", e.Source, "role", e.Role)
		if err := p.writeTarFile(tw, path.Join(prefix, e.Source), data, mode); err != nil {
			return "", err
		}
	}

	var pkgInfo bytes.Buffer
	emitter := distinfo.NewEmitter(&pkgInfo)
	emitter.Metadata(p.Meta, nil)
	if err := emitter.Err(); err != nil {
		return "", fmt.Errorf("rendering PKG-INFO: %w", err)
	}
	if err := p.writeTarFile(tw, path.Join(prefix, "PKG-INFO"), pkgInfo.Bytes(), 0o644); err != nil {
		return "", err
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("writing sdist: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("compressing sdist: %w", err)
	}
	if err := out.Commit(); err != nil {
		return "", err
	}
	progress.Done("Built " + name)
	return name, nil
}

func (p *Project) writeTarFile(tw *tar.Writer, name string, data []byte, mode os.FileMode) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(mode),
		Size:     int64(len(data)),
		ModTime:  p.Epoch,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
