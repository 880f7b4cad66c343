package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/distinfo"
	"github.com/frederic-klein/yapb/internal/layout"
	"github.com/frederic-klein/yapb/internal/logging"
	"github.com/frederic-klein/yapb/internal/output"
)

// wheelWriter writes zip members and records each one for RECORD.
type wheelWriter struct {
	zw     *zip.Writer
	record distinfo.Record
	epoch  time.Time
}

func newWheelWriter(w io.Writer, epoch time.Time) *wheelWriter {
	return &wheelWriter{zw: zip.NewWriter(w), epoch: epoch}
}

func (w *wheelWriter) add(name string, data []byte, mode os.FileMode) error {
	if err := w.write(name, data, mode); err != nil {
		return err
	}
	w.record.Add(name, data)
	return nil
}

func (w *wheelWriter) write(name string, data []byte, mode os.FileMode) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: w.epoch}
	hdr.SetMode(mode)
	f, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// finish writes the dist-info files, then RECORD, and closes the archive.
func (w *wheelWriter) finish(distInfo string, files []distinfo.File) error {
	for _, f := range files {
		if err := w.add(path.Join(distInfo, f.Name), f.Data, 0o644); err != nil {
			return err
		}
	}
	recordPath := path.Join(distInfo, distinfo.RecordFile)
	if err := w.write(recordPath, w.record.Bytes(recordPath), 0o644); err != nil {
		return err
	}
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("writing wheel: %w", err)
	}
	return nil
}

// licenseFiles returns the license entries of the manifest, which go into
// the dist-info directory.
func licenseFiles(m *layout.Manifest, readme string) []layout.Entry {
	var out []layout.Entry
	for _, e := range m.Entries {
		if e.Role == layout.RoleDocLicense && e.Source != path.Clean(readme) {
			out = append(out, e)
		}
	}
	return out
}

// Wheel builds the wheel into outDir and returns its file name. Native
// extensions are compiled first, in place.
func (p *Project) Wheel(ctx context.Context, outDir string) (string, error) {
	logger := logging.FromContext(ctx)
	progress := logging.Start(logger)

	if err := p.nativeBuild(ctx); err != nil {
		return "", err
	}
	tag, err := p.WheelTag(ctx)
	if err != nil {
		return "", err
	}
	// Resolved after the native build so compiled modules are picked up.
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
	for _, e := range m.Wheel() {
		data, mode, err := p.readSource(e.Source)
		if err != nil {
			return "", err
		}
		logger.Debug("adding to wheel", "path", e.Target, "role", e.Role)
		if err := w.add(e.Target, data, mode); err != nil {
			return "", err
		}
	}

	distInfo := p.DistInfoName()
	for _, e := range licenseFiles(m, p.Meta.Readme.File) {
		data, _, err := p.readSource(e.Source)
		if err != nil {
			return "", err
		}
		if err := w.add(path.Join(distInfo, e.Source), data, 0o644); err != nil {
			return "", err
		}
	}
	if err := w.finish(distInfo, p.renderMetadata(tag, nil)); err != nil {
		return "", err
	}

	if err := out.Commit(); err != nil {
		return "", err
	}
	progress.Done("Built " + name)
	return name, nil
}
