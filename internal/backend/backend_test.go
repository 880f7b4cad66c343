package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/errors"
	"github.com/frederic-klein/yapb/internal/inspect"
	"github.com/frederic-klein/yapb/internal/nativebuild"
)

const demoPackage = `[project]
name = "demo-package"
version = "0.1.0"
dependencies = ["flask"]

[project.scripts]
demo = "my_package:main"

[tool.pdm]
includes = ["my_package/", "data_out.json"]
excludes = ["my_package/data.json"]
`

const pep420Package = `[project]
name = "demo-pep420-package"
version = "0.1.0"

[tool.pdm]
includes = ["foo/"]
`

const extensionPackage = `[project]
name = "demo-cextension"
version = "0.1.0"

[tool.pdm]
build = "build.py"
`

func writeProject(t *testing.T, descriptor string, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	files["pyproject.toml"] = descriptor
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func packageProject(t *testing.T) string {
	return writeProject(t, demoPackage, map[string]string{
		"my_package/__init__.py": "def main(): pass\n",
		"my_package/data.json":   "{}\n",
		"my_package/data.txt":    "data\n",
		"data_out.json":          "{}\n",
	})
}

func resolved(t *testing.T, p string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return r
}

type stubTool struct{ tag dist.Tag }

func (s stubTool) Build(context.Context, nativebuild.Request) error { return nil }

func (s stubTool) Tag(context.Context) (dist.Tag, error) { return s.tag, nil }

func TestGetRequires(t *testing.T) {
	ctx := context.Background()

	plain := New(packageProject(t))
	reqs, err := plain.GetRequiresForBuildWheel(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	reqs, err = plain.GetRequiresForBuildSdist(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, reqs)
	assert.Empty(t, reqs)

	native := New(writeProject(t, extensionPackage, map[string]string{
		"build.py":          "def build(setup_kwargs): pass\n",
		"hello/__init__.py": "",
	}))
	reqs, err = native.GetRequiresForBuildWheel(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"setuptools>=40.8.0"}, reqs)
	reqs, err = native.GetRequiresForBuildEditable(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"setuptools>=40.8.0"}, reqs)
	reqs, err = native.GetRequiresForBuildSdist(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestBuildPackage(t *testing.T) {
	ctx := context.Background()
	b := New(packageProject(t))
	out := t.TempDir()

	wheel, err := b.BuildWheel(ctx, out, map[string]any{"unknown": "ignored"}, "")
	require.NoError(t, err)
	assert.Equal(t, "demo_package-0.1.0-py3-none-any.whl", wheel)

	sdist, err := b.BuildSdist(ctx, out, nil)
	require.NoError(t, err)
	assert.Equal(t, "demo-package-0.1.0.tar.gz", sdist)

	w, err := inspect.Open(filepath.Join(out, wheel))
	require.NoError(t, err)
	require.NoError(t, w.Verify())
	assert.True(t, w.Has("my_package/__init__.py"))
	assert.True(t, w.Has("my_package/data.txt"))
	assert.True(t, w.Has("data_out.json"))
	assert.False(t, w.Has("my_package/data.json"))

	s, err := inspect.Open(filepath.Join(out, sdist))
	require.NoError(t, err)
	require.NoError(t, s.Verify())
	assert.True(t, s.Has("demo-package-0.1.0/my_package/__init__.py"))
	assert.True(t, s.Has("demo-package-0.1.0/data_out.json"))
	assert.False(t, s.Has("demo-package-0.1.0/my_package/data.json"))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPrepareMetadataMatchesWheel(t *testing.T) {
	ctx := context.Background()
	b := New(packageProject(t))
	metaDir := t.TempDir()

	name, err := b.PrepareMetadataForBuildWheel(ctx, metaDir, nil)
	require.NoError(t, err)
	assert.Equal(t, "demo_package-0.1.0.dist-info", name)

	out := t.TempDir()
	wheel, err := b.BuildWheel(ctx, out, nil, filepath.Join(metaDir, name))
	require.NoError(t, err)
	w, err := inspect.Open(filepath.Join(out, wheel))
	require.NoError(t, err)

	for _, f := range []string{"METADATA", "WHEEL", "entry_points.txt"} {
		prepared, err := os.ReadFile(filepath.Join(metaDir, name, f))
		require.NoError(t, err)
		shipped, err := w.Read(name + "/" + f)
		require.NoError(t, err)
		assert.Equal(t, string(prepared), string(shipped), f)
	}
	assert.NoFileExists(t, filepath.Join(metaDir, name, "RECORD"))
}

func TestBuildEditableRedirect(t *testing.T) {
	ctx := context.Background()
	root := packageProject(t)
	b := New(root)

	metaDir := t.TempDir()
	name, err := b.PrepareMetadataForBuildEditable(ctx, metaDir, nil)
	require.NoError(t, err)
	metadata, err := os.ReadFile(filepath.Join(metaDir, name, "METADATA"))
	require.NoError(t, err)
	assert.Contains(t, string(metadata), "Requires-Dist: editables\n")

	out := t.TempDir()
	wheel, err := b.BuildEditable(ctx, out, nil, "")
	require.NoError(t, err)
	w, err := inspect.Open(filepath.Join(out, wheel))
	require.NoError(t, err)

	pth, err := w.Read("demo_package.pth")
	require.NoError(t, err)
	assert.Equal(t, "import _demo_package", strings.TrimSpace(string(pth)))

	proxy, err := w.Read("_demo_package.py")
	require.NoError(t, err)
	target := filepath.Join(resolved(t, root), "my_package", "__init__.py")
	assert.Contains(t, string(proxy), "F.map_module('my_package', '"+target+"')")
	assert.False(t, w.Has("my_package/__init__.py"))
}

func TestBuildEditableNamespace(t *testing.T) {
	ctx := context.Background()
	root := writeProject(t, pep420Package, map[string]string{
		"foo/my_package/__init__.py": "",
	})
	out := t.TempDir()

	wheel, err := New(root).BuildEditable(ctx, out, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "demo_pep420_package-0.1.0-py3-none-any.whl", wheel)

	w, err := inspect.Open(filepath.Join(out, wheel))
	require.NoError(t, err)
	pth, err := w.Read("demo_pep420_package.pth")
	require.NoError(t, err)
	assert.Equal(t, resolved(t, root), strings.TrimSpace(string(pth)))
	assert.False(t, w.Has("_demo_pep420_package.py"))

	info, err := w.Metadata()
	require.NoError(t, err)
	assert.NotContains(t, info.GetAll("Requires-Dist"), "editables")
}

func TestBuildWheelWithTool(t *testing.T) {
	root := writeProject(t, extensionPackage, map[string]string{
		"build.py":          "def build(setup_kwargs): pass\n",
		"hello/__init__.py": "",
	})
	b := New(root)
	b.Tool = stubTool{tag: dist.Tag{Python: "cp311", ABI: "cp311", Platform: "linux_x86_64"}}

	wheel, err := b.BuildWheel(context.Background(), t.TempDir(), map[string]any{
		"--py-limited-api": "cp38",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "demo_cextension-0.1.0-cp38-abi3-linux_x86_64.whl", wheel)
}

func TestParseConfig(t *testing.T) {
	t.Setenv("YAPB_PLAT_NAME", "manylinux2014_x86_64")
	t.Setenv("YAPB_PYTHON_TAG", "py3")

	cfg, err := ParseConfig(map[string]any{
		"--python-tag": []any{"py2", "cp39"},
		"python":       "/usr/bin/python3.11",
		"--unknown":    "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "cp39", cfg.PythonTag)
	assert.Equal(t, "manylinux2014_x86_64", cfg.PlatName)
	assert.Equal(t, "/usr/bin/python3.11", cfg.Python)
	assert.Empty(t, cfg.PyLimitedAPI)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig(map[string]any{"--py-limited-api": "py38"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.GetCode(err))

	_, err = ParseConfig(map[string]any{"--plat-name": map[string]any{"a": 1}})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.GetCode(err))
}

func TestInvalidDescriptorLeavesNoArtifact(t *testing.T) {
	root := writeProject(t, "[project]\nname = \"x\"\n", map[string]string{})
	out := t.TempDir()

	_, err := New(root).BuildSdist(context.Background(), out, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidDescriptor, errors.GetCode(err))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
