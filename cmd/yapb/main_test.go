package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/yapb/internal/errors"
)

func TestParseSettings(t *testing.T) {
	settings, err := parseSettings([]string{
		"--plat-name=linux_x86_64",
		"--python-tag=py2",
		"--python-tag=py3",
		"--python-tag=cp39",
		"python=/usr/bin/python3=x",
	})
	require.NoError(t, err)
	assert.Equal(t, "linux_x86_64", settings["--plat-name"])
	assert.Equal(t, []any{"py2", "py3", "cp39"}, settings["--python-tag"])
	assert.Equal(t, "/usr/bin/python3=x", settings["python"])

	_, err = parseSettings([]string{"novalue"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidConfig))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configSettings = nil
	verbose = false
	verify = false
	editable = false

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCLIBuildAndInspect(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"pyproject.toml": "[project]\nname = \"demo-module\"\nversion = \"0.1.0\"\n",
		"foo_module.py":  "def foo(): pass\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	out := filepath.Join(t.TempDir(), "dist")

	stdout, err := runCLI(t, "wheel", "-p", root, "-o", out)
	require.NoError(t, err)
	wheel := strings.TrimSpace(stdout)
	assert.Equal(t, filepath.Join(out, "demo_module-0.1.0-py3-none-any.whl"), wheel)

	stdout, err = runCLI(t, "inspect", "--verify", wheel)
	require.NoError(t, err)
	assert.Contains(t, stdout, "kind: wheel")
	assert.Contains(t, stdout, "foo_module.py")

	stdout, err = runCLI(t, "requires", "-p", root, "--for", "sdist")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	stdout, err = runCLI(t, "manifest", "-p", root, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"target": "foo_module.py"`)
}
