package project

import (
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/yapb/internal/errors"
)

func demoModule() map[string]any {
	return map[string]any{
		"project": map[string]any{
			"name":            "demo-module",
			"version":         "0.1.0",
			"description":     "A demo module",
			"license":         map[string]any{"text": "MIT"},
			"requires-python": ">=3.5",
			"authors": []map[string]any{
				{"name": "frostming", "email": "mianghong@gmail.com"},
			},
			"dependencies": []any{"requests"},
		},
	}
}

func TestLoadModule(t *testing.T) {
	m, err := Load(demoModule(), fstest.MapFS{"README.md": {Data: []byte("# demo\n")}})
	require.NoError(t, err)

	assert.Equal(t, "demo-module", m.Name)
	assert.Equal(t, "0.1.0", m.Version)
	assert.Equal(t, "MIT", m.License)
	assert.Equal(t, []string{"requests"}, m.Dependencies)
	assert.False(t, m.Build)
	assert.Equal(t, Readme{File: "README.md", ContentType: "text/markdown", Text: "# demo\n"}, m.Readme)

	names, emails := FormatPeople(m.Authors)
	assert.Equal(t, "", names)
	assert.Equal(t, "frostming <mianghong@gmail.com>", emails)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		project map[string]any
	}{
		{"missing name", map[string]any{"version": "0.1.0"}},
		{"bad name", map[string]any{"name": "-bad-", "version": "0.1.0"}},
		{"missing version", map[string]any{"name": "demo"}},
		{"bad version", map[string]any{"name": "demo", "version": "one"}},
		{"wrong type", map[string]any{"name": "demo", "version": "0.1.0", "dependencies": "requests"}},
		{"bad requires-python", map[string]any{"name": "demo", "version": "0.1.0", "requires-python": ">=three"}},
		{"version segment overflow", map[string]any{"name": "demo", "version": "1.99999999999999999999"}},
		{"reserved entry-point group", map[string]any{
			"name": "demo", "version": "0.1.0",
			"entry-points": map[string]any{"console_scripts": map[string]any{"demo": "demo:main"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(map[string]any{"project": tt.project}, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidDescriptor), "got %v", err)
		})
	}

	_, err := Load(map[string]any{}, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidDescriptor))
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0.1.0", "0.1.0"},
		{"v1.0", "1.0"},
		{" 1.0 ", "1.0"},
		{"1.0.0-alpha.1", "1.0.0a1"},
		{"1.0RC2", "1.0rc2"},
		{"1.0-1", "1.0.post1"},
		{"1.0.post2.dev3", "1.0.post2.dev3"},
		{"2!1.0", "2!1.0"},
		{"1.0+Ubuntu-1", "1.0+ubuntu.1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := normalizeVersion(tt.input)
			if err != nil {
				t.Fatalf("normalizeVersion(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("normalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	for _, input := range []string{"", "abc", "1.0.x", "latest", "1.99999999999999999999", "99999999999999999999!1.0"} {
		if _, err := normalizeVersion(input); err == nil {
			t.Errorf("normalizeVersion(%q) error = nil, want error", input)
		}
	}
}

func TestLoadMissingReadme(t *testing.T) {
	desc := demoModule()
	desc["project"].(map[string]any)["readme"] = "README.rst"

	_, err := Load(desc, fstest.MapFS{"README.md": {Data: []byte("# demo\n")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLayout), "got %v", err)
}

func TestLoadEntryPoints(t *testing.T) {
	desc := demoModule()
	proj := desc["project"].(map[string]any)
	proj["scripts"] = map[string]any{"demo": "demo_module:main"}
	proj["entry-points"] = map[string]any{
		"pytest11": map[string]any{"demo": "demo_module.plugin"},
	}

	m, err := Load(desc, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		"console_scripts": {"demo": "demo_module:main"},
		"pytest11":        {"demo": "demo_module.plugin"},
	}, m.EntryPoints)
}

func TestLoadDynamicVersion(t *testing.T) {
	desc := map[string]any{
		"project": map[string]any{"name": "demo-package", "dynamic": []any{"version"}},
		"tool": map[string]any{
			"pdm": map[string]any{"version": map[string]any{"from": "my_package/__init__.py"}},
		},
	}
	src := fstest.MapFS{
		"my_package/__init__.py": {Data: []byte("__version__ = \"1.2.0-rc.1\"\n")},
	}

	m, err := Load(desc, src)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0rc1", m.Version)

	_, err = Load(desc, fstest.MapFS{"my_package/__init__.py": {Data: []byte("")}})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidDescriptor))
}

func TestLoadSCMVersion(t *testing.T) {
	desc := map[string]any{
		"project": map[string]any{"name": "demo-package", "dynamic": []any{"version"}},
		"tool": map[string]any{
			"pdm": map[string]any{"version": map[string]any{"use_scm": true}},
		},
	}

	m, err := LoadWithSCM(desc, nil, func() (string, error) { return "0.1.1.dev1+g1a2b3c4", nil })
	require.NoError(t, err)
	assert.Equal(t, "0.1.1.dev1+g1a2b3c4", m.Version)

	_, err = Load(desc, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidDescriptor))

	_, err = LoadWithSCM(desc, nil, func() (string, error) { return "", fmt.Errorf("not a git repository") })
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidDescriptor))

	desc["tool"] = map[string]any{"pdm": map[string]any{"version": map[string]any{"use_scm": "yes"}}}
	_, err = LoadWithSCM(desc, nil, func() (string, error) { return "0.1.0", nil })
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidDescriptor))
}

func TestLoadTool(t *testing.T) {
	desc := map[string]any{
		"project": map[string]any{"name": "demo-package", "version": "0.1.0"},
		"tool": map[string]any{
			"yapb": map[string]any{
				"package-dir":      "src/",
				"includes":         []any{"my_package/", "data_out.json"},
				"excludes":         []any{"my_package/data.json"},
				"source-includes":  []any{"tests/"},
				"editable-backend": "path",
				"ext-modules": []any{
					map[string]any{"name": "my_package.hello", "sources": []any{"my_package/hellomodule.c"}},
				},
			},
		},
	}

	m, err := Load(desc, nil)
	require.NoError(t, err)
	assert.Equal(t, Layout{
		PackageDir:      "src",
		Includes:        []string{"my_package/", "data_out.json"},
		Excludes:        []string{"my_package/data.json"},
		SourceIncludes:  []string{"tests/"},
		EditableBackend: EditablePath,
	}, m.Layout)
	assert.True(t, m.Build)
	assert.Equal(t, []Extension{{Name: "my_package.hello", Sources: []string{"my_package/hellomodule.c"}}}, m.Extensions)
}

func TestLoadBuildScript(t *testing.T) {
	desc := map[string]any{
		"project": map[string]any{"name": "demo-package", "version": "0.1.0"},
		"tool": map[string]any{
			"pdm": map[string]any{
				"build":       "build.py",
				"package-dir": map[string]any{"my_package": "foo/my_package"},
			},
		},
	}

	m, err := Load(desc, nil)
	require.NoError(t, err)
	assert.True(t, m.Build)
	assert.Equal(t, "build.py", m.BuildScript)
	assert.Equal(t, map[string]string{"my_package": "foo/my_package"}, m.Layout.PackageDirs)
	assert.Equal(t, EditableRedirect, m.Layout.EditableBackend)
}

func TestPythonVersions(t *testing.T) {
	tests := []struct {
		requires string
		want     []string
	}{
		{">=2.7", []string{"2", "2.7", "3", "3.1", "3.2", "3.3", "3.4", "3.5", "3.6", "3.7", "3.8", "3.9", "3.10", "3.11", "3.12", "3.13"}},
		{"<3.8,>=3.5", []string{"3", "3.5", "3.6", "3.7"}},
		{">=3.6.1,<3.10", []string{"3", "3.6", "3.7", "3.8", "3.9"}},
		{">=3.6,!=3.8,<3.10", []string{"3", "3.6", "3.7", "3.8", "3.9"}},
		{">=3.6,!=3.8.*,<3.10", []string{"3", "3.6", "3.7", "3.9"}},
		{">3.8,!=3.9.*,<3.10", []string{"3", "3.8"}},
		{">3.4.10,<3.5", nil},
		{">3.9.1,<3.9.2", nil},
		{"~=3.6.1", []string{"3", "3.6"}},
		{"==3.6.1", []string{"3", "3.6"}},
		{"===3.6.1", []string{"3", "3.6"}},
		{"==3", []string{"3"}},
		{"==2", nil},
	}

	for _, tt := range tests {
		t.Run(tt.requires, func(t *testing.T) {
			got, err := PythonVersions(tt.requires)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeneratedClassifiers(t *testing.T) {
	desc := demoModule()
	proj := desc["project"].(map[string]any)
	proj["requires-python"] = "<3.8,>=3.5"
	proj["dynamic"] = []any{"classifiers"}
	proj["classifiers"] = []any{"Framework :: Pytest"}

	m, err := Load(desc, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Framework :: Pytest",
		"License :: OSI Approved :: MIT License",
		"Programming Language :: Python :: 3",
		"Programming Language :: Python :: 3.5",
		"Programming Language :: Python :: 3.6",
		"Programming Language :: Python :: 3.7",
	}, m.Classifiers)

	// Declared classifiers are kept verbatim when not dynamic.
	delete(proj, "dynamic")
	m, err = Load(desc, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Framework :: Pytest"}, m.Classifiers)
}

func TestSupportsPython2(t *testing.T) {
	for requires, want := range map[string]bool{
		"":         false,
		">=2.7":    true,
		">=3.6":    false,
		"<3":       false,
		">=2.7,<4": true,
	} {
		m := &Metadata{RequiresPython: requires}
		assert.Equal(t, want, m.SupportsPython2(), requires)
	}
}
