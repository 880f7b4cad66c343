package scm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var buildTime = time.Date(2026, 10, 17, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))

func signature() *object.Signature {
	return &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}
}

func initRepo(t *testing.T) (*git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return repo, dir
}

// stage writes a file and adds it to the index.
func stage(t *testing.T, repo *git.Repository, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
}

func commit(t *testing.T, repo *git.Repository, dir, name, content string) plumbing.Hash {
	t.Helper()
	stage(t, repo, dir, name, content)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	hash, err := wt.Commit("add "+name, &git.CommitOptions{Author: signature()})
	require.NoError(t, err)
	return hash
}

func TestVersionFromTag(t *testing.T) {
	repo, dir := initRepo(t)
	tagged := commit(t, repo, dir, "a.txt", "a")
	_, err := repo.CreateTag("v0.1.0", tagged, nil)
	require.NoError(t, err)

	v, err := Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", v)

	// Untracked files leave the tree clean.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	v, err = Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", v)

	stage(t, repo, dir, "b.txt", "b")
	v, err = Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "0.1.0+d20261018", v)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	head, err := wt.Commit("add b.txt", &git.CommitOptions{Author: signature()})
	require.NoError(t, err)
	v, err = Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "0.1.1.dev1+g"+head.String()[:7], v)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed"), 0o600))
	v, err = Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "0.1.1.dev1+g"+head.String()[:7]+".d20261018", v)
}

func TestVersionAnnotatedTag(t *testing.T) {
	repo, dir := initRepo(t)
	first := commit(t, repo, dir, "a.txt", "a")
	_, err := repo.CreateTag("1.0rc1", first, &git.CreateTagOptions{Tagger: signature(), Message: "release"})
	require.NoError(t, err)
	_, err = repo.CreateTag("not-a-version", first, nil)
	require.NoError(t, err)
	commit(t, repo, dir, "b.txt", "b")
	head := commit(t, repo, dir, "c.txt", "c")

	v, err := Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "1.0rc2.dev2+g"+head.String()[:7], v)
}

func TestVersionHighestTagWins(t *testing.T) {
	repo, dir := initRepo(t)
	tagged := commit(t, repo, dir, "a.txt", "a")
	for _, name := range []string{"v1.2.0", "v1.10.0", "v1.9.0"} {
		_, err := repo.CreateTag(name, tagged, nil)
		require.NoError(t, err)
	}

	v, err := Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", v)
}

func TestVersionUntagged(t *testing.T) {
	repo, dir := initRepo(t)

	v, err := Version(dir, buildTime)
	require.NoError(t, err)
	assert.Equal(t, "0.1.dev0+d20261018", v)

	commit(t, repo, dir, "a.txt", "a")
	head := commit(t, repo, dir, "b.txt", "b")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "pkg"), 0o755))

	v, err = Version(filepath.Join(dir, "src", "pkg"), buildTime)
	require.NoError(t, err)
	assert.Equal(t, "0.1.dev2+g"+head.String()[:7], v)
}

func TestVersionNotARepository(t *testing.T) {
	_, err := Version(t.TempDir(), buildTime)
	assert.Error(t, err)
}
