// Package scm derives a project version from its git history.
//
// The scheme follows the common "guess next dev" convention: a clean
// checkout of a release tag is that release; work past the tag is a dev
// release of the next version, tagged locally with the commit id; and
// uncommitted changes to tracked files add the date.
package scm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Version used when no release tag reaches HEAD.
const untagged = "0.1"

var (
	trailingNumber = regexp.MustCompile(`^(.*?)(\d+)$`)
	devRelease     = regexp.MustCompile(`dev\d+$`)
)

// Version returns the version of the checkout containing dir. now dates
// dirty trees.
func Version(dir string, now time.Time) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("opening repository at %s: %w", dir, err)
	}
	date := now.UTC().Format("20060102")

	head, err := repo.Head()
	if err == plumbing.ErrReferenceNotFound {
		return untagged + ".dev0+d" + date, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}

	tags, err := releaseTags(repo)
	if err != nil {
		return "", err
	}
	tag, distance, err := describe(repo, head.Hash(), tags)
	if err != nil {
		return "", err
	}
	dirty, err := isDirty(repo)
	if err != nil {
		return "", err
	}

	if tag != "" && distance == 0 {
		if dirty {
			return tag + "+d" + date, nil
		}
		return tag, nil
	}

	next := untagged
	if tag != "" {
		m := trailingNumber.FindStringSubmatch(tag)
		n, _ := strconv.Atoi(m[2])
		next = m[1] + strconv.Itoa(n+1)
	}
	v := fmt.Sprintf("%s.dev%d+g%s", next, distance, head.Hash().String()[:7])
	if dirty {
		v += ".d" + date
	}
	return v, nil
}

// releaseTags maps each tagged commit to its highest release version. Tags
// that are not public, non-dev versions are ignored; a leading "v" is
// allowed.
func releaseTags(repo *git.Repository) (map[plumbing.Hash]pep440.Version, error) {
	refs, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer refs.Close()

	tags := make(map[plumbing.Hash]pep440.Version)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		v, err := pep440.Parse(strings.TrimPrefix(ref.Name().Short(), "v"))
		if err != nil {
			return nil
		}
		s := v.String()
		if strings.Contains(s, "+") || devRelease.MatchString(s) {
			return nil
		}

		hash := ref.Hash()
		if annotated, err := repo.TagObject(hash); err == nil {
			c, err := annotated.Commit()
			if err != nil {
				return nil
			}
			hash = c.Hash
		}
		if prev, ok := tags[hash]; !ok || v.GreaterThan(prev) {
			tags[hash] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}
	return tags, nil
}

// describe walks back from head to the nearest tagged commit, returning its
// version and the number of commits in between. With no tag in reach the
// version is empty and the distance counts all of head's history.
func describe(repo *git.Repository, head plumbing.Hash, tags map[plumbing.Hash]pep440.Version) (string, int, error) {
	iter, err := repo.Log(&git.LogOptions{From: head, Order: git.LogOrderCommitterTime})
	if err != nil {
		return "", 0, fmt.Errorf("reading history: %w", err)
	}
	defer iter.Close()

	var tag string
	distance := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if v, ok := tags[c.Hash]; ok {
			tag = v.String()
			return storer.ErrStop
		}
		distance++
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("reading history: %w", err)
	}
	return tag, distance, nil
}

// isDirty reports changes to tracked files, staged or not. Untracked files
// do not count.
func isDirty(repo *git.Repository) (bool, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("reading status: %w", err)
	}
	for _, s := range status {
		if changed(s.Staging) || changed(s.Worktree) {
			return true, nil
		}
	}
	return false, nil
}

func changed(c git.StatusCode) bool {
	return c != git.Unmodified && c != git.Untracked
}
