package layout

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/frederic-klein/yapb/internal/errors"
)

// ValidatePattern rejects patterns that are malformed or reach outside the
// project root.
func ValidatePattern(pattern string) error {
	p := strings.TrimSpace(pattern)
	switch {
	case p == "":
		return errors.New(errors.ErrCodePattern, "empty pattern")
	case strings.HasPrefix(p, "/") || path.IsAbs(p) || (len(p) > 1 && p[1] == ':'):
		return errors.New(errors.ErrCodePattern, "pattern %q is absolute", pattern)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return errors.New(errors.ErrCodePattern, "pattern %q leaves the project root", pattern)
		}
	}
	if !doublestar.ValidatePattern(p) {
		return errors.New(errors.ErrCodePattern, "malformed pattern %q", pattern)
	}
	return nil
}

// Match reports whether pattern selects file. A pattern selects a file when
// it matches the file itself or one of its parent directories, so "dir",
// "dir/" and "dir/*" all take the whole directory.
func Match(pattern, file string) bool {
	p := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(pattern), "./"), "/")
	for f := file; f != "." && f != ""; f = path.Dir(f) {
		if ok, _ := doublestar.Match(p, f); ok {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, file string) bool {
	for _, p := range patterns {
		if Match(p, file) {
			return true
		}
	}
	return false
}
