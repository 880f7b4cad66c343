// Package dist names distributions: normalized project names, artifact file
// names and wheel compatibility tags.
package dist

import (
	"fmt"
	"regexp"
	"strings"
)

// Tag is a wheel compatibility tag triple. Python may hold a dotted
// compressed set such as "py2.py3".
type Tag struct {
	Python   string // e.g., "py3", "cp311"
	ABI      string // e.g., "none", "abi3"
	Platform string // e.g., "any", "linux_x86_64"
}

// PureTag returns the tag for a pure-Python wheel.
func PureTag(python2 bool) Tag {
	if python2 {
		return Tag{Python: "py2.py3", ABI: "none", Platform: "any"}
	}
	return Tag{Python: "py3", ABI: "none", Platform: "any"}
}

// String returns the tag as it appears in a wheel file name.
func (t Tag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// Expand splits compressed tag sets into one tag per combination, the form
// the WHEEL file lists them in.
func (t Tag) Expand() []Tag {
	var tags []Tag
	for _, py := range strings.Split(t.Python, ".") {
		for _, abi := range strings.Split(t.ABI, ".") {
			for _, plat := range strings.Split(t.Platform, ".") {
				tags = append(tags, Tag{Python: py, ABI: abi, Platform: plat})
			}
		}
	}
	return tags
}

// ParseTag parses "python-abi-platform".
func ParseTag(s string) (Tag, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Tag{}, fmt.Errorf("invalid wheel tag: %q", s)
	}
	return Tag{Python: parts[0], ABI: parts[1], Platform: parts[2]}, nil
}

var (
	nameRe      = regexp.MustCompile(`(?i)^([A-Z0-9]|[A-Z0-9][A-Z0-9._-]*[A-Z0-9])$`)
	separatorRe = regexp.MustCompile(`[-_.]+`)
)

// ValidName reports whether name is a valid distribution name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// NormalizeName lowercases name and collapses runs of "-", "_" and "." into
// a single "-" (e.g., "Demo_Package" -> "demo-package").
func NormalizeName(name string) string {
	return separatorRe.ReplaceAllString(strings.ToLower(name), "-")
}

// EscapeName is NormalizeName with "_" as the separator, the form used
// inside wheel and dist-info names.
func EscapeName(name string) string {
	return strings.ReplaceAll(NormalizeName(name), "-", "_")
}

func escapeVersion(version string) string {
	return strings.ReplaceAll(version, "-", "_")
}

// SdistFilename returns "{normalized-name}-{version}.tar.gz".
func SdistFilename(name, version string) string {
	return SdistPrefix(name, version) + ".tar.gz"
}

// SdistPrefix is the single top-level directory of an sdist.
func SdistPrefix(name, version string) string {
	return NormalizeName(name) + "-" + version
}

// WheelFilename returns "{escaped_name}-{version}-{tag}.whl".
func WheelFilename(name, version string, tag Tag) string {
	return fmt.Sprintf("%s-%s-%s.whl", EscapeName(name), escapeVersion(version), tag)
}

// DistInfoDir returns "{escaped_name}-{version}.dist-info".
func DistInfoDir(name, version string) string {
	return fmt.Sprintf("%s-%s.dist-info", EscapeName(name), escapeVersion(version))
}
