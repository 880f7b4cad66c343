package project

import (
	"fmt"
	"sort"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// pythonReleases lists released interpreter minors with their last patch
// level, the universe requires-python is evaluated against.
var pythonReleases = []struct {
	major, minor, lastPatch int
}{
	{2, 7, 18},
	{3, 0, 1},
	{3, 1, 5},
	{3, 2, 6},
	{3, 3, 7},
	{3, 4, 10},
	{3, 5, 10},
	{3, 6, 15},
	{3, 7, 17},
	{3, 8, 20},
	{3, 9, 21},
	{3, 10, 16},
	{3, 11, 11},
	{3, 12, 9},
	{3, 13, 2},
}

var licenseClassifiers = map[string]string{
	"mit":          "License :: OSI Approved :: MIT License",
	"apache-2.0":   "License :: OSI Approved :: Apache Software License",
	"bsd-2-clause": "License :: OSI Approved :: BSD License",
	"bsd-3-clause": "License :: OSI Approved :: BSD License",
	"bsd":          "License :: OSI Approved :: BSD License",
	"isc":          "License :: OSI Approved :: ISC License (ISCL)",
	"mpl-2.0":      "License :: OSI Approved :: Mozilla Public License 2.0 (MPL 2.0)",
	"gpl-2.0":      "License :: OSI Approved :: GNU General Public License v2 (GPLv2)",
	"gpl-3.0":      "License :: OSI Approved :: GNU General Public License v3 (GPLv3)",
	"lgpl-3.0":     "License :: OSI Approved :: GNU Lesser General Public License v3 (LGPLv3)",
}

// PythonVersions returns the "X" and "X.Y" interpreter versions admitted by
// requiresPython. A minor counts when any of its patch releases matches.
// There is no classifier for 3.0, but 3.0 still makes "3" count.
func PythonVersions(requiresPython string) ([]string, error) {
	set, err := pep440.NewSpecifiers(requiresPython)
	if err != nil {
		return nil, err
	}
	var out []string
	seenMajor := make(map[int]bool)
	for _, r := range pythonReleases {
		if !admitsMinor(set, r.major, r.minor, r.lastPatch) {
			continue
		}
		if !seenMajor[r.major] {
			seenMajor[r.major] = true
			out = append(out, fmt.Sprint(r.major))
		}
		if r.major == 3 && r.minor == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%d.%d", r.major, r.minor))
	}
	return out, nil
}

func admitsMinor(set pep440.Specifiers, major, minor, lastPatch int) bool {
	for patch := 0; patch <= lastPatch; patch++ {
		v, err := pep440.Parse(fmt.Sprintf("%d.%d.%d", major, minor, patch))
		if err != nil {
			return false
		}
		if set.Check(v) {
			return true
		}
	}
	return false
}

// SupportsPython2 reports whether requires-python admits both a 2.x and a
// 3.x interpreter. Projects without requires-python are treated as
// Python 3 only.
func (m *Metadata) SupportsPython2() bool {
	if m.RequiresPython == "" {
		return false
	}
	versions, err := PythonVersions(m.RequiresPython)
	if err != nil {
		return false
	}
	var py2, py3 bool
	for _, v := range versions {
		py2 = py2 || v == "2"
		py3 = py3 || v == "3"
	}
	return py2 && py3
}

func (m *Metadata) generateClassifiers() []string {
	seen := make(map[string]bool)
	for _, c := range m.Classifiers {
		seen[c] = true
	}
	if m.RequiresPython != "" {
		versions, _ := PythonVersions(m.RequiresPython)
		for _, v := range versions {
			seen["Programming Language :: Python :: "+v] = true
		}
	}
	if c, ok := licenseClassifiers[strings.ToLower(strings.TrimSpace(m.License))]; ok {
		seen[c] = true
	}

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
