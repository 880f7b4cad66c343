// Package pkginfo parses core metadata files (METADATA, PKG-INFO): a block
// of "Key: value" headers, a blank line, then the description body.
package pkginfo

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Header is one metadata field in file order.
type Header struct {
	Key   string
	Value string
}

// Info is a parsed metadata file.
type Info struct {
	Headers []Header
	Body    string
}

var (
	headerRe       = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9-]*):\s?(.*)$`)
	continuationRe = regexp.MustCompile(`^[ \t]+(.*)$`)
)

// Parse reads a metadata file.
func Parse(r io.Reader) (*Info, error) {
	info := &Info{}
	var body strings.Builder
	inBody := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if inBody {
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}

		// Blank line ends the headers
		if line == "" {
			inBody = true
			continue
		}

		// Folded value
		if matches := continuationRe.FindStringSubmatch(line); matches != nil && len(info.Headers) > 0 {
			last := &info.Headers[len(info.Headers)-1]
			last.Value += "\n" + matches[1]
			continue
		}

		matches := headerRe.FindStringSubmatch(line)
		if matches == nil {
			return nil, fmt.Errorf("malformed metadata line: %q", line)
		}
		info.Headers = append(info.Headers, Header{Key: matches[1], Value: matches[2]})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	info.Body = body.String()
	return info, nil
}

// Get returns the first value of key, matched case-insensitively.
func (i *Info) Get(key string) string {
	for _, h := range i.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// GetAll returns every value of key in file order.
func (i *Info) GetAll(key string) []string {
	var out []string
	for _, h := range i.Headers {
		if strings.EqualFold(h.Key, key) {
			out = append(out, h.Value)
		}
	}
	return out
}

// multiValued are the fields that may repeat.
var multiValued = map[string]bool{
	"Classifier":     true,
	"Requires-Dist":  true,
	"Provides-Extra": true,
	"Project-URL":    true,
	"Platform":       true,
	"Dynamic":        true,
	"License-File":   true,
}

// Map returns the headers keyed by field name, repeatable fields as lists.
// The body is left out.
func (i *Info) Map() map[string]any {
	out := make(map[string]any)
	for _, h := range i.Headers {
		if multiValued[h.Key] {
			list, _ := out[h.Key].([]string)
			out[h.Key] = append(list, h.Value)
			continue
		}
		out[h.Key] = h.Value
	}
	return out
}
