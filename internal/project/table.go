package project

import (
	"fmt"

	"github.com/frederic-klein/yapb/internal/errors"
)

// table is one level of the decoded descriptor. path is the dotted key of
// the table itself, used in error messages.
type table struct {
	path string
	m    map[string]any
}

func newTable(path string, m map[string]any) table {
	return table{path: path, m: m}
}

func (t table) key(k string) string {
	if t.path == "" {
		return k
	}
	return t.path + "." + k
}

func (t table) has(k string) bool {
	_, ok := t.m[k]
	return ok
}

func (t table) str(k string) (string, error) {
	v, ok := t.m[k]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.New(errors.ErrCodeInvalidDescriptor, "%s must be a string, got %T", t.key(k), v)
	}
	return s, nil
}

func (t table) boolean(k string) (bool, error) {
	v, ok := t.m[k]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.New(errors.ErrCodeInvalidDescriptor, "%s must be a boolean, got %T", t.key(k), v)
	}
	return b, nil
}

func (t table) strs(k string) ([]string, error) {
	v, ok := t.m[k]
	if !ok {
		return nil, nil
	}
	list, err := toStrings(v)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDescriptor, err, "%s", t.key(k))
	}
	return list, nil
}

func (t table) sub(k string) (table, error) {
	v, ok := t.m[k]
	if !ok {
		return newTable(t.key(k), nil), nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return table{}, errors.New(errors.ErrCodeInvalidDescriptor, "%s must be a table, got %T", t.key(k), v)
	}
	return newTable(t.key(k), m), nil
}

// tables reads an array of tables. Decoders hand these back either as
// []map[string]any or as []any holding maps.
func (t table) tables(k string) ([]table, error) {
	v, ok := t.m[k]
	if !ok {
		return nil, nil
	}
	var out []table
	switch list := v.(type) {
	case []map[string]any:
		for i, m := range list {
			out = append(out, newTable(fmt.Sprintf("%s[%d]", t.key(k), i), m))
		}
	case []any:
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidDescriptor, "%s[%d] must be a table, got %T", t.key(k), i, item)
			}
			out = append(out, newTable(fmt.Sprintf("%s[%d]", t.key(k), i), m))
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidDescriptor, "%s must be an array of tables, got %T", t.key(k), v)
	}
	return out, nil
}

// stringMap reads a table whose values are all strings.
func (t table) stringMap(k string) (map[string]string, error) {
	sub, err := t.sub(k)
	if err != nil {
		return nil, err
	}
	if sub.m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(sub.m))
	for name := range sub.m {
		s, err := sub.str(name)
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

func toStrings(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d must be a string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be an array of strings, got %T", v)
	}
}
