// Package query selects VFS entries by path predicates.
package query

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/gobwas/glob"

	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/pathkey"
)

// ErrInvalidQuery is returned when a query cannot be evaluated.
var ErrInvalidQuery = errors.New("query: invalid query")

// Filter selects how a query is matched against entry keys.
type Filter uint8

const (
	// Exact matches the whole normalized path.
	Exact Filter = iota
	// Name matches base names containing the query.
	Name
	// NameExact matches base names equal to the query.
	NameExact
	// Folder matches entries whose parent directory equals the query.
	Folder
	// Prefix matches paths starting with the query.
	Prefix
	// Extension matches the text after the last dot of the base name.
	Extension
	// Stem matches base names without extension containing the query.
	Stem
	// StemExact matches base names without extension equal to the query.
	StemExact
	// Contains matches paths containing the query anywhere.
	Contains
	// Glob matches paths against a shell pattern where * stops at '/'
	// and ** crosses directories.
	Glob
)

var filterNames = [...]string{
	Exact:     "exact",
	Name:      "name",
	NameExact: "name-exact",
	Folder:    "folder",
	Prefix:    "prefix",
	Extension: "extension",
	Stem:      "stem",
	StemExact: "stem-exact",
	Contains:  "contains",
	Glob:      "glob",
}

func (f Filter) String() string {
	if int(f) < len(filterNames) {
		return filterNames[f]
	}
	return fmt.Sprintf("filter(%d)", uint8(f))
}

// Filters lists every filter in declaration order.
func Filters() []Filter {
	out := make([]Filter, len(filterNames))
	for i := range filterNames {
		out[i] = Filter(i)
	}
	return out
}

// ParseFilter maps a filter name, as printed by String, to its Filter.
// Underscores are accepted in place of dashes.
func ParseFilter(name string) (Filter, error) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for i, n := range filterNames {
		if n == name {
			return Filter(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown filter %q", ErrInvalidQuery, name)
}

// Matcher is a compiled query.
type Matcher struct {
	filter Filter
	needle string
	glob   glob.Glob
}

// Compile prepares q for repeated matching.
func Compile(filter Filter, q string) (*Matcher, error) {
	if q == "" && filter != Folder {
		return nil, fmt.Errorf("%w: empty %s query", ErrInvalidQuery, filter)
	}

	m := &Matcher{filter: filter}
	switch filter {
	case Exact:
		key, err := pathkey.Normalize(q)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		m.needle = key.String()
	case Folder:
		m.needle = pathkey.Fold(pathkey.Clean(q))
	case Prefix, Contains:
		m.needle = pathkey.Fold(pathkey.Clean(q))
		if m.needle == "" {
			return nil, fmt.Errorf("%w: empty %s query", ErrInvalidQuery, filter)
		}
		if filter == Prefix && strings.ContainsAny(q[len(q)-1:], `/\`) {
			m.needle += "/"
		}
	case Extension:
		ext := pathkey.Fold(q)
		if i := strings.LastIndexByte(ext, '.'); i >= 0 {
			ext = ext[i+1:]
		}
		if ext == "" {
			return nil, fmt.Errorf("%w: %q has no extension", ErrInvalidQuery, q)
		}
		m.needle = ext
	case Glob:
		pattern := pathkey.Fold(pathkey.Clean(q))
		g, err := glob.Compile(pattern, pathkey.Sep)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		m.needle = pattern
		m.glob = g
	case Name, NameExact, Stem, StemExact:
		m.needle = pathkey.Fold(q)
	default:
		return nil, fmt.Errorf("%w: unknown filter %d", ErrInvalidQuery, uint8(filter))
	}
	return m, nil
}

// Match reports whether key satisfies the query.
func (m *Matcher) Match(key pathkey.Key) bool {
	folded := key.String()
	switch m.filter {
	case Exact:
		return folded == m.needle
	case Name:
		return strings.Contains(key.Base(), m.needle)
	case NameExact:
		return key.Base() == m.needle
	case Folder:
		return key.Dir() == m.needle
	case Prefix:
		return key.HasPrefix(m.needle)
	case Extension:
		return key.Ext() == m.needle
	case Stem:
		return strings.Contains(key.Stem(), m.needle)
	case StemExact:
		return key.Stem() == m.needle
	case Contains:
		return strings.Contains(folded, m.needle)
	case Glob:
		return m.glob.Match(folded)
	}
	return false
}

// Search returns the entries of idx matching q, sorted by folded key.
func Search(idx *index.Index, filter Filter, q string) ([]index.Entry, error) {
	m, err := Compile(filter, q)
	if err != nil {
		return nil, err
	}
	return m.Search(idx), nil
}

// Search returns the entries of idx matching m, sorted by folded key.
func (m *Matcher) Search(idx *index.Index) []index.Entry {
	switch m.filter {
	case Exact:
		key, err := pathkey.Normalize(m.needle)
		if err != nil {
			return nil
		}
		if e, ok := idx.Lookup(key); ok {
			return []index.Entry{e}
		}
		return nil
	case Prefix:
		return collect(idx.WithPrefix(m.needle), m)
	case Folder:
		return collect(idx.WithPrefix(pathkey.DirPrefix(m.needle)), m)
	default:
		return collect(idx.All(), m)
	}
}

func collect(seq iter.Seq[index.Entry], m *Matcher) []index.Entry {
	var out []index.Entry
	for e := range seq {
		if m.Match(e.Key) {
			out = append(out, e)
		}
	}
	return out
}
