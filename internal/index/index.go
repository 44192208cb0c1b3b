// Package index holds the resolved VFS mapping.
//
// A [Table] collects candidates while roots are scanned concurrently; Freeze
// turns it into an immutable [Index] sorted by folded path, which supports
// O(log n) lookups and prefix range scans.
package index

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/meigma/vfstool/bsa"
	"github.com/meigma/vfstool/pathkey"
)

// ErrNotFound is returned when a path does not resolve.
var ErrNotFound = errors.New("index: not found")

// Index is an immutable resolved VFS.
type Index struct {
	entries  []Entry
	archives []*bsa.Archive
	fs       afero.Fs
}

// Freeze drains t into an Index.
//
// archives is the table ArchiveID values refer to; fsys is the filesystem
// loose paths are read from. The Index takes ownership of the archives.
func (t *Table) Freeze(fsys afero.Fs, archives []*bsa.Archive) *Index {
	entries := t.drain()
	slices.SortFunc(entries, func(a, b Entry) int { return a.Key.Compare(b.Key) })
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Index{entries: entries, archives: archives, fs: fsys}
}

// FromEntries builds an Index from candidates, applying precedence.
func FromEntries(fsys afero.Fs, archives []*bsa.Archive, candidates ...Entry) *Index {
	t := NewTable()
	for _, e := range candidates {
		t.Fold(e)
	}
	return t.Freeze(fsys, archives)
}

// Len returns the number of resolved paths.
func (idx *Index) Len() int { return len(idx.entries) }

// Lookup returns the entry for key.
func (idx *Index) Lookup(key pathkey.Key) (Entry, bool) {
	want := key.String()
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Key.String() >= want
	})
	if i < len(idx.entries) && idx.entries[i].Key.String() == want {
		return idx.entries[i], true
	}
	return Entry{}, false
}

// LookupPath normalizes raw and looks it up.
func (idx *Index) LookupPath(raw string) (Entry, error) {
	key, err := pathkey.Normalize(raw)
	if err != nil {
		return Entry{}, err
	}
	e, ok := idx.Lookup(key)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key.Display())
	}
	return e, nil
}

// All returns every entry in folded key order.
func (idx *Index) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range idx.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Entries returns a copy of all entries in folded key order.
func (idx *Index) Entries() []Entry {
	return slices.Clone(idx.entries)
}

// WithPrefix returns entries whose folded key starts with the folded prefix.
func (idx *Index) WithPrefix(prefix string) iter.Seq[Entry] {
	prefix = pathkey.Fold(prefix)
	return func(yield func(Entry) bool) {
		start := sort.Search(len(idx.entries), func(i int) bool {
			return idx.entries[i].Key.String() >= prefix
		})
		for i := start; i < len(idx.entries); i++ {
			if !strings.HasPrefix(idx.entries[i].Key.String(), prefix) {
				return
			}
			if !yield(idx.entries[i]) {
				return
			}
		}
	}
}

// Archive returns the archive an archived origin refers to.
func (idx *Index) Archive(id int) (*bsa.Archive, bool) {
	if id < 0 || id >= len(idx.archives) {
		return nil, false
	}
	return idx.archives[id], true
}

// Archives returns the archives opened for this index.
func (idx *Index) Archives() []*bsa.Archive {
	return slices.Clone(idx.archives)
}

// Open returns a reader over the bytes that answer for e.
func (idx *Index) Open(e Entry) (io.ReadCloser, error) {
	if e.Origin.Kind == KindLoose {
		return idx.fs.Open(e.Origin.Path)
	}
	a, ok := idx.Archive(e.Origin.ArchiveID)
	if !ok {
		return nil, fmt.Errorf("index: %s: unknown archive id %d", e.Key.Display(), e.Origin.ArchiveID)
	}
	key, err := pathkey.Normalize(e.Origin.EntryName)
	if err != nil {
		return nil, err
	}
	return a.Open(key)
}

// ReadAll returns the bytes that answer for e.
func (idx *Index) ReadAll(e Entry) ([]byte, error) {
	if e.Origin.Kind == KindArchived {
		a, ok := idx.Archive(e.Origin.ArchiveID)
		if !ok {
			return nil, fmt.Errorf("index: %s: unknown archive id %d", e.Key.Display(), e.Origin.ArchiveID)
		}
		key, err := pathkey.Normalize(e.Origin.EntryName)
		if err != nil {
			return nil, err
		}
		return a.Read(key)
	}
	return afero.ReadFile(idx.fs, e.Origin.Path)
}

// Close closes every archive held by the index.
func (idx *Index) Close() error {
	var errs []error
	for _, a := range idx.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
