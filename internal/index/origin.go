package index

import (
	"cmp"
	"strings"

	"github.com/meigma/vfstool/pathkey"
)

// Kind distinguishes loose files from archive entries.
type Kind uint8

const (
	// KindLoose is a file found directly in a directory root.
	KindLoose Kind = iota
	// KindArchived is an entry packed inside an archive.
	KindArchived
)

func (k Kind) String() string {
	if k == KindArchived {
		return "archived"
	}
	return "loose"
}

// Origin records where a resolved entry's bytes come from.
type Origin struct {
	Kind Kind

	// RootIndex is the position of the contributing root in the scan order.
	RootIndex int

	// Path is the absolute file path for loose entries and the archive path
	// for archived entries.
	Path string

	// ArchiveID indexes Index.Archive for archived entries.
	ArchiveID int

	// ArchiveSeq orders archives that share a root index; the later one wins.
	ArchiveSeq int

	// EntryName is the in-archive name for archived entries.
	EntryName string
}

// Loose returns an origin for a file found in a directory root.
func Loose(rootIndex int, path string) Origin {
	return Origin{Kind: KindLoose, RootIndex: rootIndex, Path: path, ArchiveID: -1}
}

// Archived returns an origin for an archive entry.
func Archived(rootIndex, archiveID, archiveSeq int, archivePath, entryName string) Origin {
	return Origin{
		Kind:       KindArchived,
		RootIndex:  rootIndex,
		Path:       archivePath,
		ArchiveID:  archiveID,
		ArchiveSeq: archiveSeq,
		EntryName:  entryName,
	}
}

// IsLoose reports whether the origin is a loose file.
func (o Origin) IsLoose() bool { return o.Kind == KindLoose }

// Location returns a human readable physical location: the file path for
// loose entries and the archive path joined with the entry for archived ones.
func (o Origin) Location() string {
	if o.Kind == KindLoose {
		return o.Path
	}
	return strings.TrimSuffix(o.Path, "/") + "/" + o.EntryName
}

// Compare orders origins by precedence.
//
// Higher root indexes win. At the same root a loose file beats an archive
// entry, and among archives the later listed one wins. Remaining ties (case
// variants of one path inside a single directory) fall back to the source
// path so the result never depends on scan order.
func (o Origin) Compare(other Origin) int {
	if c := cmp.Compare(o.RootIndex, other.RootIndex); c != 0 {
		return c
	}
	if o.Kind != other.Kind {
		if o.Kind == KindLoose {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(o.ArchiveSeq, other.ArchiveSeq); c != 0 {
		return c
	}
	if c := strings.Compare(o.Path, other.Path); c != 0 {
		return c
	}
	return strings.Compare(o.EntryName, other.EntryName)
}

// Outranks reports whether o takes precedence over other.
func (o Origin) Outranks(other Origin) bool {
	return o.Compare(other) > 0
}

// Entry is one resolved path.
type Entry struct {
	Key    pathkey.Key
	Origin Origin
}
