package vfstool

import (
	"fmt"
	"strings"

	"github.com/meigma/vfstool/bsa"
	"github.com/meigma/vfstool/internal/build"
	"github.com/meigma/vfstool/internal/collapse"
	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/internal/openmwcfg"
	"github.com/meigma/vfstool/internal/query"
	"github.com/meigma/vfstool/internal/tree"
	"github.com/meigma/vfstool/pathkey"
)

// Errors re-exported from the path and archive packages.
var (
	// ErrInvalidPath is returned when a path normalizes to nothing.
	ErrInvalidPath = pathkey.ErrInvalidPath

	// ErrArchiveOpen is returned when an archive header or directory cannot be read.
	ErrArchiveOpen = bsa.ErrArchiveOpen

	// ErrEntryMissing is returned when an archive has no entry for a path.
	ErrEntryMissing = bsa.ErrEntryMissing

	// ErrArchiveCorrupt is returned when archived bytes fail to decode.
	ErrArchiveCorrupt = bsa.ErrArchiveCorrupt
)

// Errors re-exported from the internal packages.
var (
	// ErrRootUnreadable is returned when a root directory or archive cannot be scanned.
	ErrRootUnreadable = build.ErrRootUnreadable

	// ErrNotFound is returned when a path does not resolve in the VFS.
	ErrNotFound = index.ErrNotFound

	// ErrInvalidQuery is returned for empty queries and malformed glob patterns.
	ErrInvalidQuery = query.ErrInvalidQuery

	// ErrConfig is returned when openmw.cfg cannot be located, read or parsed.
	ErrConfig = openmwcfg.ErrConfig

	// ErrUnknownFormat is returned for an unsupported tree output format.
	ErrUnknownFormat = tree.ErrUnknownFormat
)

type (
	// RootError reports a root that could not be scanned. It matches
	// ErrRootUnreadable.
	RootError = build.RootError

	// CollapseError reports an entry for which every materialization method
	// failed. It unwraps to each attempt's error.
	CollapseError = collapse.CollapseError

	// NotMaterialized reports an entry deliberately left out of a collapse.
	NotMaterialized = collapse.NotMaterialized
)

// NotFoundError reports a path that does not resolve in the VFS. It matches
// ErrNotFound.
type NotFoundError struct {
	Path string

	// Suggestions lists similar paths that do resolve, most similar first.
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("vfstool: %s: not found", e.Path)
	}
	return fmt.Sprintf("vfstool: %s: not found (did you mean %s?)", e.Path, strings.Join(e.Suggestions, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
