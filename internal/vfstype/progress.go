// Package vfstype defines shared types used across the vfstool package and
// its internal packages. This avoids circular imports between vfstool and the
// build, collapse and remaining packages.
package vfstype

// ProgressEvent represents a progress update during a build, collapse or
// directory comparison.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the root or entry currently being processed, if applicable.
	Path string

	// FilesDone is the number of files completed.
	FilesDone int

	// FilesTotal is the total number of files.
	// Zero indicates the total is unknown (e.g., while scanning).
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageScanning indicates a root is being walked or its archive listed.
	StageScanning ProgressStage = iota

	// StageIndexing indicates the resolved table is being frozen.
	StageIndexing

	// StageMaterializing indicates entries are being linked or copied.
	StageMaterializing

	// StageComparing indicates a directory is being compared with the VFS.
	StageComparing
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageScanning:
		return "scanning"
	case StageIndexing:
		return "indexing"
	case StageMaterializing:
		return "materializing"
	case StageComparing:
		return "comparing"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)

// Emit calls fn with ev when fn is set.
func (fn ProgressFunc) Emit(ev ProgressEvent) {
	if fn != nil {
		fn(ev)
	}
}
