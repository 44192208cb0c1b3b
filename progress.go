package vfstool

import "github.com/meigma/vfstool/internal/vfstype"

// Re-export progress types.
type (
	// ProgressEvent represents a progress update during a build, collapse or
	// directory comparison.
	ProgressEvent = vfstype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = vfstype.ProgressStage

	// ProgressFunc receives progress updates during operations.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = vfstype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageScanning indicates a root is being walked or its archive listed.
	StageScanning = vfstype.StageScanning

	// StageIndexing indicates the resolved table is being frozen.
	StageIndexing = vfstype.StageIndexing

	// StageMaterializing indicates entries are being linked or copied.
	StageMaterializing = vfstype.StageMaterializing

	// StageComparing indicates a directory is being compared with the VFS.
	StageComparing = vfstype.StageComparing
)
