package vfstool

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/meigma/vfstool/bsa"
	"github.com/meigma/vfstool/internal/metrics"
)

// Option configures a VFS.
type Option func(*VFS)

// WithWorkers sets the number of roots scanned, and entries collapsed,
// concurrently. Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(v *VFS) {
		v.workers = n
	}
}

// WithLogger sets the logger for every VFS operation.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(v *VFS) {
		v.logger = logger
	}
}

// WithFS sets the filesystem roots, openmw.cfg and compared directories are
// read from. The default is the local disk. Collapse always writes to the
// local disk and links only make sense for sources on it.
func WithFS(fsys afero.Fs) Option {
	return func(v *VFS) {
		v.fs = fsys
	}
}

// WithProgress sets a callback for build, collapse and comparison progress.
func WithProgress(fn ProgressFunc) Option {
	return func(v *VFS) {
		v.progress = fn
	}
}

// WithMetrics registers build and collapse metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(v *VFS) {
		v.metrics = metrics.New(reg)
	}
}

// WithMaxEntrySize limits the decompressed size of a single archive entry.
// Set limit to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(v *VFS) {
		v.archiveOpts = append(v.archiveOpts, bsa.WithMaxEntrySize(limit))
	}
}

// CollapseOption configures Collapse.
type CollapseOption func(*collapseConfig)

type collapseConfig struct {
	symlinks         bool
	extractArchives  bool
	copyFallback     bool
	skipArchiveFiles bool
	readAheadBytes   int64
}

// CollapseWithSymlinks links loose files symbolically instead of with hard
// links.
func CollapseWithSymlinks(enabled bool) CollapseOption {
	return func(c *collapseConfig) {
		c.symlinks = enabled
	}
}

// CollapseWithExtractArchives writes archived entries into the target.
// By default they are reported as skipped.
func CollapseWithExtractArchives(enabled bool) CollapseOption {
	return func(c *collapseConfig) {
		c.extractArchives = enabled
	}
}

// CollapseWithReadAheadBytes caps the stored bytes of archived entries
// extracted at once.
func CollapseWithReadAheadBytes(limit int64) CollapseOption {
	return func(c *collapseConfig) {
		c.readAheadBytes = limit
	}
}

// CollapseWithCopyFallback copies loose files that cannot be linked.
func CollapseWithCopyFallback(enabled bool) CollapseOption {
	return func(c *collapseConfig) {
		c.copyFallback = enabled
	}
}

// CollapseWithSkipArchiveFiles leaves out loose files that are archives the
// VFS opened, for use with CollapseWithExtractArchives.
func CollapseWithSkipArchiveFiles(enabled bool) CollapseOption {
	return func(c *collapseConfig) {
		c.skipArchiveFiles = enabled
	}
}
