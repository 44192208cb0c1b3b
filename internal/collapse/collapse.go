// Package collapse materializes a resolved VFS onto a single directory.
//
// Each entry is tried with a fixed chain of methods and the first success
// wins: loose files are hard linked, or symlinked when requested or when the
// hard link fails, and archived entries are extracted when enabled. Loose
// files may fall back to a byte copy. Failures are collected per entry and
// never abort the run.
package collapse

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/internal/metrics"
	"github.com/meigma/vfstool/internal/vfstype"
	"github.com/meigma/vfstool/pathkey"
)

// Option configures a collapse run.
type Option func(*collapser)

// WithSymlinks links loose files symbolically instead of with hard links.
func WithSymlinks(enabled bool) Option {
	return func(c *collapser) {
		c.symlinks = enabled
	}
}

// WithExtractArchives writes archived entries into the target.
// By default they are reported as not materialized.
func WithExtractArchives(enabled bool) Option {
	return func(c *collapser) {
		c.extract = enabled
	}
}

// WithCopyFallback copies loose files whose links cannot be created.
func WithCopyFallback(enabled bool) Option {
	return func(c *collapser) {
		c.copyFallback = enabled
	}
}

// WithSkipArchiveFiles leaves out loose files that are archives opened by the
// index. It is meant to be combined with WithExtractArchives.
func WithSkipArchiveFiles(enabled bool) Option {
	return func(c *collapser) {
		c.skipArchiveFiles = enabled
	}
}

// WithWorkers sets the number of entries materialized concurrently.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *collapser) {
		c.workers = n
	}
}

// WithLogger sets the logger for collapse operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *collapser) {
		c.logger = logger
	}
}

// WithProgress sets a callback invoked after each entry.
func WithProgress(fn vfstype.ProgressFunc) Option {
	return func(c *collapser) {
		c.progress = fn
	}
}

// WithMetrics records collapse metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *collapser) {
		c.metrics = m
	}
}

// WithReadAheadBytes caps the stored size of archived entries being
// extracted at once. Entries larger than limit run alone. Zero or less
// disables the cap.
func WithReadAheadBytes(limit int64) Option {
	return func(c *collapser) {
		c.readAhead = limit
	}
}

// WithLinker replaces the functions used to create links.
func WithLinker(l Linker) Option {
	return func(c *collapser) {
		c.linker = l
	}
}

type collapser struct {
	symlinks         bool
	extract          bool
	copyFallback     bool
	skipArchiveFiles bool
	workers          int
	readAhead        int64
	logger           *slog.Logger
	progress         vfstype.ProgressFunc
	metrics          *metrics.Metrics
	linker           Linker

	idx          *index.Index
	sink         *fileSink
	budget       *semaphore.Weighted
	archiveFiles map[string]struct{}
}

func (c *collapser) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// result is one entry's slot in the run. Exactly one field is set.
type result struct {
	outcome *Outcome
	skipped *NotMaterialized
	failed  *CollapseError
}

// Run materializes every entry of idx below target, creating it if needed.
//
// The returned error is non-nil only when the target cannot be prepared or
// ctx is canceled; in the latter case the report covers the entries that
// finished. Per-entry failures are in Report.Failed.
func Run(ctx context.Context, idx *index.Index, target string, opts ...Option) (*Report, error) {
	c := &collapser{idx: idx}
	for _, opt := range opts {
		opt(c)
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("collapse: %w", err)
	}
	c.sink, err = newFileSink(abs, c.linker)
	if err != nil {
		return nil, fmt.Errorf("collapse: %w", err)
	}
	defer c.sink.Close()

	if c.readAhead > 0 {
		c.budget = semaphore.NewWeighted(c.readAhead)
	}
	if c.skipArchiveFiles {
		c.archiveFiles = make(map[string]struct{})
		for _, a := range idx.Archives() {
			if a != nil {
				c.archiveFiles[filepath.Clean(a.Name())] = struct{}{}
			}
		}
	}

	start := time.Now()
	entries := idx.Entries()
	results := make([]result, len(entries))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit())
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.materialize(gctx, e)
			c.progress.Emit(vfstype.ProgressEvent{
				Stage:      vfstype.StageMaterializing,
				Path:       e.Key.Display(),
				FilesDone:  int(done.Add(1)),
				FilesTotal: len(entries),
			})
			return nil
		})
	}
	waitErr := g.Wait()

	report := assemble(results)
	c.metrics.CollapseDone(time.Since(start))
	stats := report.Stats()
	c.log().Info("vfs collapsed",
		"target", abs,
		"hardlinked", stats.Hardlinked,
		"symlinked", stats.Symlinked,
		"extracted", stats.Extracted,
		"copied", stats.Copied,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"elapsed", time.Since(start))
	if waitErr != nil {
		return report, waitErr
	}
	return report, nil
}

func (c *collapser) limit() int {
	switch {
	case c.workers < 0:
		return 1
	case c.workers == 0:
		return runtime.GOMAXPROCS(0)
	default:
		return c.workers
	}
}

func assemble(results []result) *Report {
	r := &Report{}
	for _, res := range results {
		switch {
		case res.outcome != nil:
			r.Materialized = append(r.Materialized, *res.outcome)
		case res.skipped != nil:
			r.Skipped = append(r.Skipped, *res.skipped)
		case res.failed != nil:
			r.Failed = append(r.Failed, res.failed)
		}
	}
	return r
}

// materialize runs the method chain for one entry.
func (c *collapser) materialize(ctx context.Context, e index.Entry) result {
	rel := filepath.FromSlash(e.Key.String())
	target := c.sink.path(rel)

	if e.Origin.Kind == index.KindArchived && !c.extract {
		return c.skip(e, ArchiveNotExtracted)
	}
	if e.Origin.IsLoose() && c.archiveFiles != nil {
		if _, ok := c.archiveFiles[filepath.Clean(e.Origin.Path)]; ok {
			return c.skip(e, ArchiveFileSkipped)
		}
	}

	fail := &CollapseError{Key: e.Key, Target: target}
	if err := c.sink.mkdir(filepath.Dir(rel)); err != nil {
		fail.Attempts = append(fail.Attempts, Attempt{Method: methodMkdir, Err: err})
		return c.fail(fail)
	}

	if e.Origin.Kind == index.KindArchived {
		release, err := c.reserve(ctx, e)
		if err != nil {
			fail.Attempts = append(fail.Attempts, Attempt{Method: MethodExtract, Err: err})
			return c.fail(fail)
		}
		n, err := c.writeFrom(e, rel)
		release()
		if err != nil {
			fail.Attempts = append(fail.Attempts, Attempt{Method: MethodExtract, Err: err})
			return c.fail(fail)
		}
		return c.success(Outcome{Key: e.Key, Method: MethodExtract, Target: target, Bytes: n})
	}

	src := e.Origin.Path
	if !c.symlinks {
		if c.sink.sameHardlink(src, rel) {
			return c.success(Outcome{Key: e.Key, Method: MethodHardlink, Target: target, Reused: true})
		}
		err := c.sink.link(src, rel, false)
		if err == nil {
			return c.success(Outcome{Key: e.Key, Method: MethodHardlink, Target: target})
		}
		c.log().Debug("hard link failed", "path", e.Key.Display(), "error", err)
		fail.Attempts = append(fail.Attempts, Attempt{Method: MethodHardlink, Err: err})
	}

	if c.sink.sameSymlink(src, rel) {
		return c.success(Outcome{Key: e.Key, Method: MethodSymlink, Target: target, Reused: true})
	}
	err := c.sink.link(src, rel, true)
	if err == nil {
		return c.success(Outcome{Key: e.Key, Method: MethodSymlink, Target: target})
	}
	c.log().Debug("symlink failed", "path", e.Key.Display(), "error", err)
	fail.Attempts = append(fail.Attempts, Attempt{Method: MethodSymlink, Err: err})

	if c.copyFallback {
		n, err := c.writeFrom(e, rel)
		if err == nil {
			return c.success(Outcome{Key: e.Key, Method: MethodCopy, Target: target, Bytes: n})
		}
		fail.Attempts = append(fail.Attempts, Attempt{Method: MethodCopy, Err: err})
	}
	return c.fail(fail)
}

// reserve takes the entry's stored size from the read-ahead budget and
// returns the func that gives it back.
func (c *collapser) reserve(ctx context.Context, e index.Entry) (func(), error) {
	if c.budget == nil {
		return func() {}, nil
	}
	weight := int64(1)
	if a, ok := c.idx.Archive(e.Origin.ArchiveID); ok {
		if key, err := pathkey.Normalize(e.Origin.EntryName); err == nil {
			if info, err := a.Stat(key); err == nil && info.StoredSize > 0 {
				weight = int64(min(info.StoredSize, uint64(c.readAhead))) //nolint:gosec // readAhead > 0
			}
		}
	}
	if err := c.budget.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	return func() { c.budget.Release(weight) }, nil
}

func (c *collapser) writeFrom(e index.Entry, rel string) (int64, error) {
	rc, err := c.idx.Open(e)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return c.sink.write(rel, rc)
}

func (c *collapser) success(o Outcome) result {
	c.metrics.Collapsed(o.Method.String(), o.Bytes)
	c.log().Debug("materialized", "path", o.Key.Display(), "method", o.Method, "reused", o.Reused)
	return result{outcome: &o}
}

func (c *collapser) skip(e index.Entry, reason Reason) result {
	c.metrics.Collapsed("skipped", 0)
	c.log().Debug("not materialized", "path", e.Key.Display(), "reason", reason)
	return result{skipped: &NotMaterialized{Key: e.Key, Reason: reason}}
}

func (c *collapser) fail(err *CollapseError) result {
	c.metrics.Collapsed("failed", 0)
	c.log().Warn("collapse failed", "path", err.Key.Display(), "error", err)
	return result{failed: err}
}
