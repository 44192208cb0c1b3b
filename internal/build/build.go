// Package build assembles a resolved VFS from an ordered list of roots.
//
// Each root is scanned by its own task on a bounded worker pool. Directory
// roots are walked recursively; archive roots contribute their catalog.
// Candidates fold into a sharded [index.Table] under the precedence order of
// [index.Origin.Compare], so the result does not depend on which task
// finishes first.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/vfstool/bsa"
	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/internal/metrics"
	"github.com/meigma/vfstool/internal/vfstype"
	"github.com/meigma/vfstool/pathkey"
)

// ErrRootUnreadable is returned when a root directory or archive cannot be
// scanned.
var ErrRootUnreadable = errors.New("build: root unreadable")

// Kind identifies the type of a root.
type Kind uint8

const (
	// KindDirectory is a data directory walked recursively.
	KindDirectory Kind = iota
	// KindArchive is a single BSA or BA2 archive.
	KindArchive
)

func (k Kind) String() string {
	if k == KindArchive {
		return "archive"
	}
	return "directory"
}

// Root is one source of the VFS. Its position in the list passed to [Build]
// is its priority: later roots override earlier ones.
type Root struct {
	Kind Kind
	Path string

	// Archives names archive files registered with a directory root. They
	// share the directory's priority, lose to its loose files, and the last
	// listed wins among them. Relative names resolve against Path.
	Archives []string
}

// DirectoryRoot returns a directory root.
func DirectoryRoot(path string, archives ...string) Root {
	return Root{Kind: KindDirectory, Path: path, Archives: archives}
}

// ArchiveRoot returns an archive root.
func ArchiveRoot(path string) Root {
	return Root{Kind: KindArchive, Path: path}
}

// RootError reports a root that could not be scanned.
type RootError struct {
	Index int
	Root  Root
	Path  string
	Err   error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("build: root %d (%s %s): %v", e.Index, e.Root.Kind, e.Path, e.Err)
}

// Unwrap matches ErrRootUnreadable and the underlying cause, which is
// bsa.ErrArchiveOpen for archives that fail to open.
func (e *RootError) Unwrap() []error {
	return []error{ErrRootUnreadable, e.Err}
}

// Option configures a build.
type Option func(*builder)

// WithWorkers sets the number of roots scanned concurrently.
// Values < 0 force serial scanning. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(b *builder) {
		b.workers = n
	}
}

// WithLogger sets the logger for build operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

// WithFS sets the filesystem roots are read from.
// The default is the local disk.
func WithFS(fsys afero.Fs) Option {
	return func(b *builder) {
		b.fs = fsys
	}
}

// WithProgress sets a callback invoked as roots finish scanning.
func WithProgress(fn vfstype.ProgressFunc) Option {
	return func(b *builder) {
		b.progress = fn
	}
}

// WithMetrics records build metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *builder) {
		b.metrics = m
	}
}

// WithArchiveOptions sets options applied to every opened archive.
func WithArchiveOptions(opts ...bsa.Option) Option {
	return func(b *builder) {
		b.archiveOpts = append(b.archiveOpts, opts...)
	}
}

type builder struct {
	workers     int
	logger      *slog.Logger
	fs          afero.Fs
	progress    vfstype.ProgressFunc
	metrics     *metrics.Metrics
	archiveOpts []bsa.Option

	table    *index.Table
	archives []*bsa.Archive
	done     atomic.Int64
	skipped  atomic.Int64
}

func (b *builder) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// task is the unit of work for one root. archiveIDs are its slots in the
// builder's archive table, in listed order.
type task struct {
	index      int
	root       Root
	path       string
	archiveIDs []int
}

// Build scans roots and returns the resolved index.
//
// The first root that cannot be scanned cancels the build and is returned as
// a *RootError. Files that cannot be read inside a readable root are logged
// and skipped.
func Build(ctx context.Context, roots []Root, opts ...Option) (*index.Index, error) {
	b := &builder{table: index.NewTable()}
	for _, opt := range opts {
		opt(b)
	}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}
	if b.logger != nil {
		b.archiveOpts = append([]bsa.Option{bsa.WithLogger(b.logger)}, b.archiveOpts...)
	}

	start := time.Now()
	tasks := b.plan(roots)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit())
	for _, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := b.scan(gctx, t); err != nil {
				return err
			}
			b.progress.Emit(vfstype.ProgressEvent{
				Stage:      vfstype.StageScanning,
				Path:       t.path,
				FilesDone:  int(b.done.Add(1)),
				FilesTotal: len(tasks),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.closeArchives()
		return nil, err
	}

	b.progress.Emit(vfstype.ProgressEvent{Stage: vfstype.StageIndexing, FilesTotal: b.table.Len()})
	idx := b.table.Freeze(b.fs, b.archives)

	elapsed := time.Since(start)
	b.metrics.BuildDone(idx.Len(), elapsed)
	b.log().Info("vfs built",
		"roots", len(roots),
		"archives", len(b.archives),
		"entries", idx.Len(),
		"skipped", b.skipped.Load(),
		"elapsed", elapsed)
	return idx, nil
}

func (b *builder) limit() int {
	switch {
	case b.workers < 0:
		return 1
	case b.workers == 0:
		return runtime.GOMAXPROCS(0)
	default:
		return b.workers
	}
}

// plan assigns archive slots up front so tasks can fill them without locking.
func (b *builder) plan(roots []Root) []task {
	tasks := make([]task, len(roots))
	next := 0
	for i, r := range roots {
		t := task{index: i, root: r, path: absPath(r.Path)}
		switch r.Kind {
		case KindArchive:
			t.archiveIDs = []int{next}
			next++
		default:
			for range r.Archives {
				t.archiveIDs = append(t.archiveIDs, next)
				next++
			}
		}
		tasks[i] = t
	}
	b.archives = make([]*bsa.Archive, next)
	return tasks
}

func (b *builder) scan(ctx context.Context, t task) error {
	b.log().Debug("scanning root", "index", t.index, "kind", t.root.Kind, "path", t.path)
	b.metrics.RootScanned(t.root.Kind.String())

	if t.root.Kind == KindArchive {
		return b.scanArchive(t, t.path, t.archiveIDs[0], 0)
	}
	if err := b.scanDirectory(ctx, t); err != nil {
		return err
	}
	for seq, name := range t.root.Archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(t.path, name)
		}
		if err := b.scanArchive(t, path, t.archiveIDs[seq], seq); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) scanArchive(t task, path string, id, seq int) error {
	a, err := bsa.OpenFS(b.fs, path, b.archiveOpts...)
	if err != nil {
		return &RootError{Index: t.index, Root: t.root, Path: path, Err: err}
	}
	b.archives[id] = a

	for key := range a.Entries() {
		b.table.Fold(index.Entry{
			Key:    key,
			Origin: index.Archived(t.index, id, seq, path, key.Display()),
		})
		b.metrics.Candidate(index.KindArchived.String())
	}
	return nil
}

func (b *builder) scanDirectory(ctx context.Context, t task) error {
	info, err := b.fs.Stat(t.path)
	if err != nil {
		return &RootError{Index: t.index, Root: t.root, Path: t.path, Err: err}
	}
	if !info.IsDir() {
		return &RootError{Index: t.index, Root: t.root, Path: t.path, Err: errors.New("not a directory")}
	}

	walkRoot := RootForWalk(t.path)
	return afero.Walk(b.fs, walkRoot, func(path string, info fs.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == walkRoot {
				return &RootError{Index: t.index, Root: t.root, Path: t.path, Err: walkErr}
			}
			b.skip(path, walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := b.fs.Stat(path)
			if err != nil {
				b.skip(path, err)
				return nil
			}
			info = target
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(t.path, path)
		if err != nil {
			b.skip(path, err)
			return nil
		}
		key, err := pathkey.Normalize(filepath.ToSlash(rel))
		if err != nil {
			b.skip(path, err)
			return nil
		}
		b.table.Fold(index.Entry{Key: key, Origin: index.Loose(t.index, path)})
		b.metrics.Candidate(index.KindLoose.String())
		return nil
	})
}

func (b *builder) skip(path string, err error) {
	b.skipped.Add(1)
	b.metrics.FileSkipped()
	b.log().Warn("skipping unreadable file", "path", path, "error", err)
}

func (b *builder) closeArchives() {
	for _, a := range b.archives {
		if a != nil {
			_ = a.Close() //nolint:errcheck // best-effort cleanup
		}
	}
}

// RootForWalk returns dir with a trailing separator. A walk lstats its
// root, and the separator makes a symlinked root resolve to its target
// directory while the walked paths stay under dir.
func RootForWalk(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
