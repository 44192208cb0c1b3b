package vfstool

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/spf13/afero"

	"github.com/meigma/vfstool/bsa"
	"github.com/meigma/vfstool/internal/build"
	"github.com/meigma/vfstool/internal/collapse"
	"github.com/meigma/vfstool/internal/index"
	vfsmetrics "github.com/meigma/vfstool/internal/metrics"
	"github.com/meigma/vfstool/internal/openmwcfg"
	"github.com/meigma/vfstool/internal/query"
	"github.com/meigma/vfstool/internal/remaining"
	"github.com/meigma/vfstool/internal/tree"
	"github.com/meigma/vfstool/pathkey"
)

// minSimilarity is the lowest score a path needs to be suggested.
const minSimilarity = 0.7

// VFS is a resolved virtual file system. It is safe for concurrent use.
//
// A VFS holds the archives it opened; call Close when done.
type VFS struct {
	workers     int
	logger      *slog.Logger
	fs          afero.Fs
	progress    ProgressFunc
	metrics     *vfsmetrics.Metrics
	archiveOpts []bsa.Option

	idx *index.Index
}

func newVFS(opts []Option) *VFS {
	v := &VFS{}
	for _, opt := range opts {
		opt(v)
	}
	if v.fs == nil {
		v.fs = afero.NewOsFs()
	}
	return v
}

func (v *VFS) log() *slog.Logger {
	if v.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return v.logger
}

// Open builds a VFS from roots. A root's position is its priority.
//
// A root that cannot be scanned fails the whole build with a *RootError.
func Open(ctx context.Context, roots []Root, opts ...Option) (*VFS, error) {
	v := newVFS(opts)
	if err := v.build(ctx, roots); err != nil {
		return nil, err
	}
	return v, nil
}

// OpenConfig builds the VFS described by an openmw.cfg.
//
// path names the file or the directory containing it; an empty path uses
// the OPENMW_CONFIG environment variable or the platform default location.
// Fallback archives that cannot be found in any data directory are logged
// and skipped.
func OpenConfig(ctx context.Context, path string, opts ...Option) (*VFS, *Config, error) {
	v := newVFS(opts)
	cfgOpts := []openmwcfg.Option{openmwcfg.WithFS(v.fs), openmwcfg.WithLogger(v.logger)}

	cfg, err := openmwcfg.Load(path, cfgOpts...)
	if err != nil {
		return nil, nil, err
	}
	v.log().Debug("loaded openmw.cfg", "files", cfg.Files, "data", len(cfg.DataDirs()), "archives", len(cfg.FallbackArchives))

	if err := v.build(ctx, openmwcfg.Roots(cfg, cfgOpts...)); err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func (v *VFS) build(ctx context.Context, roots []Root) error {
	idx, err := build.Build(ctx, roots,
		build.WithWorkers(v.workers),
		build.WithLogger(v.logger),
		build.WithFS(v.fs),
		build.WithProgress(v.progress),
		build.WithMetrics(v.metrics),
		build.WithArchiveOptions(v.archiveOpts...),
	)
	if err != nil {
		return err
	}
	v.idx = idx
	return nil
}

// Close releases the archives held by the VFS.
func (v *VFS) Close() error {
	return v.idx.Close()
}

// Len returns the number of resolved paths.
func (v *VFS) Len() int {
	return v.idx.Len()
}

// Entries returns every resolved entry sorted by folded path.
func (v *VFS) Entries() []Entry {
	return v.idx.Entries()
}

// Lookup resolves path, which may use either separator and any case.
func (v *VFS) Lookup(path string) (Entry, error) {
	return v.idx.LookupPath(path)
}

// FindFile resolves path like Lookup. When nothing answers it returns a
// *NotFoundError carrying up to three similar paths that do resolve.
func (v *VFS) FindFile(path string) (Entry, error) {
	e, err := v.idx.LookupPath(path)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, &NotFoundError{Path: path, Suggestions: v.Suggest(path, 3)}
	}
	return e, err
}

// Suggest returns up to n resolved paths similar to path, most similar first.
func (v *VFS) Suggest(path string, n int) []string {
	key, err := pathkey.Normalize(path)
	if err != nil || n <= 0 {
		return nil
	}

	type scored struct {
		display string
		score   float64
	}
	metric := metrics.NewJaroWinkler()
	var hits []scored
	for e := range v.idx.All() {
		score := max(
			strutil.Similarity(key.String(), e.Key.String(), metric),
			strutil.Similarity(key.Base(), e.Key.Base(), metric),
		)
		if score >= minSimilarity {
			hits = append(hits, scored{display: e.Key.Display(), score: score})
		}
	}
	// Entries arrive in key order, so a stable sort breaks ties by path.
	slices.SortStableFunc(hits, func(a, b scored) int { return cmp.Compare(b.score, a.score) })

	out := make([]string, 0, min(n, len(hits)))
	for _, h := range hits[:min(n, len(hits))] {
		out = append(out, h.display)
	}
	return out
}

// Find returns the entries matching q under filter, sorted by folded path.
func (v *VFS) Find(filter Filter, q string) ([]Entry, error) {
	return query.Search(v.idx, filter, q)
}

// Open returns a reader over the bytes that answer for path.
func (v *VFS) Open(path string) (io.ReadCloser, error) {
	e, err := v.idx.LookupPath(path)
	if err != nil {
		return nil, err
	}
	return v.idx.Open(e)
}

// ReadFile returns the bytes that answer for path.
func (v *VFS) ReadFile(path string) ([]byte, error) {
	e, err := v.idx.LookupPath(path)
	if err != nil {
		return nil, err
	}
	return v.idx.ReadAll(e)
}

// Extract writes the file that answers for path to dir/<base name>, creating
// dir as needed. The file is written to a temporary name and renamed.
func (v *VFS) Extract(ctx context.Context, path, dir string) (Outcome, error) {
	e, err := v.idx.LookupPath(path)
	if err != nil {
		return Outcome{}, err
	}
	out, err := collapse.Extract(ctx, v.idx, e, dir)
	if err != nil {
		return Outcome{}, err
	}
	v.log().Info("extracted", "path", e.Key.Display(), "from", e.Origin.Location(), "to", out.Target)
	return out, nil
}

// Collapse materializes every entry below target.
//
// The error is non-nil only when the target cannot be prepared or ctx is
// canceled. Entries that could not be materialized are in Report.Failed;
// Report.Err joins them.
func (v *VFS) Collapse(ctx context.Context, target string, opts ...CollapseOption) (*Report, error) {
	var cfg collapseConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return collapse.Run(ctx, v.idx, target,
		collapse.WithSymlinks(cfg.symlinks),
		collapse.WithExtractArchives(cfg.extractArchives),
		collapse.WithCopyFallback(cfg.copyFallback),
		collapse.WithSkipArchiveFiles(cfg.skipArchiveFiles),
		collapse.WithReadAheadBytes(cfg.readAheadBytes),
		collapse.WithWorkers(v.workers),
		collapse.WithLogger(v.logger),
		collapse.WithProgress(v.progress),
		collapse.WithMetrics(v.metrics),
	)
}

// Remaining compares dir with the VFS. With replacementsOnly it returns the
// files in dir that another source overrides; otherwise the files in dir
// that still answer for their path or are not part of the VFS at all.
func (v *VFS) Remaining(ctx context.Context, dir string, replacementsOnly bool) ([]RemainingFile, error) {
	return remaining.Scan(ctx, v.idx, dir, replacementsOnly,
		remaining.WithFS(v.fs),
		remaining.WithLogger(v.logger),
		remaining.WithProgress(v.progress),
	)
}

// Tree projects entries into a directory tree under layout.
func Tree(entries []Entry, layout Layout) *TreeNode {
	return tree.FromEntries(entries, layout)
}

// RemainingTree projects the files returned by Remaining into a directory
// tree. The source layout uses their location on disk.
func RemainingTree(files []RemainingFile, layout Layout) *TreeNode {
	paths := make([]string, 0, len(files))
	label := tree.SourceLabel
	if layout == LayoutVirtual {
		label = tree.VirtualLabel
	}
	for _, f := range files {
		if layout == LayoutVirtual {
			paths = append(paths, f.Key.Display())
		} else {
			paths = append(paths, filepath.ToSlash(f.Path))
		}
	}
	return tree.Build(label, paths)
}

// EncodeTree writes root to w in format.
func EncodeTree(w io.Writer, root *TreeNode, format Format) error {
	if err := tree.Encode(w, root, format); err != nil {
		return fmt.Errorf("encode %s tree: %w", format, err)
	}
	return nil
}
