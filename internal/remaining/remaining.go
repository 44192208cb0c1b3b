// Package remaining compares a data directory with a resolved VFS to find
// which of its files still answer for their path and which are overridden.
package remaining

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/meigma/vfstool/internal/build"
	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/internal/vfstype"
	"github.com/meigma/vfstool/pathkey"
)

// File is one file found below the compared directory.
type File struct {
	Key pathkey.Key

	// Path is the file's location on disk.
	Path string

	// Replaced reports whether another source answers for Key.
	Replaced bool

	// Winner is the origin that answers for Key in the VFS. It is the zero
	// Origin when Key does not resolve at all.
	Winner index.Origin
}

// Option configures a scan.
type Option func(*scanner)

// WithFS sets the filesystem the directory is read from.
// The default is the local disk.
func WithFS(fsys afero.Fs) Option {
	return func(s *scanner) {
		s.fs = fsys
	}
}

// WithLogger sets the logger for scan operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *scanner) {
		s.logger = logger
	}
}

// WithProgress sets a callback invoked for every compared file.
func WithProgress(fn vfstype.ProgressFunc) Option {
	return func(s *scanner) {
		s.progress = fn
	}
}

type scanner struct {
	fs       afero.Fs
	logger   *slog.Logger
	progress vfstype.ProgressFunc
}

func (s *scanner) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Scan walks dir and classifies each file against idx.
//
// A file is replaced when its normalized relative path resolves in idx to a
// different physical file or to an archive entry. With replacementsOnly the
// replaced files are returned, otherwise the files that are not replaced.
// The result is sorted by folded key.
func Scan(ctx context.Context, idx *index.Index, dir string, replacementsOnly bool, opts ...Option) ([]File, error) {
	s := &scanner{}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		root = filepath.Clean(dir)
	}
	if err := s.checkRoot(root); err != nil {
		return nil, err
	}

	var out []File
	done := 0
	walkRoot := build.RootForWalk(root)
	err = afero.Walk(s.fs, walkRoot, func(path string, info fs.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == walkRoot {
				return unreadable(root, walkErr)
			}
			s.log().Warn("skipping unreadable file", "path", path, "error", walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || path == walkRoot {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := s.fs.Stat(path)
			if err != nil {
				s.log().Warn("skipping unreadable file", "path", path, "error", err)
				return nil
			}
			info = target
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		key, err := pathkey.Normalize(filepath.ToSlash(rel))
		if err != nil {
			return nil
		}

		f := s.classify(idx, key, path, info)
		done++
		s.progress.Emit(vfstype.ProgressEvent{Stage: vfstype.StageComparing, Path: key.Display(), FilesDone: done})
		if f.Replaced == replacementsOnly {
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b File) int { return a.Key.Compare(b.Key) })
	s.log().Info("directory compared", "dir", root, "files", done, "matched", len(out), "replacements", replacementsOnly)
	return out, nil
}

func (s *scanner) checkRoot(root string) error {
	info, err := s.fs.Stat(root)
	if err != nil {
		return unreadable(root, err)
	}
	if !info.IsDir() {
		return unreadable(root, fmt.Errorf("%s is not a directory", root))
	}
	return nil
}

func (s *scanner) classify(idx *index.Index, key pathkey.Key, path string, info fs.FileInfo) File {
	f := File{Key: key, Path: path}
	e, ok := idx.Lookup(key)
	if !ok {
		return f
	}
	f.Winner = e.Origin
	f.Replaced = !s.samePhysical(e.Origin, path, info)
	return f
}

func (s *scanner) samePhysical(o index.Origin, path string, info fs.FileInfo) bool {
	if !o.IsLoose() {
		return false
	}
	if filepath.Clean(o.Path) == filepath.Clean(path) {
		return true
	}
	other, err := s.fs.Stat(o.Path)
	if err != nil {
		return false
	}
	return os.SameFile(info, other)
}

func unreadable(dir string, err error) error {
	return &build.RootError{Index: -1, Root: build.DirectoryRoot(dir), Path: dir, Err: err}
}
