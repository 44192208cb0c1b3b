package collapse

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

const tempPrefix = ".vfstool-"

// Linker creates hard and symbolic links.
type Linker interface {
	Link(oldname, newname string) error
	Symlink(oldname, newname string) error
}

type osLinker struct{}

func (osLinker) Link(oldname, newname string) error    { return os.Link(oldname, newname) }
func (osLinker) Symlink(oldname, newname string) error { return os.Symlink(oldname, newname) }

// fileSink writes into the target directory.
//
// Nothing is ever opened for writing at a final path: links and file
// contents are staged under a temporary sibling name and renamed into place,
// so an existing target that is a hard link never has its source modified.
type fileSink struct {
	dir    string
	root   *os.Root
	linker Linker

	dirs    sync.Map // created directories, by relative path
	mkdirSF singleflight.Group
}

func newFileSink(dir string, linker Linker) (*fileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create target %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open target root %s: %w", dir, err)
	}
	if linker == nil {
		linker = osLinker{}
	}
	return &fileSink{dir: dir, root: root, linker: linker}, nil
}

func (s *fileSink) Close() error {
	return s.root.Close()
}

// path returns the absolute path of rel inside the target.
func (s *fileSink) path(rel string) string {
	return filepath.Join(s.dir, rel)
}

// mkdir creates dir once, however many entries share it.
func (s *fileSink) mkdir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, ok := s.dirs.Load(dir); ok {
		return nil
	}
	_, err, _ := s.mkdirSF.Do(dir, func() (any, error) {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		s.dirs.Store(dir, struct{}{})
		return nil, nil
	})
	return err
}

// sameHardlink reports whether rel already names the same file as src.
func (s *fileSink) sameHardlink(src, rel string) bool {
	dst, err := s.root.Lstat(rel)
	if err != nil || !dst.Mode().IsRegular() {
		return false
	}
	info, err := os.Stat(src)
	if err != nil {
		return false
	}
	return os.SameFile(info, dst)
}

// sameSymlink reports whether rel is already a symlink to src.
func (s *fileSink) sameSymlink(src, rel string) bool {
	target, err := s.root.Readlink(rel)
	return err == nil && target == src
}

// link stages a hard or symbolic link to src and renames it over rel.
func (s *fileSink) link(src, rel string, symbolic bool) error {
	tempRel, err := tempName(filepath.Dir(rel))
	if err != nil {
		return err
	}
	tempPath := s.path(tempRel)
	if symbolic {
		err = s.linker.Symlink(src, tempPath)
	} else {
		err = s.linker.Link(src, tempPath)
	}
	if err != nil {
		return err
	}
	if err := s.root.Rename(tempRel, rel); err != nil {
		_ = s.root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", s.path(rel), err)
	}
	// rename is a no-op when both names link the same inode.
	_ = s.root.Remove(tempRel) //nolint:errcheck // usually already gone
	return nil
}

// write streams r into a temp file and renames it over rel on success.
func (s *fileSink) write(rel string, r io.Reader) (int64, error) {
	c, err := s.writer(rel)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(c, r)
	if err != nil {
		_ = c.Discard() //nolint:errcheck // best-effort cleanup
		return n, err
	}
	return n, c.Commit()
}

func (s *fileSink) writer(rel string) (*fileCommitter, error) {
	tempRel, err := tempName(filepath.Dir(rel))
	if err != nil {
		return nil, err
	}
	f, err := s.root.OpenFile(tempRel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileCommitter{sink: s, file: f, tempRel: tempRel, destRel: rel}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	sink    *fileSink
	file    *os.File
	tempRel string
	destRel string
}

func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.file.Write(p)
}

// Commit closes the temp file, makes it world readable and renames it to the
// final path.
func (c *fileCommitter) Commit() error {
	root := c.sink.root
	if err := c.file.Close(); err != nil {
		_ = root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := root.Chmod(c.tempRel, 0o644); err != nil {
		_ = root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("chmod: %w", err)
	}
	if err := root.Rename(c.tempRel, c.destRel); err != nil {
		_ = root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.sink.path(c.destRel), err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	_ = c.file.Close() //nolint:errcheck // we're cleaning up
	return c.sink.root.Remove(c.tempRel)
}

func tempName(dir string) (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("temp name: %w", err)
	}
	return filepath.Join(dir, tempPrefix+hex.EncodeToString(b[:])), nil
}
