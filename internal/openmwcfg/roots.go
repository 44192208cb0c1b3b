package openmwcfg

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/meigma/vfstool/internal/build"
)

// Roots converts cfg into ordered build roots.
//
// Fallback archives come first, in listed order, followed by the data
// directories with data-local last. This matches the engine, where any
// loose file outranks every fallback archive. Each archive name is matched
// case-insensitively against the data directories, and the last directory
// containing it wins. Archives that cannot be found are logged and skipped.
func Roots(cfg *Config, opts ...Option) []build.Root {
	l := newLoader(opts)
	dirs := cfg.DataDirs()
	listings := make(map[string][]string, len(dirs))

	roots := make([]build.Root, 0, len(cfg.FallbackArchives)+len(dirs))
	for _, name := range cfg.FallbackArchives {
		path, ok := l.findArchive(name, dirs, listings)
		if !ok {
			l.log().Warn("fallback archive not found in any data directory", "archive", name)
			continue
		}
		roots = append(roots, build.ArchiveRoot(path))
	}
	for _, dir := range dirs {
		roots = append(roots, build.DirectoryRoot(dir))
	}
	return roots
}

func (l *loader) findArchive(name string, dirs []string, listings map[string][]string) (string, bool) {
	for i := len(dirs) - 1; i >= 0; i-- {
		dir := dirs[i]
		names, ok := listings[dir]
		if !ok {
			infos, err := afero.ReadDir(l.fs, dir)
			if err != nil {
				l.log().Debug("cannot list data directory", "dir", dir, "error", err)
			}
			for _, fi := range infos {
				if !fi.IsDir() {
					names = append(names, fi.Name())
				}
			}
			listings[dir] = names
		}
		for _, n := range names {
			if strings.EqualFold(n, name) {
				return filepath.Join(dir, n), true
			}
		}
	}
	return "", false
}
