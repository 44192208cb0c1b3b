// Package testutil provides fixtures shared by package tests: in-memory
// archive writers and helpers that lay out loose data directories.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// Files maps slash separated relative paths to contents.
type Files map[string]string

// WriteFiles writes files below dir on fsys.
func WriteFiles(tb testing.TB, fsys afero.Fs, dir string, files Files) {
	tb.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(tb, fsys.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(tb, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}
}

// WriteDir writes files below a fresh temporary directory on the local disk
// and returns its path.
func WriteDir(tb testing.TB, files Files) string {
	tb.Helper()
	dir := tb.TempDir()
	WriteFiles(tb, afero.NewOsFs(), dir, files)
	return dir
}

// WriteArchive writes an archive image to path on the local disk, creating
// parent directories.
func WriteArchive(tb testing.TB, path string, data []byte) {
	tb.Helper()
	require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tb, os.WriteFile(path, data, 0o600))
}
