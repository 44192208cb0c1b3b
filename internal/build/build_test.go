package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vfstool/bsa"
	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/internal/testutil"
	"github.com/meigma/vfstool/internal/vfstype"
	"github.com/meigma/vfstool/pathkey"
)

func writeArchive(t *testing.T, fsys afero.Fs, path string, files ...testutil.ArchiveFile) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, testutil.TES3Archive(files), 0o644))
}

func lookup(t *testing.T, idx *index.Index, raw string) index.Entry {
	t.Helper()
	e, ok := idx.Lookup(pathkey.MustNormalize(raw))
	require.True(t, ok, raw)
	return e
}

func TestBuild_LaterRootWins(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.WriteFiles(t, fsys, "/a", testutil.Files{"Meshes/x.nif": "a", "only_a.txt": "a"})
	testutil.WriteFiles(t, fsys, "/b", testutil.Files{"meshes/X.NIF": "b"})

	idx, err := Build(context.Background(), []Root{DirectoryRoot("/a"), DirectoryRoot("/b")}, WithFS(fsys))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	assert.Equal(t, 2, idx.Len())
	e := lookup(t, idx, "meshes/x.nif")
	assert.Equal(t, 1, e.Origin.RootIndex)
	assert.Equal(t, filepath.FromSlash("/b/meshes/X.NIF"), e.Origin.Path)
	assert.Equal(t, "meshes/X.NIF", e.Key.Display())

	e = lookup(t, idx, "ONLY_A.TXT")
	assert.Equal(t, 0, e.Origin.RootIndex)
}

func TestBuild_SymlinkedRoot(t *testing.T) {
	t.Parallel()

	target := testutil.WriteDir(t, testutil.Files{"Meshes/a.nif": "a", "textures/b.dds": "b"})
	link := filepath.Join(t.TempDir(), "Data Files")
	require.NoError(t, os.Symlink(target, link))

	idx, err := Build(context.Background(), []Root{DirectoryRoot(link)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	assert.Equal(t, 2, idx.Len())
	e := lookup(t, idx, "meshes/a.nif")
	assert.Equal(t, filepath.Join(link, "Meshes", "a.nif"), e.Origin.Path)
	data, err := idx.ReadAll(e)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestBuild_LooseOverArchive(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeArchive(t, fsys, "/archives/base.bsa",
		testutil.ArchiveFile{Name: `textures\a.dds`, Data: []byte("archived a")},
		testutil.ArchiveFile{Name: `textures\b.dds`, Data: []byte("archived b")},
		testutil.ArchiveFile{Name: `textures\c.dds`, Data: []byte("archived c")},
	)
	testutil.WriteFiles(t, fsys, "/data", testutil.Files{"Textures/a.dds": "loose a"})
	writeArchive(t, fsys, "/late.bsa", testutil.ArchiveFile{Name: `textures\c.dds`, Data: []byte("late c")})

	roots := []Root{
		ArchiveRoot("/archives/base.bsa"),
		DirectoryRoot("/data"),
		ArchiveRoot("/late.bsa"),
	}
	idx, err := Build(context.Background(), roots, WithFS(fsys))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	a := lookup(t, idx, "textures/a.dds")
	assert.Equal(t, index.KindLoose, a.Origin.Kind)

	b := lookup(t, idx, "textures/b.dds")
	assert.Equal(t, index.KindArchived, b.Origin.Kind)
	data, err := idx.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("archived b"), data)

	c := lookup(t, idx, "textures/c.dds")
	assert.Equal(t, filepath.FromSlash("/late.bsa"), c.Origin.Path)
	data, err = idx.ReadAll(c)
	require.NoError(t, err)
	assert.Equal(t, []byte("late c"), data)
}

func TestBuild_DirectoryArchives(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.WriteFiles(t, fsys, "/data", testutil.Files{"icons/i.tga": "loose"})
	writeArchive(t, fsys, "/data/first.bsa",
		testutil.ArchiveFile{Name: `icons\i.tga`, Data: []byte("first")},
		testutil.ArchiveFile{Name: `icons\j.tga`, Data: []byte("first")},
	)
	writeArchive(t, fsys, "/data/second.bsa", testutil.ArchiveFile{Name: `icons\j.tga`, Data: []byte("second")})

	idx, err := Build(context.Background(),
		[]Root{DirectoryRoot("/data", "first.bsa", "second.bsa")}, WithFS(fsys))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	assert.True(t, lookup(t, idx, "icons/i.tga").Origin.IsLoose())

	j := lookup(t, idx, "icons/j.tga")
	data, err := idx.ReadAll(j)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
	assert.Equal(t, 1, j.Origin.ArchiveSeq)

	// The archive files themselves are loose entries of the root too.
	assert.True(t, lookup(t, idx, "first.bsa").Origin.IsLoose())
}

func TestBuild_DeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	var roots []Root
	for r := range 8 {
		dir := fmt.Sprintf("/root%d", r)
		files := testutil.Files{}
		for i := range 30 {
			files[fmt.Sprintf("meshes/m%02d.nif", (i*(r+1))%40)] = dir
		}
		testutil.WriteFiles(t, fsys, dir, files)
		roots = append(roots, DirectoryRoot(dir))
		if r%3 == 0 {
			arc := fmt.Sprintf("/arc%d.bsa", r)
			writeArchive(t, fsys, arc,
				testutil.ArchiveFile{Name: `meshes\m00.nif`, Data: []byte(arc)},
				testutil.ArchiveFile{Name: fmt.Sprintf(`meshes\a%d.nif`, r), Data: []byte(arc)},
			)
			roots = append(roots, ArchiveRoot(arc))
		}
	}

	serial, err := Build(context.Background(), roots, WithFS(fsys), WithWorkers(-1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = serial.Close() })

	for _, workers := range []int{0, 2, 16} {
		idx, err := Build(context.Background(), roots, WithFS(fsys), WithWorkers(workers))
		require.NoError(t, err)
		assert.Equal(t, serial.Entries(), idx.Entries(), "workers=%d", workers)
		require.NoError(t, idx.Close())
	}
}

func TestBuild_RootUnreadable(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.WriteFiles(t, fsys, "/ok", testutil.Files{"a.txt": "a"})
	require.NoError(t, afero.WriteFile(fsys, "/broken.bsa", []byte("not an archive"), 0o644))

	tests := []struct {
		name      string
		roots     []Root
		archive   bool
		wantIndex int
	}{
		{"missing directory", []Root{DirectoryRoot("/ok"), DirectoryRoot("/missing")}, false, 1},
		{"file as directory", []Root{DirectoryRoot("/ok/a.txt")}, false, 0},
		{"missing archive", []Root{ArchiveRoot("/missing.bsa")}, true, 0},
		{"malformed archive", []Root{DirectoryRoot("/ok"), ArchiveRoot("/broken.bsa")}, true, 1},
		{"malformed directory archive", []Root{DirectoryRoot("/", "broken.bsa")}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			idx, err := Build(context.Background(), tt.roots, WithFS(fsys))
			require.ErrorIs(t, err, ErrRootUnreadable)
			assert.Nil(t, idx)

			var rootErr *RootError
			require.ErrorAs(t, err, &rootErr)
			assert.Equal(t, tt.wantIndex, rootErr.Index)
			if tt.archive {
				assert.ErrorIs(t, err, bsa.ErrArchiveOpen)
			}
		})
	}
}

func TestBuild_Canceled(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.WriteFiles(t, fsys, "/a", testutil.Files{"x.txt": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, []Root{DirectoryRoot("/a")}, WithFS(fsys))
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuild_Progress(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.WriteFiles(t, fsys, "/a", testutil.Files{"x.txt": "x"})
	testutil.WriteFiles(t, fsys, "/b", testutil.Files{"y.txt": "y"})

	var (
		mu     sync.Mutex
		events []vfstype.ProgressEvent
	)
	idx, err := Build(context.Background(), []Root{DirectoryRoot("/a"), DirectoryRoot("/b")},
		WithFS(fsys),
		WithProgress(func(ev vfstype.ProgressEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.Len(t, events, 3)
	assert.Equal(t, vfstype.StageIndexing, events[2].Stage)
	assert.Equal(t, 2, events[2].FilesTotal)
	for _, ev := range events[:2] {
		assert.Equal(t, vfstype.StageScanning, ev.Stage)
		assert.Equal(t, 2, ev.FilesTotal)
	}
}
