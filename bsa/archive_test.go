package bsa_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vfstool/bsa"
	"github.com/meigma/vfstool/internal/testutil"
	"github.com/meigma/vfstool/pathkey"
)

func sampleFiles() []testutil.ArchiveFile {
	return []testutil.ArchiveFile{
		{Name: `Meshes\XBase_Anim.nif`, Data: []byte("nif data for the base animation")},
		{Name: `Textures\tx_a.dds`, Data: bytes.Repeat([]byte("texture"), 500)},
		{Name: `Textures\Sub\tx_b.dds`, Data: []byte("b")},
		{Name: `Sound\empty.wav`, Data: []byte{}},
	}
}

func openBytes(t *testing.T, data []byte) *bsa.Archive {
	t.Helper()
	a, err := bsa.New(bytes.NewReader(data), int64(len(data)), "test.bsa")
	require.NoError(t, err)
	return a
}

func keys(a *bsa.Archive) []string {
	var out []string
	for k := range a.Entries() {
		out = append(out, k.String())
	}
	return out
}

func assertRoundTrip(t *testing.T, a *bsa.Archive, files []testutil.ArchiveFile) {
	t.Helper()

	want := make([]string, 0, len(files))
	for _, f := range files {
		want = append(want, pathkey.MustNormalize(f.Name).String())
	}
	slices.Sort(want)
	assert.Equal(t, want, keys(a))
	assert.Equal(t, len(files), a.Len())

	for _, f := range files {
		got, err := a.Read(pathkey.MustNormalize(f.Name))
		require.NoError(t, err, f.Name)
		assert.Equal(t, f.Data, got, f.Name)
	}
}

func TestTES3_RoundTrip(t *testing.T) {
	t.Parallel()

	files := sampleFiles()
	a := openBytes(t, testutil.TES3Archive(files))

	assert.Equal(t, bsa.FormatTES3, a.Format())
	assertRoundTrip(t, a, files)
}

func TestTES4_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts testutil.TES4Options
	}{
		{"oblivion stored", testutil.TES4Options{Version: bsa.VersionOblivion}},
		{"oblivion zlib", testutil.TES4Options{Version: bsa.VersionOblivion, Compress: true}},
		{"fallout3 zlib embedded names", testutil.TES4Options{Version: bsa.VersionFallout3, Compress: true, EmbedNames: true}},
		{"fallout3 stored embedded names", testutil.TES4Options{Version: bsa.VersionFallout3, EmbedNames: true}},
		{"skyrim se lz4", testutil.TES4Options{Version: bsa.VersionSkyrimSE, Compress: true}},
		{"skyrim se lz4 embedded names", testutil.TES4Options{Version: bsa.VersionSkyrimSE, Compress: true, EmbedNames: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			files := sampleFiles()
			a := openBytes(t, testutil.TES4Archive(files, tt.opts))

			assert.Equal(t, bsa.FormatTES4, a.Format())
			assert.Equal(t, tt.opts.Version, a.Version())
			assertRoundTrip(t, a, files)
		})
	}
}

func TestBA2_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{false, true} {
		files := sampleFiles()
		a := openBytes(t, testutil.BA2Archive(files, compress))

		assert.Equal(t, bsa.FormatBA2, a.Format())
		assertRoundTrip(t, a, files)
	}
}

func TestBA2Textures_ConcatenatesChunks(t *testing.T) {
	t.Parallel()

	files := []testutil.ArchiveFile{
		{Name: `Textures\Armor\plate_d.dds`, Data: bytes.Repeat([]byte("0123456789"), 100)},
		{Name: `Textures\small.dds`, Data: []byte("tiny")},
	}
	a := openBytes(t, testutil.BA2TextureArchive(files, 128))
	assertRoundTrip(t, a, files)

	info, err := a.Stat(pathkey.MustNormalize("textures/armor/plate_d.dds"))
	require.NoError(t, err)
	assert.True(t, info.Compressed)
}

func TestArchive_SkipsEscapingNames(t *testing.T) {
	t.Parallel()

	a := openBytes(t, testutil.TES3Archive([]testutil.ArchiveFile{
		{Name: `..\..\evil.dds`, Data: []byte("x")},
		{Name: `textures\..\..\evil.dds`, Data: []byte("x")},
		{Name: `.\textures\ok.dds`, Data: []byte("ok")},
	}))

	assert.Equal(t, []string{"textures/ok.dds"}, keys(a))
}

func TestArchive_EntryMissing(t *testing.T) {
	t.Parallel()

	a := openBytes(t, testutil.TES3Archive(sampleFiles()))

	_, err := a.Read(pathkey.MustNormalize("meshes/missing.nif"))
	require.ErrorIs(t, err, bsa.ErrEntryMissing)
	assert.Contains(t, err.Error(), "test.bsa")
	assert.False(t, a.Contains(pathkey.MustNormalize("meshes/missing.nif")))
	assert.True(t, a.Contains(pathkey.MustNormalize("MESHES/xbase_anim.NIF")))
}

func TestArchive_CorruptData(t *testing.T) {
	t.Parallel()

	files := []testutil.ArchiveFile{{Name: `meshes\a.nif`, Data: bytes.Repeat([]byte("a"), 256)}}
	data := testutil.TES4Archive(files, testutil.TES4Options{Version: bsa.VersionFallout3, Compress: true})
	// Damage the tail of the zlib stream.
	for i := len(data) - 8; i < len(data); i++ {
		data[i] ^= 0xFF
	}

	a := openBytes(t, data)
	_, err := a.Read(pathkey.MustNormalize("meshes/a.nif"))
	require.ErrorIs(t, err, bsa.ErrArchiveCorrupt)

	var ae *bsa.ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "test.bsa", ae.Archive)
	assert.Equal(t, "meshes/a.nif", ae.Entry)
}

func TestArchive_MaxEntrySize(t *testing.T) {
	t.Parallel()

	data := testutil.BA2Archive(sampleFiles(), true)
	a, err := bsa.New(bytes.NewReader(data), int64(len(data)), "limit.ba2", bsa.WithMaxEntrySize(16))
	require.NoError(t, err)

	_, err = a.Read(pathkey.MustNormalize("textures/tx_a.dds"))
	require.ErrorIs(t, err, bsa.ErrEntryTooLarge)

	got, err := a.Read(pathkey.MustNormalize("textures/sub/tx_b.dds"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestOpen_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("PK\x03\x04 not an archive")},
		{"truncated tes3", testutil.TES3Archive(sampleFiles())[:20]},
		{"truncated tes4", testutil.TES4Archive(sampleFiles(), testutil.TES4Options{Version: 104})[:40]},
		{"truncated ba2", testutil.BA2Archive(sampleFiles(), false)[:30]},
		{"unknown tes4 version", append([]byte{'B', 'S', 'A', 0, 99, 0, 0, 0}, make([]byte, 40)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := bsa.New(bytes.NewReader(tt.data), int64(len(tt.data)), "broken.bsa")
			require.ErrorIs(t, err, bsa.ErrArchiveOpen)
			assert.Contains(t, err.Error(), "broken.bsa")
		})
	}
}

func TestOpen_FromDisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Morrowind.bsa")
	require.NoError(t, os.WriteFile(path, testutil.TES3Archive(sampleFiles()), 0o600))

	a, err := bsa.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, path, a.Name())
	rc, err := a.Open(pathkey.MustNormalize("meshes/xbase_anim.nif"))
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte("nif data for the base animation"), got)

	_, err = bsa.Open(filepath.Join(t.TempDir(), "missing.bsa"))
	require.ErrorIs(t, err, bsa.ErrArchiveOpen)
}

func TestOpenFS_ConcurrentReads(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	files := sampleFiles()
	data := testutil.TES4Archive(files, testutil.TES4Options{Version: bsa.VersionSkyrimSE, Compress: true})
	require.NoError(t, afero.WriteFile(fsys, "/data/Skyrim - Misc.bsa", data, 0o644))

	a, err := bsa.OpenFS(fsys, "/data/Skyrim - Misc.bsa")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for range 16 {
		for _, f := range files {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := a.Read(pathkey.MustNormalize(f.Name))
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(got, f.Data) {
					errs <- io.ErrUnexpectedEOF
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestEntries_Restartable(t *testing.T) {
	t.Parallel()

	a := openBytes(t, testutil.BA2Archive(sampleFiles(), false))
	first := keys(a)
	second := keys(a)
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}
