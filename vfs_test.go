package vfstool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vfstool/internal/testutil"
)

type install struct {
	vanilla string
	mod     string
	bsa     string
	cfgDir  string
}

// newInstall lays out a vanilla data directory holding Morrowind.bsa, a mod
// directory overriding one texture, and an openmw.cfg naming both.
func newInstall(t *testing.T) *install {
	t.Helper()

	in := &install{
		vanilla: testutil.WriteDir(t, testutil.Files{
			"Meshes/Base_Anim.nif": "vanilla anim",
			"Textures/tx_a.dds":    "vanilla a",
		}),
		mod:    testutil.WriteDir(t, testutil.Files{"textures/TX_A.dds": "mod a"}),
		cfgDir: t.TempDir(),
	}
	in.bsa = filepath.Join(in.vanilla, "Morrowind.bsa")
	testutil.WriteArchive(t, in.bsa, testutil.TES3Archive([]testutil.ArchiveFile{
		{Name: `meshes\base_anim.nif`, Data: []byte("archived anim")},
		{Name: `sound\hit.wav`, Data: []byte("hit")},
		{Name: `textures\tx_a.dds`, Data: []byte("archived a")},
	}))

	cfg := fmt.Sprintf("data=%q\ndata=%q\nfallback-archive=morrowind.BSA\n", in.vanilla, in.mod)
	require.NoError(t, os.WriteFile(filepath.Join(in.cfgDir, "openmw.cfg"), []byte(cfg), 0o644))
	return in
}

func (in *install) open(t *testing.T, opts ...Option) *VFS {
	t.Helper()
	v, cfg, err := OpenConfig(context.Background(), in.cfgDir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	require.Equal(t, []string{"morrowind.BSA"}, cfg.FallbackArchives)
	return v
}

func TestOpenConfig_Resolution(t *testing.T) {
	t.Parallel()

	v := newInstall(t).open(t)
	assert.Equal(t, 4, v.Len())

	tests := []struct {
		path string
		want string
	}{
		{`MESHES\base_anim.NIF`, "vanilla anim"},
		{"sound/hit.wav", "hit"},
		{"textures/tx_a.dds", "mod a"},
	}
	for _, tt := range tests {
		data, err := v.ReadFile(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, string(data), tt.path)
	}

	_, err := v.Lookup("sound/miss.wav")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = v.Lookup("//")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestOpen_Roots(t *testing.T) {
	t.Parallel()

	in := newInstall(t)
	v, err := Open(context.Background(), []Root{
		DirectoryRoot(in.mod),
		DirectoryRoot(in.vanilla, "Morrowind.bsa"),
	}, WithWorkers(-1))
	require.NoError(t, err)
	defer v.Close()

	data, err := v.ReadFile("textures/tx_a.dds")
	require.NoError(t, err)
	assert.Equal(t, "vanilla a", string(data))

	_, err = Open(context.Background(), []Root{ArchiveRoot(filepath.Join(in.mod, "missing.bsa"))})
	require.ErrorIs(t, err, ErrRootUnreadable)
	require.ErrorIs(t, err, ErrArchiveOpen)
}

func TestVFS_FindFile(t *testing.T) {
	t.Parallel()

	in := newInstall(t)
	v := in.open(t)

	e, err := v.FindFile("Sound/Hit.wav")
	require.NoError(t, err)
	assert.Equal(t, in.bsa+"/sound/hit.wav", e.Origin.Location())

	_, err = v.FindFile("meshes/bas_anim.nif")
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.NotEmpty(t, nf.Suggestions)
	assert.LessOrEqual(t, len(nf.Suggestions), 3)
	assert.Equal(t, "Meshes/Base_Anim.nif", nf.Suggestions[0])
	assert.Contains(t, err.Error(), "did you mean")
}

func TestVFS_FindAndTree(t *testing.T) {
	t.Parallel()

	v := newInstall(t).open(t)

	entries, err := v.Find(FilterExtension, "dds")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var buf bytes.Buffer
	require.NoError(t, EncodeTree(&buf, Tree(entries, LayoutVirtual), FormatJSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]any{
		"Data Files": map[string]any{
			"textures": map[string]any{".": []any{"TX_A.dds"}},
		},
	}, got)

	_, err = v.Find(FilterGlob, "[a-")
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestVFS_Extract(t *testing.T) {
	t.Parallel()

	v := newInstall(t).open(t)
	dir := filepath.Join(t.TempDir(), "new", "dir")

	out, err := v.Extract(context.Background(), `sound\HIT.wav`, dir)
	require.NoError(t, err)
	assert.Equal(t, MethodExtract, out.Method)

	data, err := os.ReadFile(filepath.Join(dir, "hit.wav"))
	require.NoError(t, err)
	assert.Equal(t, "hit", string(data))

	_, err = v.Extract(context.Background(), "nothing.txt", dir)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVFS_Collapse(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	v := newInstall(t).open(t, WithMetrics(reg))
	target := filepath.Join(t.TempDir(), "merged")

	report, err := v.Collapse(context.Background(), target,
		CollapseWithExtractArchives(true),
		CollapseWithSkipArchiveFiles(true),
	)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	stats := report.Stats()
	assert.Equal(t, 2, stats.Hardlinked)
	assert.Equal(t, 1, stats.Extracted)
	assert.Equal(t, 1, stats.Skipped)

	for rel, want := range map[string]string{
		"meshes/base_anim.nif": "vanilla anim",
		"sound/hit.wav":        "hit",
		"textures/tx_a.dds":    "mod a",
	} {
		data, err := os.ReadFile(filepath.Join(target, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, want, string(data), rel)
	}
	assert.NoFileExists(t, filepath.Join(target, "morrowind.bsa"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestVFS_Remaining(t *testing.T) {
	t.Parallel()

	in := newInstall(t)
	v := in.open(t)

	replaced, err := v.Remaining(context.Background(), in.vanilla, true)
	require.NoError(t, err)
	require.Len(t, replaced, 1)
	assert.Equal(t, "textures/tx_a.dds", replaced[0].Key.String())
	assert.Equal(t, filepath.Join(in.mod, "textures", "TX_A.dds"), replaced[0].Winner.Path)

	kept, err := v.Remaining(context.Background(), in.vanilla, false)
	require.NoError(t, err)
	var keys []string
	for _, f := range kept {
		keys = append(keys, f.Key.String())
	}
	assert.Equal(t, []string{"meshes/base_anim.nif", "morrowind.bsa"}, keys)

	root := RemainingTree(kept, LayoutVirtual)
	assert.Equal(t, 2, root.Len())
}

func TestOpenConfig_MemFS(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.WriteFiles(t, fsys, "/data", testutil.Files{"Music/Explore/mx_explore_2.mp3": "mp3"})
	testutil.WriteFiles(t, fsys, "/cfg", testutil.Files{"OpenMW.cfg": "data=/data\nfallback-archive=Absent.bsa\n"})

	v, cfg, err := OpenConfig(context.Background(), "/cfg", WithFS(fsys))
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, []string{"/data"}, cfg.DataDirs())
	entries, err := v.Find(FilterPrefix, `music\explore`)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Music/Explore/mx_explore_2.mp3", entries[0].Key.Display())

	_, _, err = OpenConfig(context.Background(), "/nowhere", WithFS(fsys))
	require.ErrorIs(t, err, ErrConfig)
}
