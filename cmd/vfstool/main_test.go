package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/meigma/vfstool/internal/testutil"
)

// setup writes a data directory with an archive plus a mod directory, and
// returns the directory holding their openmw.cfg.
func setup(t *testing.T) (cfgDir, vanilla string) {
	t.Helper()

	vanilla = testutil.WriteDir(t, testutil.Files{
		"Meshes/Base_Anim.nif": "vanilla anim",
		"Textures/tx_a.dds":    "vanilla a",
	})
	mod := testutil.WriteDir(t, testutil.Files{"textures/TX_A.dds": "mod a"})
	testutil.WriteArchive(t, filepath.Join(vanilla, "Morrowind.bsa"), testutil.TES3Archive([]testutil.ArchiveFile{
		{Name: `sound\hit.wav`, Data: []byte("hit")},
	}))

	cfgDir = t.TempDir()
	cfg := fmt.Sprintf("data=%q\ndata=%q\nfallback-archive=Morrowind.bsa\n", vanilla, mod)
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "OPENMW.CFG"), []byte(cfg), 0o644))
	return cfgDir, vanilla
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = newApp(&out, &errOut).RunContext(context.Background(), append([]string{"vfstool"}, args...))
	return out.String(), errOut.String(), err
}

func TestFind(t *testing.T) {
	t.Parallel()

	cfgDir, _ := setup(t)
	stdout, _, err := run(t, "-c", cfgDir, "-r", "find", "-p", "tx_a", "-t", "stem-exact")
	require.NoError(t, err)

	var got map[string]map[string]map[string][]string
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, []string{"TX_A.dds"}, got["Data Files"]["textures"]["."])
}

func TestFind_OutputFile(t *testing.T) {
	t.Parallel()

	cfgDir, _ := setup(t)
	out := filepath.Join(t.TempDir(), "reports", "find.json")
	_, _, err := run(t, "--config", cfgDir, "find", "--path", "wav", "--type", "extension", "--format", "json", "--output", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hit.wav"`)
	assert.Contains(t, string(data), `"Morrowind.bsa"`)
}

func TestFindFile(t *testing.T) {
	t.Parallel()

	cfgDir, vanilla := setup(t)

	stdout, _, err := run(t, "-c", cfgDir, "find-file", "-s", `Sound\Hit.wav`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(vanilla, "Morrowind.bsa")+"/sound/hit.wav\n", stdout)

	_, stderr, err := run(t, "-c", cfgDir, "find-file", "meshes/base_anin.nif")
	require.Error(t, err)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())
	assert.Contains(t, stderr, "Meshes/Base_Anim.nif")
}

func TestExtract(t *testing.T) {
	t.Parallel()

	cfgDir, _ := setup(t)
	dir := filepath.Join(t.TempDir(), "out")

	stdout, _, err := run(t, "-c", cfgDir, "extract", "textures/tx_a.dds", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "SUCCESS")

	data, err := os.ReadFile(filepath.Join(dir, "TX_A.dds"))
	require.NoError(t, err)
	assert.Equal(t, "mod a", string(data))
}

func TestCollapse(t *testing.T) {
	t.Parallel()

	cfgDir, _ := setup(t)
	target := filepath.Join(t.TempDir(), "merged")
	metricsFile := filepath.Join(t.TempDir(), "prom", "vfstool.prom")

	stdout, _, err := run(t, "-c", cfgDir, "--metrics-file", metricsFile, "collapse", "-e", "--read-ahead", "2", target)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 extracted")

	data, err := os.ReadFile(filepath.Join(target, "sound", "hit.wav"))
	require.NoError(t, err)
	assert.Equal(t, "hit", string(data))
	assert.NoFileExists(t, filepath.Join(target, "morrowind.bsa"))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "vfstool_collapse_entries_total")
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	cfgDir, vanilla := setup(t)
	stdout, _, err := run(t, "-c", cfgDir, "-r", "remaining", "-R", "-f", "toml", vanilla)
	require.NoError(t, err)
	assert.Contains(t, stdout, "tx_a.dds")
	assert.NotContains(t, stdout, "Base_Anim.nif")
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	cfgDir, _ := setup(t)
	tests := [][]string{
		{"-c", cfgDir, "collapse"},
		{"-c", cfgDir, "find", "-p", "x", "-t", "fuzzy"},
		{"-c", cfgDir, "find", "-p", "x", "-f", "xml"},
		{"--log-level", "loud", "find", "-p", "x"},
	}
	for _, args := range tests {
		_, _, err := run(t, args...)
		var exit cli.ExitCoder
		require.ErrorAs(t, err, &exit, args)
		assert.Equal(t, 2, exit.ExitCode(), args)
	}

	_, _, err := run(t, "-c", filepath.Join(cfgDir, "missing"), "find", "-p", "x")
	require.Error(t, err)
}
