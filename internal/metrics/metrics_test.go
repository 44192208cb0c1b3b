package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RootScanned("directory")
	m.Candidate("loose")
	m.FileSkipped()
	m.BuildDone(10, time.Second)
	m.Collapsed("hardlink", 0)
	m.CollapseDone(time.Second)
}

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RootScanned("archive")
	m.Candidate("archived")
	m.Candidate("archived")
	m.Collapsed("extracted", 128)
	m.BuildDone(42, 10*time.Millisecond)

	path := filepath.Join(t.TempDir(), "record.prom")
	require.NoError(t, WriteFile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, `vfstool_build_roots_total{kind="archive"} 1`)
	assert.Contains(t, text, `vfstool_build_candidates_total{kind="archived"} 2`)
	assert.Contains(t, text, `vfstool_collapse_entries_total{outcome="extracted"} 1`)
	assert.Contains(t, text, "vfstool_collapse_written_bytes_total 128")
	assert.Contains(t, text, "vfstool_build_entries 42")
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.FileSkipped()

	path := filepath.Join(t.TempDir(), "vfstool.prom")
	require.NoError(t, WriteFile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vfstool_build_skipped_files_total 1")
}
