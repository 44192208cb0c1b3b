// Package metrics instruments VFS builds and collapses.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds build and collapse instrumentation.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	BuildRoots       *prometheus.CounterVec
	BuildCandidates  *prometheus.CounterVec
	BuildSkipped     prometheus.Counter
	BuildEntries     prometheus.Gauge
	BuildDuration    prometheus.Histogram
	CollapseEntries  *prometheus.CounterVec
	CollapseBytes    prometheus.Counter
	CollapseDuration prometheus.Histogram
}

// New creates and registers metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BuildRoots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vfstool",
			Subsystem: "build",
			Name:      "roots_total",
			Help:      "Roots scanned, by root kind.",
		}, []string{"kind"}),
		BuildCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vfstool",
			Subsystem: "build",
			Name:      "candidates_total",
			Help:      "Candidate files offered to the index, by origin kind.",
		}, []string{"kind"}),
		BuildSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vfstool",
			Subsystem: "build",
			Name:      "skipped_files_total",
			Help:      "Files skipped while scanning because they could not be read.",
		}),
		BuildEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vfstool",
			Subsystem: "build",
			Name:      "entries",
			Help:      "Resolved entries in the last built index.",
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vfstool",
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Duration of index builds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CollapseEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vfstool",
			Subsystem: "collapse",
			Name:      "entries_total",
			Help:      "Collapsed entries, by outcome.",
		}, []string{"outcome"}),
		CollapseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vfstool",
			Subsystem: "collapse",
			Name:      "written_bytes_total",
			Help:      "Bytes written by extraction and copy fallback.",
		}),
		CollapseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vfstool",
			Subsystem: "collapse",
			Name:      "duration_seconds",
			Help:      "Duration of collapse runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}

	reg.MustRegister(
		m.BuildRoots,
		m.BuildCandidates,
		m.BuildSkipped,
		m.BuildEntries,
		m.BuildDuration,
		m.CollapseEntries,
		m.CollapseBytes,
		m.CollapseDuration,
	)

	return m
}

// RootScanned counts a scanned root.
func (m *Metrics) RootScanned(kind string) {
	if m == nil {
		return
	}
	m.BuildRoots.WithLabelValues(kind).Inc()
}

// Candidate counts a candidate offered to the index.
func (m *Metrics) Candidate(kind string) {
	if m == nil {
		return
	}
	m.BuildCandidates.WithLabelValues(kind).Inc()
}

// FileSkipped counts a file skipped during a scan.
func (m *Metrics) FileSkipped() {
	if m == nil {
		return
	}
	m.BuildSkipped.Inc()
}

// BuildDone records a finished build.
func (m *Metrics) BuildDone(entries int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BuildEntries.Set(float64(entries))
	m.BuildDuration.Observe(elapsed.Seconds())
}

// Collapsed counts a collapse outcome and the bytes it wrote.
func (m *Metrics) Collapsed(outcome string, written int64) {
	if m == nil {
		return
	}
	m.CollapseEntries.WithLabelValues(outcome).Inc()
	if written > 0 {
		m.CollapseBytes.Add(float64(written))
	}
}

// CollapseDone records a finished collapse run.
func (m *Metrics) CollapseDone(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CollapseDuration.Observe(elapsed.Seconds())
}
