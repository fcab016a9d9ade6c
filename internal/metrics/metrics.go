package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	scansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cull",
		Name:      "scans_total",
		Help:      "Total number of process scans performed.",
	})

	processesScanned = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cull",
		Name:      "processes_scanned",
		Help:      "Number of processes observed by the most recent scan.",
	})

	terminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cull",
		Name:      "terminations_total",
		Help:      "Termination outcomes by terminal state (dead, skipped, failed).",
	}, []string{"status"})

	reclaimedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cull",
		Name:      "reclaimed_bytes_total",
		Help:      "Estimated resident memory reclaimed by terminated processes.",
	})

	graceWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cull",
		Name:      "grace_wait_seconds",
		Help:      "Time spent waiting on processes after a graceful signal.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 9),
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cull",
		Name:      "build_info",
		Help:      "Build metadata for the running cull binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(scansTotal, processesScanned, terminations, reclaimedBytes, graceWait, buildInfo)
}

// Registry returns the Prometheus registry containing all cull metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveScan records one completed scan and its process count.
func ObserveScan(processes int) {
	scansTotal.Inc()
	processesScanned.Set(float64(processes))
}

// AddTermination counts one target reaching a terminal state.
func AddTermination(status string) {
	if status == "" {
		return
	}
	terminations.WithLabelValues(status).Inc()
}

// AddReclaimed accumulates the reclaimed-memory estimate.
func AddReclaimed(bytes uint64) {
	if bytes == 0 {
		return
	}
	reclaimedBytes.Add(float64(bytes))
}

// ObserveGraceWait records time spent inside a grace-window wait.
func ObserveGraceWait(d time.Duration) {
	graceWait.Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
