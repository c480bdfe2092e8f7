// Package telemetry provides setup for logging through telementry and the pose graph engine metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.viam.com/utils/perf"
)

var (
	// NodesAdmitted counts the nodes committed to the pose graph.
	NodesAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posegraph_nodes_admitted_total",
			Help: "Total number of nodes committed to the pose graph",
		},
	)

	// FactorsAdded counts factors submitted to the solver, by kind.
	FactorsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posegraph_factors_added_total",
			Help: "Total number of factors submitted to the solver",
		},
		[]string{"kind"},
	)

	// LoopClosureAttempts counts scan matches tried against non-successive nodes.
	LoopClosureAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posegraph_loop_closure_attempts_total",
			Help: "Total number of loop closure scan matches attempted",
		},
	)

	// LoopClosures counts loop closure scan matches that converged.
	LoopClosures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posegraph_loop_closures_total",
			Help: "Total number of loop closure factors added",
		},
	)

	// ScanMatchFailures counts scan matches that did not converge.
	ScanMatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posegraph_scan_match_failures_total",
			Help: "Total number of scan matches that did not converge",
		},
	)

	// SolverDuration observes the wall time of every solver update or batch solve.
	SolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "posegraph_solver_duration_seconds",
			Help:    "Duration of solver calls",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"mode"},
	)

	// FinalizeRuns counts completed offline optimizations.
	FinalizeRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "posegraph_finalize_runs_total",
			Help: "Total number of completed offline optimizations",
		},
	)
)

func init() {
	prometheus.MustRegister(NodesAdmitted)
	prometheus.MustRegister(FactorsAdded)
	prometheus.MustRegister(LoopClosureAttempts)
	prometheus.MustRegister(LoopClosures)
	prometheus.MustRegister(ScanMatchFailures)
	prometheus.MustRegister(SolverDuration)
	prometheus.MustRegister(FinalizeRuns)
}

// SetupTelemetry sets up telemetry so logs and stats can be reported.
func SetupTelemetry() (perf.Exporter, error) {
	exporter := perf.NewDevelopmentExporterWithOptions(perf.DevelopmentExporterOptions{
		ReportingInterval: time.Second,
	})
	if err := exporter.Start(); err != nil {
		return nil, err
	}

	return exporter, nil
}

// MetricsHandler serves the registered metrics in the prometheus exposition format.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
