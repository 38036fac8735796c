package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobflow_executions_total",
		Help: "Command executions by command name and outcome.",
	}, []string{"command", "status"})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobflow_execution_duration_seconds",
		Help:    "Handler run time by command name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	telemetryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobflow_telemetry_errors_total",
		Help: "Execution-history writes that failed and were skipped.",
	}, []string{"operation"})
)
