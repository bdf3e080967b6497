package jdbcsink

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "jdbc_sink"

var (
	recordsFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_flushed_total",
			Help:      "Total records flushed per table and record type.",
		},
		[]string{"table", "type"},
	)
	flushErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flush_errors_total",
			Help:      "Total failed flushes per table.",
		},
		[]string{"table"},
	)
	flushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "flush_duration_seconds",
			Help:      "Flush latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"table"},
	)
	ddlOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ddl_operations_total",
			Help:      "Total DDL statements executed per table and operation.",
		},
		[]string{"table", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		recordsFlushedTotal,
		flushErrorsTotal,
		flushDuration,
		ddlOperationsTotal,
	)
}
