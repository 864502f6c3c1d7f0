package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "ledger_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
)

var (
	registerOnce sync.Once

	lotCreateTotal   *prometheus.CounterVec
	lotCreateLatency *prometheus.HistogramVec

	transferTotal   *prometheus.CounterVec
	transferLatency *prometheus.HistogramVec

	sequenceRetries *prometheus.CounterVec

	consumerLag *prometheus.GaugeVec

	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxRecords         *prometheus.CounterVec

	activityAppendTotal *prometheus.CounterVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
)

// Init registers ledger metrics and DB-backed gauges. db may be nil.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		lotCreateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lot_create_total",
				Help: "Total lot creations by origin and result",
			},
			[]string{"origin", "result"},
		)
		lotCreateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "lot_create_latency_seconds",
				Help:    "Lot creation latency in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		transferTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transfer_total",
				Help: "Total transfers and testing draws by kind and result",
			},
			[]string{"kind", "result"},
		)
		transferLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "transfer_latency_seconds",
				Help:    "Transfer latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		sequenceRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sequence_contention_retries_total",
				Help: "Units of work retried after lock contention",
			},
			[]string{"operation"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox relay runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox relay run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_records_total",
				Help: "Outbox records handled by the relay by outcome",
			},
			[]string{"outcome"},
		)

		activityAppendTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "activity_append_total",
				Help: "Activity trail appends by sink and result",
			},
			[]string{"sink", "result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total stock report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Stock report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method and status class",
			},
			[]string{"method", "status"},
		)

		prometheus.MustRegister(
			lotCreateTotal,
			lotCreateLatency,
			transferTotal,
			transferLatency,
			sequenceRetries,
			consumerLag,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxRecords,
			activityAppendTotal,
			reportExportTotal,
			reportExportLatency,
			httpRequests,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveLotCreate records a lot creation.
func ObserveLotCreate(origin, result string, duration time.Duration) {
	if origin == "" {
		origin = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if lotCreateTotal != nil {
		lotCreateTotal.WithLabelValues(origin, result).Inc()
	}
	if lotCreateLatency != nil {
		lotCreateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveTransfer records a transfer or testing draw.
func ObserveTransfer(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if transferTotal != nil {
		transferTotal.WithLabelValues(kind, result).Inc()
	}
	if transferLatency != nil {
		transferLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncSequenceRetry counts a unit of work retried after contention.
func IncSequenceRetry(operation string) {
	if operation == "" {
		operation = "unknown"
	}
	if sequenceRetries != nil {
		sequenceRetries.WithLabelValues(operation).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveOutboxDispatch records one relay run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dead int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxRecords != nil {
		outboxRecords.WithLabelValues("sent").Add(float64(sent))
		outboxRecords.WithLabelValues("failed").Add(float64(failed))
		outboxRecords.WithLabelValues("dead").Add(float64(dead))
	}
}

// IncActivityAppend counts an activity sink append.
func IncActivityAppend(sink, result string) {
	if sink == "" {
		sink = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if activityAppendTotal != nil {
		activityAppendTotal.WithLabelValues(sink, result).Inc()
	}
}

// ObserveReportExport records export latency and result.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// IncHTTPRequest counts a served request.
func IncHTTPRequest(method string, status int) {
	if httpRequests == nil {
		return
	}
	class := "5xx"
	switch {
	case status < 300:
		class = "2xx"
	case status < 400:
		class = "3xx"
	case status < 500:
		class = "4xx"
	}
	httpRequests.WithLabelValues(method, class).Inc()
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
)
