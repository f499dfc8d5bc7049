package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error|skipped
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "riskgate_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Admission metrics
	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_admission_decisions_total",
			Help: "Total number of admission decisions",
		},
		[]string{"decision", "risk_level"}, // decision: approved|denied
	)

	AdmissionCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_admission_check_failures_total",
			Help: "Failed admission checks by check name",
		},
		[]string{"check"},
	)

	AdmissionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskgate_admission_latency_seconds",
			Help:    "Admission evaluation latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// Monitor metrics
	StopLossTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_stop_loss_triggers_total",
			Help: "Stop-loss triggers by trigger (stop_loss|hard_floor)",
		},
		[]string{"trigger"},
	)

	CloseCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_close_commands_total",
			Help: "Close commands sent to the ledger",
		},
		[]string{"status"}, // status: success|failed
	)

	DependencyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_dependency_failures_total",
			Help: "Failed calls to external collaborators",
		},
		[]string{"dependency"}, // price_feed|ledger|accounts|profiles
	)

	// Alert metrics
	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_alerts_raised_total",
			Help: "Alerts raised by type and severity",
		},
		[]string{"type", "severity"},
	)

	AlertsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_alerts_suppressed_total",
			Help: "Alerts suppressed by the cool-down",
		},
		[]string{"type"},
	)

	AlertDeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_alert_delivery_failures_total",
			Help: "Failed alert deliveries by sink",
		},
		[]string{"sink"},
	)

	// Audit metrics
	EventsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_events_recorded_total",
			Help: "Risk events appended to the log",
		},
		[]string{"type"},
	)

	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskgate_audit_write_failures_total",
			Help: "Risk events that could not be stored after retries",
		},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"},
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"database", "operation"},
	)

	// Kafka metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_kafka_messages_total",
			Help: "Kafka messages produced and consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: in|out
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "method", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// Admission metrics
	prometheus.MustRegister(AdmissionDecisions)
	prometheus.MustRegister(AdmissionCheckFailures)
	prometheus.MustRegister(AdmissionLatency)

	// Monitor metrics
	prometheus.MustRegister(StopLossTriggers)
	prometheus.MustRegister(CloseCommands)
	prometheus.MustRegister(DependencyFailures)

	// Alert metrics
	prometheus.MustRegister(AlertsRaised)
	prometheus.MustRegister(AlertsSuppressed)
	prometheus.MustRegister(AlertDeliveryFailures)

	// Audit metrics
	prometheus.MustRegister(EventsRecorded)
	prometheus.MustRegister(AuditWriteFailures)

	// Database metrics
	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	prometheus.MustRegister(KafkaMessages)

	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordWorkerSkip records a tick skipped because the previous run was still going
func RecordWorkerSkip(worker string) {
	WorkerExecutions.WithLabelValues(worker, "skipped").Inc()
}

// RecordAdmission records an admission decision and its failed checks
func RecordAdmission(approved bool, riskLevel string, failedChecks []string, latency time.Duration) {
	decision := "approved"
	if !approved {
		decision = "denied"
	}
	AdmissionDecisions.WithLabelValues(decision, riskLevel).Inc()
	AdmissionLatency.Observe(latency.Seconds())
	for _, c := range failedChecks {
		AdmissionCheckFailures.WithLabelValues(c).Inc()
	}
}

// RecordCloseCommand records the outcome of a close command
func RecordCloseCommand(err error) {
	s := "success"
	if err != nil {
		s = "failed"
	}
	CloseCommands.WithLabelValues(s).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced or consumed message
func RecordKafkaMessage(topic, direction string, err error) {
	KafkaMessages.WithLabelValues(topic, direction, status(err)).Inc()
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}
