package metrics

import (
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"riskgate/internal/registry"
)

// TotalsSource exposes registry aggregates
type TotalsSource interface {
	Totals() registry.Totals
}

// RegistryCollector exports the in-memory risk state as gauges at scrape time
type RegistryCollector struct {
	source   TotalsSource
	postgres *sqlx.DB

	monitoredUsers     *prometheus.Desc
	monitoredPositions *prometheus.Desc
	evaluations        *prometheus.Desc
	blocked            *prometheus.Desc
	stopLosses         *prometheus.Desc
	dbConnections      *prometheus.Desc
}

// NewRegistryCollector creates a collector. postgres may be nil.
func NewRegistryCollector(source TotalsSource, postgres *sqlx.DB) *RegistryCollector {
	return &RegistryCollector{
		source:   source,
		postgres: postgres,

		monitoredUsers: prometheus.NewDesc(
			"riskgate_monitored_users",
			"Users currently under monitoring",
			nil, nil,
		),
		monitoredPositions: prometheus.NewDesc(
			"riskgate_monitored_positions",
			"Open positions tracked by the monitor",
			nil, nil,
		),
		evaluations: prometheus.NewDesc(
			"riskgate_evaluations_since_start",
			"Admission evaluations of monitored users since process start",
			nil, nil,
		),
		blocked: prometheus.NewDesc(
			"riskgate_blocked_operations_since_start",
			"Blocked operations of monitored users since process start",
			nil, nil,
		),
		stopLosses: prometheus.NewDesc(
			"riskgate_stop_losses_since_start",
			"Stop-losses fired for monitored users since process start",
			nil, nil,
		),
		dbConnections: prometheus.NewDesc(
			"riskgate_db_open_connections",
			"Open connections in the Postgres pool",
			[]string{"state"}, // in_use|idle
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.monitoredUsers
	ch <- c.monitoredPositions
	ch <- c.evaluations
	ch <- c.blocked
	ch <- c.stopLosses
	ch <- c.dbConnections
}

// Collect implements prometheus.Collector
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	t := c.source.Totals()

	ch <- prometheus.MustNewConstMetric(c.monitoredUsers, prometheus.GaugeValue, float64(t.Users))
	ch <- prometheus.MustNewConstMetric(c.monitoredPositions, prometheus.GaugeValue, float64(t.Positions))
	ch <- prometheus.MustNewConstMetric(c.evaluations, prometheus.CounterValue, float64(t.Evaluations))
	ch <- prometheus.MustNewConstMetric(c.blocked, prometheus.CounterValue, float64(t.Blocked))
	ch <- prometheus.MustNewConstMetric(c.stopLosses, prometheus.CounterValue, float64(t.StopLosses))

	if c.postgres != nil {
		stats := c.postgres.Stats()
		ch <- prometheus.MustNewConstMetric(c.dbConnections, prometheus.GaugeValue, float64(stats.InUse), "in_use")
		ch <- prometheus.MustNewConstMetric(c.dbConnections, prometheus.GaugeValue, float64(stats.Idle), "idle")
	}
}
