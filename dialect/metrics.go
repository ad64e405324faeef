package dialect

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector exports the counters of a StatsDriver as Prometheus
// metrics. Values are read from the driver on every scrape.
type StatsCollector struct {
	drv *StatsDriver

	batches    *prometheus.Desc
	statements *prometheus.Desc
	txCalls    *prometheus.Desc
	duration   *prometheus.Desc
	slow       *prometheus.Desc
	errors     *prometheus.Desc
}

// NewStatsCollector returns a collector reading drv's statistics.
func NewStatsCollector(drv *StatsDriver) *StatsCollector {
	labels := prometheus.Labels{"dialect": drv.Dialect()}
	return &StatsCollector{
		drv:        drv,
		batches:    prometheus.NewDesc("ogm_transport_batches_total", "Statement batches executed.", nil, labels),
		statements: prometheus.NewDesc("ogm_transport_statements_total", "Statements executed.", nil, labels),
		txCalls:    prometheus.NewDesc("ogm_transport_transactions_total", "Transaction calls by operation.", []string{"op"}, labels),
		duration:   prometheus.NewDesc("ogm_transport_execute_seconds_total", "Time spent executing batches.", nil, labels),
		slow:       prometheus.NewDesc("ogm_transport_slow_batches_total", "Batches above the slow threshold.", nil, labels),
		errors:     prometheus.NewDesc("ogm_transport_errors_total", "Failed transport calls.", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.batches
	ch <- c.statements
	ch <- c.txCalls
	ch <- c.duration
	ch <- c.slow
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.drv.QueryStats().Stats()
	ch <- prometheus.MustNewConstMetric(c.batches, prometheus.CounterValue, float64(s.Batches))
	ch <- prometheus.MustNewConstMetric(c.statements, prometheus.CounterValue, float64(s.Statements))
	ch <- prometheus.MustNewConstMetric(c.txCalls, prometheus.CounterValue, float64(s.Begins), "begin")
	ch <- prometheus.MustNewConstMetric(c.txCalls, prometheus.CounterValue, float64(s.Commits), "commit")
	ch <- prometheus.MustNewConstMetric(c.txCalls, prometheus.CounterValue, float64(s.Rollbacks), "rollback")
	ch <- prometheus.MustNewConstMetric(c.duration, prometheus.CounterValue, s.TotalDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.slow, prometheus.CounterValue, float64(s.SlowBatches))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors))
}

var _ prometheus.Collector = (*StatsCollector)(nil)
