// Package metrics exposes Prometheus counters for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bobbycloud_connections_active",
			Help: "Number of connected vehicles",
		},
	)

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bobbycloud_messages_total",
			Help: "Inbound messages by outcome",
		},
		[]string{"result"},
	)

	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bobbycloud_records_total",
			Help: "Decoded records by outcome",
		},
		[]string{"outcome"},
	)

	LinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bobbycloud_lines_total",
			Help: "Line protocol lines produced",
		},
	)

	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bobbycloud_writes_total",
			Help: "Outbound writes by result",
		},
		[]string{"result"},
	)

	WriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bobbycloud_write_duration_seconds",
			Help:    "Outbound write duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Message outcomes.
const (
	ResultForwarded = "forwarded"
	ResultEmpty     = "empty"
	ResultParse     = "parse_error"
	ResultRejected  = "rejected"
	ResultIgnored   = "ignored"
)

func init() {
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(LinesTotal)
	prometheus.MustRegister(WritesTotal)
	prometheus.MustRegister(WriteDuration)
}

func ConnectionOpened() { ActiveConnections.Inc() }

func ConnectionClosed() { ActiveConnections.Dec() }

func IncrementMessages(result string) { MessagesTotal.WithLabelValues(result).Inc() }

// AddRecords counts translated and skipped records of one batch.
func AddRecords(translated, skipped int) {
	RecordsTotal.WithLabelValues("translated").Add(float64(translated))
	RecordsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

func AddLines(n int) { LinesTotal.Add(float64(n)) }

// ObserveWrite records the outcome and latency of one outbound write.
func ObserveWrite(d time.Duration, err error) {
	WriteDuration.Observe(d.Seconds())
	if err != nil {
		WritesTotal.WithLabelValues("error").Inc()
		return
	}
	WritesTotal.WithLabelValues("ok").Inc()
}
