// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatagramsTotal counts UDP datagrams by direction (tx/rx)
	DatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nocrw_datagrams_total",
			Help: "Total number of UDP datagrams exchanged with the fabric",
		},
		[]string{"direction"},
	)

	// PacketsTotal counts NoC packets by direction and mode
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nocrw_packets_total",
			Help: "Total number of NoC packets exchanged with the fabric",
		},
		[]string{"direction", "mode"},
	)

	// BytesTotal counts payload bytes moved per operation
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nocrw_payload_bytes_total",
			Help: "Total number of payload bytes moved by read/write/send operations",
		},
		[]string{"op"},
	)

	// ReadRetriesTotal counts read sub-requests that were re-issued after a timeout
	ReadRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nocrw_read_retries_total",
			Help: "Total number of read requests retried after a timeout",
		},
	)

	// StaleResponsesTotal counts read responses dropped for carrying an old request id
	StaleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nocrw_stale_responses_total",
			Help: "Total number of read responses discarded as stale",
		},
	)

	// ProtocolErrorsTotal counts malformed traffic by kind
	ProtocolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nocrw_protocol_errors_total",
			Help: "Total number of protocol errors detected on received traffic",
		},
		[]string{"kind"},
	)

	// PendingDatagrams tracks unsolicited traffic buffered for Receive
	PendingDatagrams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nocrw_pending_datagrams",
			Help: "Number of datagrams queued for the next receive call",
		},
	)

	// SelfTestTotal counts self-test outcomes
	SelfTestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nocrw_self_test_total",
			Help: "Total number of connection self tests by result",
		},
		[]string{"result"},
	)

	// ReadLatencySeconds measures the time to complete one read sub-request
	ReadLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nocrw_read_latency_seconds",
			Help:    "Latency of single read sub-requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 18), // 10µs to ~1.3s
		},
	)

	// EmulatorPacketsTotal counts packets served by the software fabric
	EmulatorPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nocrw_emulator_packets_total",
			Help: "Total number of packets handled by the fabric emulator",
		},
		[]string{"mode"},
	)
)

// Direction label values.
const (
	DirectionTx = "tx"
	DirectionRx = "rx"
)

// Self-test result label values.
const (
	SelfTestPass     = "pass"
	SelfTestTimeout  = "timeout"
	SelfTestMismatch = "mismatch"
)
