// Package metrics exposes the daemon's Prometheus counters/gauges (spec
// §7's observability surface) using github.com/prometheus/client_golang,
// the same exporter library runZeroInc-sockstats' exporter package wires
// a custom Collector into. Served over HTTP via promhttp at METRICS_ADDR.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayd",
		Name:      "sends_total",
		Help:      "Overlay send attempts, by remote hostname and outcome.",
	}, []string{"hostname", "outcome"})

	RetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayd",
		Name:      "retries_total",
		Help:      "Reliable Sender retry attempts, by remote hostname.",
	}, []string{"hostname"})

	DedupHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relayd",
		Name:      "dedup_hits_total",
		Help:      "Packets suppressed as content-identical duplicates.",
	})

	ModeTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayd",
		Name:      "mode_transitions_total",
		Help:      "Path Controller PRIMARY/OVERLAY transitions, by remote hostname and target mode.",
	}, []string{"hostname", "mode"})

	SpoolDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayd",
		Name:      "spool_depth",
		Help:      "Number of files currently staged per spool stage.",
	}, []string{"stage"})

	SenderInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayd",
		Name:      "sender_inflight_packets",
		Help:      "Packets currently tracked by the Reliable Sender's delivery ledger.",
	})
)

func init() {
	prometheus.MustRegister(SendsTotal, RetriesTotal, DedupHitsTotal, ModeTransitionsTotal, SpoolDepth, SenderInFlight)
	prometheus.MustRegister(NewDiskCollector())
}

// Serve starts the promhttp exporter on addr; it never returns unless the
// listener fails (spec §6's METRICS_ADDR, "" disables it at the call site).
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
