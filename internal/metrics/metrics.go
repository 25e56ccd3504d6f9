// Package metrics instruments the control plane with
// github.com/prometheus/client_golang, generalizing the monitoring concern
// the chaos-tooling sibling project covers with a Prometheus API *client*
// (pkg/monitoring/prometheus): there it queries an external Prometheus,
// here the daemon being instrumented is itself the exporter, via the same
// ecosystem dependency used producer-side.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters and gauges named in SPEC_FULL.md §A.4.
type Registry struct {
	reg *prometheus.Registry

	AdjacencyTransitions *prometheus.CounterVec
	LIERejections        *prometheus.CounterVec
	TIEsOriginated        prometheus.Counter
	TIEsFlushed           prometheus.Counter
	TIEsAgedOut           prometheus.Counter
	SPFRuns              *prometheus.CounterVec
	RIBInstalls          *prometheus.CounterVec
	RIBRemovals          *prometheus.CounterVec

	Level      prometheus.Gauge
	HAL        prometheus.Gauge
	HAT        prometheus.Gauge
	QueueDepth *prometheus.GaugeVec
}

// New creates a Registry with all metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		AdjacencyTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rift_adjacency_transitions_total",
			Help: "Adjacency FSM transitions by from/to state.",
		}, []string{"interface", "from", "to"}),
		LIERejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rift_lie_rejections_total",
			Help: "Rejected LIEs by reason.",
		}, []string{"interface", "reason"}),
		TIEsOriginated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rift_ties_originated_total",
			Help: "Self-originated TIEs (node, prefix) generated.",
		}),
		TIEsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rift_ties_flushed_total",
			Help: "Empty South Prefix TIEs issued to withdraw a previously originated default route.",
		}),
		TIEsAgedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rift_ties_aged_out_total",
			Help: "TIEs removed from the database on remaining_lifetime reaching zero.",
		}),
		SPFRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rift_spf_runs_total",
			Help: "SPF runs by direction.",
		}, []string{"direction"}),
		RIBInstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rift_rib_installs_total",
			Help: "Routes installed into the RIB by owner.",
		}, []string{"owner", "family"}),
		RIBRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rift_rib_removals_total",
			Help: "Stale routes removed from the RIB by owner.",
		}, []string{"owner", "family"}),
		Level: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rift_level",
			Help: "Current derived or configured level. -1 if undefined.",
		}),
		HAL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rift_hal",
			Help: "Highest Available Level across all offers. -1 if undefined.",
		}),
		HAT: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rift_hat",
			Help: "Highest Adjacency Three-way level. -1 if undefined.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rift_flood_queue_depth",
			Help: "Per-interface, per-queue flood queue depth.",
		}, []string{"interface", "queue"}),
	}

	reg.MustRegister(
		r.AdjacencyTransitions,
		r.LIERejections,
		r.TIEsOriginated,
		r.TIEsFlushed,
		r.TIEsAgedOut,
		r.SPFRuns,
		r.RIBInstalls,
		r.RIBRemovals,
		r.Level,
		r.HAL,
		r.HAT,
		r.QueueDepth,
	)
	return r
}

// Handler returns the HTTP handler to serve /metrics, for use by cmd/riftd
// when a metrics address is configured.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
