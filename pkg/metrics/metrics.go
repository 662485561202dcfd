package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	AgentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fm_agents_total",
			Help: "Total number of agents by state",
		},
		[]string{"state"},
	)

	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fm_hosts_total",
			Help: "Total number of hosts by provider and state",
		},
		[]string{"provider", "state"},
	)

	IdleSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fm_idle_sweeps_total",
			Help: "Total number of idle supervisor sweep cycles completed",
		},
	)

	IdleStopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fm_idle_stops_total",
			Help: "Total number of agents stopped by the idle supervisor",
		},
	)

	GCItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_gc_items_total",
			Help: "Total number of resources the garbage collector has removed, by category",
		},
		[]string{"category"},
	)

	// Operation duration metrics
	AgentCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm_agent_create_duration_seconds",
			Help:    "Time taken to create an agent in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AgentStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm_agent_start_duration_seconds",
			Help:    "Time taken to start an agent in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AgentStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm_agent_stop_duration_seconds",
			Help:    "Time taken to stop an agent in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AgentDestroyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fm_agent_destroy_duration_seconds",
			Help:    "Time taken to destroy an agent in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProvisionStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fm_provision_step_duration_seconds",
			Help:    "Time taken to run one provisioning step in seconds, by step kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fm_transfer_duration_seconds",
			Help:    "Time taken for a workspace transfer in seconds, by mode",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"mode"},
	)

	SlowOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fm_slow_ops_total",
			Help: "Total number of operations that exceeded their warn threshold, by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(AgentsTotal)
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(IdleSweepsTotal)
	prometheus.MustRegister(IdleStopsTotal)
	prometheus.MustRegister(GCItemsTotal)

	prometheus.MustRegister(AgentCreateDuration)
	prometheus.MustRegister(AgentStartDuration)
	prometheus.MustRegister(AgentStopDuration)
	prometheus.MustRegister(AgentDestroyDuration)
	prometheus.MustRegister(ProvisionStepDuration)
	prometheus.MustRegister(TransferDuration)
	prometheus.MustRegister(SlowOpsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
