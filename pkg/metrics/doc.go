/*
Package metrics provides Prometheus metrics collection and exposition for
fm's fleet manager.

Metrics are opt-in: nothing in the orchestrator, enumerator, or idle
supervisor depends on them being scraped. Serving them is a single
`--metrics-addr` flag away via Handler().

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry, MustRegister     │          │
	│  │    at package init                          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │  Fleet:   agents_total, hosts_total         │          │
	│  │  Idle:    sweeps_total, stops_total         │          │
	│  │  GC:      items_total{category}             │          │
	│  │  Ops:     create/start/stop/destroy duration│          │
	│  │  Transfer/provision duration, slow_ops_total│          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Handler() -> promhttp.Handler()          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

fm_agents_total{state}: gauge, agents by lifecycle state.
fm_hosts_total{provider,state}: gauge, hosts by provider kind and state.
fm_idle_sweeps_total / fm_idle_stops_total: counters from the idle supervisor.
fm_gc_items_total{category}: counter, resources removed per gc category.
fm_agent_{create,start,stop,destroy}_duration_seconds: histograms.
fm_provision_step_duration_seconds{kind}: histogram per provisioning step kind.
fm_transfer_duration_seconds{mode}: histogram per workspace transfer mode.
fm_slow_ops_total{op}: counter, operations that exceeded their warn threshold.

# Usage

	import "github.com/cuemby/fm/pkg/metrics"

	metrics.AgentsTotal.WithLabelValues("running").Set(5)

	timer := metrics.NewTimer()
	createAgent()
	timer.ObserveDuration(metrics.AgentCreateDuration)

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration: every metric is registered in init(); MustRegister
panics on a duplicate name, so a typo'd rename surfaces immediately rather
than silently dropping a series.

Timer Pattern: create a Timer at an operation's start, observe its duration
into the matching histogram when it finishes — the same helper shape the
teacher used for service/task/Raft timings, carried over verbatim since the
shape doesn't change across domains.

Cardinality discipline: labels stay low-cardinality (state, provider, mode,
category) — never an agent or host id.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
