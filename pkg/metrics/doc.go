/*
Package metrics provides Prometheus metrics collection and exposition
for AcornDB.

The metrics package defines and registers every AcornDB metric using
the Prometheus client library: trunk operation latency, cache hit/miss
counts, root-chain byte counters, tree write-admission outcomes, and
mesh hop/drop counters. Metrics are exposed via an HTTP endpoint for
scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Trunk: op counts, op/flush latency         │          │
	│  │  Cache: hit/miss/eviction counters          │          │
	│  │  Root: bytes in/out, errors by root name    │          │
	│  │  Tree: stash/squabble/toss/ttl counters     │          │
	│  │  Mesh: hops total, dropped by reason        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

Every metric is updated inline at the call site that produces it —
there is no background collector polling a central manager, since every
component (trunk, cache, root, tree, branch) already runs on its own
goroutine boundary and can observe its own counters directly.
*/
package metrics
