// Package telemetry exposes the SDK's prometheus collectors. Hosts that want
// the metrics call Init once to register them with the default registry; the
// collectors work unregistered otherwise.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheResolves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagsdk_cache_resolves_total",
			Help: "Flag resolutions by outcome (fresh, stale, fetched, fallback, empty)",
		},
		[]string{"outcome"},
	)
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagsdk_fetches_total",
			Help: "Flag fetches by result (ok, not_modified, error, discarded)",
		},
		[]string{"result"},
	)
	ResolveTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagsdk_resolve_timeouts_total",
		Help: "Resolutions that returned fallback because the fetch lost the timeout race",
	})
	PromptOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagsdk_prompt_outcomes_total",
			Help: "Prompt message outcomes (displayed, scheduled, rejected)",
		},
		[]string{"outcome"},
	)
	ThrottledEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagsdk_throttled_events_total",
		Help: "Check events dropped by the per-key rate limiter",
	})
	PushReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flagsdk_push_reconnects_total",
		Help: "Reconnect attempts on the prompt push channel",
	})

	PushClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flagsim_push_clients",
		Help: "Number of currently connected simulator stream clients",
	})
	SimFlags = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flagsim_flags",
		Help: "Number of flags currently held by the simulator",
	})
)

func Init() {
	prometheus.MustRegister(
		CacheResolves, Fetches, ResolveTimeouts,
		PromptOutcomes, ThrottledEvents, PushReconnects,
		PushClients, SimFlags,
	)
}
