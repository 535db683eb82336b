package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the watcher's observable events. Served by the status
// API's /metrics endpoint.
type Metrics struct {
	Ticks          prometheus.Counter
	Repacks        *prometheus.CounterVec
	KillFailures   prometheus.Counter
	ToolTimeouts   prometheus.Counter
	Relaunches     prometheus.Counter
	LaunchFailures prometheus.Counter
}

// NewMetrics registers the watcher counters with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "repackmon_poll_ticks_total",
			Help: "Poll ticks executed by the watcher loop.",
		}),
		Repacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repackmon_repacks_total",
			Help: "Repack cycles that ran the external tool, by mode.",
		}, []string{"mode"}),
		KillFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "repackmon_kill_failures_total",
			Help: "Failed attempts to terminate the target process.",
		}),
		ToolTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "repackmon_tool_timeouts_total",
			Help: "External tool runs that exceeded the ceiling and were killed.",
		}),
		Relaunches: factory.NewCounter(prometheus.CounterOpts{
			Name: "repackmon_relaunches_total",
			Help: "Accepted relaunch commands for the target application.",
		}),
		LaunchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "repackmon_launch_failures_total",
			Help: "Relaunch commands that failed to fire.",
		}),
	}
}
