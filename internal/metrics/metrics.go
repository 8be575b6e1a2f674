// README: Prometheus counters for dispatch outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldops_jobs_assigned_total",
		Help: "Jobs for which a candidate pool was successfully built.",
	})

	RadiusExpansions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldops_radius_expansions_total",
		Help: "Successful search-radius expansions.",
	})

	DispatchExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldops_dispatch_exhausted_total",
		Help: "Jobs that reached the maximum search radius without candidates.",
	})

	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldops_accept_conflicts_total",
		Help: "Technician accept attempts that lost the race on a job.",
	})

	TrackingUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldops_tracking_updates_total",
		Help: "Tracking snapshots written by the location fan-out.",
	})
)
