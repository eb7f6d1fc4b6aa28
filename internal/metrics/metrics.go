package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	updateChecks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "update",
			Name:      "checks_total",
			Help:      "Number of release manifest checks performed.",
		},
	)
	updateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "update",
			Name:      "failures_total",
			Help:      "Number of failed update cycles by step.",
		}, []string{"step"},
	)
	updatesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "update",
			Name:      "applied_total",
			Help:      "Number of installs promoted to current.",
		},
	)
	minerStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "miner",
			Name:      "starts_total",
			Help:      "Number of miner launches.",
		},
	)
	minerStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "miner",
			Name:      "stops_total",
			Help:      "Number of miner terminations requested by the launcher.",
		},
	)
	minerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "miner",
			Name:      "restarts_total",
			Help:      "Number of miner relaunches by trigger.",
		}, []string{"trigger"},
	)
	currentVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launcher",
			Subsystem: "update",
			Name:      "current_version",
			Help:      "Set to 1 for the currently promoted version label.",
		}, []string{"version"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{updateChecks, updateFailures, updatesApplied, minerStarts, minerStops, minerRestarts, currentVersion}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers against the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller wires it into a server.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncUpdateCheck() {
	if regOK.Load() {
		updateChecks.Inc()
	}
}

func IncUpdateFailure(step string) {
	if regOK.Load() {
		updateFailures.WithLabelValues(step).Inc()
	}
}

func IncUpdateApplied() {
	if regOK.Load() {
		updatesApplied.Inc()
	}
}

func IncMinerStart() {
	if regOK.Load() {
		minerStarts.Inc()
	}
}

func IncMinerStop() {
	if regOK.Load() {
		minerStops.Inc()
	}
}

func IncMinerRestart(trigger string) {
	if regOK.Load() {
		minerRestarts.WithLabelValues(trigger).Inc()
	}
}

// SetCurrentVersion marks version as the promoted build, clearing the
// previous label so at most one version reports 1.
func SetCurrentVersion(prev, version string) {
	if !regOK.Load() {
		return
	}
	if prev != "" && prev != version {
		currentVersion.DeleteLabelValues(prev)
	}
	if version != "" {
		currentVersion.WithLabelValues(version).Set(1)
	}
}
