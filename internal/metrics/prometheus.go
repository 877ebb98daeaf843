// Package metrics exposes rnsgate and Reticulum state as Prometheus metrics.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all rnsgate metrics.
type Registry struct {
	// API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec

	// Control plane metrics
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Settings metrics
	SettingsSaves      *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec

	// Reticulum state, refreshed by the Collector
	DaemonUp          *prometheus.GaugeVec
	InterfacesTotal   prometheus.Gauge
	InterfacesUp      prometheus.Gauge
	MediumTxBytes     *prometheus.GaugeVec
	MediumRxBytes     *prometheus.GaugeVec
	PropagationStored prometheus.Gauge

	// System
	Uptime prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return registry
}

// NewRegistry registers a fresh set of metrics with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	r := &Registry{}

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rnsgate_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "route", "status"})

	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rnsgate_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.Commands = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rnsgate_commands_total",
		Help: "Privileged commands executed by action and outcome",
	}, []string{"action", "outcome"})

	r.CommandDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rnsgate_command_duration_seconds",
		Help:    "Privileged command execution time",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"action"})

	r.SettingsSaves = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rnsgate_settings_saves_total",
		Help: "Settings writes by node",
	}, []string{"node"})

	r.ValidationFailures = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rnsgate_settings_validation_failures_total",
		Help: "Rejected settings writes by node",
	}, []string{"node"})

	r.DaemonUp = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reticulum_daemon_up",
		Help: "Whether a Reticulum daemon is running (1) or not (0)",
	}, []string{"daemon"})

	r.InterfacesTotal = f.NewGauge(prometheus.GaugeOpts{
		Name: "reticulum_interfaces",
		Help: "Interfaces reported by rnsd",
	})

	r.InterfacesUp = f.NewGauge(prometheus.GaugeOpts{
		Name: "reticulum_interfaces_up",
		Help: "Interfaces reported online by rnsd",
	})

	r.MediumTxBytes = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reticulum_medium_tx_bytes",
		Help: "Bytes transmitted per interface medium",
	}, []string{"medium"})

	r.MediumRxBytes = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reticulum_medium_rx_bytes",
		Help: "Bytes received per interface medium",
	}, []string{"medium"})

	r.PropagationStored = f.NewGauge(prometheus.GaugeOpts{
		Name: "lxmf_propagation_messages_stored",
		Help: "Messages held by the LXMF propagation node",
	})

	r.Uptime = f.NewGauge(prometheus.GaugeOpts{
		Name: "rnsgate_uptime_seconds",
		Help: "Seconds since the process started",
	})

	return r
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, route string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, route, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, route).Observe(duration)
}

// RecordCommand records one privileged command execution.
func (r *Registry) RecordCommand(action, outcome string, d time.Duration) {
	r.Commands.WithLabelValues(action, outcome).Inc()
	r.CommandDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RecordSettingsWrite records a settings write attempt on node.
func (r *Registry) RecordSettingsWrite(node string, saved bool) {
	if saved {
		r.SettingsSaves.WithLabelValues(node).Inc()
	} else {
		r.ValidationFailures.WithLabelValues(node).Inc()
	}
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return fmt.Sprintf("%d", status)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
