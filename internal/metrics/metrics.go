// Package metrics provides Prometheus metrics for the helpdesk bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	SessionsTracked    prometheus.Gauge
	WarningsTotal      prometheus.Counter
	LogoutsTotal       prometheus.Counter
	RateLimitedTotal   prometheus.Counter
	QuickLoginsTotal   *prometheus.CounterVec
	CommandsTotal      *prometheus.CounterVec
	NotifyFailures     prometheus.Counter
	RetryAttemptsTotal prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SessionsTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bot_sessions_tracked",
				Help: "Number of sessions currently tracked for inactivity.",
			},
		),
		WarningsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_session_warnings_total",
				Help: "Total inactivity warnings sent.",
			},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_session_logouts_total",
				Help: "Total sessions revoked for inactivity.",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_rate_limited_total",
				Help: "Total requests rejected by admission control.",
			},
		),
		QuickLoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_quick_logins_total",
				Help: "Quick login attempts via remember-me mapping by result.",
			},
			[]string{"result"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_commands_total",
				Help: "Total commands handled by name.",
			},
			[]string{"command"},
		),
		NotifyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_notify_failures_total",
				Help: "Total notification delivery failures.",
			},
		),
		RetryAttemptsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_retry_attempts_total",
				Help: "Total retries after transient failures.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.SessionsTracked)
	reg.MustRegister(m.WarningsTotal)
	reg.MustRegister(m.LogoutsTotal)
	reg.MustRegister(m.RateLimitedTotal)
	reg.MustRegister(m.QuickLoginsTotal)
	reg.MustRegister(m.CommandsTotal)
	reg.MustRegister(m.NotifyFailures)
	reg.MustRegister(m.RetryAttemptsTotal)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuickLogin increments the quick-login counter.
func (m *Metrics) RecordQuickLogin(result string) {
	m.QuickLoginsTotal.WithLabelValues(result).Inc()
}

// RecordCommand increments the command counter.
func (m *Metrics) RecordCommand(command string) {
	m.CommandsTotal.WithLabelValues(command).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
