// Package metrics exposes Prometheus counters for authentication outcomes.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-device-auth/pkg/errors"
)

const namespace = "deviceauth"

// OutcomeSuccess labels operations that returned no error
const OutcomeSuccess = "success"

type Metrics struct {
	registry      *prometheus.Registry
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	validations   *prometheus.CounterVec
	deviceEvents  *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
}

// New creates the counters on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Token validations by outcome.",
		}, []string{"outcome"}),
		deviceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_total",
			Help:      "Device trust changes by event.",
		}, []string{"event"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter by limit type.",
		}, []string{"limit"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.registrations,
		m.logins,
		m.validations,
		m.deviceEvents,
		m.rateLimited,
	)
	return m
}

// Outcome turns an error into a low-cardinality label value
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return strings.ToLower(string(errors.GetCode(err)))
}

func (m *Metrics) ObserveRegistration(err error) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(Outcome(err)).Inc()
}

// ObserveLogin records a login. outcome overrides the error-derived label for
// successful logins that ended in a restricted session.
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveValidation(err error) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(Outcome(err)).Inc()
}

// ObserveDeviceEvent counts trust changes: "trusted", "confirmed", "revoked", "promoted"
func (m *Metrics) ObserveDeviceEvent(event string) {
	if m == nil {
		return
	}
	m.deviceEvents.WithLabelValues(event).Inc()
}

// ObserveRateLimited matches the hook signature of the rate limit middleware
func (m *Metrics) ObserveRateLimited(limitType string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limitType).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
