// Package metrics exposes the engine's Prometheus counters. A nil *Recorder is a valid no-op.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session_trust"

// Recorder owns a private registry so tests can build independent instances.
type Recorder struct {
	registry          *prometheus.Registry
	verdicts          *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	verifications     *prometheus.CounterVec
	admissionRejected prometheus.Counter
	terminated        *prometheus.CounterVec
}

// New registers the engine counters plus Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_verdicts_total",
			Help:      "Risk verdicts produced by login evaluation.",
		}, []string{"verdict"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_outcomes_total",
			Help:      "Login outcomes returned to callers, by status.",
		}, []string{"status"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_verifications_total",
			Help:      "Challenge verifications, by result reason.",
		}, []string{"reason"}),
		admissionRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_admission_rejected_total",
			Help:      "Session admissions refused because the user was at capacity.",
		}),
		terminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Sessions moved to inactive, by termination reason.",
		}, []string{"reason"}),
	}
	r.registry.MustRegister(
		r.verdicts,
		r.outcomes,
		r.verifications,
		r.admissionRejected,
		r.terminated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Verdict(verdict string) {
	if r != nil {
		r.verdicts.WithLabelValues(verdict).Inc()
	}
}

func (r *Recorder) Outcome(status string) {
	if r != nil {
		r.outcomes.WithLabelValues(status).Inc()
	}
}

// ChallengeVerified counts one verification; reason is "OK" on success.
func (r *Recorder) ChallengeVerified(reason string) {
	if r != nil {
		r.verifications.WithLabelValues(reason).Inc()
	}
}

func (r *Recorder) AdmissionRejected() {
	if r != nil {
		r.admissionRejected.Inc()
	}
}

func (r *Recorder) SessionsTerminated(reason string, n int) {
	if r != nil && n > 0 {
		r.terminated.WithLabelValues(reason).Add(float64(n))
	}
}
