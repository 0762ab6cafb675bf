package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheLookupOutcome captures the result of an evaluation-cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached resolution.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached resolution was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
)

// PollOutcome captures the result of an override poll attempt.
type PollOutcome string

const (
	// PollOutcomeUpdated indicates the poll replaced the held override state.
	PollOutcomeUpdated PollOutcome = "updated"
	// PollOutcomeNotModified indicates a 304 response.
	PollOutcomeNotModified PollOutcome = "not_modified"
	// PollOutcomeError indicates the poll failed and was swallowed.
	PollOutcomeError PollOutcome = "error"
)

// Recorder publishes Prometheus metrics for resolver activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	resolveTotal   *prometheus.CounterVec
	resolveLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec

	overridePolls *prometheus.CounterVec

	artifactLoads *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	resolveTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcore",
		Subsystem: "resolve",
		Name:      "requests_total",
		Help:      "Total resolve* calls handled by the resolver facade.",
	}, []string{"flag", "reason", "error_code", "from_cache"})

	resolveLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evalcore",
		Subsystem: "resolve",
		Name:      "duration_seconds",
		Help:      "Latency distribution for resolve* calls.",
		Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	}, []string{"flag", "reason"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcore",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Evaluation cache lookups performed by the resolver facade.",
	}, []string{"result"})

	overridePolls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcore",
		Subsystem: "override",
		Name:      "poll_total",
		Help:      "Override source poll attempts.",
	}, []string{"outcome"})

	artifactLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcore",
		Subsystem: "artifact",
		Name:      "loads_total",
		Help:      "Artifact load/reload attempts.",
	}, []string{"result"})

	reg.MustRegister(resolveTotal, resolveLatency, cacheOperations, overridePolls, artifactLoads)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		resolveTotal:    resolveTotal,
		resolveLatency:  resolveLatency,
		cacheOperations: cacheOperations,
		overridePolls:   overridePolls,
		artifactLoads:   artifactLoads,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveResolve records the outcome and latency of one resolve* call.
func (r *Recorder) ObserveResolve(flag, reason, errorCode string, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	flagLabel := normalizeLabel(flag)
	reasonLabel := normalizeLabel(reason)
	errorLabel := errorCode
	if errorLabel == "" {
		errorLabel = "none"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.resolveTotal.WithLabelValues(flagLabel, reasonLabel, errorLabel, cacheLabel).Inc()
	r.resolveLatency.WithLabelValues(flagLabel, reasonLabel).Observe(duration.Seconds())
}

// ObserveCacheLookup records an evaluation-cache lookup outcome.
func (r *Recorder) ObserveCacheLookup(outcome CacheLookupOutcome) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues(string(outcome)).Inc()
}

// ObserveOverridePoll records the outcome of one override poll attempt.
func (r *Recorder) ObserveOverridePoll(outcome PollOutcome) {
	if r == nil {
		return
	}
	r.overridePolls.WithLabelValues(string(outcome)).Inc()
}

// ObserveArtifactLoad records the outcome of an artifact load/reload.
func (r *Recorder) ObserveArtifactLoad(result string) {
	if r == nil {
		return
	}
	r.artifactLoads.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
