package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics application collectors, registered on their own registry
type Metrics struct {
	registry *prometheus.Registry

	LessonCompletions *prometheus.CounterVec // result: completed/already_completed/locked/not_found/error
	ModuleUnlocks     prometheus.Counter
	ProgressInits     *prometheus.CounterVec // result: created/exists/error
	LoginAttempts     *prometheus.CounterVec // status: success/failure/locked
	CacheLookups      *prometheus.CounterVec // result: hit/miss
	FeedSubscribers   prometheus.Gauge
	RequestDuration   *prometheus.HistogramVec
}

// New create and register every collector on a fresh registry
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LessonCompletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lesson_completions_total",
				Help:      "Lesson completion requests by result",
			},
			[]string{"result"},
		),
		ModuleUnlocks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_unlocks_total",
				Help:      "Modules unlocked by completing the previous one",
			},
		),
		ProgressInits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "progress_inits_total",
				Help:      "Progress record initializations by result",
			},
			[]string{"result"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Login attempts by status",
			},
			[]string{"status"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "progress_cache_lookups_total",
				Help:      "Progress record cache lookups by result",
			},
			[]string{"result"},
		),
		FeedSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_subscribers",
				Help:      "Open progress feed connections",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Time spent serving api requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.LessonCompletions,
		m.ModuleUnlocks,
		m.ProgressInits,
		m.LoginAttempts,
		m.CacheLookups,
		m.FeedSubscribers,
		m.RequestDuration,
	)
	return m
}

// Handler exposition handler for the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
