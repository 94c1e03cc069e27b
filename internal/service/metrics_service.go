package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcome labels for write operations.
const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// MetricsService encapsulates Prometheus instrumentation for the registry services.
// A nil *MetricsService is valid and records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	accounts        *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	rosterAdds      prometheus.Counter
	remindersMarked prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	accounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_accounts_total",
		Help: "Account creation attempts by role and outcome",
	}, []string{"role", "outcome"})

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_course_registrations_total",
		Help: "Course registration attempts by outcome",
	}, []string{"outcome"})

	rosterAdds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_session_roster_additions_total",
		Help: "Students added to class session rosters",
	})

	remindersMarked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_session_reminders_marked_total",
		Help: "Class sessions whose reminder flag was set",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(accounts, registrations, rosterAdds, remindersMarked, cacheLookups, cacheLatency)

	return &MetricsService{
		registry:        registry,
		accounts:        accounts,
		registrations:   registrations,
		rosterAdds:      rosterAdds,
		remindersMarked: remindersMarked,
		cacheLookups:    cacheLookups,
		cacheLatency:    cacheLatency,
	}
}

// Registry exposes the underlying registry for gathering or pushing.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAccount counts an account creation attempt.
func (m *MetricsService) RecordAccount(role, outcome string) {
	if m == nil {
		return
	}
	m.accounts.WithLabelValues(role, outcome).Inc()
}

// RecordRegistration counts a course registration attempt.
func (m *MetricsService) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// RecordRosterAdditions counts new session memberships.
func (m *MetricsService) RecordRosterAdditions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rosterAdds.Add(float64(n))
}

// RecordReminderMarked counts a reminder flag transition.
func (m *MetricsService) RecordReminderMarked() {
	if m == nil {
		return
	}
	m.remindersMarked.Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// Push sends the current metric values to a Prometheus pushgateway.
func (m *MetricsService) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
