package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommandCounter counts commands sent by the socket transport, by verb
	// and outcome (ok, error, timeout).
	CommandCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charcoal_redis_commands_total",
		Help: "Total number of Redis commands sent",
	}, []string{"command", "status"})
	// CommandLatency observes the round trip time of each command.
	CommandLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "charcoal_redis_command_duration_seconds",
		Help:    "Round trip latency of Redis commands",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
	// ConnectionEvents counts connect and disconnect notifications.
	ConnectionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charcoal_redis_connection_events_total",
		Help: "Total number of connection lifecycle events",
	}, []string{"event"})
	// ConnectedGauge reports the number of open client connections.
	ConnectedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "charcoal_redis_connections",
		Help: "Current number of open Redis connections",
	})
	// ConnectionLifetime observes how long connections stayed open, as seen
	// by cache.Events.
	ConnectionLifetime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "charcoal_redis_connection_lifetime_seconds",
		Help:    "Lifetime of Redis connections",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})
	// LockAcquisitions counts semaphore acquisitions by outcome
	// (acquired, blocked, timeout, error).
	LockAcquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charcoal_redis_lock_acquisitions_total",
		Help: "Total number of semaphore acquisition outcomes",
	}, []string{"outcome"})
	// LockAttempts counts individual acquire attempts, including retries.
	LockAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charcoal_redis_lock_attempts_total",
		Help: "Total number of semaphore acquire attempts",
	})
	// LockReleases counts releases by outcome (released, failed).
	LockReleases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charcoal_redis_lock_releases_total",
		Help: "Total number of semaphore release outcomes",
	}, []string{"outcome"})
	// LockHeld observes how long locks were held before release.
	LockHeld = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "charcoal_redis_lock_held_seconds",
		Help:    "Time semaphore locks were held",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	// CacheHits counts typed cache lookups that found a value.
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charcoal_redis_cache_hits_total",
		Help: "Total number of cache hits by tier",
	}, []string{"tier"})
	// CacheMisses counts typed cache lookups that found nothing.
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charcoal_redis_cache_misses_total",
		Help: "Total number of cache misses",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers every collector on reg. It panics on duplicate
// registration, like prometheus.MustRegister.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CommandCounter, CommandLatency,
		ConnectionEvents, ConnectedGauge, ConnectionLifetime,
		LockAcquisitions, LockAttempts, LockReleases, LockHeld,
		CacheHits, CacheMisses,
	)
}
