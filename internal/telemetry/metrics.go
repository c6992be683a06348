package telemetry

import "github.com/prometheus/client_golang/prometheus"

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "devicepolicy",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"method", "path", "status"},
)

var TransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "devicepolicy",
		Subsystem: "engine",
		Name:      "transitions_total",
		Help:      "Total number of successful state transitions, by event and destination state.",
	},
	[]string{"event", "to_state"},
)

var EventOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "devicepolicy",
		Subsystem: "engine",
		Name:      "event_outcomes_total",
		Help:      "Total number of apply_event outcomes, by result.",
	},
	[]string{"outcome"}, // ok, duplicate, invalid_transition, circuit_open
)

var CommandsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "devicepolicy",
		Subsystem: "dispatcher",
		Name:      "commands_enqueued_total",
		Help:      "Total number of commands enqueued, by command type.",
	},
	[]string{"command"},
)

var CommandsAcknowledgedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "devicepolicy",
		Subsystem: "dispatcher",
		Name:      "commands_acknowledged_total",
		Help:      "Total number of commands acknowledged by devices.",
	},
)

var BreakerStateGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "devicepolicy",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state: 0 = closed, 1 = open.",
	},
)

var BreakerLocksInWindow = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "devicepolicy",
		Subsystem: "breaker",
		Name:      "locks_in_window",
		Help:      "Count of lock-producing transitions currently within the sliding window.",
	},
)

var CanaryStageGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "devicepolicy",
		Subsystem: "canary",
		Name:      "stage_index",
		Help:      "Canary rollout stage index (0 = CANARY through 3 = GA); keeps its last value after a rollback or GA completion.",
	},
)

var EmergencyUnlocksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "devicepolicy",
		Subsystem: "admin",
		Name:      "emergency_unlocks_total",
		Help:      "Total number of devices unlocked by emergency mass-unlock operations.",
	},
)

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "devicepolicy",
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Total number of operational notifications sent, by kind.",
	},
	[]string{"kind"},
)

// All returns every devicepolicy metric for registration with a Prometheus registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		TransitionsTotal,
		EventOutcomesTotal,
		CommandsEnqueuedTotal,
		CommandsAcknowledgedTotal,
		BreakerStateGauge,
		BreakerLocksInWindow,
		CanaryStageGauge,
		EmergencyUnlocksTotal,
		NotificationsTotal,
	}
}
