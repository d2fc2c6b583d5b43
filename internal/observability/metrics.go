package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agendabot"

// Metrics exposes Prometheus collectors for the interpretation pipeline and
// the reminder lifecycle. A nil *Metrics is valid and records nothing.
type Metrics struct {
	phaseDuration   *prometheus.HistogramVec
	backendDuration *prometheus.HistogramVec
	intents         *prometheus.CounterVec
	intentScore     prometheus.Histogram
	reminders       *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the metrics registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNewMetrics builds the collectors and registers them with reg.
// Collectors already registered under the same name are reused; any other
// registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "interpret",
				Name:      "phase_duration_seconds",
				Help:      "Time spent in each interpretation phase.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase", "outcome"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "classifier",
				Name:      "backend_duration_seconds",
				Help:      "Latency of intent classifier backends by outcome.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"backend", "outcome"},
		),
		intents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "interpret",
				Name:      "intents_total",
				Help:      "Interpreted requests by resolved intent.",
			},
			[]string{"intent"},
		),
		intentScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "interpret",
				Name:      "intent_confidence",
				Help:      "Aggregated intent confidence.",
				Buckets:   []float64{0.3, 0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
			},
		),
		reminders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reminder",
				Name:      "lifecycle_total",
				Help:      "Reminder lifecycle transitions by stage.",
			},
			[]string{"stage"},
		),
	}

	m.phaseDuration = register(reg, m.phaseDuration)
	m.backendDuration = register(reg, m.backendDuration)
	m.intents = register(reg, m.intents)
	m.intentScore = register(reg, m.intentScore)
	m.reminders = register(reg, m.reminders)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObservePhase matches interpret.PhaseObserver.
func (m *Metrics) ObservePhase(phase, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, outcome).Observe(took.Seconds())
}

// ObserveBackend matches intent.Observer.
func (m *Metrics) ObserveBackend(backend, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(backend, outcome).Observe(took.Seconds())
}

func (m *Metrics) ObserveIntent(intent string, confidence float64) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent).Inc()
	m.intentScore.Observe(confidence)
}

// ReminderStage matches reminder.Observer.
func (m *Metrics) ReminderStage(stage string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(stage).Inc()
}
