package runner

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	loads       *prometheus.CounterVec
	generations *prometheus.CounterVec
	tokens      prometheus.Counter
	active      prometheus.Gauge
	duplicates  prometheus.Counter
	duration    *prometheus.HistogramVec
}

// newMetrics builds the runner collectors and registers them on reg. A nil
// reg leaves them unregistered. Collectors already registered by another
// runner on the same registry are shared.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runnerd",
			Subsystem: "runner",
			Name:      "loads_total",
			Help:      "Model load attempts by result",
		}, []string{"result"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runnerd",
			Subsystem: "runner",
			Name:      "generations_total",
			Help:      "Generate calls by outcome",
		}, []string{"outcome"}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runnerd",
			Subsystem: "runner",
			Name:      "tokens_total",
			Help:      "Tokens delivered to active sessions",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "runnerd",
			Subsystem: "runner",
			Name:      "active_sessions",
			Help:      "Generation sessions currently active",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runnerd",
			Subsystem: "runner",
			Name:      "duplicate_terminals_total",
			Help:      "Terminal signals ignored because the session had already ended",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "runnerd",
			Subsystem: "runner",
			Name:      "generation_duration_seconds",
			Help:      "Time from session start to terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),
	}
	m.loads = register(reg, m.loads)
	m.generations = register(reg, m.generations)
	m.tokens = register(reg, m.tokens)
	m.active = register(reg, m.active)
	m.duplicates = register(reg, m.duplicates)
	m.duration = register(reg, m.duration)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
