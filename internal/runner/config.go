package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"runnerd/internal/bridge"
)

const tracerName = "runnerd/internal/runner"

// Config encapsulates the collaborators of a Runner.
type Config struct {
	// Bridge is the engine the runner drives. Required.
	Bridge bridge.Bridge
	// Logger for lifecycle logging. Nil disables logging.
	Logger *zerolog.Logger
	// Publisher receives lifecycle events. Nil drops them.
	Publisher EventPublisher
	// Registerer receives the runner's Prometheus collectors. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
	// Tracer for load/generate spans. Nil uses the global tracer provider.
	Tracer trace.Tracer
}

// New constructs a Runner for b with default collaborators.
func New(b bridge.Bridge) *Runner {
	return NewWithConfig(Config{Bridge: b})
}

// NewWithConfig constructs a Runner from Config.
func NewWithConfig(cfg Config) *Runner {
	if cfg.Bridge == nil {
		panic("runner: nil bridge")
	}
	r := &Runner{
		bridge:    cfg.Bridge,
		publisher: cfg.Publisher,
		tracer:    cfg.Tracer,
		metrics:   newMetrics(cfg.Registerer),
		handles:   make(map[string]*Handle),
		subs:      newSubscriptionSet(),
		startTime: time.Now(),
	}
	if cfg.Logger != nil {
		r.log = cfg.Logger.With().Str("component", "runner").Logger()
	} else {
		r.log = zerolog.Nop()
	}
	if r.publisher == nil {
		r.publisher = noopPublisher{}
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}
