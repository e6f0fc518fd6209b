package engine

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/backoff"
	"github.com/DecentralizedGeo/stac-manager-sub002/checkpoint"
	"github.com/DecentralizedGeo/stac-manager-sub002/dag"
	"github.com/DecentralizedGeo/stac-manager-sub002/ext"
	mw "github.com/DecentralizedGeo/stac-manager-sub002/middleware"
	"github.com/DecentralizedGeo/stac-manager-sub002/observability"
	"github.com/DecentralizedGeo/stac-manager-sub002/unit"
)

// instrumentationName is the OTel scope used for engine-built middleware.
const instrumentationName = "github.com/DecentralizedGeo/stac-manager-sub002"

// Engine executes one workflow definition. Build validates the
// definition and resolves every step's unit name; units themselves are
// constructed fresh for each run so sink state never leaks across runs.
type Engine struct {
	def   *pipeline.Definition
	plan  *dag.Plan
	units *unit.Registry

	cfg        pipeline.Config
	logger     *slog.Logger
	extensions *ext.Registry
	userMws    []mw.Middleware
	chain      mw.Middleware

	ckptStore checkpoint.Store
	bo        backoff.Strategy
	attempts  int

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig sets the engine configuration. Workflow-level settings
// from the definition are merged on top of it.
func WithConfig(cfg pipeline.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithExtension registers an extension with the engine.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.extensions.Register(x) }
}

// WithMiddleware adds middleware to the per-record chain, inside the
// engine's default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.userMws = append(e.userMws, m) }
}

// WithCheckpointStore sets the checkpoint backend. When unset and the
// config names a checkpoint directory, a FileStore is created there;
// with neither, checkpointing is disabled and every run starts fresh.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(e *Engine) { e.ckptStore = s }
}

// WithBackoff sets the retry strategy for checkpoint writes.
// If not set, backoff.DefaultStrategy() is used with 3 attempts.
func WithBackoff(b backoff.Strategy, attempts int) Option {
	return func(e *Engine) {
		e.bo = b
		e.attempts = attempts
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability
// extension use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// Build validates the definition, plans its execution levels, and
// checks that every step's unit name is registered. All configuration
// problems surface here as ConfigError, before any record moves.
func Build(def *pipeline.Definition, units *unit.Registry, opts ...Option) (*Engine, error) {
	plan, err := dag.Build(def)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		def:      def,
		plan:     plan,
		units:    units,
		cfg:      pipeline.DefaultConfig(),
		logger:   slog.Default(),
		attempts: 3,
		stop:     make(chan struct{}),
	}
	e.extensions = ext.NewRegistry(e.logger)
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.Merge(def.Settings)
	if e.bo == nil {
		e.bo = backoff.DefaultStrategy()
	}

	// Unknown unit names fail the build, not the run.
	for i := range def.Steps {
		step := &def.Steps[i]
		if !units.Lookup(step.Unit) {
			return nil, &pipeline.ConfigError{
				Steps: []string{step.ID},
				Err:   pipeline.ErrUnknownUnit,
			}
		}
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if e.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(
			e.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	e.extensions.Register(obsExt)

	// Default per-record stack: recover → tracing → metrics → logging,
	// then user middleware innermost.
	stack := []mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
	}
	stack = append(stack, e.userMws...)
	e.chain = mw.Chain(stack...)

	return e, nil
}

// Definition returns the workflow definition this engine runs.
func (e *Engine) Definition() *pipeline.Definition { return e.def }

// Plan returns the level-ordered execution plan.
func (e *Engine) Plan() *dag.Plan { return e.plan }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Stop requests a cooperative stop: sources stop emitting at their
// next record boundary, records already queued drain through to the
// sinks, checkpoints flush, and the failure report is still written.
// Safe to call more than once and from any goroutine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// HandleSignals maps SIGINT and SIGTERM onto Stop. A second signal
// forces immediate exit, relying on the atomic checkpoint protocol for
// recoverability. The returned function releases the signal handler.
func (e *Engine) HandleSignals() func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig, ok := <-ch
		if !ok {
			return
		}
		e.logger.Info("stop requested, finishing in-flight records",
			slog.String("signal", sig.String()))
		e.Stop()

		if sig, ok = <-ch; ok {
			e.logger.Warn("second signal, exiting immediately",
				slog.String("signal", sig.String()))
			os.Exit(1)
		}
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
