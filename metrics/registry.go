package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "prover_rewards"

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// Common bucket layouts.
var (
	DurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	CountBuckets    = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}
)

// GetRegistry returns the process-wide registry, creating it with the
// Go runtime and process collectors on first use.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// ComponentRegistry namespaces metrics for one component.
// Registering a metric that already exists returns the existing collector,
// so constructors may run more than once per process.
type ComponentRegistry struct {
	reg       prometheus.Registerer
	subsystem string
}

// NewComponentRegistry creates a registry for subsystem under the global registry.
func NewComponentRegistry(subsystem string) *ComponentRegistry {
	return NewComponentRegistryWith(GetRegistry(), subsystem)
}

// NewComponentRegistryWith binds the component to an explicit registerer.
func NewComponentRegistryWith(reg prometheus.Registerer, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{reg: reg, subsystem: subsystem}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return r.register(prometheus.NewCounter(opts)).(prometheus.Counter)
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return r.register(prometheus.NewCounterVec(opts, labels)).(*prometheus.CounterVec)
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return r.register(prometheus.NewGauge(opts)).(prometheus.Gauge)
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return r.register(prometheus.NewGaugeVec(opts, labels)).(*prometheus.GaugeVec)
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return r.register(prometheus.NewHistogram(opts)).(prometheus.Histogram)
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem = namespace, r.subsystem
	return r.register(prometheus.NewHistogramVec(opts, labels)).(*prometheus.HistogramVec)
}

func (r *ComponentRegistry) register(c prometheus.Collector) prometheus.Collector {
	if err := r.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
