// Package metrics records what the testing language does to the root chain and the
// child chain mirror.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	opmetrics "github.com/mantlenetworkio/plasma/plasma-service/metrics"
)

const Namespace = "plasma_testlang"

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	RecordBlockAdded(deposit bool)
	RecordBlockRejected()
	RecordProofCache(hit bool)

	// RecordRootChainCall starts timing a root chain call and returns the func that ends it.
	RecordRootChainCall(method string) (onDone func(err error))
	RecordExitStarted(kind string)
	RecordExitChallenged(kind string)

	RecordScenario(name string, passed bool, duration time.Duration)
}

type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	info prometheus.GaugeVec
	up   prometheus.Gauge

	blocksAdded    *prometheus.CounterVec
	blocksRejected prometheus.Counter
	proofCache     *prometheus.CounterVec

	rootChainCalls    *prometheus.CounterVec
	rootChainDuration *prometheus.HistogramVec
	exitsStarted      *prometheus.CounterVec
	exitsChallenged   *prometheus.CounterVec

	scenarios        *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
}

var _ Metricer = (*Metrics)(nil)

func NewMetrics(procName string) *Metrics {
	return newMetrics(procName, opmetrics.NewRegistry())
}

func newMetrics(procName string, registry *prometheus.Registry) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	factory := opmetrics.With(registry)
	return &Metrics{
		ns:       ns,
		registry: registry,
		factory:  factory,

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Pseudo-metric tracking version and config info",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if the testing language has finished starting up",
		}),

		blocksAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "mirror",
			Name:      "blocks_added_total",
			Help:      "Blocks recorded by the child chain mirror",
		}, []string{"kind"}),
		blocksRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "mirror",
			Name:      "blocks_rejected_total",
			Help:      "Blocks the child chain mirror refused",
		}),
		proofCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "mirror",
			Name:      "proof_cache_total",
			Help:      "Membership proof cache lookups",
		}, []string{"result"}),

		rootChainCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "rootchain",
			Name:      "calls_total",
			Help:      "Root chain calls by method and outcome",
		}, []string{"method", "result"}),
		rootChainDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "rootchain",
			Name:      "call_duration_seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Duration of root chain calls",
		}, []string{"method"}),
		exitsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "exits_started_total",
			Help:      "Exits started by kind",
		}, []string{"kind"}),
		exitsChallenged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "exits_challenged_total",
			Help:      "Exit challenges submitted by kind",
		}, []string{"kind"}),

		scenarios: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "scenarios_total",
			Help:      "Scenario runs by name and result",
		}, []string{"scenario", "result"}),
		scenarioDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "scenario_duration_seconds",
			Buckets:   []float64{.001, .01, .1, 1, 10, 60},
			Help:      "Duration of scenario runs",
		}, []string{"scenario"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Document() []opmetrics.DocumentedMetric {
	return m.factory.Document()
}

// RecordInfo sets a pseudo-metric that contains versioning and config info.
func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordBlockAdded(deposit bool) {
	kind := "child"
	if deposit {
		kind = "deposit"
	}
	m.blocksAdded.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordBlockRejected() {
	m.blocksRejected.Inc()
}

func (m *Metrics) RecordProofCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.proofCache.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRootChainCall(method string) (onDone func(err error)) {
	timer := prometheus.NewTimer(m.rootChainDuration.WithLabelValues(method))
	return func(err error) {
		timer.ObserveDuration()
		m.rootChainCalls.WithLabelValues(method, outcome(err == nil)).Inc()
	}
}

func (m *Metrics) RecordExitStarted(kind string) {
	m.exitsStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordExitChallenged(kind string) {
	m.exitsChallenged.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordScenario(name string, passed bool, duration time.Duration) {
	m.scenarios.WithLabelValues(name, outcome(passed)).Inc()
	m.scenarioDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}
