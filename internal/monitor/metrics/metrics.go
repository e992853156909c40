// Package metrics exposes the engine's Prometheus collector set, grounded
// on EdgeComet-engine/internal/edge/metrics/prometheus_metrics.go's
// constructor/registration/ServeHTTP shape: build every collector against
// a namespace, MustRegister them as one batch, and serve them over a
// fasthttp handler adapted from promhttp via fasthttpadaptor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Collector holds the monitoring engine's Prometheus metrics.
type Collector struct {
	probesTotal         *prometheus.CounterVec
	probeDuration       *prometheus.HistogramVec
	classificationTotal *prometheus.CounterVec
	persistRetries      *prometheus.CounterVec
	persistDropped      prometheus.Counter
	dispatcherInflight  prometheus.Gauge
	schedulerSkipped    prometheus.Counter
	subscribersActive   prometheus.Gauge
	browserSessionUp    prometheus.Gauge

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// New creates a Collector registered against the default registerer.
func New(namespace string, logger *zap.Logger) *Collector {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewWithRegistry creates a Collector registered against a caller-supplied
// registry, mirroring the teacher's test-friendly constructor split.
func NewWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger}

	c.probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "probe", Name: "total",
		Help: "Total number of probes executed, by group/probeType/status",
	}, []string{"group", "probe_type", "status"})

	c.probeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "probe", Name: "duration_seconds",
		Help: "Probe latency by group/probeType", Buckets: prometheus.DefBuckets,
	}, []string{"group", "probe_type"})

	c.classificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "classifier", Name: "status_total",
		Help: "Classified probe outcomes by resulting status",
	}, []string{"status"})

	c.persistRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "dispatch", Name: "persist_retries_total",
		Help: "Version-conflict retries attempted while persisting a probe result",
	}, []string{"url_id"})

	c.persistDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "dispatch", Name: "persist_dropped_total",
		Help: "Probe results that exhausted retries and were dropped (still emitted, non-persisted)",
	})

	c.dispatcherInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "dispatch", Name: "inflight",
		Help: "Number of single-flight probe dispatches currently running",
	})

	c.schedulerSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "scheduler", Name: "skipped_capacity_total",
		Help: "Sweep entries skipped because the concurrency semaphore was saturated",
	})

	c.subscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "pushbus", Name: "subscribers",
		Help: "Number of live push bus subscribers",
	})

	c.browserSessionUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "browser", Name: "session_active",
		Help: "1 if the headless browser process is currently running, else 0",
	})

	registerer.MustRegister(
		c.probesTotal, c.probeDuration, c.classificationTotal,
		c.persistRetries, c.persistDropped, c.dispatcherInflight,
		c.schedulerSkipped, c.subscribersActive, c.browserSessionUp,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	c.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

func (c *Collector) RecordProbe(group, probeType, status string, seconds float64) {
	c.probesTotal.WithLabelValues(group, probeType, status).Inc()
	c.probeDuration.WithLabelValues(group, probeType).Observe(seconds)
}

func (c *Collector) RecordClassification(status string) {
	c.classificationTotal.WithLabelValues(status).Inc()
}

func (c *Collector) RecordPersistRetry(urlID string) {
	c.persistRetries.WithLabelValues(urlID).Inc()
}

func (c *Collector) RecordPersistDropped() {
	c.persistDropped.Inc()
}

func (c *Collector) IncInflight() { c.dispatcherInflight.Inc() }
func (c *Collector) DecInflight() { c.dispatcherInflight.Dec() }

func (c *Collector) RecordSchedulerSkipped() {
	c.schedulerSkipped.Inc()
}

func (c *Collector) SetSubscribers(n int) {
	c.subscribersActive.Set(float64(n))
}

func (c *Collector) SetBrowserSessionActive(active bool) {
	if active {
		c.browserSessionUp.Set(1)
		return
	}
	c.browserSessionUp.Set(0)
}

// ServeHTTP serves the /metrics endpoint via the adapted promhttp handler.
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.httpHandler(ctx)
}
