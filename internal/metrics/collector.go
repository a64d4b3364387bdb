// Package metrics exposes decoder and access counters to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rfidgate/internal/access"
	"rfidgate/internal/tag"
)

const namespace = "rfidgate"

// Collector holds the metric vectors on a private registry, so tests and
// multiple instances never collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	decodeOutcomes  *prometheus.CounterVec
	accessDecisions *prometheus.CounterVec
	actuatorErrors  prometheus.Counter
	droppedFrames   prometheus.Counter
	resyncs         prometheus.Counter
	desyncs         prometheus.Counter
	decodeDuration  prometheus.Histogram
	lastDecoded     prometheus.Gauge

	mu          sync.Mutex
	lastCapture CaptureStats
}

// NewCollector creates and registers all metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decodeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_outcomes_total",
				Help:      "Decode cycles by outcome",
			},
			[]string{"outcome"},
		),
		accessDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_decisions_total",
				Help:      "Access decisions by verdict",
			},
			[]string{"verdict"},
		),
		actuatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_errors_total",
			Help:      "Failed actuator commands",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_dropped_blocks_total",
			Help:      "Capture blocks dropped while the buffer was being decoded",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_resyncs_total",
			Help:      "Frames abandoned mid-payload on the capture link",
		}),
		desyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_desyncs_total",
			Help:      "Runs skipped by the demultiplexer",
		}),
		decodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding one capture buffer",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		lastDecoded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_decode_timestamp_seconds",
			Help:      "Unix time of the last successful decode",
		}),
	}

	c.registry.MustRegister(
		c.decodeOutcomes,
		c.accessDecisions,
		c.actuatorErrors,
		c.droppedFrames,
		c.resyncs,
		c.desyncs,
		c.decodeDuration,
		c.lastDecoded,
	)

	// Pre-create label values so every series is exported from the start.
	for _, o := range []tag.Outcome{tag.OutcomeDecoded, tag.OutcomeNoCard, tag.OutcomeIncomplete, tag.OutcomeCorrupt} {
		c.decodeOutcomes.WithLabelValues(o.String())
	}
	for _, v := range []access.Verdict{access.Accept, access.Reject} {
		c.accessDecisions.WithLabelValues(v.String())
	}

	return c
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDecode records one decode cycle.
func (c *Collector) ObserveDecode(res tag.Result, elapsed time.Duration) {
	c.decodeOutcomes.WithLabelValues(res.Outcome.String()).Inc()
	c.decodeDuration.Observe(elapsed.Seconds())
	if res.Demux.Desyncs > 0 {
		c.desyncs.Add(float64(res.Demux.Desyncs))
	}
	if res.Outcome == tag.OutcomeDecoded {
		c.lastDecoded.SetToCurrentTime()
	}
}

// ObserveDecision records one access decision.
func (c *Collector) ObserveDecision(v access.Verdict, err error) {
	c.accessDecisions.WithLabelValues(v.String()).Inc()
	if err != nil {
		c.actuatorErrors.Inc()
	}
}

// CaptureStats carries cumulative capture counters into the collector.
type CaptureStats struct {
	Dropped uint64
	Resyncs uint64
}

// SyncCapture adds the growth of the cumulative capture counters since the
// previous call.
func (c *Collector) SyncCapture(now CaptureStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Dropped > c.lastCapture.Dropped {
		c.droppedFrames.Add(float64(now.Dropped - c.lastCapture.Dropped))
	}
	if now.Resyncs > c.lastCapture.Resyncs {
		c.resyncs.Add(float64(now.Resyncs - c.lastCapture.Resyncs))
	}
	c.lastCapture = now
}
