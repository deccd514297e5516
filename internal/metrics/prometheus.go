package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/scanrelay/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing
// a PrometheusCollector that is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// producer
	filesDiscarded    *prometheus.CounterVec
	lockRetries       prometheus.Counter
	filesDeferred     prometheus.Counter
	pagesAccepted     prometheus.Counter
	documentsFlushed  *prometheus.CounterVec
	documentPages     prometheus.Histogram
	chunksPublished   *prometheus.CounterVec
	publishFailures   prometheus.Counter
	snapshotsSent     *prometheus.CounterVec
	timeoutUpdates    *prometheus.CounterVec
	lastTimeoutUpdate prometheus.Gauge

	// consumer
	chunksReceived     prometheus.Counter
	protocolViolations *prometheus.CounterVec
	documentsWritten   *prometheus.CounterVec
	documentBytes      prometheus.Histogram
	snapshotsRecorded  *prometheus.CounterVec
	timeoutsPushed     *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "scanrelay" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "scanrelay"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (p *PrometheusCollector) counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.filesDiscarded = p.counterVec("producer", "files_discarded_total",
			"Input files deleted without being staged, by reason (invalid_name, duplicate).", "reason")
		p.lockRetries = p.counter("producer", "lock_retries_total",
			"Failed exclusive-access attempts on input or staged files.")
		p.filesDeferred = p.counter("producer", "files_deferred_total",
			"Files left for the next scan after exhausting lock retries.")
		p.pagesAccepted = p.counter("producer", "pages_accepted_total",
			"Images appended to an open document session.")
		p.documentsFlushed = p.counterVec("producer", "documents_flushed_total",
			"Finished document sessions by flush reason and result.", "reason", "result")
		p.documentPages = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "producer",
			Name:      "document_pages",
			Help:      "Pages per flushed document.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1 .. 128
		})
		p.chunksPublished = p.counterVec("producer", "chunks_published_total",
			"Chunk publish attempts by result.", "result")
		p.publishFailures = p.counter("producer", "publish_failures_total",
			"Chunk publish failures that aborted a document.")
		p.snapshotsSent = p.counterVec("producer", "snapshots_published_total",
			"Status snapshot publish attempts by result.", "result")
		p.timeoutUpdates = p.counterVec("producer", "timeout_updates_total",
			"Control-plane timeout updates by outcome (applied, rejected).", "outcome")
		p.lastTimeoutUpdate = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "producer",
			Name:      "last_timeout_update_applied",
			Help:      "Whether the most recent control-plane update was applied (1) or rejected (0).",
		})

		p.chunksReceived = p.counter("consumer", "chunks_received_total",
			"Chunks taken off the chunk queue.")
		p.protocolViolations = p.counterVec("consumer", "protocol_violations_total",
			"Chunk protocol violations by kind (unparseable, order, interleaved).", "kind")
		p.documentsWritten = p.counterVec("consumer", "documents_reassembled_total",
			"Reassembled documents by write result.", "result")
		p.documentBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "consumer",
			Name:      "document_bytes",
			Help:      "Size in bytes of reassembled documents.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB .. 256MiB
		})
		p.snapshotsRecorded = p.counterVec("consumer", "snapshots_recorded_total",
			"Status snapshots appended to the config log by result.", "result")
		p.timeoutsPushed = p.counterVec("consumer", "timeouts_pushed_total",
			"Timeout values pushed to the control queue by result.", "result")

		p.reg.MustRegister(
			p.filesDiscarded, p.lockRetries, p.filesDeferred, p.pagesAccepted,
			p.documentsFlushed, p.documentPages, p.chunksPublished, p.publishFailures,
			p.snapshotsSent, p.timeoutUpdates, p.lastTimeoutUpdate,
			p.chunksReceived, p.protocolViolations, p.documentsWritten, p.documentBytes,
			p.snapshotsRecorded, p.timeoutsPushed,
		)
	})
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// ProducerMetrics implementation

// RecordFileDiscarded increments discarded files for reason.
func (p *PrometheusCollector) RecordFileDiscarded(reason string) {
	p.ensureRegistered()
	p.filesDiscarded.WithLabelValues(reason).Inc()
}

// RecordLockRetry increments lock retries.
func (p *PrometheusCollector) RecordLockRetry() {
	p.ensureRegistered()
	p.lockRetries.Inc()
}

// RecordFileDeferred increments deferred files.
func (p *PrometheusCollector) RecordFileDeferred() {
	p.ensureRegistered()
	p.filesDeferred.Inc()
}

// RecordPageAccepted increments accepted pages.
func (p *PrometheusCollector) RecordPageAccepted() {
	p.ensureRegistered()
	p.pagesAccepted.Inc()
}

// RecordDocumentFlushed records the flush outcome and the page count of successful flushes.
func (p *PrometheusCollector) RecordDocumentFlushed(reason string, pages int, success bool) {
	p.ensureRegistered()
	p.documentsFlushed.WithLabelValues(reason, result(success)).Inc()
	if success {
		p.documentPages.Observe(float64(pages))
	}
}

// RecordChunkPublished records a chunk publish; failures also bump publish_failures_total.
func (p *PrometheusCollector) RecordChunkPublished(success bool) {
	p.ensureRegistered()
	p.chunksPublished.WithLabelValues(result(success)).Inc()
	if !success {
		p.publishFailures.Inc()
	}
}

// RecordSnapshotPublished records a snapshot publish.
func (p *PrometheusCollector) RecordSnapshotPublished(success bool) {
	p.ensureRegistered()
	p.snapshotsSent.WithLabelValues(result(success)).Inc()
}

// RecordTimeoutUpdate records a control-plane update outcome.
func (p *PrometheusCollector) RecordTimeoutUpdate(applied bool) {
	p.ensureRegistered()
	if applied {
		p.timeoutUpdates.WithLabelValues("applied").Inc()
		p.lastTimeoutUpdate.Set(1)
	} else {
		p.timeoutUpdates.WithLabelValues("rejected").Inc()
		p.lastTimeoutUpdate.Set(0)
	}
}

// ConsumerMetrics implementation

// RecordChunkReceived increments received chunks.
func (p *PrometheusCollector) RecordChunkReceived() {
	p.ensureRegistered()
	p.chunksReceived.Inc()
}

// RecordProtocolViolation increments violations of kind.
func (p *PrometheusCollector) RecordProtocolViolation(kind string) {
	p.ensureRegistered()
	p.protocolViolations.WithLabelValues(kind).Inc()
}

// RecordDocumentReassembled records a document write and its size.
func (p *PrometheusCollector) RecordDocumentReassembled(bytes int, success bool) {
	p.ensureRegistered()
	p.documentsWritten.WithLabelValues(result(success)).Inc()
	if success {
		p.documentBytes.Observe(float64(bytes))
	}
}

// RecordSnapshotRecorded records a config log append.
func (p *PrometheusCollector) RecordSnapshotRecorded(success bool) {
	p.ensureRegistered()
	p.snapshotsRecorded.WithLabelValues(result(success)).Inc()
}

// RecordTimeoutPushed records a control push.
func (p *PrometheusCollector) RecordTimeoutPushed(success bool) {
	p.ensureRegistered()
	p.timeoutsPushed.WithLabelValues(result(success)).Inc()
}

