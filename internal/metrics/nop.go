// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/arloliu/scanrelay/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	consumer, err := scanrelay.NewConsumer(cfg, conn, scanrelay.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ProducerMetrics implementation

// RecordFileDiscarded discards the metric.
func (n *NopMetrics) RecordFileDiscarded(_ /* reason */ string) {}

// RecordLockRetry discards the metric.
func (n *NopMetrics) RecordLockRetry() {}

// RecordFileDeferred discards the metric.
func (n *NopMetrics) RecordFileDeferred() {}

// RecordPageAccepted discards the metric.
func (n *NopMetrics) RecordPageAccepted() {}

// RecordDocumentFlushed discards the metric.
func (n *NopMetrics) RecordDocumentFlushed(_ /* reason */ string, _ /* pages */ int, _ /* success */ bool) {
}

// RecordChunkPublished discards the metric.
func (n *NopMetrics) RecordChunkPublished(_ /* success */ bool) {}

// RecordSnapshotPublished discards the metric.
func (n *NopMetrics) RecordSnapshotPublished(_ /* success */ bool) {}

// RecordTimeoutUpdate discards the metric.
func (n *NopMetrics) RecordTimeoutUpdate(_ /* applied */ bool) {}

// ConsumerMetrics implementation

// RecordChunkReceived discards the metric.
func (n *NopMetrics) RecordChunkReceived() {}

// RecordProtocolViolation discards the metric.
func (n *NopMetrics) RecordProtocolViolation(_ /* kind */ string) {}

// RecordDocumentReassembled discards the metric.
func (n *NopMetrics) RecordDocumentReassembled(_ /* bytes */ int, _ /* success */ bool) {}

// RecordSnapshotRecorded discards the metric.
func (n *NopMetrics) RecordSnapshotRecorded(_ /* success */ bool) {}

// RecordTimeoutPushed discards the metric.
func (n *NopMetrics) RecordTimeoutPushed(_ /* success */ bool) {}
