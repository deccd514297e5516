package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, side-focused interfaces so that each
// component depends only on what it records.
type MetricsCollector interface {
	ProducerMetrics
	ConsumerMetrics
}

// ProducerMetrics defines metrics recorded by the producer side.
type ProducerMetrics interface {
	// RecordFileDiscarded records a garbage or duplicate input file being deleted.
	//
	// Parameters:
	//   - reason: "invalid_name" or "duplicate"
	RecordFileDiscarded(reason string)

	// RecordLockRetry records one failed exclusive-access attempt.
	RecordLockRetry()

	// RecordFileDeferred records a file left for the next scan after exhausting lock retries.
	RecordFileDeferred()

	// RecordPageAccepted records an image appended to the open session.
	RecordPageAccepted()

	// RecordDocumentFlushed records a finished session.
	//
	// Parameters:
	//   - reason: "gap", "timeout" or "shutdown"
	//   - pages: Number of pages in the document
	//   - success: true if every chunk was published
	RecordDocumentFlushed(reason string, pages int, success bool)

	// RecordChunkPublished records a chunk publish attempt.
	RecordChunkPublished(success bool)

	// RecordSnapshotPublished records a status snapshot publish attempt.
	RecordSnapshotPublished(success bool)

	// RecordTimeoutUpdate records a control-plane timeout update.
	//
	// Parameters:
	//   - applied: false when the update was rejected as invalid
	RecordTimeoutUpdate(applied bool)
}

// ConsumerMetrics defines metrics recorded by the consumer side.
type ConsumerMetrics interface {
	// RecordChunkReceived records a chunk taken off the transport queue.
	RecordChunkReceived()

	// RecordProtocolViolation records an unparseable, out-of-order or interleaved chunk.
	//
	// Parameters:
	//   - kind: "unparseable", "order" or "interleaved"
	RecordProtocolViolation(kind string)

	// RecordDocumentReassembled records a document written to the output directory.
	RecordDocumentReassembled(bytes int, success bool)

	// RecordSnapshotRecorded records a snapshot appended to the config log.
	RecordSnapshotRecorded(success bool)

	// RecordTimeoutPushed records a timeout value pushed to the control queue.
	RecordTimeoutPushed(success bool)
}
